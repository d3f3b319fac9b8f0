package analyzer

import (
	"cmp"
	"slices"
)

// Channel is one channel of a crawled guild as it appears in a Report.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TypeCode  int    `json:"typeCode"`
	TypeLabel string `json:"typeLabel"`
	Link      string `json:"link"`
	ParentID  string `json:"parentId,omitempty"`
	Position  int    `json:"position"`

	// Voice is set on voice-capable channels only.
	Voice *Occupancy `json:"voice,omitempty"`
}

// VoiceOccupant is a user present in a voice channel. Muted and Deafened
// combine the server-enforced and self-applied flags.
type VoiceOccupant struct {
	UserID        string  `json:"userId"`
	Username      string  `json:"username"`
	Discriminator string  `json:"discriminator"`
	AvatarURL     *string `json:"avatarUrl"`
	Muted         bool    `json:"muted"`
	Deafened      bool    `json:"deafened"`
	Streaming     bool    `json:"streaming"`
	Video         bool    `json:"video"`
}

// Occupancy is the resolved occupant list of one voice channel.
type Occupancy struct {
	Occupants     []VoiceOccupant `json:"occupants"`
	OccupantCount int             `json:"occupantCount"`
}

// VoiceChannelInfo is a voice-capable channel with its current occupants.
// The embedded Channel has a nil Voice; the occupancy sits at the top level.
type VoiceChannelInfo struct {
	Channel
	Occupancy
}

// Report is the result of one guild crawl.
//
// len(Accessible)+len(Inaccessible) == Total. VoiceChannels is an overlapping
// view: every entry also appears in exactly one of the other two lists.
type Report struct {
	GuildName     string             `json:"guildName"`
	Accessible    []Channel          `json:"accessible"`
	Inaccessible  []Channel          `json:"inaccessible"`
	VoiceChannels []VoiceChannelInfo `json:"voiceChannels"`
	Total         int                `json:"total"`
}

// SortForDisplay returns a copy of channels ordered by position, then name.
// The crawl itself keeps upstream listing order.
func SortForDisplay(channels []Channel) []Channel {
	out := slices.Clone(channels)
	slices.SortStableFunc(out, func(a, b Channel) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// SortVoiceForDisplay is SortForDisplay for voice channel entries.
func SortVoiceForDisplay(channels []VoiceChannelInfo) []VoiceChannelInfo {
	out := slices.Clone(channels)
	slices.SortStableFunc(out, func(a, b VoiceChannelInfo) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
