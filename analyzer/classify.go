package analyzer

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Kind selects the accessibility probe for a channel and whether voice
// occupancy is resolved for it.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindVoice
	KindCategory
)

// String returns the lower-case kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindVoice:
		return "voice"
	case KindCategory:
		return "category"
	default:
		return "unknown"
	}
}

type channelType struct {
	label string
	kind  Kind
}

// channelTypes is the single source of truth for type-code classification.
var channelTypes = map[discordgo.ChannelType]channelType{
	discordgo.ChannelTypeGuildText: {"Text", KindText},
	// Code 1 is reported as voice alongside the guild voice type.
	discordgo.ChannelTypeDM:                 {"Voice", KindVoice},
	discordgo.ChannelTypeGuildVoice:         {"Voice", KindVoice},
	discordgo.ChannelTypeGuildCategory:      {"Category", KindCategory},
	discordgo.ChannelTypeGuildNews:          {"News", KindText},
	discordgo.ChannelTypeGuildNewsThread:    {"News Thread", KindText},
	discordgo.ChannelTypeGuildPublicThread:  {"Public Thread", KindText},
	discordgo.ChannelTypeGuildPrivateThread: {"Private Thread", KindText},
	discordgo.ChannelTypeGuildStageVoice:    {"Stage", KindVoice},
	discordgo.ChannelTypeGuildForum:         {"Forum", KindText},
}

// Classify maps a numeric channel-type code to its display label and kind.
// Unrecognised codes yield "Unknown (<code>)" and KindUnknown.
func Classify(code int) (string, Kind) {
	if ct, ok := channelTypes[discordgo.ChannelType(code)]; ok {
		return ct.label, ct.kind
	}
	return fmt.Sprintf("Unknown (%d)", code), KindUnknown
}
