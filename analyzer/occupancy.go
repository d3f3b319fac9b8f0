package analyzer

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/chanscope/discordapi"
	"github.com/onnwee/chanscope/telemetry"
)

const (
	// PlaceholderUsername is reported for occupants whose profile lookup failed.
	PlaceholderUsername = "Unknown user"
	// PlaceholderDiscriminator accompanies PlaceholderUsername.
	PlaceholderDiscriminator = "0000"
)

// OccupancyResolver lists the users currently in a voice channel.
type OccupancyResolver struct {
	api    API
	pacing Pacing
	log    *slog.Logger
}

// NewOccupancyResolver returns a resolver that paces profile lookups with p.
func NewOccupancyResolver(api API, p Pacing, log *slog.Logger) *OccupancyResolver {
	if log == nil {
		log = slog.Default()
	}
	return &OccupancyResolver{api: api, pacing: p, log: log}
}

// Resolve returns the occupants of channelID. It never fails: a failed
// presence-list fetch yields an empty list and a failed profile lookup yields
// a placeholder occupant with the presence flags intact.
//
// The guild's presence list is fetched on every call, so a guild with N voice
// channels costs N presence-list requests per crawl.
func (r *OccupancyResolver) Resolve(ctx context.Context, guildID, channelID string) []VoiceOccupant {
	states, err := r.api.GuildVoiceStates(ctx, guildID)
	if err != nil {
		telemetry.IncIfSet(telemetry.PresenceFailures)
		r.log.Debug("voice presence fetch failed", slog.String("guild_id", guildID), slog.String("channel_id", channelID), slog.Any("err", err))
		return []VoiceOccupant{}
	}

	var present []discordapi.VoiceState
	for _, st := range states {
		if st.ChannelID == channelID {
			present = append(present, st)
		}
	}

	out := make([]VoiceOccupant, 0, len(present))
	for i, st := range present {
		if i > 0 {
			if err := r.pacing.betweenOccupants(ctx); err != nil {
				// crawl is being abandoned; the caller discards this result
				break
			}
		}
		u, err := r.api.User(ctx, st.UserID)
		if err != nil {
			telemetry.IncIfSet(telemetry.OccupantFallbacks)
			r.log.Debug("occupant profile lookup failed", slog.String("user_id", st.UserID), slog.Any("err", err))
			u = nil
		}
		out = append(out, newOccupant(st, u))
	}
	return out
}

// newOccupant builds an occupant from a presence and its profile; u may be nil.
func newOccupant(st discordapi.VoiceState, u *discordgo.User) VoiceOccupant {
	occ := VoiceOccupant{
		UserID:        st.UserID,
		Username:      PlaceholderUsername,
		Discriminator: PlaceholderDiscriminator,
		Muted:         st.Mute || st.SelfMute,
		Deafened:      st.Deaf || st.SelfDeaf,
		Streaming:     st.Streaming || st.SelfStream,
		Video:         st.Video || st.SelfVideo,
	}
	if u == nil {
		return occ
	}
	if u.ID != "" {
		occ.UserID = u.ID
	}
	occ.Username = u.Username
	occ.Discriminator = u.Discriminator
	if u.Avatar != "" {
		avatar := discordgo.EndpointUserAvatar(occ.UserID, u.Avatar)
		occ.AvatarURL = &avatar
	}
	return occ
}
