// Package analyzer crawls a guild's channels, infers which ones the session
// can read, and lists who is sitting in its voice channels.
//
// The crawl is sequential on purpose. Channels are visited one at a time in
// upstream listing order, occupant profiles are looked up one at a time, and a
// fixed pacing delay separates them, so no two requests are ever in flight
// together. Only the initial channel-list fetch can fail a crawl; every later
// failure degrades a single channel to "inaccessible" or to an empty or
// placeholder occupant list.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/chanscope/discordapi"
	"github.com/onnwee/chanscope/telemetry"
)

// DefaultWebBase prefixes channel links in reports.
const DefaultWebBase = "https://discord.com"

// ErrChannelList wraps the one fatal crawl failure.
var ErrChannelList = errors.New("failed to fetch channel list")

// API is the set of upstream reads a crawl performs. discordapi.Client
// implements it.
type API interface {
	GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	ChannelStatus(ctx context.Context, channelID string) (int, error)
	LatestMessageStatus(ctx context.Context, channelID string) (int, error)
	GuildVoiceStates(ctx context.Context, guildID string) ([]discordapi.VoiceState, error)
	User(ctx context.Context, userID string) (*discordgo.User, error)
}

// Options tunes an Analyzer. The zero value uses DefaultWebBase,
// DefaultPacing and slog.Default.
type Options struct {
	WebBase string
	Pacing  *Pacing
	Logger  *slog.Logger
}

// Analyzer runs guild crawls against one API. Build one per crawl.
type Analyzer struct {
	api       API
	prober    *Prober
	occupancy *OccupancyResolver
	pacing    Pacing
	webBase   string
	log       *slog.Logger
}

// New returns an Analyzer issuing its requests through api.
func New(api API, opts Options) *Analyzer {
	p := DefaultPacing()
	if opts.Pacing != nil {
		p = *opts.Pacing
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "analyzer"))
	web := strings.TrimRight(opts.WebBase, "/")
	if web == "" {
		web = DefaultWebBase
	}
	return &Analyzer{
		api:       api,
		prober:    NewProber(api, log),
		occupancy: NewOccupancyResolver(api, p, log),
		pacing:    p,
		webBase:   web,
		log:       log,
	}
}

// AnalyzeGuild runs one crawl of guildID using client's endpoint and
// transport with session s.
func AnalyzeGuild(ctx context.Context, client *discordapi.Client, s discordapi.Session, guildID, guildName string, opts Options) (*Report, error) {
	return New(client.WithSession(s), opts).Analyze(ctx, guildID, guildName)
}

// Analyze crawls guildID and returns the categorized report.
//
// The returned error is non-nil only when the channel list cannot be fetched
// (wrapping ErrChannelList) or when ctx is cancelled mid-crawl.
func (a *Analyzer) Analyze(ctx context.Context, guildID, guildName string) (*Report, error) {
	if guildID == "" {
		return nil, fmt.Errorf("guildID empty")
	}
	ctx, span := telemetry.StartSpan(ctx, "analyzer", "analyze_guild", telemetry.GuildAttr(guildID))
	defer span.End()

	telemetry.IncIfSet(telemetry.CrawlsStarted)
	telemetry.SetCrawlInFlight(true)
	defer telemetry.SetCrawlInFlight(false)
	log := a.log.With(slog.String("guild_id", guildID))

	var (
		report *Report
		err    error
	)
	took := telemetry.TimeFunc(telemetry.CrawlDuration, func() {
		report, err = a.crawl(ctx, log, guildID, guildName)
	})
	if err != nil {
		telemetry.IncIfSet(telemetry.CrawlsFailed)
		telemetry.RecordError(span, err)
		log.Warn("guild crawl failed", slog.Any("err", err))
		return nil, err
	}
	telemetry.IncIfSet(telemetry.CrawlsSucceeded)
	telemetry.SetSpanSuccess(span)
	log.Info("guild crawl complete",
		slog.Int("total", report.Total),
		slog.Int("accessible", len(report.Accessible)),
		slog.Int("inaccessible", len(report.Inaccessible)),
		slog.Int("voice", len(report.VoiceChannels)),
		slog.Duration("took", took))
	return report, nil
}

func (a *Analyzer) crawl(ctx context.Context, log *slog.Logger, guildID, guildName string) (*Report, error) {
	raw, err := a.api.GuildChannels(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelList, err)
	}
	channels := make([]*discordgo.Channel, 0, len(raw))
	for _, ch := range raw {
		if ch != nil {
			channels = append(channels, ch)
		}
	}
	log.Info("channel list fetched", slog.Int("channels", len(channels)))

	report := &Report{
		GuildName:     guildName,
		Accessible:    []Channel{},
		Inaccessible:  []Channel{},
		VoiceChannels: []VoiceChannelInfo{},
		Total:         len(channels),
	}
	for i, ch := range channels {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("crawl interrupted after %d of %d channels: %w", i, len(channels), err)
		}
		label, kind := Classify(int(ch.Type))
		info := Channel{
			ID:        ch.ID,
			Name:      ch.Name,
			TypeCode:  int(ch.Type),
			TypeLabel: label,
			Link:      a.webBase + "/channels/" + guildID + "/" + ch.ID,
			ParentID:  ch.ParentID,
			Position:  ch.Position,
		}

		accessible := a.prober.Probe(ctx, ch.ID, kind)

		if kind == KindVoice {
			occupants := a.occupancy.Resolve(ctx, guildID, ch.ID)
			occ := Occupancy{Occupants: occupants, OccupantCount: len(occupants)}
			report.VoiceChannels = append(report.VoiceChannels, VoiceChannelInfo{Channel: info, Occupancy: occ})
			info.Voice = &occ
		}

		if accessible {
			report.Accessible = append(report.Accessible, info)
		} else {
			report.Inaccessible = append(report.Inaccessible, info)
		}
		log.Debug("channel checked", slog.String("channel_id", ch.ID), slog.String("kind", kind.String()), slog.Bool("accessible", accessible))

		if err := a.pacing.afterChannel(ctx); err != nil {
			return nil, fmt.Errorf("crawl interrupted after %d of %d channels: %w", i+1, len(channels), err)
		}
	}
	return report, nil
}
