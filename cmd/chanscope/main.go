// Command chanscope runs one guild crawl from the terminal and prints the
// report. Without --guild it lists the account's guilds instead.
//
// Usage:
//
//	chanscope [--guild ID] [--name NAME] [--json] [--token TOKEN]
//
// The token defaults to DISCORD_TOKEN.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/onnwee/chanscope/analyzer"
	"github.com/onnwee/chanscope/config"
	"github.com/onnwee/chanscope/discordapi"
	"github.com/onnwee/chanscope/telemetry"
)

func main() {
	guildID := flag.String("guild", "", "Guild id to crawl; empty lists your guilds")
	guildName := flag.String("name", "", "Guild name shown in the report")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	token := flag.String("token", "", "User token (default: DISCORD_TOKEN)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	// stdout carries the report
	cfg.Logging.Output = os.Stderr
	if cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	_, closer := telemetry.SetupLogging(cfg.Logging)
	defer func() { _ = closer.Close() }()

	if *token != "" {
		cfg.Discord.Token = *token
	}
	if cfg.Discord.Token == "" {
		fmt.Fprintln(os.Stderr, "no token: pass --token or set DISCORD_TOKEN")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := discordapi.Session{Token: cfg.Discord.Token, Locale: cfg.Discord.Locale}
	client := discordapi.NewClient(cfg.Discord.APIBase, s)

	if *guildID == "" {
		err = listGuilds(ctx, os.Stdout, client, *asJSON)
	} else {
		err = crawl(ctx, os.Stdout, cfg, client, s, *guildID, *guildName, *asJSON)
	}
	if err != nil {
		slog.Error("chanscope failed", slog.Any("err", err))
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func listGuilds(ctx context.Context, w io.Writer, client *discordapi.Client, asJSON bool) error {
	guilds, err := client.Guilds(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, guilds)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, g := range guilds {
		fmt.Fprintf(tw, "%s\t%s\n", g.ID, g.Name)
	}
	return tw.Flush()
}

func crawl(ctx context.Context, w io.Writer, cfg *config.Config, client *discordapi.Client, s discordapi.Session, guildID, guildName string, asJSON bool) error {
	p := analyzer.DefaultPacing()
	p.ChannelDelay = cfg.Pacing.ChannelDelay
	p.OccupantDelay = cfg.Pacing.OccupantDelay
	report, err := analyzer.AnalyzeGuild(ctx, client, s, guildID, guildName, analyzer.Options{
		WebBase: cfg.Discord.WebBase,
		Pacing:  &p,
	})
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, report)
	}
	return writeReport(w, report)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeReport prints the report as aligned text, each list in display order.
func writeReport(w io.Writer, r *analyzer.Report) error {
	name := r.GuildName
	if name == "" {
		name = "(unnamed guild)"
	}
	fmt.Fprintf(w, "%s: %d channels, %d accessible, %d inaccessible\n\n", name, r.Total, len(r.Accessible), len(r.Inaccessible))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	section := func(title string, cs []analyzer.Channel) {
		fmt.Fprintf(tw, "%s (%d)\n", title, len(cs))
		for _, c := range analyzer.SortForDisplay(cs) {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Name, c.TypeLabel, c.Link)
		}
		fmt.Fprintln(tw)
	}
	section("ACCESSIBLE", r.Accessible)
	section("INACCESSIBLE", r.Inaccessible)

	fmt.Fprintf(tw, "VOICE (%d)\n", len(r.VoiceChannels))
	for _, vc := range analyzer.SortVoiceForDisplay(r.VoiceChannels) {
		fmt.Fprintf(tw, "  %s\t%d in channel\n", vc.Name, vc.OccupantCount)
		for _, o := range vc.Occupants {
			fmt.Fprintf(tw, "    %s#%s\t%s\n", o.Username, o.Discriminator, occupantFlags(o))
		}
	}
	return tw.Flush()
}

func occupantFlags(o analyzer.VoiceOccupant) string {
	var flags []string
	if o.Muted {
		flags = append(flags, "muted")
	}
	if o.Deafened {
		flags = append(flags, "deafened")
	}
	if o.Streaming {
		flags = append(flags, "streaming")
	}
	if o.Video {
		flags = append(flags, "video")
	}
	return strings.Join(flags, ",")
}
