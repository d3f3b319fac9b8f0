package analyzer

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/onnwee/chanscope/telemetry"
)

// Prober infers whether the session can read a channel from a single read
// request. It is an approximation, not an ACL check: a transient failure
// during the request reads as "inaccessible".
type Prober struct {
	api API
	log *slog.Logger
}

// NewProber returns a Prober issuing its requests through api.
func NewProber(api API, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	return &Prober{api: api, log: log}
}

// Probe issues one request chosen by kind and reports whether it returned
// 200 OK. Text channels fetch at most one message; every other kind fetches
// the channel's metadata. Errors are not retried.
func (p *Prober) Probe(ctx context.Context, channelID string, kind Kind) bool {
	var (
		code int
		err  error
	)
	switch kind {
	case KindText:
		code, err = p.api.LatestMessageStatus(ctx, channelID)
	default:
		code, err = p.api.ChannelStatus(ctx, channelID)
	}
	ok := err == nil && code == http.StatusOK
	if err != nil {
		p.log.Debug("channel probe failed", slog.String("channel_id", channelID), slog.String("kind", kind.String()), slog.Any("err", err))
	} else if !ok {
		p.log.Debug("channel probe denied", slog.String("channel_id", channelID), slog.String("kind", kind.String()), slog.Int("status", code))
	}
	telemetry.RecordProbe(kind.String(), ok)
	return ok
}
