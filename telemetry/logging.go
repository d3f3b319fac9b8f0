package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig describes the desired logger.
type LogConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"` // text | json
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxBackups int    `yaml:"file_max_backups"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`

	// Output receives log lines; nil means stdout.
	Output io.Writer `yaml:"-"`
}

// ParseLevel maps a level name to a slog level. ok is false for unknown names,
// which map to info.
func ParseLevel(s string) (lvl slog.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "info", "":
		return slog.LevelInfo, true
	default:
		return slog.LevelInfo, false
	}
}

// SetupLogging installs the default slog logger described by cfg. The returned
// closer releases the rotating log file, if any.
func SetupLogging(cfg LogConfig) (*slog.Logger, io.Closer) {
	lvl, known := ParseLevel(cfg.Level)

	var w io.Writer = os.Stdout
	if cfg.Output != nil {
		w = cfg.Output
	}
	var closer io.Closer = nopCloser{}
	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.FileMaxSizeMB, 50),
			MaxBackups: orDefault(cfg.FileMaxBackups, 5),
			MaxAge:     orDefault(cfg.FileMaxAgeDays, 28),
			Compress:   true,
		}
		w = io.MultiWriter(w, lj)
		closer = lj
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	format := strings.ToLower(cfg.Format)
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		format = "text"
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	if !known {
		logger.Warn("unknown LOG_LEVEL, using info", slog.String("value", cfg.Level))
	}
	logger.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format), slog.String("file", cfg.FilePath))
	return logger, closer
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
