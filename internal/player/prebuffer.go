// Package player holds the playback-side helpers built on an engine handle.
package player

import (
	"context"
	"log/slog"
	"time"

	"torrserve/internal/schema"
)

const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultMaxMessages = 60
	DefaultMaxPolls    = 600
)

// Stater is the part of an engine handle the prebuffer loop needs. Stat
// feeds the display counters; BufferProgress decides when the buffer is
// full, so status codes the handle knows about take part.
type Stater interface {
	Stat(ctx context.Context) (schema.Map, error)
	BufferProgress(ctx context.Context) (int, error)
}

// Progress is one prebuffer poll as shown to the user.
type Progress struct {
	Percent       int
	Preloaded     int64
	PreloadSize   int64
	DownloadSpeed int64
	Seeders       int64
	ActivePeers   int64
	TotalPeers    int64
}

type Config struct {
	Interval time.Duration
	// MaxMessages bounds the polls answered with a server "message"
	// instead of statistics.
	MaxMessages int
	// MaxPolls bounds the whole loop.
	MaxPolls   int
	OnProgress func(Progress)
	Logger     *slog.Logger
}

// Prebuffer polls the torrent until the server reports the preload buffer
// as full. It returns false when the budgets run out first.
func Prebuffer(ctx context.Context, s Stater, cfg Config) (bool, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	messages := 0
	for poll := 0; poll < cfg.MaxPolls; poll++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}

		st, err := s.Stat(ctx)
		if err != nil || st.Has("message") {
			messages++
			if err != nil {
				logger.Debug("prebuffer stat failed", slog.String("error", err.Error()))
			}
			if messages > cfg.MaxMessages {
				return false, nil
			}
			continue
		}

		p := progressOf(st)
		percent, err := s.BufferProgress(ctx)
		if err != nil {
			logger.Debug("prebuffer progress failed", slog.String("error", err.Error()))
			continue
		}
		p.Percent = percent
		if cfg.OnProgress != nil {
			cfg.OnProgress(p)
		}
		if p.Percent >= 100 {
			return true, nil
		}
	}
	logger.Info("prebuffer budget exhausted", slog.Int("polls", cfg.MaxPolls))
	return false, nil
}

func progressOf(st schema.Map) Progress {
	return Progress{
		Preloaded:     schema.Int64(st, "PreloadedBytes", 0),
		PreloadSize:   schema.Int64(st, "PreloadSize", 0),
		DownloadSpeed: speed(st),
		Seeders:       schema.Int64(st, "ConnectedSeeders", 0),
		ActivePeers:   schema.Int64(st, "ActivePeers", 0),
		TotalPeers:    schema.Int64(st, "TotalPeers", 0),
	}
}

// speed reads DownloadSpeed, which servers report as a float.
func speed(st schema.Map) int64 {
	v, err := st.Get("DownloadSpeed")
	if err != nil {
		return 0
	}
	f, ok := schema.AsFloat64(v)
	if !ok {
		return 0
	}
	return int64(f)
}
