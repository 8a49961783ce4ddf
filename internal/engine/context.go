// Package engine drives one torrent on a remote TorrServer through add,
// readiness wait, preload and playback URL resolution, hiding the
// differences between the v1 and v2 APIs.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"torrserve/internal/protocol"
	"torrserve/internal/reqcache"
	"torrserve/internal/transport"
)

const (
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultWaitAttempts    = 20
	DefaultPreloadAttempts = 5
	DefaultPreloadBackoff  = 500 * time.Millisecond
	wakeChunkSize          = 128
)

// M3UStore keeps fetched v2 playlists keyed by torrent hash.
type M3UStore interface {
	Load(ctx context.Context, hash string) (string, bool, error)
	Store(ctx context.Context, hash, playlist string) error
	Delete(ctx context.Context, hash string) error
}

type Options struct {
	Transport transport.Client
	// RequestCacheTTL is the read deduplication window. Zero selects
	// reqcache.DefaultTTL; a negative value disables deduplication.
	RequestCacheTTL time.Duration
	M3U             M3UStore
	Logger          *slog.Logger
	// Persist asks the server to keep added torrents in its database.
	Persist bool

	PollInterval    time.Duration
	WaitAttempts    int
	PreloadAttempts int
	PreloadBackoff  time.Duration
}

// Context is the process-scoped state shared by every Handle: the
// deduplicating transport, negotiated versions and fetched playlists.
type Context struct {
	client    transport.Client
	negotiate *protocol.Negotiator
	m3u       M3UStore
	logger    *slog.Logger
	persist   bool

	pollInterval    time.Duration
	waitAttempts    int
	preloadAttempts int
	preloadBackoff  time.Duration
}

func NewContext(opts Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := opts.Transport
	if base == nil {
		base = transport.NewHTTPClient(transport.Config{})
	}

	ttl := opts.RequestCacheTTL
	if ttl == 0 {
		ttl = reqcache.DefaultTTL
	}
	client := reqcache.Wrap(base, reqcache.New(ttl))

	m3u := opts.M3U
	if m3u == nil {
		m3u = NewMemoryM3U()
	}

	return &Context{
		client:          client,
		negotiate:       protocol.NewNegotiator(base, protocol.NewVersionCache(), logger),
		m3u:             m3u,
		logger:          logger,
		persist:         opts.Persist,
		pollInterval:    durationOr(opts.PollInterval, DefaultPollInterval),
		waitAttempts:    intOr(opts.WaitAttempts, DefaultWaitAttempts),
		preloadAttempts: intOr(opts.PreloadAttempts, DefaultPreloadAttempts),
		preloadBackoff:  durationOr(opts.PreloadBackoff, DefaultPreloadBackoff),
	}
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// MemoryM3U is the default in-process playlist store.
type MemoryM3U struct {
	mu        sync.RWMutex
	playlists map[string]string
}

func NewMemoryM3U() *MemoryM3U {
	return &MemoryM3U{playlists: make(map[string]string)}
}

func (m *MemoryM3U) Load(_ context.Context, hash string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.playlists[hash]
	return p, ok, nil
}

func (m *MemoryM3U) Store(_ context.Context, hash, playlist string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlists[hash] = playlist
	return nil
}

func (m *MemoryM3U) Delete(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playlists, hash)
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
