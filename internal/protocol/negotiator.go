package protocol

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"torrserve/internal/domain"
	"torrserve/internal/metrics"
	"torrserve/internal/transport"
)

// VersionCache remembers negotiated versions per server base URL. It is
// shared by all handles of a process; concurrent first population of the
// same key stores an equal value.
type VersionCache struct {
	versions sync.Map
}

func NewVersionCache() *VersionCache {
	return &VersionCache{}
}

func (c *VersionCache) Load(baseURL string) (domain.Version, bool) {
	v, ok := c.versions.Load(baseURL)
	if !ok {
		return domain.VersionUnknown, false
	}
	return v.(domain.Version), true
}

func (c *VersionCache) Store(baseURL string, v domain.Version) {
	c.versions.Store(baseURL, v)
}

type Negotiator struct {
	client transport.Client
	cache  *VersionCache
	logger *slog.Logger
}

func NewNegotiator(client transport.Client, cache *VersionCache, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{client: client, cache: cache, logger: logger}
}

// Negotiate probes /echo and returns the server version, or
// domain.VersionUnknown when the server cannot be reached or answers with
// something unparseable. Only successful probes are cached.
func (n *Negotiator) Negotiate(ctx context.Context, baseURL string) domain.Version {
	baseURL = strings.TrimRight(baseURL, "/")
	if n.cache != nil {
		if v, ok := n.cache.Load(baseURL); ok {
			return v
		}
	}

	resp, err := n.client.Do(ctx, transport.Request{Method: http.MethodGet, URL: baseURL + "/echo"})
	if err != nil {
		n.logger.Warn("torrserver echo failed", slog.String("server", baseURL), slog.String("error", err.Error()))
		metrics.NegotiationsTotal.WithLabelValues("unavailable").Inc()
		return domain.VersionUnknown
	}
	if !resp.OK() {
		n.logger.Warn("torrserver echo rejected", slog.String("server", baseURL), slog.Int("status", resp.StatusCode))
		metrics.NegotiationsTotal.WithLabelValues("unavailable").Inc()
		return domain.VersionUnknown
	}

	v, ok := ParseBanner(string(resp.Body))
	if !ok {
		n.logger.Warn("torrserver banner not recognized", slog.String("server", baseURL), slog.String("banner", truncate(string(resp.Body), 64)))
		metrics.NegotiationsTotal.WithLabelValues("unavailable").Inc()
		return domain.VersionUnknown
	}

	label := "v1"
	if v.IsV2() {
		label = "v2"
	}
	metrics.NegotiationsTotal.WithLabelValues(label).Inc()
	n.logger.Debug("torrserver version negotiated", slog.String("server", baseURL), slog.String("version", v.String()), slog.String("protocol", label))
	if n.cache != nil {
		n.cache.Store(baseURL, v)
	}
	return v
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
