package engine

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"torrserve/internal/domain"
	"torrserve/internal/protocol"
	"torrserve/internal/schema"
	"torrserve/internal/transport"
)

// PlayURL returns the URL a player should open for the file at index.
func (h *Handle) PlayURL(ctx context.Context, index int) (string, error) {
	d, err := h.dialectFor(ctx)
	if err != nil {
		return "", err
	}
	hash, err := h.requireHash()
	if err != nil {
		return "", err
	}

	v2, ok := d.(protocol.V2)
	if !ok {
		fs, err := h.FileStat(ctx, index)
		if err != nil {
			return "", err
		}
		link := schema.String(fs, "Link", "")
		if link == "" {
			return "", fmt.Errorf("%w: %q", domain.ErrKeyNotFound, "Link")
		}
		h.setState(domain.StatePlaying)
		return d.URL(link), nil
	}

	if line, ok := h.playlistEntry(ctx, hash, index); ok {
		h.setState(domain.StatePlaying)
		return line, nil
	}

	fs, err := h.FileStat(ctx, index)
	if err != nil {
		return "", err
	}
	path := schema.String(fs, "Name", "")
	if path == "" {
		return "", fmt.Errorf("%w: %q", domain.ErrKeyNotFound, "path")
	}
	playURL := v2.PlayURL(path, hash, index)
	h.fetchPlaylistOnce(ctx, v2, hash)
	h.setState(domain.StatePlaying)
	return playURL, nil
}

// playlistEntry scans the cached M3U of hash for the line whose stream
// index is index+1.
func (h *Handle) playlistEntry(ctx context.Context, hash string, index int) (string, bool) {
	playlist, ok, err := h.ec.m3u.Load(ctx, hash)
	if err != nil {
		h.logger.Debug("m3u cache read failed", slog.String("hash", hash), slog.String("error", err.Error()))
		return "", false
	}
	if !ok {
		return "", false
	}
	return findStreamLine(playlist, index+1)
}

func findStreamLine(playlist string, streamIndex int) (string, bool) {
	sc := bufio.NewScanner(strings.NewReader(playlist))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if n, ok := protocol.StreamIndex(line); ok && n == streamIndex {
			return line, true
		}
	}
	return "", false
}

// fetchPlaylistOnce loads the server M3U for hash into the shared cache on
// the handle's first direct play URL.
func (h *Handle) fetchPlaylistOnce(ctx context.Context, d protocol.V2, hash string) {
	h.mu.Lock()
	if h.m3uFetched {
		h.mu.Unlock()
		return
	}
	h.m3uFetched = true
	h.mu.Unlock()

	resp, err := h.ec.client.Do(ctx, transport.Request{Method: http.MethodGet, URL: d.M3UURL(hash)})
	if err != nil {
		h.logger.Debug("m3u fetch failed", slog.String("hash", hash), slog.String("error", err.Error()))
		return
	}
	if !resp.OK() {
		h.logger.Debug("m3u fetch rejected", slog.String("hash", hash), slog.Int("status", resp.StatusCode))
		return
	}
	if err := h.ec.m3u.Store(ctx, hash, string(resp.Body)); err != nil {
		h.logger.Warn("m3u cache write failed", slog.String("hash", hash), slog.String("error", err.Error()))
	}
}
