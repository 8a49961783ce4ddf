package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"torrserve/internal/domain"
	"torrserve/internal/metrics"
	"torrserve/internal/protocol"
	"torrserve/internal/schema"
	"torrserve/internal/telemetry"
)

// Start asks the server to begin buffering the file at index. On v2 the
// stream preload URL is woken directly; on v1 the file's preload link is
// looked up in the torrent list with a short retry. It reports whether a
// wake read was launched; not starting is logged, not returned as an error.
func (h *Handle) Start(ctx context.Context, index int) (bool, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.Start")
	defer span.End()
	span.SetAttributes(attribute.Int("file.index", index))

	d, err := h.dialectFor(ctx)
	if err != nil {
		return false, err
	}
	hash, err := h.requireHash()
	if err != nil {
		return false, err
	}
	if index < 0 {
		index = 0
	}
	h.setState(domain.StatePreloading)

	if v2, ok := d.(protocol.V2); ok {
		h.wake(ctx, v2.PreloadURL(hash, index))
		return true, nil
	}

	link, err := h.preloadLinkV1(ctx, hash, index)
	if err != nil {
		metrics.PreloadNotStartedTotal.Inc()
		h.logger.Warn("preload not started", slog.String("hash", hash), slog.Int("index", index), slog.String("error", err.Error()))
		return false, nil
	}
	h.wake(ctx, d.URL(link))
	return true, nil
}

var errNotListed = errors.New("torrent not listed")

func (h *Handle) preloadLinkV1(ctx context.Context, hash string, index int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= h.ec.preloadAttempts; attempt++ {
		link, err := h.findPreloadLink(ctx, hash, index)
		if err == nil {
			return link, nil
		}
		if errors.Is(err, errNotListed) {
			return "", err
		}
		lastErr = err
		h.logger.Debug("preload lookup failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if attempt == h.ec.preloadAttempts {
			break
		}
		if err := sleep(ctx, h.ec.preloadBackoff); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (h *Handle) findPreloadLink(ctx context.Context, hash string, index int) (string, error) {
	rows, err := h.List(ctx)
	if err != nil {
		return "", err
	}
	for _, row := range rows {
		if schema.String(row, "Hash", "") != hash {
			continue
		}
		files, err := schema.List(row, "Files")
		if err != nil {
			return "", err
		}
		if index >= len(files) {
			return "", fmt.Errorf("%w: %d of %d", domain.ErrInvalidFileIndex, index, len(files))
		}
		link := schema.String(files[index], "Preload", "")
		if link == "" {
			return "", fmt.Errorf("%w: %q", domain.ErrKeyNotFound, "Preload")
		}
		return link, nil
	}
	return "", errNotListed
}

// wake opens url in a detached goroutine and reads it to the end in small
// chunks, discarding the data. The read outlives ctx and nobody waits for
// it.
func (h *Handle) wake(ctx context.Context, url string) {
	metrics.WakeReadsTotal.WithLabelValues("started").Inc()
	detached := context.WithoutCancel(ctx)
	go func() {
		body, err := h.ec.client.Stream(detached, url)
		if err != nil {
			metrics.WakeReadsTotal.WithLabelValues("failed").Inc()
			h.logger.Debug("wake read failed", slog.String("url", url), slog.String("error", err.Error()))
			return
		}
		defer body.Close()

		var total int64
		buf := make([]byte, wakeChunkSize)
		for {
			n, err := body.Read(buf)
			total += int64(n)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					h.logger.Debug("wake read interrupted", slog.String("url", url), slog.String("error", err.Error()))
				}
				break
			}
		}
		metrics.WakeReadsTotal.WithLabelValues("completed").Inc()
		h.logger.Debug("wake read finished", slog.String("url", url), slog.Int64("bytes", total))
	}()
}

// BufferProgress reports the preload buffer fill in percent, 0 to 100.
func (h *Handle) BufferProgress(ctx context.Context) (int, error) {
	st, err := h.Stat(ctx)
	if err != nil {
		return 0, err
	}
	preloaded := schema.Int64(st, "PreloadedBytes", 0)
	size := schema.Int64(st, "PreloadSize", 0)
	if h.IsV2(ctx) {
		status := schema.Int64(st, "TorrentStatus", -1)
		return bufferProgressV2(domain.Stat(status), preloaded, size), nil
	}
	return bufferProgressV1(preloaded, size), nil
}

// bufferProgressV1 is preloaded*100/size clamped to 100, truncated, and 0
// when either side is not positive.
func bufferProgressV1(preloaded, size int64) int {
	if preloaded <= 0 || size <= 0 {
		return 0
	}
	return percent(preloaded, size)
}

// bufferProgressV2 lets the status code win over byte counters: past the
// preload stage the buffer is full, before it the buffer is empty even
// when stale counters are positive.
func bufferProgressV2(status domain.Stat, preloaded, size int64) int {
	switch {
	case status > domain.StatPreload:
		return 100
	case status < domain.StatPreload:
		return 0
	default:
		return bufferProgressV1(preloaded, size)
	}
}

// Progress reports the downloaded share of the torrent in percent.
func (h *Handle) Progress(ctx context.Context) (int, error) {
	st, err := h.Stat(ctx)
	if err != nil {
		return 0, err
	}
	downloaded := firstInt(st, "downloaded", "LoadedSize")
	size := firstInt(st, "size", "TorrentSize", "Length")
	if downloaded <= 0 || size <= 0 {
		return 0, nil
	}
	return percent(downloaded, size), nil
}

func percent(part, whole int64) int {
	p := part * 100 / whole
	if p > 100 {
		return 100
	}
	return int(p)
}

func firstInt(m schema.Map, keys ...string) int64 {
	for _, k := range keys {
		if v := schema.Int64(m, k, -1); v >= 0 {
			return v
		}
	}
	return 0
}
