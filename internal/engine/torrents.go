package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"torrserve/internal/domain"
	"torrserve/internal/metadata"
	"torrserve/internal/metrics"
	"torrserve/internal/protocol"
	"torrserve/internal/schema"
	"torrserve/internal/telemetry"
	"torrserve/internal/transport"
)

// AddOptions carries optional presentation metadata stored with the torrent.
type AddOptions struct {
	Title  string
	Poster string
	// Data is a JSON object kept next to the torrent and read back by
	// VideoInfo.
	Data string
}

// Add registers a magnet or http(s) link. An http(s) link is fetched
// first so the .torrent bytes are available for local file listing. The
// bool result is true iff the server accepted the request.
func (h *Handle) Add(ctx context.Context, uri string, opts AddOptions) (bool, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.Add")
	defer span.End()

	d, err := h.dialectFor(ctx)
	if err != nil {
		return false, err
	}
	h.setState(domain.StateAdding)

	if isHTTP(uri) {
		h.fetchSource(ctx, uri)
	}

	req, err := d.Add(protocol.AddParams{
		Link:   uri,
		Title:  opts.Title,
		Poster: opts.Poster,
		Data:   opts.Data,
		Save:   h.ec.persist,
	})
	if err != nil {
		h.fail(err)
		return false, err
	}
	resp, err := h.ec.client.Do(ctx, req)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		h.fail(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if !resp.OK() {
		h.logger.Warn("torrent add rejected", slog.Int("status", resp.StatusCode), slog.String("body", string(resp.Body)))
		h.setState(domain.StateFailed)
		span.SetStatus(codes.Error, "rejected")
		return false, nil
	}

	hash, err := d.ParseAddHash(resp.Body)
	if err != nil {
		h.fail(err)
		return false, err
	}
	if err := h.setHash(hash); err != nil {
		return false, err
	}
	span.SetAttributes(attribute.String("torrent.hash", hash))
	h.logger.Info("torrent added", slog.String("hash", hash), slog.String("protocol", d.Name()))
	return true, nil
}

// fetchSource downloads an http(s) .torrent and keeps its bytes. Failures
// are logged; the server is still asked to add the link itself.
func (h *Handle) fetchSource(ctx context.Context, uri string) {
	resp, err := h.ec.client.Do(ctx, transport.Request{
		Method:    http.MethodGet,
		URL:       uri,
		Anonymous: true,
	})
	if err != nil {
		h.logger.Debug("torrent download failed", slog.String("url", uri), slog.String("error", err.Error()))
		return
	}
	if resp.StatusCode != http.StatusOK {
		h.logger.Debug("torrent download rejected", slog.String("url", uri), slog.Int("status", resp.StatusCode))
		return
	}
	h.mu.Lock()
	h.data = resp.Body
	h.mu.Unlock()
}

// Upload submits .torrent bytes as a multipart file and keeps them on the
// handle for local file listing.
func (h *Handle) Upload(ctx context.Context, name string, data []byte) (bool, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.Upload")
	defer span.End()

	d, err := h.dialectFor(ctx)
	if err != nil {
		return false, err
	}
	h.setState(domain.StateUploading)

	h.mu.Lock()
	h.data = data
	h.mu.Unlock()

	resp, err := h.ec.client.Do(ctx, d.Upload(name, data, h.ec.persist))
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		h.fail(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if !resp.OK() {
		h.logger.Warn("torrent upload rejected", slog.Int("status", resp.StatusCode), slog.String("body", string(resp.Body)))
		h.setState(domain.StateFailed)
		span.SetStatus(codes.Error, "rejected")
		return false, nil
	}

	hash, err := d.ParseUploadHash(resp.Body)
	if err != nil {
		h.fail(err)
		return false, err
	}
	if local, err := metadata.InfoHash(data); err == nil && !strings.EqualFold(local, hash) {
		h.logger.Warn("server hash differs from torrent info hash", slog.String("hash", hash), slog.String("info_hash", local))
	}
	if err := h.setHash(hash); err != nil {
		return false, err
	}
	span.SetAttributes(attribute.String("torrent.hash", hash))
	h.logger.Info("torrent uploaded", slog.String("hash", hash), slog.String("name", name), slog.String("protocol", d.Name()))
	return true, nil
}

// WaitForData polls Stat until the torrent reports it is working or the
// attempt budget runs out, and returns the number of polls made. Running
// out is not an error; callers re-check the state themselves.
func (h *Handle) WaitForData(ctx context.Context) (int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.WaitForData")
	defer span.End()

	if _, err := h.requireHash(); err != nil {
		return 0, err
	}
	h.setState(domain.StateWaitingForMetadata)

	attempts := h.ec.waitAttempts
	for poll := 1; poll <= attempts; poll++ {
		metrics.WaitPollsTotal.Inc()
		st, err := h.Stat(ctx)
		switch {
		case err != nil:
			h.logger.Debug("stat poll failed", slog.Int("poll", poll), slog.String("error", err.Error()))
		case isWorking(st):
			h.setState(domain.StateReady)
			span.SetAttributes(attribute.Int("polls", poll))
			return poll, nil
		case !st.Has("TorrentStatusString"):
			h.logger.Debug("stat has no status string", slog.Int("poll", poll))
		default:
			h.logger.Debug("torrent not ready", slog.Int("poll", poll), slog.String("status", schema.String(st, "TorrentStatusString", "")))
		}
		if poll == attempts {
			break
		}
		if err := sleep(ctx, h.ec.pollInterval); err != nil {
			return poll, err
		}
	}

	h.logger.Info("torrent metadata not ready after wait", slog.String("hash", h.Hash()), slog.Int("polls", attempts))
	span.SetAttributes(attribute.Int("polls", attempts))
	return attempts, nil
}

func isWorking(st schema.Map) bool {
	if schema.String(st, "TorrentStatusString", "") == domain.StatusWorking {
		return true
	}
	if v, ok := st.(*schema.View); ok {
		return schema.Int64(v, "TorrentStatus", -1) == int64(domain.StatWorking)
	}
	return false
}

func (h *Handle) action(ctx context.Context, name string, needHash bool) ([]byte, protocol.Dialect, error) {
	d, err := h.dialectFor(ctx)
	if err != nil {
		return nil, nil, err
	}
	var hash string
	if needHash {
		if hash, err = h.requireHash(); err != nil {
			return nil, nil, err
		}
	}
	body, err := h.call(ctx, d.Action(name, hash))
	if err != nil {
		return nil, nil, err
	}
	return body, d, nil
}

// Stat returns the live statistics snapshot of the torrent.
func (h *Handle) Stat(ctx context.Context) (schema.Map, error) {
	body, d, err := h.action(ctx, protocol.ActionStat, true)
	if err != nil {
		return nil, err
	}
	return d.Snapshot(body)
}

// Get returns the stored torrent record, including title, poster and the
// side-channel data.
func (h *Handle) Get(ctx context.Context) (schema.Map, error) {
	body, d, err := h.action(ctx, protocol.ActionGet, true)
	if err != nil {
		return nil, err
	}
	return d.Snapshot(body)
}

// List returns every torrent known to the server.
func (h *Handle) List(ctx context.Context) ([]schema.Map, error) {
	body, d, err := h.action(ctx, protocol.ActionList, false)
	if err != nil {
		return nil, err
	}
	return d.Rows(body)
}

// Remove deletes the torrent from the server and its database, and
// forgets its cached playlist.
func (h *Handle) Remove(ctx context.Context) error {
	if _, _, err := h.action(ctx, protocol.ActionRem, true); err != nil {
		return err
	}
	hash := h.Hash()
	if err := h.ec.m3u.Delete(ctx, hash); err != nil {
		h.logger.Warn("playlist cache delete failed", slog.String("hash", hash), slog.String("error", err.Error()))
	}
	return nil
}

// Drop stops the torrent on the server without deleting it.
func (h *Handle) Drop(ctx context.Context) error {
	_, _, err := h.action(ctx, protocol.ActionDrop, true)
	return err
}

// TorrentStat returns the snapshot that carries the file list: Stat on
// v2, the matching List row on v1.
func (h *Handle) TorrentStat(ctx context.Context) (schema.Map, error) {
	d, err := h.dialectFor(ctx)
	if err != nil {
		return nil, err
	}
	if d.IsV2() {
		return h.Stat(ctx)
	}
	hash, err := h.requireHash()
	if err != nil {
		return nil, err
	}
	rows, err := h.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if schema.String(row, "Hash", "") == hash {
			return row, nil
		}
	}
	return nil, fmt.Errorf("%w: torrent %s not listed", domain.ErrNotFound, hash)
}

func (h *Handle) fileStats(ctx context.Context) ([]schema.Map, error) {
	ts, err := h.TorrentStat(ctx)
	if err != nil {
		return nil, err
	}
	return schema.List(ts, "Files")
}

// FileStat returns the protocol's entry for the file at index.
func (h *Handle) FileStat(ctx context.Context, index int) (schema.Map, error) {
	files, err := h.fileStats(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(files) {
		return nil, fmt.Errorf("%w: %d of %d", domain.ErrInvalidFileIndex, index, len(files))
	}
	return files[index], nil
}

// Files returns the protocol's own file list in server order.
func (h *Handle) Files(ctx context.Context) ([]domain.FileItem, error) {
	files, err := h.fileStats(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]domain.FileItem, 0, len(files))
	for i, f := range files {
		items = append(items, domain.FileItem{
			ID:   int(schema.Int64(f, "Id", int64(i))),
			Path: schema.String(f, "Name", ""),
			Size: schema.Int64(f, "Size", 0),
		})
	}
	return items, nil
}

// GetTSIndex returns the server file-list position of the file called name.
func (h *Handle) GetTSIndex(ctx context.Context, name string) (int, error) {
	files, err := h.fileStats(ctx)
	if err != nil {
		return 0, err
	}
	for i, f := range files {
		if schema.String(f, "Name", "") == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: file %q", domain.ErrNotFound, name)
}
