package engine

import (
	"context"
	"fmt"
	"log/slog"

	"torrserve/internal/domain"
	"torrserve/internal/metadata"
	"torrserve/internal/schema"
)

const canonicalIndexKey = "RealIdFileStats"

// PlayableItems lists the torrent's files in caller-facing order. The
// list is computed once per handle from the retained .torrent bytes, or
// from the server's canonical index when no bytes are available.
func (h *Handle) PlayableItems(ctx context.Context) ([]domain.PlayableItem, error) {
	h.mu.Lock()
	if h.items != nil {
		items := h.items
		h.mu.Unlock()
		return items, nil
	}
	data := h.data
	h.mu.Unlock()

	var (
		items []domain.PlayableItem
		err   error
	)
	if len(data) > 0 {
		items, err = metadata.Extract(data)
	} else {
		items, err = h.canonicalItems(ctx)
	}
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.items == nil {
		h.items = items
	}
	return h.items, nil
}

// ResetPlayableItems drops the memoized list so the next PlayableItems
// call recomputes it.
func (h *Handle) ResetPlayableItems() {
	h.mu.Lock()
	h.items = nil
	h.mu.Unlock()
}

func (h *Handle) canonicalItems(ctx context.Context) ([]domain.PlayableItem, error) {
	st, err := h.Stat(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Has(canonicalIndexKey) {
		return nil, fmt.Errorf("%w: file indexes need a .torrent file or a server with %s", domain.ErrUnsupported, canonicalIndexKey)
	}
	raw, err := st.Get(canonicalIndexKey)
	if err != nil || raw == nil {
		return nil, fmt.Errorf("%w: %s is disabled on the server", domain.ErrUnsupported, canonicalIndexKey)
	}
	files, err := schema.List(st, canonicalIndexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupported, err)
	}
	items := make([]domain.PlayableItem, 0, len(files))
	for _, f := range files {
		items = append(items, domain.PlayableItem{
			Index: int(schema.Int64(f, "Id", 0)),
			Name:  schema.String(f, "Path", ""),
			Size:  schema.Int64(f, "Length", 0),
		})
	}
	return items, nil
}

// IDToFilesIndex maps a logical file index to the position of the same
// file in the server's file list, matching by name. Any failure falls back
// to returning id unchanged.
func (h *Handle) IDToFilesIndex(ctx context.Context, id int) int {
	items, err := h.PlayableItems(ctx)
	if err != nil {
		h.logger.Debug("file index fallback", slog.Int("id", id), slog.String("error", err.Error()))
		return id
	}
	if id < 0 || id >= len(items) {
		return id
	}
	files, err := h.fileStats(ctx)
	if err != nil {
		h.logger.Debug("file index fallback", slog.Int("id", id), slog.String("error", err.Error()))
		return id
	}
	want := items[id].Name
	for i, f := range files {
		if schema.String(f, "Name", "") == want {
			return i
		}
	}
	return id
}
