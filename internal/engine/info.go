package engine

import (
	"context"
	"strconv"
	"strings"

	"torrserve/internal/schema"
)

// sideChannel decodes the JSON blob stored with the torrent: the v2 "data"
// field or the v1 "Info" field. Known wrapper objects are unwrapped.
func sideChannel(record schema.Map) map[string]any {
	raw := schema.String(record, "data", "")
	if raw == "" {
		raw = schema.String(record, "Info", "")
	}
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	m, err := schema.DecodeMap([]byte(raw))
	if err != nil {
		return nil
	}
	for _, wrapper := range []string{"movie", "TSA"} {
		if inner, ok := m[wrapper].(map[string]any); ok {
			return inner
		}
	}
	return m
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := schema.AsString(m[k]); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Title prefers the title stored by the server, then the side-channel
// title, then the torrent name.
func (h *Handle) Title(ctx context.Context) (string, error) {
	rec, err := h.Get(ctx)
	if err != nil {
		return "", err
	}
	if s := schema.String(rec, "title", ""); s != "" {
		return s, nil
	}
	if s := firstString(sideChannel(rec), "title", "name"); s != "" {
		return s, nil
	}
	return schema.String(rec, "Name", ""), nil
}

func (h *Handle) Poster(ctx context.Context) (string, error) {
	rec, err := h.Get(ctx)
	if err != nil {
		return "", err
	}
	if s := schema.String(rec, "poster", ""); s != "" {
		return s, nil
	}
	return firstString(sideChannel(rec), "poster", "poster_path"), nil
}

func (h *Handle) Fanart(ctx context.Context) (string, error) {
	rec, err := h.Get(ctx)
	if err != nil {
		return "", err
	}
	return firstString(sideChannel(rec), "fanart", "backdrop", "backdrop_path"), nil
}

// VideoInfo maps the side-channel metadata onto player info labels.
// Unknown keys are dropped.
func (h *Handle) VideoInfo(ctx context.Context) (map[string]any, error) {
	rec, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return videoInfo(sideChannel(rec)), nil
}

func videoInfo(src map[string]any) map[string]any {
	info := map[string]any{}
	if len(src) == 0 {
		return info
	}

	if s := firstString(src, "title", "name"); s != "" {
		info["title"] = s
	}
	if s := firstString(src, "overview"); s != "" {
		info["plot"] = s
	}
	if s := firstString(src, "original_title", "original_name"); s != "" {
		info["originaltitle"] = s
	}
	if s := firstString(src, "imdb_id"); s != "" {
		info["imdbnumber"] = s
	}

	if year, ok := schema.AsInt64(src["year"]); ok && year > 0 {
		info["year"] = year
	} else if date := firstString(src, "release_date", "first_air_date"); len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			info["year"] = int64(y)
		}
	}
	if rating, ok := schema.AsFloat64(src["vote_average"]); ok {
		info["rating"] = rating
	}
	if ms, ok := schema.AsInt64(src["runtime"]); ok && ms > 0 {
		info["duration"] = ms / 1000
	}

	if genres := names(src["genres"]); len(genres) > 0 {
		info["genre"] = genres
	}
	if countries := names(src["origin_country"]); len(countries) > 0 {
		info["studio"] = countries
	}

	mediaType, _ := schema.AsString(src["media_type"])
	_, hasSeasons := src["seasons"]
	switch {
	case mediaType == "tv" || hasSeasons:
		info["mediatype"] = "tvshow"
	case mediaType == "movie":
		info["mediatype"] = "movie"
	}
	return info
}

// names flattens a list of strings or {"name": ...} objects.
func names(v any) []string {
	if s, ok := schema.AsString(v); ok && s != "" {
		return []string{s}
	}
	list, ok := schema.AsList(v)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := schema.AsString(item); ok && s != "" {
			out = append(out, s)
			continue
		}
		if m, ok := item.(map[string]any); ok {
			if s := firstString(m, "name"); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
