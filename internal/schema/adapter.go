// Package schema makes v2 server responses answer to v1 field names.
//
// A View never copies or mutates the response it wraps. Every lookup runs
// the ordered resolvers below against the raw object and wraps nested
// objects and lists only when they are returned.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Kind selects the equivalence table used by a View.
type Kind int

const (
	// TorrentKind wraps a single torrent status object.
	TorrentKind Kind = iota
	// ListKind wraps one row of a list-of-torrents response. Status
	// equivalences are not meaningful per row.
	ListKind
	// FileKind wraps one element of a file_stats array.
	FileKind
)

const fileStatsKey = "file_stats"

var equivalents = map[Kind]map[string]string{
	TorrentKind: {
		"TorrentStatusString": "stat_string",
		"TorrentStatus":       "stat",
		"Length":              "torrent_size",
		"Files":               fileStatsKey,
		"FileStats":           fileStatsKey,
	},
	ListKind: {
		"Length":    "torrent_size",
		"Files":     fileStatsKey,
		"FileStats": fileStatsKey,
	},
	FileKind: {
		"Name": "path",
		"Size": "length",
	},
}

// deprecated holds v1 fields that v2 no longer reports.
var deprecated = map[string]any{
	"UploadSpeed": 0,
}

var fileAliases = map[string]struct{}{
	"Files":      {},
	fileStatsKey: {},
	"FileStats":  {},
}

type resolver func(raw map[string]any, kind Kind, key string) (any, bool)

// resolvers run in order; the first hit wins.
var resolvers = []resolver{
	resolveVerbatim,
	resolveDeprecated,
	resolveFileStats,
	resolveEquivalent,
	resolveDerived,
}

// Resolve looks key up in raw using the v1 compatibility rules of kind.
func Resolve(raw map[string]any, kind Kind, key string) (any, bool) {
	for _, r := range resolvers {
		if v, ok := r(raw, kind, key); ok {
			return v, true
		}
	}
	return nil, false
}

func resolveVerbatim(raw map[string]any, _ Kind, key string) (any, bool) {
	v, ok := raw[key]
	return v, ok
}

func resolveDeprecated(_ map[string]any, _ Kind, key string) (any, bool) {
	v, ok := deprecated[key]
	return v, ok
}

func resolveFileStats(raw map[string]any, _ Kind, key string) (any, bool) {
	if _, ok := fileAliases[key]; !ok {
		return nil, false
	}
	files, ok := raw[fileStatsKey].([]any)
	if !ok {
		return nil, false
	}
	out := make([]any, len(files))
	for i, f := range files {
		out[i] = wrap(f, FileKind)
	}
	return out, true
}

func resolveEquivalent(raw map[string]any, kind Kind, key string) (any, bool) {
	mapped, ok := equivalents[kind][key]
	if !ok {
		return nil, false
	}
	v, ok := raw[mapped]
	if !ok {
		return nil, false
	}
	return wrap(v, kind), true
}

func resolveDerived(raw map[string]any, kind Kind, key string) (any, bool) {
	derived := DeriveKey(key)
	if derived == "" {
		return nil, false
	}
	v, ok := raw[derived]
	if !ok {
		return nil, false
	}
	return wrap(v, kind), true
}

// DeriveKey converts a PascalCase v1 key into its snake_case v2 form:
// "DlSpeed" becomes "dl_speed".
func DeriveKey(key string) string {
	if key == "" {
		return ""
	}
	runes := []rune(key)
	var b strings.Builder
	b.Grow(len(key) + 4)
	b.WriteRune(unicode.ToLower(runes[0]))
	for _, r := range runes[1:] {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func wrap(v any, kind Kind) any {
	switch node := v.(type) {
	case map[string]any:
		return Wrap(node, kind)
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = wrap(item, kind)
		}
		return out
	default:
		return v
	}
}

// View is a read-only v1-shaped view over one raw v2 object.
type View struct {
	raw  map[string]any
	kind Kind
}

func Wrap(raw map[string]any, kind Kind) *View {
	return &View{raw: raw, kind: kind}
}

// Raw returns the wrapped object. Callers must not modify it.
func (v *View) Raw() map[string]any { return v.raw }

func (v *View) Get(key string) (any, error) {
	value, ok := Resolve(v.raw, v.kind, key)
	if !ok {
		return nil, missing(key)
	}
	return value, nil
}

func (v *View) GetOr(key string, def any) any {
	value, ok := Resolve(v.raw, v.kind, key)
	if !ok {
		return def
	}
	return value
}

func (v *View) Has(key string) bool {
	if _, ok := v.raw[key]; ok {
		return true
	}
	if mapped, ok := equivalents[v.kind][key]; ok {
		if _, ok := v.raw[mapped]; ok {
			return true
		}
	}
	_, ok := v.raw[DeriveKey(key)]
	return ok
}

func (v *View) String() string {
	data, err := json.Marshal(v.raw)
	if err != nil {
		return fmt.Sprintf("%v", v.raw)
	}
	return string(data)
}
