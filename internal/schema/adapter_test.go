package schema

import (
	"errors"
	"testing"

	"torrserve/internal/domain"
)

func mustDecodeMap(t *testing.T, body string) map[string]any {
	t.Helper()
	m, err := DecodeMap([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DlSpeed", "dl_speed"},
		{"PreloadedBytes", "preloaded_bytes"},
		{"Hash", "hash"},
		{"hash", "hash"},
		{"ConnectedSeeders", "connected_seeders"},
		{"", ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := DeriveKey(tc.in); got != tc.want {
				t.Fatalf("DeriveKey(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestViewDerivedKey(t *testing.T) {
	v := Wrap(map[string]any{"dl_speed": 5}, TorrentKind)
	got, err := v.Get("DlSpeed")
	if err != nil {
		t.Fatalf("expected value, got %v", err)
	}
	if got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
}

func TestViewMissingKey(t *testing.T) {
	v := Wrap(map[string]any{"dl_speed": 5}, TorrentKind)
	_, err := v.Get("ActivePeers")
	if !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if got := v.GetOr("ActivePeers", 7); got != 7 {
		t.Fatalf("expected default 7, got %v", got)
	}
}

func TestViewEquivalenceTable(t *testing.T) {
	raw := mustDecodeMap(t, `{"stat": 3, "stat_string": "Torrent working", "torrent_size": 1024}`)
	v := Wrap(raw, TorrentKind)

	for key, mapped := range map[string]string{
		"TorrentStatus":       "stat",
		"TorrentStatusString": "stat_string",
		"Length":              "torrent_size",
	} {
		got, err := v.Get(key)
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		if got != raw[mapped] {
			t.Fatalf("%s: expected %v, got %v", key, raw[mapped], got)
		}
	}
}

func TestListViewOmitsStatusEquivalents(t *testing.T) {
	v := Wrap(map[string]any{"stat_string": "Torrent working", "torrent_size": 10}, ListKind)
	if v.Has("TorrentStatusString") {
		t.Fatal("list rows must not alias TorrentStatusString")
	}
	if got := v.GetOr("Length", nil); got != 10 {
		t.Fatalf("expected Length alias to torrent_size, got %v", got)
	}
}

func TestViewVerbatimWinsAndIsUnwrapped(t *testing.T) {
	nested := map[string]any{"a": 1}
	v := Wrap(map[string]any{"Length": 1, "torrent_size": 2, "Nested": nested}, TorrentKind)
	if got := v.GetOr("Length", nil); got != 1 {
		t.Fatalf("expected verbatim Length=1, got %v", got)
	}
	got, _ := v.Get("Nested")
	if _, ok := got.(map[string]any); !ok {
		t.Fatalf("expected verbatim nested map to stay unwrapped, got %T", got)
	}
}

func TestViewDeprecatedField(t *testing.T) {
	v := Wrap(map[string]any{}, TorrentKind)
	got, err := v.Get("UploadSpeed")
	if err != nil {
		t.Fatalf("expected deprecated fallback, got %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}

	present := Wrap(map[string]any{"UploadSpeed": 42}, TorrentKind)
	if got := present.GetOr("UploadSpeed", nil); got != 42 {
		t.Fatalf("expected present field to win, got %v", got)
	}
}

func TestViewFileStatsAliases(t *testing.T) {
	raw := mustDecodeMap(t, `{"file_stats": [
		{"id": 1, "path": "Show/e01.mkv", "length": 100},
		{"id": 2, "path": "Show/e02.mkv", "length": 200}
	]}`)
	v := Wrap(raw, TorrentKind)

	for _, alias := range []string{"Files", "FileStats"} {
		files, err := List(v, alias)
		if err != nil {
			t.Fatalf("%s: %v", alias, err)
		}
		if len(files) != 2 {
			t.Fatalf("%s: expected 2 files, got %d", alias, len(files))
		}
		if got := String(files[1], "Name", ""); got != "Show/e02.mkv" {
			t.Fatalf("%s: expected Name alias to path, got %q", alias, got)
		}
		if got := Int64(files[0], "Size", -1); got != 100 {
			t.Fatalf("%s: expected Size alias to length, got %d", alias, got)
		}
		if got := Int64(files[0], "Id", -1); got != 1 {
			t.Fatalf("%s: expected derived Id, got %d", alias, got)
		}
	}
}

func TestViewNestedWrapping(t *testing.T) {
	raw := mustDecodeMap(t, `{"torrent_info": {"dl_speed": 9, "peers": [{"peer_id": "x"}]}}`)
	v := Wrap(raw, TorrentKind)

	info, err := v.Get("TorrentInfo")
	if err != nil {
		t.Fatalf("expected nested value, got %v", err)
	}
	nested, ok := info.(*View)
	if !ok {
		t.Fatalf("expected nested *View, got %T", info)
	}
	if got := Int64(nested, "DlSpeed", 0); got != 9 {
		t.Fatalf("expected 9, got %d", got)
	}
	peers, err := List(nested, "Peers")
	if err != nil || len(peers) != 1 {
		t.Fatalf("expected one wrapped peer, got %v (%v)", peers, err)
	}
	if got := String(peers[0], "PeerId", ""); got != "x" {
		t.Fatalf("expected PeerId x, got %q", got)
	}
}

func TestViewDoesNotMutateRaw(t *testing.T) {
	raw := map[string]any{"file_stats": []any{map[string]any{"path": "a"}}, "dl_speed": 1}
	v := Wrap(raw, TorrentKind)
	_, _ = v.Get("Files")
	_, _ = v.Get("DlSpeed")
	_, _ = v.Get("UploadSpeed")
	if len(raw) != 2 {
		t.Fatalf("raw map changed: %v", raw)
	}
	if _, ok := raw["file_stats"].([]any)[0].(map[string]any); !ok {
		t.Fatal("raw file_stats element was replaced")
	}
}

func TestViewHas(t *testing.T) {
	v := Wrap(map[string]any{"real_id_file_stats": nil, "stat": 2}, TorrentKind)
	if !v.Has("RealIdFileStats") {
		t.Fatal("expected derived key to be present even when null")
	}
	if !v.Has("TorrentStatus") {
		t.Fatal("expected equivalence key to be present")
	}
	if v.Has("PreloadSize") {
		t.Fatal("expected PreloadSize to be missing")
	}
}

func TestRawMapIsVerbatim(t *testing.T) {
	r := Raw{"DlSpeed": 1}
	if _, err := r.Get("dl_speed"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected raw map not to translate keys, got %v", err)
	}
	if got := Int64(r, "DlSpeed", 0); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}
