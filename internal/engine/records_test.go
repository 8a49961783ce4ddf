package engine

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"torrserve/internal/domain"
)

func TestRemoveAndDropSendHash(t *testing.T) {
	for _, banner := range []string{"1.1.77", "MatriX.131"} {
		t.Run(banner, func(t *testing.T) {
			srv := newFakeServer(t, banner)
			ok := func(map[string]any) (int, any) { return http.StatusOK, nil }
			srv.on("rem", ok)
			srv.on("drop", ok)

			h := New(testContext(t), srv.URL())
			_ = h.Attach(testHash)
			if err := h.Drop(context.Background()); err != nil {
				t.Fatalf("drop: %v", err)
			}
			if err := h.Remove(context.Background()); err != nil {
				t.Fatalf("remove: %v", err)
			}
			for _, action := range []string{"rem", "drop"} {
				body := srv.lastBody(action)
				hash, _ := body["hash"].(string)
				if hash == "" {
					hash, _ = body["Hash"].(string)
				}
				if hash != testHash {
					t.Fatalf("expected %s with hash %s, got %v", action, testHash, body)
				}
			}
		})
	}
}

func TestRemoveRejected(t *testing.T) {
	srv := newFakeServer(t, "MatriX")
	srv.on("rem", func(map[string]any) (int, any) { return http.StatusNotFound, "no torrent" })

	h := New(testContext(t), srv.URL())
	_ = h.Attach(testHash)
	if err := h.Remove(context.Background()); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestTorrentStatV1FindsListRow(t *testing.T) {
	srv := newFakeServer(t, "1.1.77")
	srv.on("list", func(map[string]any) (int, any) {
		return http.StatusOK, []map[string]any{
			{"Hash": "other", "Name": "Other"},
			{"Hash": testHash, "Name": "Mine", "Files": []map[string]any{
				{"Id": 7, "Name": "Mine/a.mkv", "Size": 10},
			}},
		}
	})

	h := New(testContext(t), srv.URL())
	_ = h.Attach(testHash)
	fs, err := h.FileStat(context.Background(), 0)
	if err != nil {
		t.Fatalf("file stat: %v", err)
	}
	if got := fs.GetOr("Name", ""); got != "Mine/a.mkv" {
		t.Fatalf("expected Mine/a.mkv, got %v", got)
	}
	if _, err := h.FileStat(context.Background(), 1); !errors.Is(err, domain.ErrInvalidFileIndex) {
		t.Fatalf("expected ErrInvalidFileIndex, got %v", err)
	}

	missing := New(testContext(t), srv.URL())
	_ = missing.Attach("ffff")
	if _, err := missing.TorrentStat(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unlisted hash, got %v", err)
	}
}

func TestFilesV2UsesFileAliases(t *testing.T) {
	srv := newFakeServer(t, "MatriX.131")
	srv.on("stat", func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"hash": testHash,
			"file_stats": []map[string]any{
				{"id": 1, "path": "Show/e01.mkv", "length": 100},
				{"id": 2, "path": "Show/e02.mkv", "length": 200},
			},
		}
	})

	h := New(testContext(t), srv.URL())
	_ = h.Attach(testHash)
	files, err := h.Files(context.Background())
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 || files[1].ID != 2 || files[1].Path != "Show/e02.mkv" || files[1].Size != 200 {
		t.Fatalf("unexpected files: %+v", files)
	}
	idx, err := h.GetTSIndex(context.Background(), "Show/e02.mkv")
	if err != nil || idx != 1 {
		t.Fatalf("expected index 1, got %d (%v)", idx, err)
	}
}

func TestTitlePosterFanart(t *testing.T) {
	srv := newFakeServer(t, "MatriX.131")
	srv.on("get", func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"hash":   testHash,
			"name":   "Film.2020.1080p",
			"poster": "",
			"data":   `{"movie":{"title":"Film","poster_path":"/p.jpg","backdrop_path":"/b.jpg"}}`,
		}
	})

	h := New(testContext(t), srv.URL())
	_ = h.Attach(testHash)
	ctx := context.Background()

	title, err := h.Title(ctx)
	if err != nil || title != "Film" {
		t.Fatalf("expected side-channel title Film, got %q (%v)", title, err)
	}
	poster, _ := h.Poster(ctx)
	if poster != "/p.jpg" {
		t.Fatalf("expected /p.jpg, got %q", poster)
	}
	fanart, _ := h.Fanart(ctx)
	if fanart != "/b.jpg" {
		t.Fatalf("expected /b.jpg, got %q", fanart)
	}
}

func TestTitleFallsBackToName(t *testing.T) {
	srv := newFakeServer(t, "1.1.77")
	srv.on("get", func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"Hash": testHash, "Name": "Film.2020.1080p"}
	})

	h := New(testContext(t), srv.URL())
	_ = h.Attach(testHash)
	title, err := h.Title(context.Background())
	if err != nil || title != "Film.2020.1080p" {
		t.Fatalf("expected torrent name, got %q (%v)", title, err)
	}
}

func TestSuccessReflectsNegotiation(t *testing.T) {
	srv := newFakeServer(t, "MatriX")
	if !New(testContext(t), srv.URL()).Success(context.Background()) {
		t.Fatalf("expected reachable server to succeed")
	}
	if New(testContext(t), "http://127.0.0.1:1").Success(context.Background()) {
		t.Fatalf("expected unreachable server to fail")
	}
}

func TestRemoveForgetsPlaylist(t *testing.T) {
	srv := newFakeServer(t, "MatriX.131")
	srv.on("rem", func(map[string]any) (int, any) { return http.StatusOK, nil })

	store := NewMemoryM3U()
	ctx := context.Background()
	_ = store.Store(ctx, testHash, "#EXTM3U\n")
	ec := NewContext(Options{RequestCacheTTL: -1, M3U: store, Logger: discardLogger()})

	h := New(ec, srv.URL())
	_ = h.Attach(testHash)
	if err := h.Remove(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := store.Load(ctx, testHash); ok {
		t.Fatalf("expected playlist to be forgotten after remove")
	}
}
