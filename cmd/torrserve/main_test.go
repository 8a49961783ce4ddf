package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"torrserve/internal/domain"
	"torrserve/internal/schema"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("expected %v for %q, got %v", want, in, got)
		}
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root, _ := newRootCommand()
	for _, name := range []string{"version", "add", "upload", "list", "stat", "files", "play", "drop", "rem", "history"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Fatalf("expected subcommand %q, got %v", name, err)
		}
	}
}

func TestPrintTorrents(t *testing.T) {
	var buf bytes.Buffer
	printTorrents(&buf, []schema.Map{
		schema.Raw{"Hash": "abc", "Name": "Movie", "Length": float64(1 << 30), "TorrentStatusString": "Torrent working"},
	})
	out := buf.String()
	if !strings.Contains(out, "abc") || !strings.Contains(out, "1.0 GiB") || !strings.Contains(out, "Movie") {
		t.Fatalf("unexpected listing: %q", out)
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, []domain.PlayRecord{{
		Hash:      "abc",
		FileIndex: 2,
		Title:     "Movie",
		FilePath:  "Movie/part2.mkv",
		UpdatedAt: time.Now().Add(-2 * time.Hour),
	}})
	out := buf.String()
	if !strings.Contains(out, "2 hours ago") || !strings.Contains(out, "part2.mkv") {
		t.Fatalf("unexpected history: %q", out)
	}
}

type fakeHistory struct {
	records map[string]domain.PlayRecord
	listed  int
}

func (f *fakeHistory) Upsert(_ context.Context, rec domain.PlayRecord) error {
	f.records[rec.Hash] = rec
	return nil
}

func (f *fakeHistory) Get(_ context.Context, hash string, fileIndex int) (domain.PlayRecord, error) {
	rec, ok := f.records[hash]
	if !ok || rec.FileIndex != fileIndex {
		return domain.PlayRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeHistory) ListRecent(context.Context, int) ([]domain.PlayRecord, error) {
	f.listed++
	out := make([]domain.PlayRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func runHistory(t *testing.T, rt *runtime, args ...string) (string, error) {
	t.Helper()
	cmd := newHistoryCommand(rt)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestHistoryLookupByHash(t *testing.T) {
	store := &fakeHistory{records: map[string]domain.PlayRecord{
		"abc": {Hash: "abc", FileIndex: 2, Title: "Movie", FilePath: "Movie/part2.mkv", UpdatedAt: time.Now()},
	}}
	rt := &runtime{history: store}

	out, err := runHistory(t, rt, "--hash", "abc", "--index", "2")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "part2.mkv") || store.listed != 0 {
		t.Fatalf("expected single lookup, got %q (listed %d)", out, store.listed)
	}

	if _, err := runHistory(t, rt, "--hash", "abc", "--index", "1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := runHistory(t, rt); err != nil || store.listed != 1 {
		t.Fatalf("expected recent listing, got %v (listed %d)", err, store.listed)
	}
}

func TestHistoryDisabledWithoutStore(t *testing.T) {
	if _, err := runHistory(t, &runtime{}); !errors.Is(err, errHistoryDisabled) {
		t.Fatalf("expected errHistoryDisabled, got %v", err)
	}
}
