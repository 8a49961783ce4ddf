package engine

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

// fakeServer is a scripted TorrServer. Handlers are keyed by v1 action name
// ("stat", "list", ...) for both API generations; v2 "get" requests are
// routed to the "stat" handler when no "get" handler is set.
type fakeServer struct {
	t      *testing.T
	banner string
	srv    *httptest.Server

	// fnMu serializes scripted handlers so they may keep plain counters.
	fnMu     sync.Mutex
	mu       sync.Mutex
	calls    map[string]int
	bodies   map[string][]map[string]any
	actions  map[string]func(body map[string]any) (int, any)
	handlers map[string]http.HandlerFunc
}

func newFakeServer(t *testing.T, banner string) *fakeServer {
	t.Helper()
	f := &fakeServer{
		t:        t,
		banner:   banner,
		calls:    make(map[string]int),
		bodies:   make(map[string][]map[string]any),
		actions:  make(map[string]func(map[string]any) (int, any)),
		handlers: make(map[string]http.HandlerFunc),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) URL() string { return f.srv.URL }

func (f *fakeServer) on(action string, fn func(body map[string]any) (int, any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions[action] = fn
}

func (f *fakeServer) handle(path string, fn http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = fn
}

func (f *fakeServer) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[action]
}

func (f *fakeServer) lastBody(action string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	bodies := f.bodies[action]
	if len(bodies) == 0 {
		return nil
	}
	return bodies[len(bodies)-1]
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/echo" {
		_, _ = io.WriteString(w, f.banner)
		return
	}

	f.mu.Lock()
	custom, ok := f.handlers[r.URL.Path]
	f.mu.Unlock()
	if ok {
		f.record(r.URL.Path, nil)
		custom(w, r)
		return
	}

	var action string
	switch {
	case r.URL.Path == "/torrents":
		action = ""
	case len(r.URL.Path) > len("/torrent/") && r.URL.Path[:len("/torrent/")] == "/torrent/":
		action = r.URL.Path[len("/torrent/"):]
	default:
		http.NotFound(w, r)
		return
	}

	var body map[string]any
	if data, _ := io.ReadAll(r.Body); len(bytes.TrimSpace(data)) > 0 && action != "upload" {
		if err := json.Unmarshal(data, &body); err != nil {
			f.t.Errorf("decode request body: %v", err)
		}
	}
	if action == "" {
		action, _ = body["action"].(string)
	}

	f.mu.Lock()
	fn, ok := f.actions[action]
	if !ok && action == "get" {
		fn, ok = f.actions["stat"]
	}
	f.mu.Unlock()
	f.record(action, body)
	if !ok {
		http.Error(w, "unexpected action "+action, http.StatusBadRequest)
		return
	}

	f.fnMu.Lock()
	status, payload := fn(body)
	f.fnMu.Unlock()
	w.WriteHeader(status)
	switch p := payload.(type) {
	case nil:
	case string:
		_, _ = io.WriteString(w, p)
	default:
		_ = json.NewEncoder(w).Encode(p)
	}
}

func (f *fakeServer) record(key string, body map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	f.bodies[key] = append(f.bodies[key], body)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext(t *testing.T) *Context {
	t.Helper()
	return NewContext(Options{
		RequestCacheTTL: -1,
		Logger:          discardLogger(),
		PollInterval:    time.Millisecond,
		PreloadBackoff:  time.Millisecond,
	})
}

func buildTorrent(t *testing.T, info metainfo.Info) []byte {
	t.Helper()
	info.PieceLength = 16384
	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		t.Fatalf("marshal info: %v", err)
	}
	var buf bytes.Buffer
	if err := (&metainfo.MetaInfo{InfoBytes: infoBytes}).Write(&buf); err != nil {
		t.Fatalf("write metainfo: %v", err)
	}
	return buf.Bytes()
}

func waitSignal(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
		return ""
	}
}
