package reqcache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"torrserve/internal/transport"
)

type countingClient struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (c *countingClient) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return nil, c.err
	}
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(req.URL)}, nil
}

func (c *countingClient) Stream(ctx context.Context, url string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(ttl)
	c.now = clock.Now
	return c, clock
}

func statRequest() transport.Request {
	return transport.Request{
		Method:    http.MethodPost,
		URL:       "http://127.0.0.1:8090/torrents",
		Body:      []byte(`{"action":"get","hash":"abc"}`),
		Cacheable: true,
	}
}

func TestIdenticalReadsWithinWindowHitServerOnce(t *testing.T) {
	cache, clock := newTestCache(DefaultTTL)
	next := &countingClient{}
	client := Wrap(next, cache)

	if _, err := client.Do(context.Background(), statRequest()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	clock.Advance(100 * time.Millisecond)
	if _, err := client.Do(context.Background(), statRequest()); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := next.calls.Load(); got != 1 {
		t.Fatalf("expected 1 transport call, got %d", got)
	}
}

func TestReadsBeyondWindowHitServerTwice(t *testing.T) {
	cache, clock := newTestCache(DefaultTTL)
	next := &countingClient{}
	client := Wrap(next, cache)

	_, _ = client.Do(context.Background(), statRequest())
	clock.Advance(DefaultTTL + time.Millisecond)
	_, _ = client.Do(context.Background(), statRequest())

	if got := next.calls.Load(); got != 2 {
		t.Fatalf("expected 2 transport calls, got %d", got)
	}
	if got := cache.Len(); got != 1 {
		t.Fatalf("expected expired entry to be evicted, got %d entries", got)
	}
}

func TestDifferentBodiesAreNotCollapsed(t *testing.T) {
	cache, _ := newTestCache(DefaultTTL)
	next := &countingClient{}
	client := Wrap(next, cache)

	first := statRequest()
	second := statRequest()
	second.Body = []byte(`{"action":"get","hash":"def"}`)

	_, _ = client.Do(context.Background(), first)
	_, _ = client.Do(context.Background(), second)
	if got := next.calls.Load(); got != 2 {
		t.Fatalf("expected 2 transport calls, got %d", got)
	}
}

func TestNonCacheableRequestsPassThrough(t *testing.T) {
	cache, _ := newTestCache(DefaultTTL)
	next := &countingClient{}
	client := Wrap(next, cache)

	req := statRequest()
	req.Cacheable = false
	_, _ = client.Do(context.Background(), req)
	_, _ = client.Do(context.Background(), req)
	if got := next.calls.Load(); got != 2 {
		t.Fatalf("expected 2 transport calls, got %d", got)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	cache, _ := newTestCache(DefaultTTL)
	next := &countingClient{err: errors.New("connection refused")}
	client := Wrap(next, cache)

	for i := 0; i < 2; i++ {
		if _, err := client.Do(context.Background(), statRequest()); err == nil {
			t.Fatal("expected error")
		}
	}
	if got := next.calls.Load(); got != 2 {
		t.Fatalf("expected 2 transport calls, got %d", got)
	}
}

func TestDisabledCachePassesThrough(t *testing.T) {
	next := &countingClient{}
	client := Wrap(next, New(0))
	_, _ = client.Do(context.Background(), statRequest())
	_, _ = client.Do(context.Background(), statRequest())
	if got := next.calls.Load(); got != 2 {
		t.Fatalf("expected 2 transport calls, got %d", got)
	}
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	cache := New(time.Minute)
	next := &countingClient{delay: 50 * time.Millisecond}
	client := Wrap(next, cache)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Do(context.Background(), statRequest()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := next.calls.Load(); got != 1 {
		t.Fatalf("expected 1 transport call, got %d", got)
	}
}
