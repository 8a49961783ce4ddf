package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"torrserve/internal/domain"
	"torrserve/internal/protocol"
	"torrserve/internal/telemetry"
	"torrserve/internal/transport"
)

// ErrRejected reports a non-2xx answer to a request that needs one.
var ErrRejected = errors.New("torrserver rejected request")

const defaultUploadName = "torrserve.torrent"

// Handle is the client-side session for one torrent. Its negotiated
// version is fixed after the first successful probe and its hash is
// assigned once by Add, Upload or Attach.
type Handle struct {
	ec      *Context
	baseURL string
	logger  *slog.Logger

	negMu      sync.Mutex
	negotiated bool
	version    domain.Version
	dialect    protocol.Dialect

	mu         sync.Mutex
	hash       string
	data       []byte
	items      []domain.PlayableItem
	state      domain.HandleState
	m3uFetched bool
}

// ServerURL builds the base URL of a server from host and port.
func ServerURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// New returns an unstarted handle. Nothing is sent until the first
// operation that needs the server version.
func New(ec *Context, baseURL string) *Handle {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &Handle{
		ec:      ec,
		baseURL: base,
		logger:  ec.logger.With(slog.String("server", base)),
		version: domain.VersionUnknown,
		state:   domain.StateUnstarted,
	}
}

// Source selects what Open adds to the server. URI takes precedence, then
// Path, then Data.
type Source struct {
	URI  string
	Path string
	Data []byte
	Name string
}

// Open negotiates with the server and, if a source is given, adds or
// uploads it and waits for its metadata. The handle is returned even on
// failure so callers can inspect Success and State.
func Open(ctx context.Context, ec *Context, baseURL string, src Source) (*Handle, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.Open")
	defer span.End()

	h := New(ec, baseURL)
	if !h.Success(ctx) {
		span.SetStatus(codes.Error, "unavailable")
		return h, domain.ErrUnavailable
	}

	err := h.open(ctx, src)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return h, err
	}
	span.SetAttributes(attribute.String("torrent.hash", h.Hash()))
	return h, nil
}

func (h *Handle) open(ctx context.Context, src Source) error {
	path := src.Path
	if uri := strings.TrimSpace(src.URI); uri != "" {
		lower := strings.ToLower(uri)
		switch {
		case strings.HasPrefix(lower, "magnet:"), isHTTP(lower):
			ok, err := h.Add(ctx, uri, AddOptions{})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: add %s", ErrRejected, uri)
			}
			_, err = h.WaitForData(ctx)
			return err
		case strings.HasPrefix(lower, "file:"):
			u, err := url.Parse(uri)
			if err != nil {
				return fmt.Errorf("parse file url: %w", err)
			}
			path = filepath.FromSlash(u.Path)
		default:
			path = uri
		}
	}

	data := src.Data
	if path != "" && len(data) == 0 {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read torrent file: %w", err)
		}
		data = raw
	}
	if len(data) == 0 {
		return nil
	}

	name := src.Name
	if name == "" && path != "" {
		name = filepath.Base(path)
	}
	if name == "" {
		name = defaultUploadName
	}
	ok, err := h.Upload(ctx, name, data)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: upload %s", ErrRejected, name)
	}
	_, err = h.WaitForData(ctx)
	return err
}

func isHTTP(uri string) bool {
	lower := strings.ToLower(uri)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Success reports whether the server answered the version probe.
func (h *Handle) Success(ctx context.Context) bool {
	return h.Version(ctx).Known()
}

// Version negotiates on first use and returns the cached result afterwards.
func (h *Handle) Version(ctx context.Context) domain.Version {
	h.negMu.Lock()
	defer h.negMu.Unlock()
	if h.negotiated {
		return h.version
	}

	h.setState(domain.StateNegotiating)
	v := h.ec.negotiate.Negotiate(ctx, h.baseURL)
	h.negotiated = true
	h.version = v
	if !v.Known() {
		h.setState(domain.StateFailed)
		return v
	}
	d, err := protocol.ForVersion(h.baseURL, v)
	if err != nil {
		h.setState(domain.StateFailed)
		return v
	}
	h.dialect = d
	h.setState(domain.StateUnstarted)
	return v
}

// IsV2 reports whether the server speaks the single-endpoint API.
func (h *Handle) IsV2(ctx context.Context) bool {
	return h.Version(ctx).IsV2()
}

func (h *Handle) dialectFor(ctx context.Context) (protocol.Dialect, error) {
	if !h.Version(ctx).Known() {
		return nil, domain.ErrUnavailable
	}
	h.negMu.Lock()
	defer h.negMu.Unlock()
	return h.dialect, nil
}

func (h *Handle) BaseURL() string { return h.baseURL }

func (h *Handle) Hash() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hash
}

// Attach binds the handle to a torrent the server already knows.
func (h *Handle) Attach(hash string) error {
	if err := h.setHash(hash); err != nil {
		return err
	}
	h.setState(domain.StateReady)
	return nil
}

func (h *Handle) setHash(hash string) error {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return domain.ErrNoHash
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hash != "" {
		return fmt.Errorf("%w: %s", domain.ErrHashAssigned, h.hash)
	}
	h.hash = hash
	return nil
}

func (h *Handle) requireHash() (string, error) {
	hash := h.Hash()
	if hash == "" {
		return "", domain.ErrNoHash
	}
	return hash, nil
}

// Data returns the torrent bytes retained by Upload or an http Add.
func (h *Handle) Data() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data
}

func (h *Handle) State() domain.HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// setState records a lifecycle change. The state is advisory: invalid
// transitions are logged and dropped.
func (h *Handle) setState(next domain.HandleState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == next {
		return
	}
	if !domain.CanTransition(h.state, next) {
		h.logger.Debug("handle state transition ignored",
			slog.String("from", string(h.state)),
			slog.String("to", string(next)),
		)
		return
	}
	h.state = next
}

func (h *Handle) fail(err error) {
	h.logger.Warn("torrent handle failed", slog.String("hash", h.Hash()), slog.String("error", err.Error()))
	h.setState(domain.StateFailed)
}

// call sends req and returns the body of a 2xx answer.
func (h *Handle) call(ctx context.Context, req transport.Request) ([]byte, error) {
	resp, err := h.ec.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s HTTP %d", ErrRejected, req.URL, resp.StatusCode)
	}
	return resp.Body, nil
}
