package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"torrserve/internal/metrics"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "torrserve-client/1.0"
	maxBodyBytes     = 32 * 1024 * 1024
)

type Config struct {
	Timeout   time.Duration
	Login     string
	Password  string
	UserAgent string
	// RateLimit caps outgoing requests per second; zero disables the limiter.
	RateLimit float64
	Client    *http.Client
}

type HTTPClient struct {
	http      *http.Client
	stream    *http.Client
	login     string
	password  string
	userAgent string
	limiter   *rate.Limiter
}

func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	// Wake reads may run for as long as the server keeps the stream open.
	streamClient := &http.Client{
		Transport: httpClient.Transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &HTTPClient{
		http:      httpClient,
		stream:    streamClient,
		login:     cfg.Login,
		password:  cfg.Password,
		userAgent: userAgent,
		limiter:   limiter,
	}
}

func (c *HTTPClient) Do(ctx context.Context, r Request) (*Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	endpoint := endpointLabel(r.URL)
	if r.Anonymous {
		endpoint = externalLabel
	}
	if err != nil {
		metrics.TransportRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	metrics.TransportRequestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	metrics.TransportRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func (c *HTTPClient) Stream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, Request{Method: http.MethodGet, URL: rawURL})
	if err != nil {
		return nil, err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		metrics.TransportRequestsTotal.WithLabelValues(endpointLabel(rawURL), "error").Inc()
		return nil, err
	}
	metrics.TransportRequestsTotal.WithLabelValues(endpointLabel(rawURL), strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("stream HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

func (c *HTTPClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *HTTPClient) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		body        io.Reader
		contentType = r.ContentType
	)
	switch {
	case len(r.Files) > 0 || len(r.Form) > 0:
		payload, ct, err := encodeMultipart(r.Form, r.Files)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
		contentType = ct
	case r.Body != nil:
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if !r.Anonymous && c.login != "" {
		req.SetBasicAuth(c.login, c.password)
	}
	return req, nil
}

func encodeMultipart(form map[string]string, files []File) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range form {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	for _, f := range files {
		field := f.Field
		if field == "" {
			field = "file"
		}
		part, err := mw.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

const externalLabel = "external"

// serverSections are the first path segments after /torrent/ that a
// TorrServer answers on.
var serverSections = map[string]bool{
	"add": true, "upload": true, "stat": true, "get": true, "list": true,
	"rem": true, "drop": true, "preload": true, "play": true, "view": true,
}

// endpointLabel keeps metric cardinality bounded: queries and per-file
// suffixes are dropped and paths a TorrServer does not serve collapse into
// one "external" label.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	switch {
	case u.Path == "/echo", u.Path == "/torrents", u.Path == "/stream":
		return u.Path
	case strings.HasPrefix(u.Path, "/stream/"):
		return "/stream/"
	case strings.HasPrefix(u.Path, "/torrent/"):
		section, rest, nested := strings.Cut(strings.TrimPrefix(u.Path, "/torrent/"), "/")
		if !serverSections[section] {
			return externalLabel
		}
		if nested || rest != "" {
			return "/torrent/" + section + "/"
		}
		return "/torrent/" + section
	default:
		return externalLabel
	}
}
