// Package transport sends requests to the torrent server over HTTP.
package transport

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"sort"
	"strings"
)

// File is one multipart attachment.
type File struct {
	Field string
	Name  string
	Data  []byte
}

// Request describes one call to the server. Form fields and Files turn the
// body into multipart/form-data; otherwise Body is sent as-is.
type Request struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string
	Form        map[string]string
	Files       []File
	// Cacheable marks read-style requests that may be answered from the
	// short-lived request cache.
	Cacheable bool
	// Anonymous requests never carry the server credentials.
	Anonymous bool
}

// Key identifies a request by method, URL, body, form and attachments.
func (r Request) Key() string {
	h := sha1.New()
	write := func(s string) {
		_, _ = io.WriteString(h, s)
		_, _ = h.Write([]byte{0})
	}
	write(strings.ToUpper(r.Method))
	write(r.URL)
	_, _ = h.Write(r.Body)
	_, _ = h.Write([]byte{0})

	keys := make([]string, 0, len(r.Form))
	for k := range r.Form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k)
		write(r.Form[k])
	}
	for _, f := range r.Files {
		write(f.Field)
		write(f.Name)
		_, _ = h.Write(f.Data)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is the capability the engine needs from the network.
type Client interface {
	Do(ctx context.Context, req Request) (*Response, error)
	// Stream opens url for incremental reading without following redirects.
	Stream(ctx context.Context, url string) (io.ReadCloser, error)
}
