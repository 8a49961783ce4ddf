package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"torrserve/internal/domain"
	"torrserve/internal/schema"
	"torrserve/internal/transport"
)

// Action names as used by v1 endpoints (/torrent/<name>).
const (
	ActionAdd    = "add"
	ActionUpload = "upload"
	ActionStat   = "stat"
	ActionGet    = "get"
	ActionList   = "list"
	ActionRem    = "rem"
	ActionDrop   = "drop"
)

var ErrBadResponse = errors.New("unexpected server response")

type AddParams struct {
	Link   string
	Title  string
	Poster string
	// Data is an opaque JSON document stored next to the torrent, read back
	// by VideoInfo.
	Data string
	Save bool
}

// Dialect builds requests and reads responses for one API generation.
type Dialect interface {
	Name() string
	IsV2() bool
	BaseURL() string
	Action(name, hash string) transport.Request
	Add(p AddParams) (transport.Request, error)
	ParseAddHash(body []byte) (string, error)
	Upload(name string, data []byte, save bool) transport.Request
	ParseUploadHash(body []byte) (string, error)
	Snapshot(body []byte) (schema.Map, error)
	Rows(body []byte) ([]schema.Map, error)
	URL(path string) string
}

// ForVersion picks the dialect for a negotiated version.
func ForVersion(baseURL string, v domain.Version) (Dialect, error) {
	if !v.Known() {
		return nil, domain.ErrUnavailable
	}
	base := strings.TrimRight(baseURL, "/")
	if v.IsV2() {
		return V2{base: base}, nil
	}
	return V1{base: base}, nil
}

func jsonRequest(rawURL string, payload any, cacheable bool) (transport.Request, error) {
	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return transport.Request{}, err
		}
		body = data
	}
	return transport.Request{
		Method:      http.MethodPost,
		URL:         rawURL,
		Body:        body,
		ContentType: "application/json",
		Cacheable:   cacheable,
	}, nil
}

func isRead(action string) bool {
	switch action {
	case ActionStat, ActionGet, ActionList:
		return true
	default:
		return false
	}
}

// V1 speaks the legacy /torrent/<action> API.
type V1 struct{ base string }

func (V1) Name() string      { return "v1" }
func (V1) IsV2() bool        { return false }
func (d V1) BaseURL() string { return d.base }

func (d V1) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return d.base + path
}

func (d V1) Action(name, hash string) transport.Request {
	var payload any
	if hash != "" {
		payload = map[string]any{"Hash": hash}
	}
	req, _ := jsonRequest(d.base+"/torrent/"+name, payload, isRead(name))
	return req
}

func (d V1) Add(p AddParams) (transport.Request, error) {
	payload := map[string]any{
		"Link":     p.Link,
		"DontSave": !p.Save,
	}
	info, err := sideChannel(p)
	if err != nil {
		return transport.Request{}, err
	}
	if info != "" {
		payload["Info"] = info
	}
	return jsonRequest(d.base+"/torrent/"+ActionAdd, payload, false)
}

// sideChannel folds title and poster into the JSON blob v1 servers keep as
// torrent info.
func sideChannel(p AddParams) (string, error) {
	info := map[string]any{}
	if strings.TrimSpace(p.Data) != "" {
		if err := json.Unmarshal([]byte(p.Data), &info); err != nil {
			return "", fmt.Errorf("torrent data is not a JSON object: %w", err)
		}
	}
	if p.Title != "" {
		info["title"] = p.Title
	}
	if p.Poster != "" {
		info["poster"] = p.Poster
	}
	if len(info) == 0 {
		return "", nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (V1) ParseAddHash(body []byte) (string, error) {
	hash := strings.TrimSpace(string(body))
	hash = strings.Trim(hash, `"`)
	if hash == "" {
		return "", fmt.Errorf("%w: empty hash", ErrBadResponse)
	}
	return hash, nil
}

func (d V1) Upload(name string, data []byte, _ bool) transport.Request {
	return transport.Request{
		Method: http.MethodPost,
		URL:    d.base + "/torrent/" + ActionUpload,
		Files:  []transport.File{{Field: "file", Name: name, Data: data}},
	}
}

func (V1) ParseUploadHash(body []byte) (string, error) {
	var hashes []string
	if err := json.Unmarshal(body, &hashes); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(hashes) == 0 || strings.TrimSpace(hashes[0]) == "" {
		return "", fmt.Errorf("%w: empty upload result", ErrBadResponse)
	}
	return strings.TrimSpace(hashes[0]), nil
}

func (V1) Snapshot(body []byte) (schema.Map, error) {
	m, err := schema.DecodeMap(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return schema.Raw(m), nil
}

func (V1) Rows(body []byte) ([]schema.Map, error) {
	return rows(body, func(m map[string]any) schema.Map { return schema.Raw(m) })
}

// V2 speaks the single-endpoint /torrents API.
type V2 struct{ base string }

func (V2) Name() string      { return "v2" }
func (V2) IsV2() bool        { return true }
func (d V2) BaseURL() string { return d.base }

func (d V2) URL(path string) string {
	return V1(d).URL(path)
}

func (d V2) Action(name, hash string) transport.Request {
	action := name
	if name == ActionStat {
		action = ActionGet
	}
	payload := map[string]any{"action": action}
	if hash != "" {
		payload["hash"] = hash
	}
	req, _ := jsonRequest(d.base+"/torrents", payload, isRead(name))
	return req
}

func (d V2) Add(p AddParams) (transport.Request, error) {
	payload := map[string]any{
		"action":     ActionAdd,
		"link":       p.Link,
		"save_to_db": p.Save,
	}
	if p.Title != "" {
		payload["title"] = p.Title
	}
	if p.Poster != "" {
		payload["poster"] = p.Poster
	}
	if p.Data != "" {
		payload["data"] = p.Data
	}
	return jsonRequest(d.base+"/torrents", payload, false)
}

func (V2) ParseAddHash(body []byte) (string, error) {
	var resp struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if strings.TrimSpace(resp.Hash) == "" {
		return "", fmt.Errorf("%w: empty hash", ErrBadResponse)
	}
	return strings.TrimSpace(resp.Hash), nil
}

func (d V2) Upload(name string, data []byte, save bool) transport.Request {
	req := transport.Request{
		Method: http.MethodPost,
		URL:    d.base + "/torrent/" + ActionUpload,
		Files:  []transport.File{{Field: "file", Name: name, Data: data}},
	}
	if save {
		req.Form = map[string]string{"save": "true"}
	}
	return req
}

func (V2) ParseUploadHash(body []byte) (string, error) {
	type status struct {
		Hash string `json:"hash"`
	}
	var list []status
	if err := json.Unmarshal(body, &list); err != nil {
		var single status
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
		list = []status{single}
	}
	if len(list) == 0 || strings.TrimSpace(list[0].Hash) == "" {
		return "", fmt.Errorf("%w: empty upload result", ErrBadResponse)
	}
	return strings.TrimSpace(list[0].Hash), nil
}

func (V2) Snapshot(body []byte) (schema.Map, error) {
	m, err := schema.DecodeMap(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return schema.Wrap(m, schema.TorrentKind), nil
}

func (V2) Rows(body []byte) ([]schema.Map, error) {
	return rows(body, func(m map[string]any) schema.Map { return schema.Wrap(m, schema.ListKind) })
}

// PreloadURL asks the server to start buffering the 1-based stream index.
func (d V2) PreloadURL(hash string, index int) string {
	return fmt.Sprintf("%s/stream?link=%s&index=%d&preload", d.base, url.QueryEscape(hash), index+1)
}

// PlayURL builds a direct stream link. The file path is escaped byte-wise
// per segment so that non-ASCII names survive as UTF-8 percent escapes.
func (d V2) PlayURL(path, hash string, index int) string {
	return fmt.Sprintf("%s/stream/%s?link=%s&index=%d&play", d.base, EscapePath(path), url.QueryEscape(hash), index+1)
}

func (d V2) M3UURL(hash string) string {
	return fmt.Sprintf("%s/stream/?link=%s&m3u", d.base, url.QueryEscape(hash))
}

// EscapePath percent-encodes every segment of a slash separated path.
func EscapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// StreamIndex extracts the index query parameter from a stream URL.
func StreamIndex(rawURL string) (int, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(u.Query().Get("index"))
	if err != nil {
		return 0, false
	}
	return n, true
}

func rows(body []byte, wrap func(map[string]any) schema.Map) ([]schema.Map, error) {
	v, err := schema.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if v == nil {
		return nil, nil
	}
	list, ok := schema.AsList(v)
	if !ok {
		return nil, fmt.Errorf("%w: list is not an array", ErrBadResponse)
	}
	out := make([]schema.Map, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, wrap(m))
		}
	}
	return out, nil
}
