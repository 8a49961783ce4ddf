// Package metadata reads playable file listings straight from .torrent
// payloads, for servers that cannot report file lists themselves.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"

	"torrserve/internal/domain"
)

var ErrMalformed = errors.New("malformed torrent")

// minConfidence is the chardet score a guess must exceed to be trusted.
const minConfidence = 50

// Extract lists the files of a bencoded metainfo document. Multi-file
// torrents yield "<name>/<path...>" entries in declaration order; a
// single-file torrent yields one entry with index 0.
func Extract(data []byte) ([]domain.PlayableItem, error) {
	info, err := loadInfo(data)
	if err != nil {
		return nil, err
	}

	name := pickName(info.NameUtf8, info.Name)
	if len(info.Files) == 0 {
		return []domain.PlayableItem{{Index: 0, Name: name, Size: info.Length}}, nil
	}

	items := make([]domain.PlayableItem, 0, len(info.Files))
	for i, f := range info.Files {
		segments := f.PathUtf8
		if len(segments) == 0 {
			segments = f.Path
		}
		parts := make([]string, 0, len(segments)+1)
		parts = append(parts, name)
		for _, s := range segments {
			parts = append(parts, DecodeName([]byte(s)))
		}
		items = append(items, domain.PlayableItem{
			Index: i,
			Name:  strings.Join(parts, "/"),
			Size:  f.Length,
		})
	}
	return items, nil
}

// InfoHash returns the hex info-hash of a bencoded metainfo document.
func InfoHash(data []byte) (string, error) {
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(mi.InfoBytes) == 0 {
		return "", fmt.Errorf("%w: missing info dictionary", ErrMalformed)
	}
	return mi.HashInfoBytes().HexString(), nil
}

func loadInfo(data []byte) (metainfo.Info, error) {
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return metainfo.Info{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(mi.InfoBytes) == 0 {
		return metainfo.Info{}, fmt.Errorf("%w: missing info dictionary", ErrMalformed)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return metainfo.Info{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return info, nil
}

func pickName(utf8Name, name string) string {
	if utf8Name != "" {
		return DecodeName([]byte(utf8Name))
	}
	return DecodeName([]byte(name))
}

// fallbackEncoding decodes names the detector is unsure about. Legacy
// torrents without utf-8 names come mostly from Russian trackers.
var fallbackEncoding encoding.Encoding = charmap.Windows1251

// DecodeName turns raw name bytes into text. Valid UTF-8 is returned as is;
// otherwise a confident charset guess is used, then windows-1251, and only
// then are invalid sequences replaced.
func DecodeName(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if enc := detect(raw); enc != nil {
		if decoded, ok := decodeWith(enc, raw); ok {
			return decoded
		}
	}
	if decoded, ok := decodeWith(fallbackEncoding, raw); ok {
		return decoded
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}

func decodeWith(enc encoding.Encoding, raw []byte) (string, bool) {
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil || !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}

func detect(raw []byte) encoding.Encoding {
	result, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || result == nil || result.Confidence <= minConfidence {
		return nil
	}
	if enc, err := htmlindex.Get(result.Charset); err == nil {
		return enc
	}
	if enc, err := ianaindex.IANA.Encoding(result.Charset); err == nil && enc != nil {
		return enc
	}
	return nil
}
