package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	"torrserve/internal/domain"
)

var mapType = reflect.TypeOf(map[string]any{})

// Map is the key-value capability shared by raw v1 responses and v2 views.
type Map interface {
	Get(key string) (any, error)
	GetOr(key string, def any) any
	Has(key string) bool
}

// Raw exposes a v1 JSON object without any key translation.
type Raw map[string]any

func (r Raw) Get(key string) (any, error) {
	v, ok := r[key]
	if !ok {
		return nil, missing(key)
	}
	return v, nil
}

func (r Raw) GetOr(key string, def any) any {
	if v, ok := r[key]; ok {
		return v
	}
	return def
}

func (r Raw) Has(key string) bool {
	_, ok := r[key]
	return ok
}

func (r Raw) String() string {
	data, err := json.Marshal(map[string]any(r))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(r))
	}
	return string(data)
}

func missing(key string) error {
	return fmt.Errorf("%w: %q", domain.ErrKeyNotFound, key)
}

// Int64 reads a numeric field, returning def when absent or not numeric.
func Int64(m Map, key string, def int64) int64 {
	v, err := m.Get(key)
	if err != nil {
		return def
	}
	n, ok := AsInt64(v)
	if !ok {
		return def
	}
	return n
}

// String reads a string field, returning def when absent or not a string.
func String(m Map, key string, def string) string {
	v, err := m.Get(key)
	if err != nil {
		return def
	}
	s, ok := AsString(v)
	if !ok {
		return def
	}
	return s
}

// List reads a list field and exposes every object element as a Map.
// Non-object elements are skipped.
func List(m Map, key string) ([]Map, error) {
	v, err := m.Get(key)
	if err != nil {
		return nil, err
	}
	raw, ok := AsList(v)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a list", domain.ErrKeyNotFound, key)
	}
	out := make([]Map, 0, len(raw))
	for _, item := range raw {
		if im, ok := AsMap(item); ok {
			out = append(out, im)
		}
	}
	return out, nil
}
