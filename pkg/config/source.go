package config

import (
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/ajitpratap0/quickload/pkg/errors"
)

// Source is a read-only view over a nested configuration map. Keys may be
// dotted paths ("in.parser.type"). Conversions accept any representation
// spf13/cast understands, so "10" and 10 both read as an int.
//
// A Source returned by Sub remembers its path so that error messages name
// the full key.
type Source struct {
	data   map[string]interface{}
	prefix string
}

// NewSource wraps m. The map is deep-copied and must not contain cycles.
func NewSource(m map[string]interface{}) Source {
	return Source{data: normalizeMap(m)}
}

// Empty returns a Source with no keys.
func Empty() Source { return Source{data: map[string]interface{}{}} }

// Path returns the dotted key this Source was taken from, or "" for the root.
func (s Source) Path() string { return s.prefix }

// Keys returns the top-level keys in sorted order.
func (s Source) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a deep copy of the underlying map.
func (s Source) Map() map[string]interface{} {
	return normalizeMap(s.data)
}

// With returns a copy of s with the top-level key set to value.
func (s Source) With(key string, value interface{}) Source {
	m := s.Map()
	m[key] = value
	return Source{data: normalizeMap(m), prefix: s.prefix}
}

// Get returns the raw value at key.
func (s Source) Get(key string) (interface{}, bool) {
	var cur interface{} = s.data
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// Has reports whether key is set to a non-null value.
func (s Source) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Sub returns the nested map at key. A missing key yields an empty Source;
// a non-map value is a config error.
func (s Source) Sub(key string) (Source, error) {
	sub := Source{data: map[string]interface{}{}, prefix: s.path(key)}
	v, ok := s.Get(key)
	if !ok {
		return sub, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return sub, s.typeError(key, "map", v)
	}
	sub.data = m
	return sub, nil
}

// RequiredSub is Sub for a key that must be present.
func (s Source) RequiredSub(key string) (Source, error) {
	if !s.Has(key) {
		return Source{}, s.missing(key)
	}
	return s.Sub(key)
}

// GetString returns the value at key as a string, or def when unset.
func (s Source) GetString(key, def string) (string, error) {
	v, ok := s.Get(key)
	if !ok {
		return def, nil
	}
	out, err := cast.ToStringE(v)
	if err != nil {
		return def, s.typeError(key, "string", v)
	}
	return out, nil
}

// RequiredString returns the non-empty string at key.
func (s Source) RequiredString(key string) (string, error) {
	v, err := s.GetString(key, "")
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", s.missing(key)
	}
	return v, nil
}

// GetInt returns the value at key as an int, or def when unset.
func (s Source) GetInt(key string, def int) (int, error) {
	v, ok := s.Get(key)
	if !ok {
		return def, nil
	}
	out, err := cast.ToIntE(v)
	if err != nil {
		return def, s.typeError(key, "int", v)
	}
	return out, nil
}

// GetBool returns the value at key as a bool, or def when unset.
func (s Source) GetBool(key string, def bool) (bool, error) {
	v, ok := s.Get(key)
	if !ok {
		return def, nil
	}
	out, err := cast.ToBoolE(v)
	if err != nil {
		return def, s.typeError(key, "bool", v)
	}
	return out, nil
}

// GetDuration returns the value at key as a time.Duration ("30s", or a
// number of nanoseconds), or def when unset.
func (s Source) GetDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := s.Get(key)
	if !ok {
		return def, nil
	}
	out, err := cast.ToDurationE(v)
	if err != nil {
		return def, s.typeError(key, "duration", v)
	}
	return out, nil
}

// GetStringSlice returns the list at key as strings. A single scalar is
// accepted as a one-element list.
func (s Source) GetStringSlice(key string) ([]string, error) {
	v, ok := s.Get(key)
	if !ok {
		return nil, nil
	}
	if str, isStr := v.(string); isStr {
		return []string{str}, nil
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, s.typeError(key, "list of strings", v)
	}
	return out, nil
}

// GetSlice returns the raw list at key.
func (s Source) GetSlice(key string) ([]interface{}, error) {
	v, ok := s.Get(key)
	if !ok {
		return nil, nil
	}
	out, err := cast.ToSliceE(v)
	if err != nil {
		return nil, s.typeError(key, "list", v)
	}
	return out, nil
}

// GetSources returns the list of maps at key, each as a Source.
func (s Source) GetSources(key string) ([]Source, error) {
	items, err := s.GetSlice(key)
	if err != nil {
		return nil, err
	}
	out := make([]Source, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig, "%s[%d]: expected map, got %T", s.path(key), i, item).
				WithDetail("key", s.path(key))
		}
		out[i] = Source{data: m, prefix: s.path(key)}
	}
	return out, nil
}

func (s Source) path(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "." + key
}

func (s Source) missing(key string) error {
	return errors.Newf(errors.ErrorTypeConfig, "missing required key %q", s.path(key)).
		WithDetail("key", s.path(key))
}

func (s Source) typeError(key, want string, got interface{}) error {
	return errors.Newf(errors.ErrorTypeConfig, "key %q: expected %s, got %T", s.path(key), want, got).
		WithDetail("key", s.path(key))
}

// normalizeMap deep-copies m, converting nested map[interface{}]interface{}
// values (as produced by some YAML decoders) to map[string]interface{}.
func normalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return normalizeMap(t)
	case map[interface{}]interface{}:
		return normalizeMap(cast.ToStringMap(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
