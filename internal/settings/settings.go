// Package settings holds ordered JSON settings objects and the
// load/merge/write operations on them.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/tidwall/gjson"
)

// ErrNotObject is returned when a document's top-level value is not a JSON
// object.
var ErrNotObject = errors.New("must contain a JSON object")

// Settings is a JSON object whose members keep their insertion order.
// Values are stored as raw JSON and are never inspected.
// The zero value is an empty object ready to use.
type Settings struct {
	keys   []string
	values map[string]json.RawMessage
}

// New returns an empty Settings.
func New() *Settings {
	return &Settings{values: make(map[string]json.RawMessage)}
}

// Parse decodes a strict JSON document whose top level must be an object.
// Duplicate keys keep the position of their first occurrence and the value
// of their last.
func Parse(data []byte) (*Settings, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, ErrNotObject
	}

	s := New()
	doc.ForEach(func(key, value gjson.Result) bool {
		s.Set(key.String(), json.RawMessage(value.Raw))
		return true
	})
	return s, nil
}

// Len returns the number of top-level keys.
func (s *Settings) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys returns the keys in order. The slice is a copy.
func (s *Settings) Keys() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.keys)
}

// Get returns the raw value stored under key.
func (s *Settings) Get(key string) (json.RawMessage, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Set stores a copy of value under key. An existing key keeps its position.
func (s *Settings) Set(key string, value json.RawMessage) {
	if s.values == nil {
		s.values = make(map[string]json.RawMessage)
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = slices.Clone(value)
}

// Clone returns a copy of s that shares no memory with it.
func (s *Settings) Clone() *Settings {
	out := New()
	for _, k := range s.Keys() {
		out.Set(k, s.values[k])
	}
	return out
}

// Merge returns the shallow union of existing and incoming. Keys of
// existing come first in their order; a key also present in incoming takes
// incoming's value but keeps its position. Keys only in incoming are
// appended in incoming's order. Nested objects are replaced, never merged.
// Neither argument is modified; nil is treated as empty.
func Merge(existing, incoming *Settings) *Settings {
	out := New()
	for _, k := range existing.Keys() {
		v, _ := existing.Get(k)
		out.Set(k, v)
	}
	for _, k := range incoming.Keys() {
		v, _ := incoming.Get(k)
		out.Set(k, v)
	}
	return out
}

// MarshalJSON encodes s as a compact JSON object in key order.
func (s *Settings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, k); err != nil {
			return nil, fmt.Errorf("settings: marshal key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := json.Compact(&buf, s.values[k]); err != nil {
			return nil, fmt.Errorf("settings: marshal value of %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeKey writes k as a JSON string without HTML escaping.
func writeKey(buf *bytes.Buffer, k string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(k); err != nil {
		return err
	}
	// Encode terminates each value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// UnmarshalJSON replaces the contents of s with the decoded object.
func (s *Settings) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
