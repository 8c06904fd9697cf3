// Package blob merges an entity's structured fields with its schema-less
// attribute blob, and splits incoming documents back into the two halves.
//
// Blob keys starting with PrivatePrefix are private: they are always
// writable, but only readable by requests allowed to see private data.
package blob

import (
	"bytes"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PrivatePrefix marks a blob key as private.
const PrivatePrefix = "private"

// DataField is the storage column holding the serialized blob. It is never
// accepted as a literal field name on input.
const DataField = "data"

// MalformedBlobError reports a stored blob that is not a JSON object.
type MalformedBlobError struct {
	Err error
}

func (e *MalformedBlobError) Error() string {
	return fmt.Sprintf("malformed attribute blob: %v", e.Err)
}

func (e *MalformedBlobError) Unwrap() error { return e.Err }

// FieldSet is a set of structured field names.
type FieldSet map[string]struct{}

// NewFieldSet builds a FieldSet from names.
func NewFieldSet(names ...string) FieldSet {
	fs := make(FieldSet, len(names))
	for _, n := range names {
		fs[n] = struct{}{}
	}
	return fs
}

func (fs FieldSet) Has(name string) bool {
	_, ok := fs[name]
	return ok
}

// IsPrivate reports whether a blob key is only visible with private access.
func IsPrivate(key string) bool {
	return strings.HasPrefix(key, PrivatePrefix)
}

// Decode parses a serialized blob. An empty blob decodes to an empty map.
func Decode(raw string) (map[string]any, error) {
	if len(bytes.TrimSpace([]byte(raw))) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.UnmarshalFromString(raw, &m); err != nil {
		return nil, &MalformedBlobError{Err: err}
	}
	if m == nil {
		// "null" decodes without error but is not an object.
		return nil, &MalformedBlobError{Err: fmt.Errorf("blob is not an object")}
	}
	return m, nil
}

// Encode serializes a blob for storage. Keys are written in sorted order.
func Encode(blob map[string]any) (string, error) {
	if blob == nil {
		blob = map[string]any{}
	}
	s, err := json.MarshalToString(blob)
	if err != nil {
		return "", fmt.Errorf("encode blob: %w", err)
	}
	return s, nil
}

// Flatten returns one document holding every structured field and every
// blob key. Private blob keys are dropped unless includePrivate is set.
// Structured fields win over blob keys of the same name.
func Flatten(structured map[string]any, raw string, includePrivate bool) (map[string]any, error) {
	attrs, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(structured)+len(attrs))
	for k, v := range structured {
		out[k] = v
	}
	for k, v := range attrs {
		if !includePrivate && IsPrivate(k) {
			continue
		}
		if _, taken := structured[k]; taken {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Split partitions input into the keys named in known and a blob holding the
// rest. Unless partial is set, known fields missing from input are
// back-filled from defaults, so omitted fields receive model defaults
// instead of disappearing.
func Split(input map[string]any, known FieldSet, defaults map[string]any, partial bool) (structured, attrs map[string]any) {
	structured = make(map[string]any)
	attrs = make(map[string]any)

	for k, v := range input {
		if k != DataField && known.Has(k) {
			structured[k] = v
		} else {
			attrs[k] = v
		}
	}

	if !partial {
		for name := range known {
			if name == DataField {
				continue
			}
			if _, ok := structured[name]; ok {
				continue
			}
			if def, ok := defaults[name]; ok {
				structured[name] = def
			}
		}
	}
	return structured, attrs
}
