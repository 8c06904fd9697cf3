// Package cache holds the shared path-parameter cache: the backend contract,
// its badger and in-process implementations, and the request-scoped Buffer
// that batches lookups for a whole collection.
//
// Cached values are advisory. Every entry can be recomputed from the primary
// store, so backends may evict at any time and concurrent writers of the
// same key are harmless.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/i5heu/geohive/pkg/model"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// KeyPrefix namespaces every path-parameter entry.
const KeyPrefix = "geohive:params:"

// Backend is a key-value store without transactional guarantees.
type Backend interface {
	// Get returns the value for key. found is false on a miss.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// GetMany looks up all keys in one round trip. Missed keys are absent
	// from the result; a partial result is not an error.
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes keys. Absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	Close() error
}

// Flusher is implemented by backends that can drop every entry at once.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Flush empties b when it supports it.
func Flush(ctx context.Context, b Backend) error {
	f, ok := b.(Flusher)
	if !ok {
		return fmt.Errorf("cache backend %T cannot be flushed", b)
	}
	return f.Flush(ctx)
}

// Key derives the cache key of an entity's path parameters.
func Key(kind model.Kind, pk int64) string {
	return KeyPrefix + string(kind) + ":" + strconv.FormatInt(pk, 10)
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (model.Kind, int64, error) {
	rest, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok {
		return "", 0, fmt.Errorf("cache key %q lacks prefix %q", key, KeyPrefix)
	}
	kind, pkStr, ok := strings.Cut(rest, ":")
	if !ok {
		return "", 0, fmt.Errorf("cache key %q has no primary key", key)
	}
	pk, err := strconv.ParseInt(pkStr, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("cache key %q: %w", key, err)
	}
	return model.Kind(kind), pk, nil
}

// EncodeParams serializes a path-parameter set as a protobuf Struct.
func EncodeParams(params map[string]string) ([]byte, error) {
	fields := make(map[string]*structpb.Value, len(params))
	for k, v := range params {
		fields[k] = structpb.NewStringValue(v)
	}
	b, err := proto.Marshal(&structpb.Struct{Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("encode path params: %w", err)
	}
	return b, nil
}

// DecodeParams parses a value written by EncodeParams.
func DecodeParams(b []byte) (map[string]string, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode path params: %w", err)
	}
	out := make(map[string]string, len(s.GetFields()))
	for k, v := range s.GetFields() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("decode path params: %s is not a string", k)
		}
		out[k] = sv.StringValue
	}
	return out, nil
}
