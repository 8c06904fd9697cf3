// Package geometry converts place geometries between go-geom values and the
// WKT and GeoJSON text forms used on the wire and in storage.
package geometry

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// DefaultWKT is rendered for places without a geometry.
const DefaultWKT = "POINT (0 0)"

// Default returns the geometry used when a place has none.
func Default() geom.T {
	return geom.NewPointFlat(geom.XY, []float64{0, 0})
}

// Parse accepts either WKT or a GeoJSON geometry object.
func Parse(s string) (geom.T, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty geometry")
	}
	if strings.HasPrefix(trimmed, "{") {
		var g geom.T
		if err := geojson.Unmarshal([]byte(trimmed), &g); err != nil {
			return nil, fmt.Errorf("parsing geojson geometry: %w", err)
		}
		return g, nil
	}
	g, err := wkt.Unmarshal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing wkt geometry: %w", err)
	}
	return g, nil
}

// FromValue parses a geometry taken from a decoded JSON document: a WKT
// string or a GeoJSON object.
func FromValue(v any) (geom.T, error) {
	switch g := v.(type) {
	case string:
		return Parse(g)
	case map[string]any:
		raw, err := json.Marshal(g)
		if err != nil {
			return nil, err
		}
		return Parse(string(raw))
	case nil:
		return Default(), nil
	}
	return nil, fmt.Errorf("unsupported geometry value of type %T", v)
}

// WKT formats g, falling back to DefaultWKT for a nil geometry.
func WKT(g geom.T) (string, error) {
	if g == nil {
		return DefaultWKT, nil
	}
	return wkt.Marshal(g)
}

// GeoJSON formats g as a GeoJSON geometry object.
func GeoJSON(g geom.T) ([]byte, error) {
	if g == nil {
		g = Default()
	}
	b, err := geojson.Marshal(g)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(b), nil
}
