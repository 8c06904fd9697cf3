package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestParse_WKT(t *testing.T) {
	g, err := Parse("POINT (13.4 52.5)")
	require.NoError(t, err)
	p, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{13.4, 52.5}, p.FlatCoords())

	out, err := WKT(g)
	require.NoError(t, err)
	assert.Equal(t, "POINT (13.4 52.5)", out)
}

func TestParse_GeoJSON(t *testing.T) {
	g, err := FromValue(map[string]any{
		"type":        "Point",
		"coordinates": []any{1.5, 2.5},
	})
	require.NoError(t, err)
	p, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, 1.5, p.X())
	assert.Equal(t, 2.5, p.Y())

	raw, err := GeoJSON(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[1.5,2.5]}`, string(raw))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
	_, err = Parse("POINT (")
	assert.Error(t, err)
	_, err = FromValue(42)
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	out, err := WKT(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWKT, out)

	g, err := FromValue(nil)
	require.NoError(t, err)
	out, err = WKT(g)
	require.NoError(t, err)
	assert.Equal(t, DefaultWKT, out)
}
