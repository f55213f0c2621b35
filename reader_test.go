package vtile

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt/vectortile"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatten(g orb.Geometry) []orb.Point {
	switch g := g.(type) {
	case orb.Point:
		return []orb.Point{g}
	case orb.MultiPoint:
		return g
	case orb.LineString:
		return g
	case orb.MultiLineString:
		var ps []orb.Point
		for _, ls := range g {
			ps = append(ps, ls...)
		}
		return ps
	case orb.Ring:
		return g
	case orb.Polygon:
		var ps []orb.Point
		for _, r := range g {
			ps = append(ps, r...)
		}
		return ps
	case orb.MultiPolygon:
		var ps []orb.Point
		for _, p := range g {
			ps = append(ps, flatten(p)...)
		}
		return ps
	}
	return nil
}

func roundTripFeatures() []*Feature {
	return []*Feature{
		{ID: 7, Geometry: orb.Point{1e6, 2e6}, Properties: []Property{
			{Key: "name", Value: String("a")},
			{Key: "rank", Value: Int(3)},
		}},
		{Geometry: orb.LineString{{-5e6, -5e6}, {0, 0}, {5e6, -2e6}}, Properties: []Property{
			{Key: "ok", Value: Bool(true)},
			{Key: "w", Value: Double(1.5)},
		}},
		{Geometry: orb.Polygon{
			{{-1e7, -1e7}, {-1e7, 1e7}, {1e7, 1e7}, {1e7, -1e7}, {-1e7, -1e7}},
			{{-1e6, -1e6}, {1e6, -1e6}, {1e6, 1e6}, {-1e6, 1e6}, {-1e6, -1e6}},
		}, Properties: []Property{
			{Key: "u", Value: Uint(9)},
			{Key: "f", Value: Float(2.5)},
			{Key: "s", Value: Sint(-4)},
		}},
		{Geometry: orb.MultiPoint{{1e6, 1e6}, {-3e6, 4e6}}},
	}
}

func TestRoundTrip(t *testing.T) {
	tile := maptile.New(0, 0, 0)
	in := roundTripFeatures()
	data := encodeBytes(t, NewEncoder(Options{}), tile, LayerSource{Name: "rt", Source: NewMemorySource(in...)})

	out, err := DecodeTile(data, tile)
	require.NoError(t, err)
	require.Len(t, out.Layers(), 1)
	l, err := out.Layer("rt")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), l.Version)
	assert.Equal(t, uint32(4096), l.Extent)
	require.Equal(t, len(in), l.Len())

	tol := 0.5 * TileSpan(0) / 4096
	for i, want := range in {
		got := l.Feature(i)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Geometry.GeoJSONType(), got.Geometry.GeoJSONType())
		assert.ElementsMatch(t, want.Properties, got.Properties)

		wp, gp := flatten(want.Geometry), flatten(got.Geometry)
		require.Len(t, gp, len(wp), "feature %d", i)
		for j := range wp {
			assert.InDelta(t, wp[j][0], gp[j][0], tol)
			assert.InDelta(t, wp[j][1], gp[j][1], tol)
		}
	}
	assert.Equal(t, GeomPoint, l.Feature(0).Type)
	assert.Equal(t, GeomLineString, l.Feature(1).Type)
	assert.Equal(t, GeomPolygon, l.Feature(2).Type)

	poly := l.Feature(2).Geometry.(orb.Polygon)
	assert.Equal(t, orb.CW, poly[0].Orientation())
	assert.Equal(t, orb.CCW, poly[1].Orientation())

	v, ok := l.Feature(0).Get("name")
	assert.True(t, ok)
	assert.Equal(t, "a", v.String())
	assert.Equal(t, map[string]interface{}{"ok": true, "w": 1.5}, l.Feature(1).PropertyMap())
}

func TestReencodeIdempotent(t *testing.T) {
	tile := maptile.New(1, 1, 2)
	r := MaxExtent
	src := NewMemorySource(
		&Feature{ID: 3, Geometry: orb.Polygon{
			{{-r / 4, r / 4}, {-r / 4, 3 * r / 4}, {r / 4, 3 * r / 4}, {r / 4, r / 4}, {-r / 4, r / 4}},
			{{-r / 5, r / 3}, {-r / 8, r / 3}, {-r / 8, r / 2.5}, {-r / 5, r / 2.5}, {-r / 5, r / 3}},
		}, Properties: []Property{{Key: "kind", Value: String("park")}}},
		&Feature{Geometry: orb.LineString{{-r, r / 3}, {-r / 3, r / 5}, {r, r / 10}}},
		&Feature{Geometry: orb.MultiPoint{{-r / 3, r / 3}, {-r / 7, r / 9}, {r, r}}},
		&Feature{ID: 9, Geometry: orb.MultiPolygon{
			{{{-0.4 * r, 0.1 * r}, {-0.4 * r, 0.2 * r}, {-0.3 * r, 0.2 * r}, {-0.3 * r, 0.1 * r}, {-0.4 * r, 0.1 * r}}},
			{{{-0.6 * r, -0.1 * r}, {-0.6 * r, 0.05 * r}, {-0.45 * r, 0.05 * r}, {-0.6 * r, -0.1 * r}}},
		}, Properties: []Property{{Key: "kind", Value: String("lake")}, {Key: "depth", Value: Double(3.25)}}},
	)
	for _, buffer := range []uint32{0, 16} {
		e := NewEncoder(Options{Buffer: buffer})
		first := encodeBytes(t, e, tile, LayerSource{Name: "mix", Source: src})

		l, err := OpenLayer(first, Bound(tile), "mix")
		require.NoError(t, err)
		require.Equal(t, 4, l.Len())

		second := encodeBytes(t, e, tile, LayerSource{Name: "mix", Source: l.View(l.Envelope())})
		assert.Equal(t, first, second, "buffer %d", buffer)
	}
}

func TestReencodeBufferOnlyFeature(t *testing.T) {
	tile := maptile.New(0, 0, 1)
	r := MaxExtent
	src := NewMemorySource(
		&Feature{ID: 1, Geometry: orb.Point{-r / 2, r / 2}},
		// east of the tile, inside the 64px buffer
		&Feature{ID: 2, Geometry: orb.Point{r / 8, r / 2}},
	)
	e := NewEncoder(Options{Buffer: 64})
	first := encodeBytes(t, e, tile, LayerSource{Name: "p", Source: src})

	l, err := OpenLayer(first, Bound(tile), "p")
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())
	assert.True(t, l.Envelope().Max[0] > l.Bound.Max[0])
	assert.True(t, l.Envelope().Contains(l.Bound.Min))
	assert.True(t, l.Envelope().Contains(l.Bound.Max))

	second := encodeBytes(t, e, tile, LayerSource{Name: "p", Source: l.View(l.Envelope())})
	assert.Equal(t, first, second)
}

func TestFeatureClone(t *testing.T) {
	tile := maptile.New(0, 0, 0)
	src := NewMemorySource(&Feature{ID: 1, Geometry: orb.LineString{{0, 0}, {1e6, 1e6}},
		Properties: []Property{{Key: "name", Value: String("a")}}})
	data := encodeBytes(t, NewEncoder(Options{}), tile, LayerSource{Name: "l", Source: src})
	l, err := OpenLayer(data, Bound(tile), "l")
	require.NoError(t, err)

	orig := l.Feature(0)
	want := orb.Clone(orig.Geometry)
	c := orig.Clone()
	c.Properties[0].Value = String("b")
	c.Geometry.(orb.LineString)[0] = orb.Point{1, 1}

	v, ok := l.Feature(0).Get("name")
	require.True(t, ok)
	assert.Equal(t, String("a"), v)
	assert.Equal(t, want, l.Feature(0).Geometry)
	assert.Equal(t, uint64(1), c.ID)
}

func TestLayerNamesAndOpenLayer(t *testing.T) {
	tile := maptile.New(0, 0, 0)
	roads := NewMemorySource(&Feature{Geometry: orb.LineString{{0, 0}, {1e6, 1e6}}})
	pois := NewMemorySource(&Feature{Geometry: orb.Point{0, 0}}, &Feature{Geometry: orb.Point{1e6, 0}})
	data := encodeBytes(t, NewEncoder(Options{}), tile,
		LayerSource{Name: "roads", Source: roads},
		LayerSource{Name: "pois", Source: pois},
	)

	names, err := LayerNames(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"roads", "pois"}, names)

	l, err := OpenLayer(data, Bound(tile), "pois")
	require.NoError(t, err)
	assert.Equal(t, "pois", l.Name)
	assert.Equal(t, 2, l.Len())

	_, err = OpenLayer(data, Bound(tile), "water")
	assert.True(t, errors.Is(err, ErrLayerNotFound))

	decoded, err := DecodeTile(data, tile)
	require.NoError(t, err)
	_, err = decoded.Layer("water")
	assert.True(t, errors.Is(err, ErrLayerNotFound))
}

func TestLayerFeaturesRestart(t *testing.T) {
	tile := maptile.New(0, 0, 0)
	src := NewMemorySource(&Feature{ID: 1, Geometry: orb.Point{0, 0}}, &Feature{ID: 2, Geometry: orb.Point{1e6, 0}})
	data := encodeBytes(t, NewEncoder(Options{}), tile, LayerSource{Name: "p", Source: src})
	l, err := OpenLayer(data, Bound(tile), "p")
	require.NoError(t, err)

	for pass := 0; pass < 2; pass++ {
		var ids []uint64
		it := l.Features()
		for it.Next() {
			ids = append(ids, it.Feature().ID)
		}
		require.NoError(t, it.Err())
		assert.Equal(t, []uint64{1, 2}, ids)
	}
}

func TestViewFilters(t *testing.T) {
	tile := maptile.New(0, 0, 0)
	src := NewMemorySource(
		&Feature{ID: 1, Geometry: orb.Point{-5e6, 5e6}},
		&Feature{ID: 2, Geometry: orb.Point{5e6, 5e6}},
		&Feature{ID: 3, Geometry: orb.Point{5e6, -5e6}},
	)
	data := encodeBytes(t, NewEncoder(Options{}), tile, LayerSource{Name: "p", Source: src})
	l, err := OpenLayer(data, Bound(tile), "p")
	require.NoError(t, err)

	north := orb.Bound{Min: orb.Point{-MaxExtent, 0}, Max: orb.Point{MaxExtent, MaxExtent}}
	v := l.View(north)
	assert.Equal(t, north, v.Envelope())

	collect := func(it Iterator) []uint64 {
		var ids []uint64
		for it.Next() {
			ids = append(ids, it.Feature().ID)
		}
		return ids
	}
	assert.Equal(t, []uint64{1, 2}, collect(v.Features(Bound(tile))))
	assert.Equal(t, []uint64{2}, collect(v.Features(Bound(maptile.New(1, 0, 1)))))
	assert.Empty(t, collect(v.Features(Bound(maptile.New(1, 1, 1)))))
}

func layerWith(f *vectortile.Tile_Feature) *vectortile.Tile {
	name := "bad"
	version, extent := uint32(2), uint32(4096)
	s := "v"
	return &vectortile.Tile{Layers: []*vectortile.Tile_Layer{{
		Version:  &version,
		Name:     &name,
		Extent:   &extent,
		Keys:     []string{"k"},
		Values:   []*vectortile.Tile_Value{{StringValue: &s}},
		Features: []*vectortile.Tile_Feature{{Type: GeomPoint.Enum(), Geometry: []uint32{9, 0, 0}}, f},
	}}}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name    string
		feature *vectortile.Tile_Feature
		err     error
	}{
		{"truncated", &vectortile.Tile_Feature{Type: GeomPoint.Enum(), Geometry: []uint32{9, 4096}}, ErrTruncated},
		{"unknown command", &vectortile.Tile_Feature{Type: GeomPoint.Enum(), Geometry: []uint32{12, 0, 0}}, ErrUnknownCommand},
		{"odd tags", &vectortile.Tile_Feature{Tags: []uint32{0}, Type: GeomPoint.Enum(), Geometry: []uint32{9, 0, 0}}, ErrOddTags},
		{"key index", &vectortile.Tile_Feature{Tags: []uint32{1, 0}, Type: GeomPoint.Enum(), Geometry: []uint32{9, 0, 0}}, ErrTagIndex},
		{"value index", &vectortile.Tile_Feature{Tags: []uint32{0, 1}, Type: GeomPoint.Enum(), Geometry: []uint32{9, 0, 0}}, ErrTagIndex},
		{"open ring", &vectortile.Tile_Feature{Type: GeomPolygon.Enum(), Geometry: []uint32{9, 0, 0, 18, 2, 0, 0, 2}}, ErrTruncated},
	}
	for _, c := range cases {
		data, err := Marshal(layerWith(c.feature))
		require.NoError(t, err)

		tile, err := Decode(data, TileBounds(0, 0, 0))
		assert.Nil(t, tile)
		assert.True(t, errors.Is(err, c.err), "%s: got %v", c.name, err)

		var de *DecodeError
		if assert.True(t, errors.As(err, &de), c.name) {
			assert.Equal(t, "bad", de.Layer)
			assert.Equal(t, 1, de.Feature)
		}
	}
}

func TestDecodeLayerErrors(t *testing.T) {
	name := "bad"
	version, zero := uint32(2), uint32(0)
	vt := &vectortile.Tile{Layers: []*vectortile.Tile_Layer{{Version: &version, Name: &name, Extent: &zero}}}
	data, err := Marshal(vt)
	require.NoError(t, err)
	_, err = Decode(data, TileBounds(0, 0, 0))
	assert.True(t, errors.Is(err, ErrInvalidExtent))
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, -1, de.Feature)

	s, b := "x", true
	vt = &vectortile.Tile{Layers: []*vectortile.Tile_Layer{{
		Version: &version,
		Name:    &name,
		Values:  []*vectortile.Tile_Value{{StringValue: &s, BoolValue: &b}},
	}}}
	data, err = Marshal(vt)
	require.NoError(t, err)
	_, err = Decode(data, TileBounds(0, 0, 0))
	assert.True(t, errors.Is(err, ErrInvalidValue))

	vt = &vectortile.Tile{Layers: []*vectortile.Tile_Layer{{
		Version: &version,
		Name:    &name,
		Values:  []*vectortile.Tile_Value{{}},
	}}}
	data, err = Marshal(vt)
	require.NoError(t, err)
	_, err = Decode(data, TileBounds(0, 0, 0))
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestDecodeUnknownType(t *testing.T) {
	data, err := Marshal(layerWith(&vectortile.Tile_Feature{Id: new(uint64), Geometry: []uint32{1, 2, 3}}))
	require.NoError(t, err)
	tile, err := Decode(data, TileBounds(0, 0, 0))
	require.NoError(t, err)
	l := tile.Layers()[0]
	require.Equal(t, 2, l.Len())
	assert.Equal(t, GeomUnknown, l.Feature(1).Type)
	assert.Nil(t, l.Feature(1).Geometry)

	it := l.View(l.Bound).Features(l.Bound)
	require.True(t, it.Next())
	assert.Equal(t, GeomPoint, it.Feature().Type)
	assert.False(t, it.Next())
}

func TestDecodeGarbage(t *testing.T) {
	garbage := []byte{0x1a, 0x05, 0x0a}
	check := func(err error) {
		var de *DecodeError
		require.True(t, errors.As(err, &de), "%v", err)
		assert.Equal(t, -1, de.Feature)
		assert.True(t, errors.Is(err, ErrMalformed))
	}

	_, err := Decode(garbage, TileBounds(0, 0, 0))
	check(err)
	_, err = OpenLayer(garbage, TileBounds(0, 0, 0), "layer")
	check(err)
	_, err = LayerNames(garbage)
	check(err)
}
