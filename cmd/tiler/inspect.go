package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/atlasdatatech/vtile"
	"github.com/atlasdatatech/vtile/mbtiles"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

//parseTile 解析z/x/y
func parseTile(s string) (maptile.Tile, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return maptile.Tile{}, fmt.Errorf("tile %q is not z/x/y", s)
	}
	var v [3]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return maptile.Tile{}, fmt.Errorf("tile %q: %w", s, err)
		}
		v[i] = uint32(n)
	}
	t := maptile.New(v[1], v[2], maptile.Zoom(v[0]))
	if v[0] > 32 || !t.Valid() {
		return maptile.Tile{}, fmt.Errorf("tile %q out of range", s)
	}
	return t, nil
}

// layerGeoJSON converts a decoded layer to a lon/lat feature collection.
func layerGeoJSON(l *vtile.Layer) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{
		"name":    l.Name,
		"extent":  l.Extent,
		"version": l.Version,
	}
	it := l.Features()
	for it.Next() {
		f := it.Feature()
		if f.Geometry == nil {
			continue
		}
		gf := geojson.NewFeature(project.Geometry(orb.Clone(f.Geometry), project.Mercator.ToWGS84))
		if f.ID != 0 {
			gf.ID = f.ID
		}
		gf.Properties = f.PropertyMap()
		fc.Append(gf)
	}
	return fc
}

//inspect 解码瓦片并输出geojson
func inspect(w io.Writer, file, tile string) error {
	t, err := parseTile(tile)
	if err != nil {
		return err
	}
	db, err := mbtiles.Open(file)
	if err != nil {
		return err
	}
	defer db.Close()
	data, err := db.Tile(t)
	if err != nil {
		return fmt.Errorf("%s %s: %w", file, tile, err)
	}
	vt, err := vtile.DecodeTile(data, t)
	if err != nil {
		return err
	}
	out := make(map[string]*geojson.FeatureCollection, len(vt.Layers()))
	for _, l := range vt.Layers() {
		out[l.Name] = layerGeoJSON(l)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	return enc.Encode(out)
}
