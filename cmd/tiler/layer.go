package main

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/atlasdatatech/vtile"
	"github.com/atlasdatatech/vtile/source"
	log "github.com/sirupsen/logrus"
)

//Layer 图层及其级别范围
type Layer struct {
	Name   string
	Min    int
	Max    int
	Source vtile.Source
	closer io.Closer
}

func (l Layer) covers(z int) bool {
	return z >= l.Min && z <= l.Max
}

// cfgLayer is one [[lrs]] entry of the config file. A layer reads either a
// geojson file or a sqlite table.
type cfgLayer struct {
	Name     string
	Min      int
	Max      int
	Geojson  string
	SRS      string
	Sqlite   string
	Dialect  string
	Table    string
	Geometry string
	ID       string
	Fields   []string
}

func (c cfgLayer) open() (Layer, error) {
	l := Layer{Name: c.Name, Min: clampZoom(c.Min), Max: clampZoom(c.Max)}
	if l.Min > l.Max {
		return l, fmt.Errorf("layer %s: min zoom %d above max zoom %d", c.Name, l.Min, l.Max)
	}
	switch {
	case c.Geojson != "":
		src, err := source.LoadGeoJSON(c.Geojson, c.SRS)
		if err != nil {
			return l, fmt.Errorf("layer %s: %w", c.Name, err)
		}
		log.Infof("layer %s loaded %d features from %s", c.Name, src.Len(), c.Geojson)
		l.Source = src
	case c.Sqlite != "":
		var (
			db  *sql.DB
			err error
		)
		if source.Dialect(c.Dialect) == source.Spatialite {
			db, err = source.OpenSpatialite(c.Sqlite)
		} else {
			db, err = sql.Open("sqlite3", c.Sqlite)
		}
		if err != nil {
			return l, fmt.Errorf("layer %s: %w", c.Name, err)
		}
		tbl, err := source.NewTable(db, source.TableConfig{
			Table:    c.Table,
			ID:       c.ID,
			Geometry: c.Geometry,
			Fields:   c.Fields,
			Dialect:  source.Dialect(c.Dialect),
			SRS:      c.SRS,
		})
		if err != nil {
			db.Close()
			return l, fmt.Errorf("layer %s: %w", c.Name, err)
		}
		l.Source = tbl
		l.closer = db
	default:
		return l, fmt.Errorf("layer %s: no geojson or sqlite source", c.Name)
	}
	return l, nil
}

//loadLayers 按配置加载图层
func loadLayers(cfgs []cfgLayer) ([]Layer, error) {
	var layers []Layer
	seen := make(map[string]bool)
	for _, c := range cfgs {
		if c.Name == "" || seen[c.Name] {
			closeLayers(layers)
			return nil, fmt.Errorf("layer name %q empty or repeated", c.Name)
		}
		seen[c.Name] = true
		l, err := c.open()
		if err != nil {
			closeLayers(layers)
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func closeLayers(layers []Layer) {
	for _, l := range layers {
		if l.closer != nil {
			l.closer.Close()
		}
	}
}
