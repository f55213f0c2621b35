package source

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math"
	"sort"
	"strconv"

	"github.com/atlasdatatech/vtile"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	log "github.com/sirupsen/logrus"
)

// Supported source projections.
const (
	WGS84    = "EPSG:4326"
	Mercator = "EPSG:3857"
)

// projection returns the projection into mercator for srs, nil when the
// data is already mercator.
func projection(srs string) (orb.Projection, error) {
	switch srs {
	case WGS84, "":
		return project.WGS84.ToMercator, nil
	case Mercator:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported projection %q", srs)
}

//LoadGeoJSON 加载GeoJSON文件数据源
func LoadGeoJSON(path string, srs string) (*vtile.MemorySource, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read file: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal %s: %w", path, err)
	}
	return NewGeoJSON(fc, srs)
}

// NewGeoJSON builds an in-memory source from fc. Geometries are copied and
// projected to mercator; fc is left untouched. Features without geometry
// are skipped.
func NewGeoJSON(fc *geojson.FeatureCollection, srs string) (*vtile.MemorySource, error) {
	proj, err := projection(srs)
	if err != nil {
		return nil, err
	}
	src := vtile.NewMemorySource()
	for i, f := range fc.Features {
		if f.Geometry == nil {
			log.Debugf("geojson feature %d has no geometry, skipped", i)
			continue
		}
		g := orb.Clone(f.Geometry)
		if proj != nil {
			g = project.Geometry(g, proj)
		}
		src.Push(&vtile.Feature{
			ID:         featureID(f.ID),
			Geometry:   g,
			Properties: properties(f.Properties),
		})
	}
	return src, nil
}

// featureID keeps ids that are non-negative integers, as numbers or
// numeric strings. Anything else becomes 0, which is not written.
func featureID(id interface{}) uint64 {
	switch id := id.(type) {
	case float64:
		if id >= 0 && id == math.Trunc(id) && id < math.MaxUint64 {
			return uint64(id)
		}
	case string:
		if u, err := strconv.ParseUint(id, 10, 64); err == nil {
			return u
		}
	}
	return 0
}

// properties converts GeoJSON properties sorted by key. Nulls are dropped,
// integral numbers become sint values, nested objects and arrays are kept
// as their JSON text.
func properties(props geojson.Properties) []vtile.Property {
	if len(props) == 0 {
		return nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]vtile.Property, 0, len(keys))
	for _, k := range keys {
		v, ok := propertyValue(props[k])
		if !ok {
			continue
		}
		out = append(out, vtile.Property{Key: k, Value: v})
	}
	return out
}

func propertyValue(x interface{}) (vtile.Value, bool) {
	switch x := x.(type) {
	case nil:
		return vtile.Value{}, false
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return vtile.Sint(int64(x)), true
		}
		return vtile.Double(x), true
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(x)
		if err != nil {
			log.Warnf("property marshal error, details: %s", err)
			return vtile.Value{}, false
		}
		return vtile.String(string(data)), true
	}
	v, err := vtile.ValueOf(x)
	if err != nil {
		log.Warnf("property skipped, details: %s", err)
		return vtile.Value{}, false
	}
	return v, true
}
