package vtile

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt/vectortile"
)

//GeomType 要素几何类型
type GeomType = vectortile.Tile_GeomType

// Geometry types.
const (
	GeomUnknown    = vectortile.Tile_UNKNOWN
	GeomPoint      = vectortile.Tile_POINT
	GeomLineString = vectortile.Tile_LINESTRING
	GeomPolygon    = vectortile.Tile_POLYGON
)

//Property 属性键值对
type Property struct {
	Key   string
	Value Value
}

// Feature is a feature in world (mercator) coordinates. Type is filled in on
// decode; the encoder derives it from Geometry.
type Feature struct {
	ID         uint64
	Type       GeomType
	Geometry   orb.Geometry
	Properties []Property
}

//Get 按键取属性值, 重复键取第一个
func (f *Feature) Get(key string) (Value, bool) {
	for _, p := range f.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return Value{}, false
}

//Clone 深拷贝要素, 可自由修改
func (f *Feature) Clone() *Feature {
	c := *f
	if f.Geometry != nil {
		c.Geometry = orb.Clone(f.Geometry)
	}
	if f.Properties != nil {
		c.Properties = append([]Property(nil), f.Properties...)
	}
	return &c
}

//PropertyMap 属性转map
func (f *Feature) PropertyMap() map[string]interface{} {
	m := make(map[string]interface{}, len(f.Properties))
	for _, p := range f.Properties {
		if _, ok := m[p.Key]; !ok {
			m[p.Key] = p.Value.Interface()
		}
	}
	return m
}

// Iterator walks a sequence of features.
//
//	it := src.Features(query)
//	for it.Next() {
//		f := it.Feature()
//	}
//	if err := it.Err(); err != nil {
//	}
type Iterator interface {
	Next() bool
	Feature() *Feature
	Err() error
}

// Source supplies the features of one layer. Envelope is the declared
// extent of the whole layer; Features yields the features that may
// intersect query. Sources may return extra features, the encoder tests
// every bound itself.
type Source interface {
	Envelope() orb.Bound
	Features(query orb.Bound) Iterator
}

//LayerSource 命名图层数据源
type LayerSource struct {
	Name   string
	Source Source
}

type sliceIterator struct {
	features []*Feature
	pos      int
	keep     func(i int) bool
}

func newSliceIterator(fs []*Feature, keep func(i int) bool) *sliceIterator {
	return &sliceIterator{features: fs, pos: -1, keep: keep}
}

func (it *sliceIterator) Next() bool {
	for it.pos+1 < len(it.features) {
		it.pos++
		if it.keep == nil || it.keep(it.pos) {
			return true
		}
	}
	it.pos = len(it.features)
	return false
}

func (it *sliceIterator) Feature() *Feature {
	if it.pos < 0 || it.pos >= len(it.features) {
		return nil
	}
	return it.features[it.pos]
}

func (it *sliceIterator) Err() error { return nil }

// MemorySource is an in-memory Source. Its envelope is the union of the
// feature bounds unless set explicitly with SetEnvelope.
type MemorySource struct {
	features []*Feature
	bounds   []orb.Bound
	envelope orb.Bound
	declared bool
	hasBound bool
}

//NewMemorySource 创建内存数据源
func NewMemorySource(fs ...*Feature) *MemorySource {
	s := &MemorySource{}
	for _, f := range fs {
		s.Push(f)
	}
	return s
}

//Push 添加要素
func (s *MemorySource) Push(f *Feature) {
	var b orb.Bound
	if f.Geometry != nil {
		b = f.Geometry.Bound()
		if !s.declared {
			if s.hasBound {
				s.envelope = s.envelope.Union(b)
			} else {
				s.envelope, s.hasBound = b, true
			}
		}
	}
	s.features = append(s.features, f)
	s.bounds = append(s.bounds, b)
}

//SetEnvelope 声明数据源范围
func (s *MemorySource) SetEnvelope(b orb.Bound) {
	s.envelope = b
	s.declared = true
}

//Envelope 数据源范围
func (s *MemorySource) Envelope() orb.Bound {
	return s.envelope
}

//Features 返回与查询范围相交的要素
func (s *MemorySource) Features(query orb.Bound) Iterator {
	return newSliceIterator(s.features, func(i int) bool {
		return s.features[i].Geometry != nil && s.bounds[i].Intersects(query)
	})
}

//Len 要素数
func (s *MemorySource) Len() int {
	return len(s.features)
}
