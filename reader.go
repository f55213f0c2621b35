package vtile

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt/vectortile"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/protoscan"
)

// Tile is a decoded tile. Layers keep their wire order.
type Tile struct {
	Bound  orb.Bound
	layers []*Layer
}

// Layer is a decoded layer. Geometry is reconstructed for every feature at
// decode time; a Layer never changes afterwards and can be read from any
// number of goroutines. Features handed out by Feature and Features are
// shared with the layer and must not be modified; use Feature.Clone first.
type Layer struct {
	Name    string
	Version uint32
	Extent  uint32
	Bound   orb.Bound

	keys     []string
	values   []Value
	features []*Feature
	bounds   []orb.Bound
	envelope orb.Bound
}

//DecodeTile 解码z/x/y瓦片
func DecodeTile(data []byte, t maptile.Tile) (*Tile, error) {
	return Decode(data, Bound(t))
}

// Decode decodes every layer of data into the tile covering bound. Any
// malformed layer fails the whole tile.
func Decode(data []byte, bound orb.Bound) (*Tile, error) {
	vt, err := Unmarshal(data)
	if err != nil {
		return nil, malformed("", err)
	}
	return NewTile(vt, bound)
}

//NewTile 解码已反序列化的瓦片
func NewTile(vt *vectortile.Tile, bound orb.Bound) (*Tile, error) {
	t := &Tile{Bound: bound, layers: make([]*Layer, 0, len(vt.Layers))}
	for _, l := range vt.Layers {
		layer, err := DecodeLayer(l, bound)
		if err != nil {
			return nil, err
		}
		t.layers = append(t.layers, layer)
	}
	return t, nil
}

//Layers 全部图层
func (t *Tile) Layers() []*Layer {
	return t.layers
}

//Layer 按名称取图层
func (t *Tile) Layer(name string) (*Layer, error) {
	for _, l := range t.layers {
		if l.Name == name {
			return l, nil
		}
	}
	return nil, &DecodeError{Layer: name, Feature: -1, Err: ErrLayerNotFound}
}

// LayerNames lists the layer names of data without decoding features.
func LayerNames(data []byte) ([]string, error) {
	var names []string
	err := scanLayers(data, func(name string, _ []byte) bool {
		names = append(names, name)
		return true
	})
	return names, err
}

// OpenLayer decodes only the named layer of data.
func OpenLayer(data []byte, bound orb.Bound, name string) (*Layer, error) {
	var found []byte
	err := scanLayers(data, func(n string, raw []byte) bool {
		if n == name {
			found = raw
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &DecodeError{Layer: name, Feature: -1, Err: ErrLayerNotFound}
	}
	l := &vectortile.Tile_Layer{}
	if err := l.Unmarshal(found); err != nil {
		return nil, malformed(name, err)
	}
	return DecodeLayer(l, bound)
}

// scanLayers walks the layer messages of a tile, handing each layer name
// and its raw bytes to fn until fn returns false.
func scanLayers(data []byte, fn func(name string, raw []byte) bool) error {
	msg := protoscan.New(data)
	for msg.Next() {
		if msg.FieldNumber() != 3 {
			msg.Skip()
			continue
		}
		raw, err := msg.MessageData()
		if err != nil {
			return malformed("", err)
		}
		name, err := layerName(raw)
		if err != nil {
			return malformed(name, err)
		}
		if !fn(name, raw) {
			return nil
		}
	}
	if err := msg.Err(); err != nil {
		return malformed("", err)
	}
	return nil
}

func layerName(raw []byte) (string, error) {
	var name string
	msg := protoscan.New(raw)
	for msg.Next() {
		if msg.FieldNumber() != 1 {
			msg.Skip()
			continue
		}
		s, err := msg.String()
		if err != nil {
			return "", err
		}
		name = s
	}
	return name, msg.Err()
}

// DecodeLayer reconstructs the features of l in world coordinates.
func DecodeLayer(l *vectortile.Tile_Layer, bound orb.Bound) (*Layer, error) {
	layer := &Layer{
		Name:     l.GetName(),
		Version:  l.GetVersion(),
		Extent:   l.GetExtent(),
		Bound:    bound,
		keys:     l.GetKeys(),
		envelope: bound,
	}
	if layer.Extent == 0 {
		return nil, &DecodeError{Layer: layer.Name, Feature: -1, Err: ErrInvalidExtent}
	}
	layer.values = make([]Value, len(l.Values))
	for i, pv := range l.Values {
		v, err := valueFromProto(pv)
		if err != nil {
			return nil, &DecodeError{Layer: layer.Name, Feature: -1, Err: err}
		}
		layer.values[i] = v
	}

	q := quantizer{bound: bound, extent: layer.Extent}
	layer.features = make([]*Feature, len(l.Features))
	layer.bounds = make([]orb.Bound, len(l.Features))
	for i, pf := range l.Features {
		f, err := layer.decodeFeature(pf, q)
		if err != nil {
			return nil, &DecodeError{Layer: layer.Name, Feature: i, Err: err}
		}
		layer.features[i] = f
		if f.Geometry != nil {
			layer.bounds[i] = f.Geometry.Bound()
			layer.envelope = layer.envelope.Union(layer.bounds[i])
		}
	}
	return layer, nil
}

func (l *Layer) decodeFeature(pf *vectortile.Tile_Feature, q quantizer) (*Feature, error) {
	f := &Feature{ID: pf.GetId(), Type: pf.GetType()}
	tags := pf.GetTags()
	if len(tags)%2 != 0 {
		return nil, ErrOddTags
	}
	if len(tags) > 0 {
		f.Properties = make([]Property, 0, len(tags)/2)
	}
	for i := 0; i < len(tags); i += 2 {
		k, v := tags[i], tags[i+1]
		if int(k) >= len(l.keys) || int(v) >= len(l.values) {
			return nil, ErrTagIndex
		}
		f.Properties = append(f.Properties, Property{Key: l.keys[k], Value: l.values[v]})
	}
	switch f.Type {
	case GeomPoint, GeomLineString, GeomPolygon:
		parts, err := decodeCommands(f.Type, pf.GetGeometry())
		if err != nil {
			return nil, err
		}
		f.Geometry = q.geometry(f.Type, parts)
	}
	return f, nil
}

// Envelope is the tile bound grown to cover every decoded geometry, buffer
// content included. Re-encoding l.View(l.Envelope()) with the options that
// produced the tile yields the same layer.
func (l *Layer) Envelope() orb.Bound {
	return l.envelope
}

//Len 要素数
func (l *Layer) Len() int {
	return len(l.features)
}

//Feature 第i个要素
func (l *Layer) Feature(i int) *Feature {
	return l.features[i]
}

// Features iterates all features in encode order. Every call starts a new
// pass.
func (l *Layer) Features() Iterator {
	return newSliceIterator(l.features, nil)
}

//Keys 键字典
func (l *Layer) Keys() []string {
	return l.keys
}

//Values 值字典
func (l *Layer) Values() []Value {
	return l.values
}
