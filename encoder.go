package vtile

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/encoding/mvt/vectortile"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
)

//Options 编码参数
type Options struct {
	Extent   uint32 // 瓦片坐标范围, 默认4096
	TileSize uint32 // 像素大小, 默认256
	Buffer   uint32 // 缓冲区像素
	Version  uint32 // 图层版本号, 默认2
}

//DefaultOptions 默认编码参数
func DefaultOptions() Options {
	return Options{
		Extent:   vectortile.Default_Tile_Layer_Extent,
		TileSize: 256,
		Version:  2,
	}
}

//Encoder 矢量瓦片编码器, 可在多个goroutine间共享
type Encoder struct {
	opts Options
}

//NewEncoder 创建编码器, 未设置的参数取默认值
func NewEncoder(opts Options) *Encoder {
	def := DefaultOptions()
	if opts.Extent == 0 {
		opts.Extent = def.Extent
	}
	if opts.TileSize == 0 {
		opts.TileSize = def.TileSize
	}
	if opts.Version == 0 {
		opts.Version = def.Version
	}
	return &Encoder{opts: opts}
}

//Options 编码参数
func (e *Encoder) Options() Options {
	return e.opts
}

// ClipBox returns the tile bound grown by the buffer.
func (e *Encoder) ClipBox(bound orb.Bound) orb.Bound {
	if e.opts.Buffer == 0 {
		return bound
	}
	pad := float64(e.opts.Buffer) / float64(e.opts.TileSize) * (bound.Max[0] - bound.Min[0])
	return bound.Pad(pad)
}

//EncodeTile 编码瓦片
func (e *Encoder) EncodeTile(t maptile.Tile, layers ...LayerSource) (*vectortile.Tile, error) {
	return e.EncodeBound(Bound(t), layers...)
}

// EncodeBound encodes the layers for the tile covering bound. Layers whose
// declared envelope misses the tile are skipped without touching their
// features, and layers left without features are not added.
func (e *Encoder) EncodeBound(bound orb.Bound, layers ...LayerSource) (*vectortile.Tile, error) {
	tile := &vectortile.Tile{}
	box := e.ClipBox(bound)
	seen := make(map[string]bool, len(layers))
	for _, l := range layers {
		if seen[l.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLayer, l.Name)
		}
		seen[l.Name] = true
		if !l.Source.Envelope().Intersects(box) {
			log.Debugf("layer %s envelope outside tile, skipped", l.Name)
			continue
		}
		layer, err := e.EncodeLayer(l.Name, bound, l.Source)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		tile.Layers = append(tile.Layers, layer)
	}
	return tile, nil
}

// EncodeLayer quantizes the features of src into a layer of the tile
// covering bound. It returns nil when no feature survives.
func (e *Encoder) EncodeLayer(name string, bound orb.Bound, src Source) (*vectortile.Tile_Layer, error) {
	lb := e.newLayerBuilder(name, bound)
	it := src.Features(lb.box)
	for it.Next() {
		f := it.Feature()
		if f == nil {
			continue
		}
		ok, err := lb.add(f)
		if err != nil {
			return nil, fmt.Errorf("layer %s feature %d: %w", name, f.ID, err)
		}
		if !ok {
			log.Debugf("layer %s feature %d dropped", name, f.ID)
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("layer %s: %w", name, err)
	}
	layer, ok := lb.build()
	if !ok {
		log.Debugf("layer %s has no features, dropped", name)
		return nil, nil
	}
	return layer, nil
}

// layerBuilder owns one layer under construction.
type layerBuilder struct {
	name     string
	opts     Options
	q        quantizer
	box      orb.Bound
	inner    orb.Bound // box grown by a quarter unit, no clipping inside it
	dict     *dictionary
	features []*vectortile.Tile_Feature
}

func (e *Encoder) newLayerBuilder(name string, bound orb.Bound) *layerBuilder {
	box := e.ClipBox(bound)
	unit := (bound.Max[0] - bound.Min[0]) / float64(e.opts.Extent)
	return &layerBuilder{
		name:  name,
		opts:  e.opts,
		q:     quantizer{bound: bound, extent: e.opts.Extent},
		box:   box,
		inner: box.Pad(unit / 4),
		dict:  newDictionary(),
	}
}

// add encodes f and appends it. It reports false when f was dropped.
func (lb *layerBuilder) add(f *Feature) (bool, error) {
	g, ok := lb.clip(f.Geometry)
	if !ok {
		return false, nil
	}
	t, parts, ok := lb.q.parts(g)
	if !ok {
		if t == GeomUnknown {
			log.Warnf("layer %s feature %d: unsupported geometry %T", lb.name, f.ID, g)
		}
		return false, nil
	}
	geom, err := encodeCommands(t, parts)
	if err != nil {
		return false, err
	}
	feature := &vectortile.Tile_Feature{
		Tags:     lb.dict.tags(f.Properties),
		Type:     t.Enum(),
		Geometry: geom,
	}
	if f.ID != 0 {
		id := f.ID
		feature.Id = &id
	}
	lb.features = append(lb.features, feature)
	return true, nil
}

// clip skips geometry outside the clip box and cuts geometry crossing it.
// Geometry inside is passed through untouched.
func (lb *layerBuilder) clip(g orb.Geometry) (orb.Geometry, bool) {
	if g == nil {
		return nil, false
	}
	b := g.Bound()
	if !b.Intersects(lb.box) {
		return nil, false
	}
	if lb.inner.Contains(b.Min) && lb.inner.Contains(b.Max) {
		return g, true
	}
	g = clip.Geometry(lb.box, orb.Clone(g))
	return g, g != nil
}

func (lb *layerBuilder) build() (*vectortile.Tile_Layer, bool) {
	if len(lb.features) == 0 {
		return nil, false
	}
	name := lb.name
	extent := lb.opts.Extent
	version := lb.opts.Version
	return &vectortile.Tile_Layer{
		Version:  &version,
		Name:     &name,
		Features: lb.features,
		Keys:     lb.dict.keys,
		Values:   lb.dict.values,
		Extent:   &extent,
	}, true
}

//Marshal 序列化瓦片
func Marshal(t *vectortile.Tile) ([]byte, error) {
	return t.Marshal()
}

//Unmarshal 反序列化瓦片
func Unmarshal(data []byte) (*vectortile.Tile, error) {
	t := &vectortile.Tile{}
	if err := t.Unmarshal(data); err != nil {
		return nil, err
	}
	return t, nil
}
