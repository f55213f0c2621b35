package vtile

import "github.com/paulmach/orb/encoding/mvt/vectortile"

// dictionary interns the keys and values of one layer. Entries are only
// ever appended, so an index handed out stays valid.
type dictionary struct {
	keys     []string
	keyIndex map[string]uint32

	values     []*vectortile.Tile_Value
	valueIndex map[Value]uint32
}

func newDictionary() *dictionary {
	return &dictionary{
		keyIndex:   make(map[string]uint32),
		valueIndex: make(map[Value]uint32),
	}
}

func (d *dictionary) key(k string) uint32 {
	if i, ok := d.keyIndex[k]; ok {
		return i
	}
	i := uint32(len(d.keys))
	d.keys = append(d.keys, k)
	d.keyIndex[k] = i
	return i
}

func (d *dictionary) value(v Value) uint32 {
	if i, ok := d.valueIndex[v]; ok {
		return i
	}
	i := uint32(len(d.values))
	d.values = append(d.values, v.proto())
	d.valueIndex[v] = i
	return i
}

//tags 属性转为键值索引对
func (d *dictionary) tags(props []Property) []uint32 {
	if len(props) == 0 {
		return nil
	}
	tags := make([]uint32, 0, 2*len(props))
	for _, p := range props {
		tags = append(tags, d.key(p.Key), d.value(p.Value))
	}
	return tags
}
