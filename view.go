package vtile

import "github.com/paulmach/orb"

// View exposes a decoded layer as a Source, so a tile can be re-encoded or
// cut into children without going back to the original data.
type View struct {
	layer    *Layer
	envelope orb.Bound
}

// View returns a Source over l declaring envelope as its extent. Only
// features intersecting envelope are ever yielded.
func (l *Layer) View(envelope orb.Bound) *View {
	return &View{layer: l, envelope: envelope}
}

//Envelope 声明范围
func (v *View) Envelope() orb.Bound {
	return v.envelope
}

//Features 返回与查询范围及声明范围均相交的要素
func (v *View) Features(query orb.Bound) Iterator {
	l := v.layer
	return newSliceIterator(l.features, func(i int) bool {
		if l.features[i].Geometry == nil {
			return false
		}
		b := l.bounds[i]
		return b.Intersects(v.envelope) && b.Intersects(query)
	})
}
