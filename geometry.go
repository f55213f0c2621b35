package vtile

import (
	"fmt"

	"github.com/paulmach/orb"
)

//几何命令
const (
	cmdMoveTo    uint32 = 1
	cmdLineTo    uint32 = 2
	cmdClosePath uint32 = 7
)

// maxCount is the largest count a command integer can carry.
const maxCount = 1<<29 - 1

func command(id, count uint32) uint32 {
	return (id & 0x7) | (count << 3)
}

func commandCount(n int) (uint32, error) {
	if n < 0 || n > maxCount {
		return 0, fmt.Errorf("%d parameters: %w", n, ErrCountOverflow)
	}
	return uint32(n), nil
}

func zigzag(n int64) uint32 {
	return uint32((n << 1) ^ (n >> 63))
}

func unzigzag(u uint32) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// point is a vertex on the tile's integer grid.
type point struct {
	x, y int64
}

// path is one geometry part: the points of a multipoint, a line, or a ring
// without its closing vertex.
type path []point

//area2 两倍有向面积(瓦片坐标, y轴向下)
func (p path) area2() int64 {
	var a int64
	for i := range p {
		j := (i + 1) % len(p)
		a += p[i].x*p[j].y - p[j].x*p[i].y
	}
	return a
}

// reverse flips the winding but keeps the first vertex in place.
func (p path) reverse() {
	for i, j := 1, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}

// quantizer maps between world coordinates and the grid of one tile.
type quantizer struct {
	bound  orb.Bound
	extent uint32
}

func (q quantizer) local(p orb.Point) point {
	x, y := ToLocal(p, q.bound, q.extent)
	return point{x, y}
}

func (q quantizer) world(p point) orb.Point {
	return ToWorld(p.x, p.y, q.bound, q.extent)
}

// path quantizes the points and drops consecutive duplicates.
func (q quantizer) path(ps []orb.Point) path {
	out := make(path, 0, len(ps))
	for _, p := range ps {
		lp := q.local(p)
		if n := len(out); n > 0 && out[n-1] == lp {
			continue
		}
		out = append(out, lp)
	}
	return out
}

func (q quantizer) points(ps []orb.Point) (path, bool) {
	out := make(path, len(ps))
	for i, p := range ps {
		out[i] = q.local(p)
	}
	return out, len(out) > 0
}

func (q quantizer) line(ls orb.LineString) (path, bool) {
	p := q.path(ls)
	return p, len(p) >= 2
}

// ring drops rings with fewer than three vertices or no area, and winds
// exteriors positive and holes negative.
func (q quantizer) ring(r orb.Ring, exterior bool) (path, bool) {
	p := q.path(r)
	for len(p) > 1 && p[len(p)-1] == p[0] {
		p = p[:len(p)-1]
	}
	if len(p) < 3 {
		return nil, false
	}
	a := p.area2()
	if a == 0 {
		return nil, false
	}
	if (a > 0) != exterior {
		p.reverse()
	}
	return p, true
}

// polygon appends the surviving rings of p. Holes go with their exterior.
func (q quantizer) polygon(rings []path, p orb.Polygon) []path {
	if len(p) == 0 {
		return rings
	}
	outer, ok := q.ring(p[0], true)
	if !ok {
		return rings
	}
	rings = append(rings, outer)
	for _, h := range p[1:] {
		if r, ok := q.ring(h, false); ok {
			rings = append(rings, r)
		}
	}
	return rings
}

// parts quantizes g and applies the degeneracy filter. ok is false when
// nothing of the geometry survives.
func (q quantizer) parts(g orb.Geometry) (t GeomType, parts []path, ok bool) {
	switch g := g.(type) {
	case orb.Point:
		return GeomPoint, []path{{q.local(g)}}, true
	case orb.MultiPoint:
		p, ok := q.points(g)
		if !ok {
			return GeomPoint, nil, false
		}
		return GeomPoint, []path{p}, true
	case orb.LineString:
		if p, ok := q.line(g); ok {
			parts = append(parts, p)
		}
		return GeomLineString, parts, len(parts) > 0
	case orb.MultiLineString:
		for _, ls := range g {
			if p, ok := q.line(ls); ok {
				parts = append(parts, p)
			}
		}
		return GeomLineString, parts, len(parts) > 0
	case orb.Ring:
		parts = q.polygon(nil, orb.Polygon{g})
		return GeomPolygon, parts, len(parts) > 0
	case orb.Polygon:
		parts = q.polygon(nil, g)
		return GeomPolygon, parts, len(parts) > 0
	case orb.MultiPolygon:
		for _, p := range g {
			parts = q.polygon(parts, p)
		}
		return GeomPolygon, parts, len(parts) > 0
	case orb.Bound:
		return q.parts(g.ToPolygon())
	}
	return GeomUnknown, nil, false
}

// geomEncoder writes the command stream. The cursor carries over from one
// part to the next.
type geomEncoder struct {
	cx, cy int64
	data   []uint32
	err    error
}

func encodeCommands(t GeomType, parts []path) ([]uint32, error) {
	n := 0
	for _, p := range parts {
		n += 3 + 2*len(p)
	}
	e := &geomEncoder{data: make([]uint32, 0, n)}
	switch t {
	case GeomPoint:
		for _, p := range parts {
			e.moveTo(p)
		}
	case GeomLineString:
		for _, p := range parts {
			e.moveTo(p[:1])
			e.lineTo(p[1:])
		}
	case GeomPolygon:
		for _, p := range parts {
			e.moveTo(p[:1])
			e.lineTo(p[1:])
			e.closePath()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.data, nil
}

func (e *geomEncoder) moveTo(p path) {
	e.op(cmdMoveTo, p)
}

func (e *geomEncoder) lineTo(p path) {
	if len(p) == 0 {
		return
	}
	e.op(cmdLineTo, p)
}

func (e *geomEncoder) op(id uint32, p path) {
	if e.err != nil {
		return
	}
	n, err := commandCount(len(p))
	if err != nil {
		e.err = err
		return
	}
	e.data = append(e.data, command(id, n))
	e.params(p)
}

func (e *geomEncoder) closePath() {
	e.data = append(e.data, command(cmdClosePath, 1))
}

func (e *geomEncoder) params(p path) {
	for _, pt := range p {
		e.data = append(e.data, zigzag(pt.x-e.cx), zigzag(pt.y-e.cy))
		e.cx, e.cy = pt.x, pt.y
	}
}

// geomDecoder reads a command stream back into parts.
type geomDecoder struct {
	data   []uint32
	pos    int
	cx, cy int64
}

func (d *geomDecoder) command() (id, count uint32) {
	c := d.data[d.pos]
	d.pos++
	return c & 0x7, c >> 3
}

func (d *geomDecoder) next() (point, error) {
	if d.pos+2 > len(d.data) {
		return point{}, ErrTruncated
	}
	d.cx += unzigzag(d.data[d.pos])
	d.cy += unzigzag(d.data[d.pos+1])
	d.pos += 2
	return point{d.cx, d.cy}, nil
}

func (d *geomDecoder) take(p path, count uint32) (path, error) {
	if uint64(d.pos)+2*uint64(count) > uint64(len(d.data)) {
		return nil, ErrTruncated
	}
	if p == nil {
		p = make(path, 0, count)
	}
	for i := uint32(0); i < count; i++ {
		pt, err := d.next()
		if err != nil {
			return nil, err
		}
		p = append(p, pt)
	}
	return p, nil
}

func decodeCommands(t GeomType, data []uint32) ([]path, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}
	d := &geomDecoder{data: data}
	var (
		parts  []path
		closed []bool
		err    error
	)
	cur := -1
	for d.pos < len(d.data) {
		id, count := d.command()
		switch id {
		case cmdMoveTo:
			if count == 0 || (t != GeomPoint && count != 1) {
				return nil, fmt.Errorf("moveto count %d: %w", count, ErrInvalidCount)
			}
			if t == GeomPolygon && cur >= 0 && !closed[cur] {
				return nil, fmt.Errorf("moveto before closepath: %w", ErrUnexpectedCommand)
			}
			if t == GeomPoint && cur >= 0 {
				parts[cur], err = d.take(parts[cur], count)
			} else {
				var p path
				p, err = d.take(nil, count)
				parts = append(parts, p)
				closed = append(closed, false)
				cur++
			}
			if err != nil {
				return nil, err
			}
		case cmdLineTo:
			if count == 0 {
				return nil, fmt.Errorf("lineto count 0: %w", ErrInvalidCount)
			}
			if t == GeomPoint || cur < 0 || closed[cur] {
				return nil, fmt.Errorf("lineto: %w", ErrUnexpectedCommand)
			}
			parts[cur], err = d.take(parts[cur], count)
			if err != nil {
				return nil, err
			}
		case cmdClosePath:
			if count != 1 {
				return nil, fmt.Errorf("closepath count %d: %w", count, ErrInvalidCount)
			}
			if t != GeomPolygon || cur < 0 || closed[cur] {
				return nil, fmt.Errorf("closepath: %w", ErrUnexpectedCommand)
			}
			closed[cur] = true
		default:
			return nil, fmt.Errorf("command %d: %w", id, ErrUnknownCommand)
		}
	}
	if t == GeomPolygon && !closed[cur] {
		return nil, fmt.Errorf("ring not closed: %w", ErrTruncated)
	}
	return parts, nil
}

// geometry builds the world geometry of decoded parts. Rings with positive
// area, and the first ring, open a polygon; the others are its holes.
func (q quantizer) geometry(t GeomType, parts []path) orb.Geometry {
	switch t {
	case GeomPoint:
		pts := parts[0]
		if len(pts) == 1 {
			return q.world(pts[0])
		}
		mp := make(orb.MultiPoint, len(pts))
		for i, p := range pts {
			mp[i] = q.world(p)
		}
		return mp
	case GeomLineString:
		mls := make(orb.MultiLineString, len(parts))
		for i, part := range parts {
			ls := make(orb.LineString, len(part))
			for j, p := range part {
				ls[j] = q.world(p)
			}
			mls[i] = ls
		}
		if len(mls) == 1 {
			return mls[0]
		}
		return mls
	case GeomPolygon:
		var mp orb.MultiPolygon
		for i, part := range parts {
			r := make(orb.Ring, len(part)+1)
			for j, p := range part {
				r[j] = q.world(p)
			}
			r[len(part)] = r[0]
			if i == 0 || part.area2() > 0 {
				mp = append(mp, orb.Polygon{r})
			} else {
				mp[len(mp)-1] = append(mp[len(mp)-1], r)
			}
		}
		if len(mp) == 1 {
			return mp[0]
		}
		return mp
	}
	return nil
}
