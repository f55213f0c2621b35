package vtile

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

//EarthRadius 球面墨卡托半径
const EarthRadius = 6378137.0

//MaxExtent 墨卡托世界范围的一半(-MaxExtent..MaxExtent)
const MaxExtent = EarthRadius * math.Pi

// TileBounds returns the spherical mercator bound of tile z/x/y.
// Row 0 is the northernmost row. x and y are not validated, callers
// keep them within [0, 2^z).
func TileBounds(z uint32, x, y uint64) orb.Bound {
	span := TileSpan(z)
	minX := -MaxExtent + float64(x)*span
	maxY := MaxExtent - float64(y)*span
	return orb.Bound{
		Min: orb.Point{minX, maxY - span},
		Max: orb.Point{minX + span, maxY},
	}
}

//TileSpan 指定级别下瓦片的世界宽度
func TileSpan(z uint32) float64 {
	return math.Ldexp(2*MaxExtent, -int(z))
}

//Bound 瓦片的墨卡托范围
func Bound(t maptile.Tile) orb.Bound {
	return TileBounds(uint32(t.Z), uint64(t.X), uint64(t.Y))
}

// ToLocal maps a world coordinate into the integer grid of a tile with the
// given bound and extent. The y axis points down in tile space.
// Ties round half away from zero.
func ToLocal(p orb.Point, b orb.Bound, extent uint32) (x, y int64) {
	e := float64(extent)
	fx := (p[0] - b.Min[0]) / (b.Max[0] - b.Min[0]) * e
	fy := (b.Max[1] - p[1]) / (b.Max[1] - b.Min[1]) * e
	return int64(math.Round(fx)), int64(math.Round(fy))
}

//ToWorld ToLocal的逆变换
func ToWorld(x, y int64, b orb.Bound, extent uint32) orb.Point {
	e := float64(extent)
	return orb.Point{
		float64(x)/e*(b.Max[0]-b.Min[0]) + b.Min[0],
		b.Max[1] - float64(y)/e*(b.Max[1]-b.Min[1]),
	}
}
