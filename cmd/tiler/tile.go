package main

import (
	"github.com/paulmach/orb/maptile"
)

//TileSize 默认瓦片大小
const TileSize = 256

//ZoomMin 最小级别
const ZoomMin = 0

//ZoomMax 最大级别
const ZoomMax = 20

//Tile 待保存的瓦片
type Tile struct {
	T maptile.Tile
	C []byte
}

// Output formats.
const (
	PBF     = "pbf"
	MBTILES = "mbtiles"
	FILES   = "files"
)

func clampZoom(z int) int {
	if z < ZoomMin {
		return ZoomMin
	}
	if z > ZoomMax {
		return ZoomMax
	}
	return z
}
