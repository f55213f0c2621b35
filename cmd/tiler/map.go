package main

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/atlasdatatech/vtile/mbtiles"
	"github.com/paulmach/orb/maptile"
)

//TileMap 输出瓦片集
type TileMap struct {
	Name        string
	Description string
	Attribution string
	Schema      string //xyz or tms, 仅影响文件输出
	Min         int
	Max         int
	Format      string
	Template    string //文件输出路径模板, 如{z}/{x}/{y}.pbf
}

//tilePath 瓦片文件相对路径
func (m TileMap) tilePath(t maptile.Tile) string {
	y := t.Y
	if m.Schema == "tms" {
		y = mbtiles.FlipY(t)
	}
	tpl := m.Template
	if tpl == "" {
		tpl = "{z}/{x}/{y}." + PBF
	}
	p := strings.Replace(tpl, "{x}", strconv.Itoa(int(t.X)), -1)
	p = strings.Replace(p, "{y}", strconv.Itoa(int(y)), -1)
	p = strings.Replace(p, "{z}", strconv.Itoa(int(t.Z)), -1)
	return filepath.FromSlash(p)
}
