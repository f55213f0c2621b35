package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlasdatatech/vtile"
	"github.com/atlasdatatech/vtile/mbtiles"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt/vectortile"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	"github.com/paulmach/orb/project"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"
)

// maxLat is the latitude of the mercator square's edge.
const maxLat = 85.05112877980659

//Task 切片任务
type Task struct {
	ID           string
	Name         string
	Description  string
	File         string
	Min          int
	Max          int
	Layers       []Layer
	TileMap      TileMap
	Total        int64
	Current      int64
	Bar          *pb.ProgressBar
	encoder      *vtile.Encoder
	db           *mbtiles.DB
	workerCount  int
	savePipeSize int
	wg           sync.WaitGroup
	saved        chan struct{}
	abort        chan struct{}
	abortOnce    sync.Once
	workers      chan maptile.Tile
	savingpipe   chan Tile
	outformat    string
	fields       map[string]map[string]string
	fieldsMu     sync.Mutex
}

//NewTask 创建切片任务
func NewTask(layers []Layer, m TileMap) *Task {
	if len(layers) == 0 {
		return nil
	}
	id, _ := shortid.Generate()

	task := Task{
		ID:          id,
		Name:        m.Name,
		Description: m.Description,
		Layers:      layers,
		TileMap:     m,
		Min:         ZoomMax,
		Max:         ZoomMin,
	}
	for _, l := range layers {
		if l.Min < task.Min {
			task.Min = l.Min
		}
		if l.Max > task.Max {
			task.Max = l.Max
		}
	}
	//tm.min/tm.max 限定任务级别范围
	if m.Max > 0 {
		if m.Min > task.Min {
			task.Min = m.Min
		}
		if m.Max < task.Max {
			task.Max = m.Max
		}
	}
	for z := task.Min; z <= task.Max; z++ {
		task.Total += int64(len(task.cover(z)))
	}

	task.abort = make(chan struct{})
	task.saved = make(chan struct{})
	task.workerCount = viper.GetInt("task.workers")
	if task.workerCount < 1 {
		task.workerCount = 1
	}
	task.savePipeSize = viper.GetInt("task.savepipe")
	task.workers = make(chan maptile.Tile, task.workerCount)
	task.savingpipe = make(chan Tile, task.savePipeSize)
	task.fields = make(map[string]map[string]string)
	task.encoder = vtile.NewEncoder(vtile.Options{
		Extent:   uint32(viper.GetInt("tile.extent")),
		TileSize: uint32(viper.GetInt("tile.size")),
		Buffer:   uint32(viper.GetInt("tile.buffer")),
		Version:  uint32(viper.GetInt("tile.version")),
	})

	task.outformat = viper.GetString("output.format")
	outdir := viper.GetString("output.directory")
	if task.outformat == MBTILES {
		task.File = filepath.Join(outdir, m.Name+"."+MBTILES)
	} else {
		task.File = filepath.Join(outdir, m.Name)
	}
	return &task
}

// envelope is the union of the envelopes of the layers shown at zoom z.
func (task *Task) envelope(z int) (orb.Bound, bool) {
	var (
		bound orb.Bound
		ok    bool
	)
	for _, l := range task.Layers {
		if !l.covers(z) {
			continue
		}
		if ok {
			bound = bound.Union(l.Source.Envelope())
		} else {
			bound, ok = l.Source.Envelope(), true
		}
	}
	return bound, ok
}

//Bound 经纬度范围
func (task *Task) Bound() orb.Bound {
	var bound orb.Bound
	first := true
	for z := task.Min; z <= task.Max; z++ {
		b, ok := task.envelope(z)
		if !ok {
			continue
		}
		if first {
			bound, first = b, false
		} else {
			bound = bound.Union(b)
		}
	}
	return toWGS84(bound)
}

//Center 中心点
func (task *Task) Center() orb.Point {
	return task.Bound().Center()
}

func toWGS84(b orb.Bound) orb.Bound {
	lonlat := orb.Bound{
		Min: project.Mercator.ToWGS84(b.Min),
		Max: project.Mercator.ToWGS84(b.Max),
	}
	lonlat.Min[0] = math.Max(lonlat.Min[0], -180)
	lonlat.Max[0] = math.Min(lonlat.Max[0], 180)
	lonlat.Min[1] = math.Max(lonlat.Min[1], -maxLat)
	lonlat.Max[1] = math.Min(lonlat.Max[1], maxLat)
	return lonlat
}

// cover lists the tiles of zoom z touching the layer envelopes.
func (task *Task) cover(z int) maptile.Tiles {
	b, ok := task.envelope(z)
	if !ok {
		return nil
	}
	set := tilecover.Bound(toWGS84(b), maptile.Zoom(z))
	tiles := make(maptile.Tiles, 0, len(set))
	for t := range set {
		if t.Valid() {
			tiles = append(tiles, t)
		}
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].X != tiles[j].X {
			return tiles[i].X < tiles[j].X
		}
		return tiles[i].Y < tiles[j].Y
	})
	return tiles
}

//MetaItems 输出
func (task *Task) MetaItems() map[string]string {
	b := task.Bound()
	c := task.Center()
	data := map[string]string{
		"id":          task.ID,
		"name":        task.Name,
		"description": task.Description,
		"attribution": task.TileMap.Attribution,
		"format":      PBF,
		"type":        "overlay",
		"scheme":      "tms",
		"pixel_scale": strconv.Itoa(TileSize),
		"version":     mbtiles.Version,
		"bounds":      fmt.Sprintf(`%f,%f,%f,%f`, b.Left(), b.Bottom(), b.Right(), b.Top()),
		"center":      fmt.Sprintf(`%f,%f,%d`, c.X(), c.Y(), (task.Min+task.Max)/2),
		"minzoom":     strconv.Itoa(task.Min),
		"maxzoom":     strconv.Itoa(task.Max),
		"json":        task.vectorLayers(),
	}
	return data
}

type vectorLayer struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Minzoom     int               `json:"minzoom"`
	Maxzoom     int               `json:"maxzoom"`
	Fields      map[string]string `json:"fields"`
}

//vectorLayers 图层字段描述
func (task *Task) vectorLayers() string {
	task.fieldsMu.Lock()
	defer task.fieldsMu.Unlock()
	lrs := make([]vectorLayer, 0, len(task.Layers))
	for _, l := range task.Layers {
		fields := task.fields[l.Name]
		if fields == nil {
			fields = map[string]string{}
		}
		lrs = append(lrs, vectorLayer{ID: l.Name, Minzoom: l.Min, Maxzoom: l.Max, Fields: fields})
	}
	data, err := json.Marshal(map[string]interface{}{"vector_layers": lrs})
	if err != nil {
		log.Errorf("marshal vector_layers error ~ %s", err)
		return ""
	}
	return string(data)
}

// collectFields records the type of every key used in the tile's layers.
func (task *Task) collectFields(vt *vectortile.Tile) {
	task.fieldsMu.Lock()
	defer task.fieldsMu.Unlock()
	for _, l := range vt.Layers {
		fields := task.fields[l.GetName()]
		if fields == nil {
			fields = make(map[string]string)
			task.fields[l.GetName()] = fields
		}
		for _, f := range l.Features {
			for i := 0; i+1 < len(f.Tags); i += 2 {
				k, v := int(f.Tags[i]), int(f.Tags[i+1])
				if k >= len(l.Keys) || v >= len(l.Values) {
					continue
				}
				fields[l.Keys[k]] = fieldType(l.Values[v])
			}
		}
	}
}

func fieldType(v *vectortile.Tile_Value) string {
	switch {
	case v.StringValue != nil:
		return "String"
	case v.BoolValue != nil:
		return "Boolean"
	}
	return "Number"
}

//SetupMBTileTables 初始化配置MBTile库
func (task *Task) SetupMBTileTables() error {
	os.MkdirAll(filepath.Dir(task.File), os.ModePerm)
	db, err := mbtiles.Create(task.File, task.MetaItems())
	if err != nil {
		return err
	}
	task.db = db //保存任务的库连接
	return nil
}

//Abort 取消任务
func (task *Task) Abort() {
	task.abortOnce.Do(func() {
		close(task.abort)
	})
}

//savePipe 保存瓦片管道
func (task *Task) savePipe() {
	defer close(task.saved)
	for tile := range task.savingpipe {
		err := task.db.PutTile(tile.T, tile.C)
		if err != nil {
			log.Errorf("save %v tile to mbtiles db error ~ %s", tile.T, err)
		}
	}
}

//saveTile 保存瓦片文件
func (task *Task) saveTile(tile Tile) error {
	fileName := filepath.Join(task.File, task.TileMap.tilePath(tile.T))
	os.MkdirAll(filepath.Dir(fileName), os.ModePerm)
	return ioutil.WriteFile(fileName, tile.C, 0644)
}

//tileWorker 瓦片编码
func (task *Task) tileWorker(t maptile.Tile) {
	defer task.wg.Done()
	defer func() {
		<-task.workers
	}()
	start := time.Now()
	var lrs []vtile.LayerSource
	for _, l := range task.Layers {
		if l.covers(int(t.Z)) {
			lrs = append(lrs, vtile.LayerSource{Name: l.Name, Source: l.Source})
		}
	}
	vt, err := task.encoder.EncodeTile(t, lrs...)
	if err != nil {
		log.Errorf("encode %v tile error ~ %s", t, err)
		return
	}
	if len(vt.Layers) == 0 {
		log.Debugf("nil tile %v ~", t)
		return
	}
	task.collectFields(vt)
	data, err := vtile.Marshal(vt)
	if err != nil {
		log.Errorf("marshal %v tile error ~ %s", t, err)
		return
	}
	tile := Tile{T: t, C: data}
	if task.outformat == MBTILES {
		task.savingpipe <- tile
	} else if err := task.saveTile(tile); err != nil {
		log.Errorf("create %v tile file error ~ %s", t, err)
		return
	}
	secs := time.Since(start).Seconds()
	log.Debugf("tile %v, %d layers, %.3fs, %.2f kb", t, len(vt.Layers), secs, float32(len(data))/1024.0)
}

//tileZoom 切指定层级, 任务取消时返回false
func (task *Task) tileZoom(z int) bool {
	tiles := task.cover(z)
	bar := pb.New(len(tiles)).Prefix(fmt.Sprintf("Zoom %d : ", z))
	bar.Start()
	for _, t := range tiles {
		select {
		case task.workers <- t:
			bar.Increment()
			task.Bar.Increment()
			atomic.AddInt64(&task.Current, 1)
			task.wg.Add(1)
			go task.tileWorker(t)
		case <-task.abort:
			log.Infof("task %s got canceled.", task.ID)
			task.wg.Wait()
			bar.Finish()
			return false
		}
	}
	task.wg.Wait()
	bar.FinishPrint(fmt.Sprintf("task %s zoom %d finished ~", task.ID, z))
	return true
}

//Run 开启切片任务
func (task *Task) Run() error {
	task.Bar = pb.New64(task.Total).Prefix("Task : ")
	task.Bar.Start()
	if task.outformat == MBTILES {
		if err := task.SetupMBTileTables(); err != nil {
			return err
		}
		go task.savePipe()
	} else {
		close(task.saved)
	}
	for z := task.Min; z <= task.Max; z++ {
		if !task.tileZoom(z) {
			break
		}
	}
	close(task.savingpipe)
	<-task.saved
	task.Bar.FinishPrint(fmt.Sprintf("task %s finished ~", task.ID))
	return task.finish()
}

// finish writes the metadata gathered while tiling.
func (task *Task) finish() error {
	meta := task.MetaItems()
	if task.db == nil {
		data, err := json.MarshalIndent(meta, "", " ")
		if err != nil {
			return err
		}
		os.MkdirAll(task.File, os.ModePerm)
		return ioutil.WriteFile(filepath.Join(task.File, "metadata.json"), data, 0644)
	}
	defer task.db.Close()
	if err := task.db.SetMetadata(meta); err != nil {
		return err
	}
	return task.db.Optimize()
}
