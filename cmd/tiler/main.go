package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// flag
var (
	hf bool
	cf string
	lf string
	df string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.StringVar(&lf, "l", "info", "set log `level`")
	flag.StringVar(&df, "d", "", "decode `z/x/y` from the output mbtiles and print geojson")
	flag.Usage = usage
	//InitLog 初始化日志
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	// then wrap the log output with it
	log.SetOutput(ansicolor.NewAnsiColorWriter(os.Stdout))
	log.SetLevel(log.InfoLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `tiler version: tiler/v0.2.0
Usage: tiler [-h] [-c filename] [-l level] [-d z/x/y]
`)
	flag.PrintDefaults()
}

// initConf 初始化配置
func initConf(cfgFile string) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv() // read in environment variables that match
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	setDefaults()
}

func setDefaults() {
	viper.SetDefault("app.version", "v 0.2.0")
	viper.SetDefault("app.title", "MapCloud Tiler")
	viper.SetDefault("app.logfile", "")
	viper.SetDefault("output.format", MBTILES)
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("task.workers", 4)
	viper.SetDefault("task.savepipe", 1)
	viper.SetDefault("tile.extent", 4096)
	viper.SetDefault("tile.size", TileSize)
	viper.SetDefault("tile.buffer", 0)
	viper.SetDefault("tile.version", 2)
	viper.SetDefault("tm.name", "tiles")
	viper.SetDefault("tm.schema", "xyz")
	viper.SetDefault("tm.template", "{z}/{x}/{y}.pbf")
}

// initLog 设置日志级别及日志文件
func initLog(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown log level %s, use info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	if file := viper.GetString("app.logfile"); file != "" {
		os.MkdirAll(filepath.Dir(file), os.ModePerm)
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Warnf("open log file(%s) error, details: %s", file, err)
			return
		}
		log.SetOutput(io.MultiWriter(ansicolor.NewAnsiColorWriter(os.Stdout), f))
	}
}

func tileMapFromConf() TileMap {
	return TileMap{
		Name:        viper.GetString("tm.name"),
		Description: viper.GetString("tm.description"),
		Attribution: viper.GetString("tm.attribution"),
		Schema:      viper.GetString("tm.schema"),
		Min:         viper.GetInt("tm.min"),
		Max:         viper.GetInt("tm.max"),
		Format:      PBF,
		Template:    viper.GetString("tm.template"),
	}
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}

	if cf == "" {
		cf = "conf.toml"
	}
	initConf(cf)
	initLog(lf)
	tm := tileMapFromConf()

	if df != "" {
		file := filepath.Join(viper.GetString("output.directory"), tm.Name+"."+MBTILES)
		if err := inspect(os.Stdout, file, df); err != nil {
			log.Fatal(err)
		}
		return
	}

	start := time.Now()
	var cfgLrs []cfgLayer
	err := viper.UnmarshalKey("lrs", &cfgLrs)
	if err != nil {
		log.Fatal("lrs配置错误")
	}
	layers, err := loadLayers(cfgLrs)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLayers(layers)
	task := NewTask(layers, tm)
	if task == nil {
		log.Fatal("no layers configured")
	}
	log.Infof("task %s: zoom %d-%d, %d tiles, %d workers", task.ID, task.Min, task.Max, task.Total, task.workerCount)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		task.Abort()
	}()

	if err := task.Run(); err != nil {
		log.Errorf("task %s failed ~ %s", task.ID, err)
	}
	secs := time.Since(start).Seconds()
	log.Printf("%.3fs finished, output: %s", secs, task.File)
}
