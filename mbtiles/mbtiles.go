package mbtiles

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	// sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb/maptile"
)

//Version mbtiles版本号
const Version = "1.3"

//ErrTileNotFound 瓦片不存在
var ErrTileNotFound = errors.New("tile not found")

//DB mbtiles瓦片库
type DB struct {
	mu sync.Mutex
	db *sql.DB
}

//FlipY xyz行号转tms行号
func FlipY(t maptile.Tile) uint32 {
	return uint32(1)<<uint32(t.Z) - 1 - t.Y
}

// Create makes a new mbtiles file at path, replacing any existing one, and
// stores meta in its metadata table.
func Create(path string, meta map[string]string) (*DB, error) {
	os.Remove(path)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// pragmas hold per connection
	db.SetMaxOpenConns(1)
	if err := optimizeConnection(db); err != nil {
		db.Close()
		return nil, err
	}
	for _, stmt := range []string{
		"create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);",
		"create table if not exists metadata (name text, value text);",
		"create unique index name on metadata (name);",
		"create unique index tile_index on tiles(zoom_level, tile_column, tile_row);",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	m := &DB{db: db}
	if err := m.SetMetadata(meta); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

//Open 打开已有瓦片库
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	var n int
	if err := db.QueryRow("select count(*) from sqlite_master where name in ('tiles', 'metadata')").Scan(&n); err != nil {
		db.Close()
		return nil, err
	}
	if n != 2 {
		db.Close()
		return nil, fmt.Errorf("%s is not a mbtiles file", path)
	}
	return &DB{db: db}, nil
}

//PutTile 写入瓦片, 已存在则覆盖
func (m *DB) PutTile(t maptile.Tile, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.Exec("insert or replace into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);", t.Z, t.X, FlipY(t), data)
	return err
}

//Tile 读取瓦片
func (m *DB) Tile(t maptile.Tile) ([]byte, error) {
	var data []byte
	err := m.db.QueryRow("select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?", t.Z, t.X, FlipY(t)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrTileNotFound
	}
	return data, err
}

//SetMetadata 写入元数据
func (m *DB) SetMetadata(meta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, value := range meta {
		_, err := m.db.Exec("insert or replace into metadata (name, value) values (?, ?)", name, value)
		if err != nil {
			return err
		}
	}
	return nil
}

//Metadata 读取元数据
func (m *DB) Metadata() (map[string]string, error) {
	rows, err := m.db.Query("select name, value from metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		meta[name] = value
	}
	return meta, rows.Err()
}

//Count 瓦片数
func (m *DB) Count() (int64, error) {
	var n int64
	err := m.db.QueryRow("select count(*) from tiles").Scan(&n)
	return n, err
}

//Optimize 整理数据库
func (m *DB) Optimize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return optimizeDatabase(m.db)
}

//Close 关闭
func (m *DB) Close() error {
	return m.db.Close()
}

func optimizeConnection(db *sql.DB) error {
	_, err := db.Exec("PRAGMA synchronous=0")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA locking_mode=EXCLUSIVE")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA journal_mode=DELETE")
	if err != nil {
		return err
	}
	return nil
}

func optimizeDatabase(db *sql.DB) error {
	_, err := db.Exec("ANALYZE;")
	if err != nil {
		return err
	}

	_, err = db.Exec("VACUUM;")
	if err != nil {
		return err
	}

	return nil
}
