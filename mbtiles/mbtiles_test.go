package mbtiles

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlipY(t *testing.T) {
	assert.Equal(t, uint32(0), FlipY(maptile.New(0, 0, 0)))
	assert.Equal(t, uint32(1), FlipY(maptile.New(0, 0, 1)))
	assert.Equal(t, uint32(5), FlipY(maptile.New(3, 10, 4)))
}

func TestCreatePutTile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mbtiles")
	db, err := Create(path, map[string]string{"name": "test", "format": "pbf"})
	require.NoError(t, err)

	tile := maptile.New(3, 10, 4)
	require.NoError(t, db.PutTile(tile, []byte{1, 2, 3}))
	require.NoError(t, db.PutTile(tile, []byte{4, 5}))
	require.NoError(t, db.PutTile(maptile.New(0, 0, 0), []byte{6}))

	data, err := db.Tile(tile)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, data)

	_, err = db.Tile(maptile.New(1, 1, 1))
	assert.Equal(t, ErrTileNotFound, err)

	n, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, db.SetMetadata(map[string]string{"name": "renamed", "minzoom": "0"}))
	require.NoError(t, db.Optimize())
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	meta, err := db.Metadata()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "renamed", "format": "pbf", "minzoom": "0"}, meta)

	var row int
	require.NoError(t, db.db.QueryRow("select tile_row from tiles where zoom_level = 4").Scan(&row))
	assert.Equal(t, 5, row)
}

func TestCreateReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mbtiles")
	require.NoError(t, ioutil.WriteFile(path, []byte("junk"), 0644))

	db, err := Create(path, nil)
	require.NoError(t, err)
	n, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	require.NoError(t, db.Close())
}

func TestOpenInvalid(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing.mbtiles"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.mbtiles")
	require.NoError(t, ioutil.WriteFile(empty, nil, 0644))
	_, err = Open(empty)
	assert.Error(t, err)
}
