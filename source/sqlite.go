package source

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/atlasdatatech/vtile"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/project"

	// sqlite3 and spatialite drivers
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/shaxbee/go-spatialite"
	log "github.com/sirupsen/logrus"
)

//Dialect 数据库方言
type Dialect string

// Dialects.
const (
	// SQLite keeps geometry as WKB blobs and filters in memory.
	SQLite Dialect = "sqlite"
	// Spatialite keeps spatialite geometry and filters with MbrIntersects.
	Spatialite Dialect = "spatialite"
)

// TableConfig describes a feature table.
type TableConfig struct {
	Table    string
	ID       string // integer id column, optional
	Geometry string
	Fields   []string
	Dialect  Dialect
	SRS      string // EPSG:4326 or EPSG:3857
}

// Table is a Source reading features from a SQLite table. The envelope is
// computed once when the table is opened.
type Table struct {
	db       *sql.DB
	cfg      TableConfig
	proj     orb.Projection
	envelope orb.Bound
}

//NewTable 创建数据表数据源
func NewTable(db *sql.DB, cfg TableConfig) (*Table, error) {
	if cfg.Table == "" || cfg.Geometry == "" {
		return nil, fmt.Errorf("table and geometry column are required")
	}
	if cfg.Dialect == "" {
		cfg.Dialect = SQLite
	}
	if cfg.Dialect != SQLite && cfg.Dialect != Spatialite {
		return nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
	}
	proj, err := projection(cfg.SRS)
	if err != nil {
		return nil, err
	}
	t := &Table{db: db, cfg: cfg, proj: proj}
	if err := t.loadEnvelope(); err != nil {
		return nil, fmt.Errorf("table %s envelope: %w", cfg.Table, err)
	}
	return t, nil
}

//OpenSpatialite 打开spatialite库并初始化空间元数据
func OpenSpatialite(path string) (*sql.DB, error) {
	db, err := sql.Open("spatialite", path)
	if err != nil {
		return nil, err
	}
	var n int
	err = db.QueryRow("SELECT count(*) FROM sqlite_master WHERE name='spatial_ref_sys'").Scan(&n)
	if err != nil {
		db.Close()
		return nil, err
	}
	if n == 0 {
		if _, err := db.Exec("SELECT InitSpatialMetadata(1)"); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (t *Table) geomExpr() string {
	if t.cfg.Dialect == Spatialite {
		return "ST_AsBinary(" + t.cfg.Geometry + ")"
	}
	return t.cfg.Geometry
}

func (t *Table) columns() string {
	cols := []string{t.geomExpr()}
	if t.cfg.ID != "" {
		cols = append(cols, t.cfg.ID)
	}
	cols = append(cols, t.cfg.Fields...)
	return strings.Join(cols, ", ")
}

func (t *Table) loadEnvelope() error {
	if t.cfg.Dialect == Spatialite {
		g := t.cfg.Geometry
		q := fmt.Sprintf("SELECT Min(MbrMinX(%s)), Min(MbrMinY(%s)), Max(MbrMaxX(%s)), Max(MbrMaxY(%s)) FROM %s", g, g, g, g, t.cfg.Table)
		var minx, miny, maxx, maxy sql.NullFloat64
		if err := t.db.QueryRow(q).Scan(&minx, &miny, &maxx, &maxy); err != nil {
			return err
		}
		if !minx.Valid {
			return nil
		}
		t.envelope = t.project(orb.Bound{
			Min: orb.Point{minx.Float64, miny.Float64},
			Max: orb.Point{maxx.Float64, maxy.Float64},
		})
		return nil
	}

	rows, err := t.db.Query(fmt.Sprintf("SELECT %s FROM %s", t.geomExpr(), t.cfg.Table))
	if err != nil {
		return err
	}
	defer rows.Close()
	first := true
	for rows.Next() {
		s := wkb.Scanner(nil)
		if err := rows.Scan(s); err != nil {
			return err
		}
		if !s.Valid {
			continue
		}
		b := t.project(s.Geometry.Bound())
		if first {
			t.envelope, first = b, false
		} else {
			t.envelope = t.envelope.Union(b)
		}
	}
	return rows.Err()
}

// project maps a source bound into mercator. Both projections are monotone
// on each axis, so the corners are enough.
func (t *Table) project(b orb.Bound) orb.Bound {
	if t.proj == nil {
		return b
	}
	return orb.Bound{Min: t.proj(b.Min), Max: t.proj(b.Max)}
}

//Envelope 数据表范围
func (t *Table) Envelope() orb.Bound {
	return t.envelope
}

// Features queries the rows that may intersect query. With the spatialite
// dialect the filter runs in the database.
func (t *Table) Features(query orb.Bound) vtile.Iterator {
	var (
		rows *sql.Rows
		err  error
	)
	if t.cfg.Dialect == Spatialite {
		q := query
		if t.proj != nil {
			q = orb.Bound{Min: project.Mercator.ToWGS84(query.Min), Max: project.Mercator.ToWGS84(query.Max)}
		}
		rows, err = t.db.Query(
			fmt.Sprintf("SELECT %s FROM %s WHERE MbrIntersects(%s, BuildMbr(?, ?, ?, ?))", t.columns(), t.cfg.Table, t.cfg.Geometry),
			q.Min[0], q.Min[1], q.Max[0], q.Max[1],
		)
	} else {
		rows, err = t.db.Query(fmt.Sprintf("SELECT %s FROM %s", t.columns(), t.cfg.Table))
	}
	return &rowIterator{table: t, rows: rows, err: err, query: query}
}

// rowIterator scans one feature per row. The rows are closed once the
// iteration ends or fails.
type rowIterator struct {
	table   *Table
	rows    *sql.Rows
	query   orb.Bound
	feature *vtile.Feature
	err     error
}

func (it *rowIterator) Next() bool {
	if it.err != nil || it.rows == nil {
		return false
	}
	for it.rows.Next() {
		f, err := it.table.scan(it.rows)
		if err != nil {
			it.err = err
			it.rows.Close()
			return false
		}
		if f == nil || !f.Geometry.Bound().Intersects(it.query) {
			continue
		}
		it.feature = f
		return true
	}
	it.err = it.rows.Err()
	it.rows.Close()
	it.feature = nil
	return false
}

func (it *rowIterator) Feature() *vtile.Feature {
	return it.feature
}

func (it *rowIterator) Err() error {
	return it.err
}

func (t *Table) scan(rows *sql.Rows) (*vtile.Feature, error) {
	s := wkb.Scanner(nil)
	var id sql.NullInt64
	fields := make([]interface{}, len(t.cfg.Fields))
	dest := make([]interface{}, 0, 2+len(fields))
	dest = append(dest, s)
	if t.cfg.ID != "" {
		dest = append(dest, &id)
	}
	for i := range fields {
		dest = append(dest, &fields[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	if !s.Valid {
		log.Debugf("table %s row with null geometry, skipped", t.cfg.Table)
		return nil, nil
	}

	g := s.Geometry
	if t.proj != nil {
		g = project.Geometry(g, t.proj)
	}
	f := &vtile.Feature{Geometry: g}
	if id.Valid && id.Int64 > 0 {
		f.ID = uint64(id.Int64)
	}
	for i, name := range t.cfg.Fields {
		if fields[i] == nil {
			continue
		}
		v, err := vtile.ValueOf(fields[i])
		if err != nil {
			log.Warnf("table %s column %s: %s", t.cfg.Table, name, err)
			continue
		}
		f.Properties = append(f.Properties, vtile.Property{Key: name, Value: v})
	}
	return f, nil
}
