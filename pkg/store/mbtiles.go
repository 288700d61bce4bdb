package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/kdudkov/tileview/pkg/model"
)

var _ Store = &MBTiles{}

// MBTiles keeps tiles in an mbtiles (sqlite) file. Rows are stored in the tms
// scheme unless the file metadata says otherwise.
type MBTiles struct {
	mx       sync.Mutex
	db       *sql.DB
	path     string
	tms      bool
	readOnly bool
	meta     map[string]string
}

// OpenMBTiles opens an existing mbtiles file read-only.
func OpenMBTiles(path string) (*MBTiles, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	m := &MBTiles{db: db, path: path, tms: true, readOnly: true}

	if err := m.getMetadata(); err != nil {
		db.Close()
		return nil, err
	}

	if v, ok := m.meta["scheme"]; ok && v != "tms" {
		m.tms = false
	}

	return m, nil
}

// CreateMBTiles opens or creates a writable mbtiles file.
func CreateMBTiles(path string, meta map[string]string) (*MBTiles, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	m := &MBTiles{db: db, path: path, tms: true}

	if err := m.getMetadata(); err != nil {
		db.Close()
		return nil, err
	}

	if len(m.meta) == 0 {
		if meta == nil {
			meta = map[string]string{}
		}

		if _, ok := meta["scheme"]; !ok {
			meta["scheme"] = "tms"
		}

		if _, ok := meta["version"]; !ok {
			meta["version"] = "1.1"
		}

		if err := m.PutMeta(meta); err != nil {
			db.Close()
			return nil, err
		}
	}

	if v, ok := m.meta["scheme"]; ok && v != "tms" {
		m.tms = false
	}

	return m, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec("CREATE TABLE IF NOT EXISTS tiles (zoom_level INTEGER NOT NULL,tile_column INTEGER NOT NULL,tile_row INTEGER NOT NULL,tile_data BLOB NOT NULL,UNIQUE (zoom_level, tile_column, tile_row));")

	if err != nil {
		return err
	}

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT);")

	return err
}

func (m *MBTiles) String() string {
	return fmt.Sprintf("mbtiles %s tms=%v %+v", m.path, m.tms, m.meta)
}

func (m *MBTiles) Meta() map[string]string {
	m.mx.Lock()
	defer m.mx.Unlock()

	res := make(map[string]string, len(m.meta))
	for k, v := range m.meta {
		res[k] = v
	}

	return res
}

func (m *MBTiles) getMetadata() error {
	row, err := m.db.Query("SELECT name,value FROM metadata ORDER BY name")
	if err != nil {
		return err
	}

	m.meta = make(map[string]string)

	defer row.Close()
	for row.Next() {
		var name string
		var value string
		if err = row.Scan(&name, &value); err != nil {
			return err
		}
		m.meta[name] = value
	}

	return row.Err()
}

// PutMeta replaces the given metadata keys.
func (m *MBTiles) PutMeta(meta map[string]string) error {
	if m.readOnly {
		return fmt.Errorf("%s is read only", m.path)
	}

	m.mx.Lock()
	defer m.mx.Unlock()

	for k, v := range meta {
		if _, err := m.db.Exec("DELETE FROM metadata WHERE name=?", k); err != nil {
			return err
		}

		if _, err := m.db.Exec("INSERT INTO metadata (name, value) values (?,?)", k, v); err != nil {
			return err
		}

		m.meta[k] = v
	}

	return nil
}

// ZoomRange returns min and max zoom from metadata, falling back to the tiles table.
func (m *MBTiles) ZoomRange() (int, int, error) {
	var zmin, zmax sql.NullInt64

	if err := m.db.QueryRow("SELECT min(zoom_level), max(zoom_level) FROM tiles").Scan(&zmin, &zmax); err != nil {
		return 0, 0, err
	}

	minZoom, maxZoom := int(zmin.Int64), int(zmax.Int64)

	meta := m.Meta()

	if v, ok := meta["minzoom"]; ok {
		if vv, err := strconv.Atoi(v); err == nil {
			minZoom = vv
		}
	}

	if v, ok := meta["maxzoom"]; ok {
		if vv, err := strconv.Atoi(v); err == nil {
			maxZoom = vv
		}
	}

	return minZoom, maxZoom, nil
}

func (m *MBTiles) row(a model.Address) int {
	if m.tms {
		return a.Flip()
	}

	return a.Y
}

func (m *MBTiles) Has(a model.Address) bool {
	var n int

	err := m.db.QueryRow("SELECT count(*) FROM tiles WHERE zoom_level=? and tile_column=? and tile_row=?", a.Z, a.X, m.row(a)).Scan(&n)

	return err == nil && n > 0
}

func (m *MBTiles) Load(a model.Address) ([]byte, error) {
	var data []byte

	err := m.db.QueryRow("SELECT tile_data FROM tiles WHERE zoom_level=? and tile_column=? and tile_row=?", a.Z, a.X, m.row(a)).Scan(&data)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	if _, err := Validate(data); err != nil {
		return nil, fmt.Errorf("%s: %w", a.Key(), err)
	}

	return data, nil
}

func (m *MBTiles) Save(a model.Address, data []byte) error {
	if m.readOnly {
		return fmt.Errorf("%s is read only", m.path)
	}

	_, err := m.db.Exec("INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) values (?,?,?,?) ON CONFLICT(zoom_level, tile_column, tile_row) DO UPDATE SET tile_data = excluded.tile_data", a.Z, a.X, m.row(a), data)

	return err
}

func (m *MBTiles) Close() error {
	return m.db.Close()
}
