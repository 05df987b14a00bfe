package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/photocluster/pkg/model"
)

// ErrSessionNotFound is returned when a store has no session by that name.
var ErrSessionNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	name     TEXT PRIMARY KEY,
	saved_at TEXT NOT NULL,
	levels   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes (
	dataset    TEXT NOT NULL,
	level      INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	id         TEXT NOT NULL,
	image_url  TEXT,
	filename   TEXT,
	x          REAL,
	y          REAL,
	z          REAL,
	placed     INTEGER NOT NULL DEFAULT 0,
	cluster    INTEGER NOT NULL DEFAULT 0,
	face_count INTEGER NOT NULL DEFAULT 0,
	date_time  TEXT,
	lat        REAL,
	lon        REAL,
	PRIMARY KEY (dataset, level, id)
);
CREATE TABLE IF NOT EXISTS links (
	dataset TEXT NOT NULL,
	level   INTEGER NOT NULL,
	seq     INTEGER NOT NULL,
	source  TEXT NOT NULL,
	target  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS links_by_level ON links (dataset, level, seq);
`

// savedAtFormat has a fixed width so saved_at sorts lexically.
const savedAtFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Session summarises a stored dataset.
type Session struct {
	Name    string    `json:"name"`
	SavedAt time.Time `json:"saved_at"`
	Levels  int       `json:"levels"`
	Nodes   int       `json:"nodes"`
}

// Store keeps received datasets in a SQLite database so a session can be
// reopened without the processing backend.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenStore opens or creates a session store.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// OpenStoreReadOnly opens an existing session store without modifying it.
func OpenStoreReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set pragmas for read performance
	pragmas := []string{
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		db.Exec(pragma) // best effort
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores ds under name, replacing any earlier session of that name.
func (s *Store) Save(ctx context.Context, name string, ds *model.Dataset) (err error) {
	if name == "" {
		return fmt.Errorf("session name is empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"nodes", "links"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE dataset = ?", name); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO datasets (name, saved_at, levels) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET saved_at = excluded.saved_at, levels = excluded.levels`,
		name, s.now().UTC().Format(savedAtFormat), len(ds.Levels)); err != nil {
		return fmt.Errorf("saving dataset row: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes
		(dataset, level, seq, id, image_url, filename, x, y, z, placed, cluster, face_count, date_time, lat, lon)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer nodeStmt.Close()
	linkStmt, err := tx.PrepareContext(ctx, `INSERT INTO links (dataset, level, seq, source, target) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer linkStmt.Close()

	for li, level := range ds.Levels {
		for i, n := range level.Nodes {
			var dt sql.NullString
			if n.DateTime != nil {
				dt = sql.NullString{String: n.DateTime.Format(time.RFC3339Nano), Valid: true}
			}
			if _, err = nodeStmt.ExecContext(ctx, name, li, i, n.ID, n.ImageURL, n.Filename,
				n.X, n.Y, n.Z, n.Placed, n.Cluster, n.FaceCount, dt, nullFloat(n.Lat), nullFloat(n.Lon)); err != nil {
				return fmt.Errorf("saving node %s: %w", n.ID, err)
			}
		}
		for i, l := range level.Links {
			if _, err = linkStmt.ExecContext(ctx, name, li, i, l.Source, l.Target); err != nil {
				return fmt.Errorf("saving link %s -> %s: %w", l.Source, l.Target, err)
			}
		}
	}
	return tx.Commit()
}

// Load reads the session stored under name.
func (s *Store) Load(name string) (*model.Dataset, error) {
	var levels int
	err := s.db.QueryRow(`SELECT levels FROM datasets WHERE name = ?`, name).Scan(&levels)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	ds := &model.Dataset{Levels: make([]model.Level, levels)}
	if err := s.loadNodes(name, ds); err != nil {
		return nil, err
	}
	if err := s.loadLinks(name, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (s *Store) loadNodes(name string, ds *model.Dataset) error {
	rows, err := s.db.Query(`SELECT level, id, image_url, filename, x, y, z, placed, cluster, face_count, date_time, lat, lon
		FROM nodes WHERE dataset = ? ORDER BY level, seq`, name)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			level              int
			n                  model.Node
			imageURL, filename sql.NullString
			dt                 sql.NullString
			lat, lon           sql.NullFloat64
		)
		if err := rows.Scan(&level, &n.ID, &imageURL, &filename, &n.X, &n.Y, &n.Z, &n.Placed,
			&n.Cluster, &n.FaceCount, &dt, &lat, &lon); err != nil {
			return fmt.Errorf("scanning node: %w", err)
		}
		if level < 0 || level >= len(ds.Levels) {
			continue
		}
		n.ImageURL = imageURL.String
		n.Filename = filename.String
		if dt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, dt.String); err == nil {
				n.DateTime = &t
			}
		}
		if lat.Valid {
			v := lat.Float64
			n.Lat = &v
		}
		if lon.Valid {
			v := lon.Float64
			n.Lon = &v
		}
		node := n
		ds.Levels[level].Nodes = append(ds.Levels[level].Nodes, &node)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}
	return nil
}

func (s *Store) loadLinks(name string, ds *model.Dataset) error {
	rows, err := s.db.Query(`SELECT level, source, target FROM links WHERE dataset = ? ORDER BY level, seq`, name)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var level int
		var l model.Link
		if err := rows.Scan(&level, &l.Source, &l.Target); err != nil {
			return fmt.Errorf("scanning link: %w", err)
		}
		if level < 0 || level >= len(ds.Levels) {
			continue
		}
		ds.Levels[level].Links = append(ds.Levels[level].Links, l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating links: %w", err)
	}
	return nil
}

// List returns the stored sessions, most recent first.
func (s *Store) List() ([]Session, error) {
	rows, err := s.db.Query(`SELECT d.name, d.saved_at, d.levels,
		(SELECT COUNT(*) FROM nodes n WHERE n.dataset = d.name)
		FROM datasets d ORDER BY d.saved_at DESC, d.name`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var savedAt string
		if err := rows.Scan(&sess.Name, &savedAt, &sess.Levels, &sess.Nodes); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.SavedAt, _ = time.Parse(savedAtFormat, savedAt)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes the session stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	for _, table := range []string{"nodes", "links"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE dataset = ?", name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
