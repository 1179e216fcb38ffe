package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/zeusync/viewcone/internal/core/geometry"
	"github.com/zeusync/viewcone/internal/core/visibility"
)

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS spatial_objects (
	id TEXT PRIMARY KEY NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	z REAL NOT NULL
);
`

const (
	selectObjects = `SELECT id, x, y, z FROM spatial_objects ORDER BY rowid`
	upsertObject  = `INSERT INTO spatial_objects (id, x, y, z) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET x = excluded.x, y = excluded.y, z = excluded.z`
)

// SQLiteStore reads objects from a spatial_objects table.
type SQLiteStore struct {
	db *sql.DB
}

// ConnectSQLite opens the database at dataSourceName. An in-memory database is
// limited to a single connection, since every connection would otherwise see
// its own empty database.
func ConnectSQLite(dataSourceName string, maxOpenConns int) (*SQLiteStore, error) {
	dsn := dataSourceName
	inMemory := strings.Contains(dataSourceName, ":memory:")
	if !strings.Contains(dsn, "?") && !inMemory {
		v := url.Values{}
		v.Add("_journal_mode", "WAL")
		v.Add("_synchronous", "normal")
		v.Add("_busy_timeout", "5000")
		dsn = fmt.Sprintf("%s?%s", dataSourceName, v.Encode())
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dataSourceName, err)
	}
	if inMemory {
		maxOpenConns = 1
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	return NewSQLite(db), nil
}

func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// ApplySchema creates the objects table when missing.
func (s *SQLiteStore) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Import upserts objects in one transaction.
func (s *SQLiteStore) Import(ctx context.Context, objects []visibility.SpatialObject) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("import", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertObject)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer stmt.Close()

	for _, o := range objects {
		if o.ID == "" {
			return fmt.Errorf("import: empty id: %w", ErrInvalidSeed)
		}
		if _, err := stmt.ExecContext(ctx, o.ID, o.Center.X, o.Center.Y, o.Center.Z); err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
				return fmt.Errorf("import %q: %w", o.ID, ErrInvalidSeed)
			}
			return fmt.Errorf("import %q: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

// Open pins one pooled connection for the session.
func (s *SQLiteStore) Open(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, unavailable("open session", err)
	}
	return &sqliteSession{conn: conn}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteSession struct {
	conn *sql.Conn
}

func (s *sqliteSession) Objects(ctx context.Context) ([]visibility.SpatialObject, error) {
	rows, err := s.conn.QueryContext(ctx, selectObjects)
	if err != nil {
		return nil, unavailable("list objects", err)
	}
	defer rows.Close()

	objects := make([]visibility.SpatialObject, 0)
	for rows.Next() {
		var (
			id      string
			x, y, z float64
		)
		if err := rows.Scan(&id, &x, &y, &z); err != nil {
			return nil, unavailable("scan object", err)
		}
		objects = append(objects, visibility.SpatialObject{
			ID:     id,
			Center: geometry.Vector3{X: x, Y: y, Z: z},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list objects", err)
	}
	return objects, nil
}

// Close returns the connection to the pool.
func (s *sqliteSession) Close() error {
	return s.conn.Close()
}
