package storage

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/viewcone/internal/core/visibility"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	s := NewSQLite(db)
	require.NoError(t, s.ApplySchema(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()

	t.Run("lists imported objects in insertion order", func(t *testing.T) {
		s := newTestSQLite(t)
		require.NoError(t, s.Import(ctx, []visibility.SpatialObject{obj("z", 1, 2, 3), obj("a", -1, 0.5, 7)}))
		require.NoError(t, s.Import(ctx, []visibility.SpatialObject{obj("z", 4, 5, 6)}))

		sess, err := s.Open(ctx)
		require.NoError(t, err)
		got, err := sess.Objects(ctx)
		require.NoError(t, err)
		require.NoError(t, sess.Close())

		assert.Equal(t, []visibility.SpatialObject{obj("z", 4, 5, 6), obj("a", -1, 0.5, 7)}, got)
	})

	t.Run("session releases its connection", func(t *testing.T) {
		s := newTestSQLite(t)
		for i := 0; i < 3; i++ {
			// a leaked connection would block the next Open with one pooled conn
			sess, err := s.Open(ctx)
			require.NoError(t, err)
			require.NoError(t, sess.Close())
		}
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("empty table yields empty slice", func(t *testing.T) {
		s := newTestSQLite(t)
		sess, err := s.Open(ctx)
		require.NoError(t, err)
		defer sess.Close()
		got, err := sess.Objects(ctx)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("rejects empty ids and NaN centers", func(t *testing.T) {
		s := newTestSQLite(t)
		assert.ErrorIs(t, s.Import(ctx, []visibility.SpatialObject{obj("", 1, 0, 0)}), ErrInvalidSeed)
		assert.ErrorIs(t, s.Import(ctx, []visibility.SpatialObject{obj("nan", math.NaN(), 0, 0)}), ErrInvalidSeed)
	})

	t.Run("closed database is unavailable", func(t *testing.T) {
		s := newTestSQLite(t)
		require.NoError(t, s.Close())
		_, err := s.Open(ctx)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, s.Ping(ctx), ErrUnavailable)
	})

	t.Run("missing table is unavailable", func(t *testing.T) {
		db, err := sql.Open("sqlite3", ":memory:")
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		s := NewSQLite(db)
		defer s.Close()

		sess, err := s.Open(ctx)
		require.NoError(t, err)
		defer sess.Close()
		_, err = sess.Objects(ctx)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestNewFromOptions(t *testing.T) {
	ctx := context.Background()
	seed := filepath.Join(t.TempDir(), "objects.yaml")
	writeFile(t, seed, "objects:\n  - id: a\n    center: {x: 1, y: 0, z: 0}\n  - id: b\n    center: {x: 0, y: 1, z: 0}\n")

	for _, driver := range []string{DriverMemory, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			dsn := ""
			if driver == DriverSQLite {
				dsn = filepath.Join(t.TempDir(), "objects.sqlite")
			}
			s, err := New(ctx, Options{Driver: driver, DSN: dsn, SeedFile: seed})
			require.NoError(t, err)
			defer s.Close()

			sess, err := s.Open(ctx)
			require.NoError(t, err)
			defer sess.Close()
			got, err := sess.Objects(ctx)
			require.NoError(t, err)
			assert.Equal(t, []visibility.SpatialObject{obj("a", 1, 0, 0), obj("b", 0, 1, 0)}, got)
		})
	}

	_, err := New(ctx, Options{Driver: "neo4j"})
	assert.ErrorIs(t, err, ErrUnknownStore)
}
