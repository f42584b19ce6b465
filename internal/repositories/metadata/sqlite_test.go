package metadata

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:metarepo?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL);`)
	require.NoError(t, err)
	return db
}

func TestSQLiteRepository(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	repo := NewSQLiteRepository(db)

	t.Run("missing key", func(t *testing.T) {
		_, err := repo.Get(ctx, "nope")
		require.True(t, errors.Is(err, sql.ErrNoRows))
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "mid", []byte("XYZ")))
		got, err := repo.Get(ctx, "mid")
		require.NoError(t, err)
		require.Equal(t, []byte("XYZ"), got)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "mid", []byte("NEW")))
		got, err := repo.Get(ctx, "mid")
		require.NoError(t, err)
		require.Equal(t, []byte("NEW"), got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "mid"))
		_, err := repo.Get(ctx, "mid")
		require.True(t, errors.Is(err, sql.ErrNoRows))

		// deleting again is fine
		require.NoError(t, repo.Delete(ctx, "mid"))
	})
}
