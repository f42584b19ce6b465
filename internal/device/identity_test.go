package device

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dsokolov-dev/phantompost/internal/repositories/metadata"

	_ "modernc.org/sqlite"
)

func setupRepo(t *testing.T) metadata.Repository {
	t.Helper()
	db, err := sql.Open("sqlite", "file:devicetest?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL);`)
	require.NoError(t, err)
	return metadata.NewSQLiteRepository(db)
}

func TestLoadGeneratesOnce(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	first, err := Load(ctx, repo)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first.DeviceID, "android-"))
	require.Len(t, first.DeviceID, len("android-")+16)

	_, err = uuid.Parse(first.ClientInstallID)
	require.NoError(t, err)

	// second load returns the same identity, not a fresh one
	second, err := Load(ctx, repo)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
