package items

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dsokolov-dev/phantompost/internal/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:itemsrepo?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE batches (
  id           TEXT PRIMARY KEY,
  caption      TEXT NOT NULL DEFAULT '',
  allow_repeat INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE items (
  id           TEXT PRIMARY KEY,
  batch_id     TEXT NOT NULL,
  position     INTEGER NOT NULL,
  content_hash TEXT NOT NULL DEFAULT '',
  status       TEXT NOT NULL DEFAULT 'pending',
  remote_id    TEXT NOT NULL DEFAULT '',
  last_error   TEXT NOT NULL DEFAULT '',
  data_path    TEXT NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func seedBatch(t *testing.T, repo *SQLiteRepository, batchID string, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.AddBatch(ctx, &models.Batch{ID: batchID}))
	for i := 1; i <= n; i++ {
		item := &models.UploadItem{
			ID:       batchID + "-" + string(rune('0'+i)),
			BatchID:  batchID,
			Position: i,
		}
		require.NoError(t, repo.AddItem(ctx, item, "/tmp/nonexistent.jpg"))
	}
}

func TestNextPendingOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))
	seedBatch(t, repo, "b1", 3)

	first, err := repo.NextPending(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 1, first.Position)

	require.NoError(t, repo.SetStatus(ctx, first.ID, models.StatusCompleted))

	second, err := repo.NextPending(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 2, second.Position)
}

func TestNextPendingExhausted(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))
	seedBatch(t, repo, "b2", 1)

	item, err := repo.NextPending(ctx, "b2")
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, item.ID, models.StatusCompleted))

	_, err = repo.NextPending(ctx, "b2")
	require.True(t, errors.Is(err, ErrNoPending))
}

func TestSetLastErrorMarksItemErrored(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))
	seedBatch(t, repo, "b3", 1)

	item, err := repo.NextPending(ctx, "b3")
	require.NoError(t, err)
	require.NoError(t, repo.SetLastError(ctx, item.ID, "duplicate content"))

	counts, err := repo.ProgressCounts(ctx, "b3")
	require.NoError(t, err)
	require.Equal(t, 1, counts.Errored)
	require.Equal(t, 0, counts.Pending)
}

func TestProgressCounts(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))
	seedBatch(t, repo, "b4", 5)

	item, err := repo.NextPending(ctx, "b4")
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, item.ID, models.StatusCompleted))

	item, err = repo.NextPending(ctx, "b4")
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, item.ID, models.StatusUploading))

	counts, err := repo.ProgressCounts(ctx, "b4")
	require.NoError(t, err)
	require.Equal(t, models.ProgressCounts{Pending: 3, Uploading: 1, Completed: 1}, counts)
	require.Equal(t, 5, counts.Total())
	require.True(t, counts.Started())
	require.False(t, counts.AllDone())
}

func TestItemData(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))

	dir := t.TempDir()
	path := filepath.Join(dir, "pic.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o600))

	require.NoError(t, repo.AddBatch(ctx, &models.Batch{ID: "b5"}))
	require.NoError(t, repo.AddItem(ctx, &models.UploadItem{ID: "i1", BatchID: "b5", Position: 1}, path))

	data, err := repo.ItemData(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-bytes"), data)
}

func TestProgressCountsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT status, COUNT").WillReturnError(errors.New("disk I/O error"))

	repo := NewSQLiteRepository(db)
	_, err = repo.ProgressCounts(context.Background(), "b6")
	require.ErrorContains(t, err, "disk I/O error")
}

func TestResetInFlightReturnsItemsToPending(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))
	seedBatch(t, repo, "b1", 5)

	require.NoError(t, repo.SetStatus(ctx, "b1-1", models.StatusCompleted))
	require.NoError(t, repo.SetStatus(ctx, "b1-2", models.StatusUploading))
	require.NoError(t, repo.SetStatus(ctx, "b1-3", models.StatusArchiving))
	require.NoError(t, repo.SetLastError(ctx, "b1-4", "boom"))

	require.NoError(t, repo.ResetInFlight(ctx, "b1"))

	counts, err := repo.ProgressCounts(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 1, counts.Completed, "completed items are untouched")
	require.Equal(t, 1, counts.Errored, "errored items are untouched")
	require.Equal(t, 3, counts.Pending, "in-flight items become pending again")
	require.Zero(t, counts.Uploading)
	require.Zero(t, counts.Archiving)
}
