package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/dsokolov-dev/phantompost/internal/dbx"
	"github.com/dsokolov-dev/phantompost/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx). Item bytes live on disk; the table keeps the path.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) NextPending(ctx context.Context, batchID string) (*models.UploadItem, error) {
	query := `SELECT id, batch_id, position, content_hash, status, remote_id, last_error
			FROM items WHERE batch_id = ? AND status = ?
			ORDER BY position LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, batchID, models.StatusPending)

	item := &models.UploadItem{}
	err := row.Scan(&item.ID, &item.BatchID, &item.Position, &item.ContentHash,
		&item.Status, &item.RemoteID, &item.LastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPending
		}
		return nil, fmt.Errorf("next pending: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepository) ItemData(ctx context.Context, itemID string) ([]byte, error) {
	var path string
	row := r.db.QueryRowContext(ctx, `SELECT data_path FROM items WHERE id = ?`, itemID)
	if err := row.Scan(&path); err != nil {
		return nil, fmt.Errorf("item data path: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item data: %w", err)
	}
	return data, nil
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, itemID string, status models.ItemStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE items SET status = ? WHERE id = ?`, status, itemID)
	return err
}

func (r *SQLiteRepository) SetRemoteID(ctx context.Context, itemID, remoteID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE items SET remote_id = ? WHERE id = ?`, remoteID, itemID)
	return err
}

func (r *SQLiteRepository) SetContentHash(ctx context.Context, itemID, hash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE items SET content_hash = ? WHERE id = ?`, hash, itemID)
	return err
}

func (r *SQLiteRepository) SetLastError(ctx context.Context, itemID, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET last_error = ?, status = ? WHERE id = ?`,
		message, models.StatusError, itemID)
	return err
}

func (r *SQLiteRepository) ResetInFlight(ctx context.Context, batchID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET status = ? WHERE batch_id = ? AND status IN (?, ?, ?)`,
		models.StatusPending, batchID,
		models.StatusUploading, models.StatusUploaded, models.StatusArchiving)
	return err
}

func (r *SQLiteRepository) ProgressCounts(ctx context.Context, batchID string) (models.ProgressCounts, error) {
	var counts models.ProgressCounts

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM items WHERE batch_id = ? GROUP BY status`, batchID)
	if err != nil {
		return counts, fmt.Errorf("progress counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.ItemStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, err
		}
		switch status {
		case models.StatusPending:
			counts.Pending = n
		case models.StatusUploading:
			counts.Uploading = n
		case models.StatusUploaded:
			counts.Uploaded = n
		case models.StatusArchiving:
			counts.Archiving = n
		case models.StatusCompleted:
			counts.Completed = n
		case models.StatusError:
			counts.Errored = n
		}
	}
	return counts, rows.Err()
}

func (r *SQLiteRepository) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, caption, allow_repeat FROM batches WHERE id = ?`, batchID)

	b := &models.Batch{}
	if err := row.Scan(&b.ID, &b.Caption, &b.AllowRepeat); err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) AddBatch(ctx context.Context, b *models.Batch) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO batches (id, caption, allow_repeat) VALUES (?, ?, ?)`,
		b.ID, b.Caption, b.AllowRepeat)
	return err
}

func (r *SQLiteRepository) AddItem(ctx context.Context, item *models.UploadItem, dataPath string) error {
	if item.Status == "" {
		item.Status = models.StatusPending
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO items (id, batch_id, position, content_hash, status, remote_id, last_error, data_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.BatchID, item.Position, item.ContentHash, item.Status,
		item.RemoteID, item.LastError, dataPath)
	return err
}
