package metadata

import (
	"context"

	"github.com/dsokolov-dev/phantompost/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the value stored under key. sql.ErrNoRows when absent.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	row := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// Set upserts value under key.
func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO metadata (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}

// Delete removes key. Deleting an absent key is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	return err
}
