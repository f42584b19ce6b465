// Package repositories wires the local sqlite store: opening the database,
// running embedded migrations, and handing out the concrete repositories.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/dsokolov-dev/phantompost/internal/migrations"
	"github.com/dsokolov-dev/phantompost/internal/repositories/items"
	"github.com/dsokolov-dev/phantompost/internal/repositories/metadata"
)

// Repositories bundles the local-store repositories plus the owning handle.
type Repositories struct {
	Metadata metadata.Repository
	Items    items.Repository
	DB       *sql.DB
}

// RunMigrations applies the embedded goose migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the sqlite store at dsn, migrates
// it, and returns the repository set.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		Metadata: metadata.NewSQLiteRepository(db),
		Items:    items.NewSQLiteRepository(db),
		DB:       db,
	}, nil
}

// Close releases the underlying database handle.
func (r *Repositories) Close() error {
	return r.DB.Close()
}
