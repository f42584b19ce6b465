package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dsokolov-dev/phantompost/internal/repositories/metadata"
)

const activeBatchKey = "batch.active"

// BatchTracker persists which batch a run is working on, so a restart can
// reconcile the interrupted batch instead of forgetting it. It satisfies
// orchestrator.ActiveBatchStore.
type BatchTracker struct {
	repo metadata.Repository
}

func NewBatchTracker(repo metadata.Repository) *BatchTracker {
	return &BatchTracker{repo: repo}
}

// SaveActiveBatch records the batch id at run start.
func (t *BatchTracker) SaveActiveBatch(ctx context.Context, batchID string) error {
	return t.repo.Set(ctx, activeBatchKey, []byte(batchID))
}

// LoadActiveBatch returns the tracked batch id, or "" when no run was left
// unfinished.
func (t *BatchTracker) LoadActiveBatch(ctx context.Context) (string, error) {
	b, err := t.repo.Get(ctx, activeBatchKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return string(b), nil
}

// ClearActiveBatch drops the tracked id once the batch reaches a state that
// must not be reconciled again.
func (t *BatchTracker) ClearActiveBatch(ctx context.Context) error {
	return t.repo.Delete(ctx, activeBatchKey)
}
