// Package items persists upload batches and their per-item status. The
// orchestrator is the only writer of item status; the CLI seeds batches.
package items

import (
	"context"
	"errors"

	"github.com/dsokolov-dev/phantompost/internal/models"
)

// ErrNoPending is returned by NextPending when the batch has no pending items
// left.
var ErrNoPending = errors.New("no pending items")

// Repository is the narrow store the orchestrator drives a batch through.
type Repository interface {
	// NextPending returns the lowest-position pending item of the batch,
	// or ErrNoPending.
	NextPending(ctx context.Context, batchID string) (*models.UploadItem, error)

	// ItemData loads the raw content bytes for the item.
	ItemData(ctx context.Context, itemID string) ([]byte, error)

	SetStatus(ctx context.Context, itemID string, status models.ItemStatus) error
	SetRemoteID(ctx context.Context, itemID, remoteID string) error
	SetContentHash(ctx context.Context, itemID, hash string) error

	// SetLastError records an item-local failure and marks the item errored.
	SetLastError(ctx context.Context, itemID, message string) error

	// ResetInFlight returns every uploading/uploaded/archiving item of the
	// batch to pending, so an interrupted run can pick them up again.
	ResetInFlight(ctx context.Context, batchID string) error

	ProgressCounts(ctx context.Context, batchID string) (models.ProgressCounts, error)

	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	AddBatch(ctx context.Context, b *models.Batch) error
	AddItem(ctx context.Context, item *models.UploadItem, dataPath string) error
}
