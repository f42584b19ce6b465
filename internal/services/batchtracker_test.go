package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchTrackerRoundTrip(t *testing.T) {
	ctx := context.Background()
	tracker := NewBatchTracker(newMemMetadata())

	id, err := tracker.LoadActiveBatch(ctx)
	require.NoError(t, err)
	require.Empty(t, id)

	require.NoError(t, tracker.SaveActiveBatch(ctx, "batch-7"))
	id, err = tracker.LoadActiveBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, "batch-7", id)

	require.NoError(t, tracker.ClearActiveBatch(ctx))
	id, err = tracker.LoadActiveBatch(ctx)
	require.NoError(t, err)
	require.Empty(t, id)
}
