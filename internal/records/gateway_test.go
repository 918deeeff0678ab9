// ABOUTME: Tests for the Record Gateway
// ABOUTME: Verifies retry on transient store errors and pass-through of not-found

package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/beacon/internal/retry"
	"github.com/2389/beacon/internal/store"
)

// flakyStore wraps a MockStore, failing the first N GetClient calls.
type flakyStore struct {
	*store.MockStore
	failures int
	calls    int
}

func (f *flakyStore) GetClient(ctx context.Context, id string) (*store.Client, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("upstream 503")
	}
	return f.MockStore.GetClient(ctx, id)
}

func fastGateway(s store.Store) *Gateway {
	return New(s,
		WithRateLimit(1000, 1000),
		WithPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	)
}

func TestGateway_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	mock := store.NewMockStore()
	require.NoError(t, mock.UpsertClient(ctx, &store.Client{ID: "c1", Status: store.ClientActive}))

	flaky := &flakyStore{MockStore: mock, failures: 2}
	gw := fastGateway(flaky)

	client, err := gw.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", client.ID)
	assert.Equal(t, 3, flaky.calls)
}

func TestGateway_ExhaustsRetryBudget(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MockStore: store.NewMockStore(), failures: 10}
	gw := fastGateway(flaky)

	_, err := gw.GetClient(ctx, "c1")
	require.Error(t, err)
	assert.Equal(t, 3, flaky.calls)
}

func TestGateway_NotFoundIsNotRetried(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MockStore: store.NewMockStore(), failures: 0}
	gw := fastGateway(flaky)

	_, err := gw.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, flaky.calls)
}

func TestGateway_StaleStatePassesThrough(t *testing.T) {
	ctx := context.Background()
	mock := store.NewMockStore()
	require.NoError(t, mock.CreateIdea(ctx, &store.Idea{
		ID: "i1", ClientID: "c1", State: store.IdeaDrafted, CreatedAt: time.Now(),
	}))
	gw := fastGateway(mock)

	err := gw.TransitionIdea(ctx, "i1", store.IdeaNew, store.IdeaDrafted)
	assert.ErrorIs(t, err, store.ErrStaleState)
}
