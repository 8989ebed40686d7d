package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	outcomes := []string{"mounted", "noop", "consolidated"}
	for i, outcome := range outcomes {
		p := &Pass{
			ID:         uuid.New(),
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 5*time.Second),
			Outcome:    outcome,
			Endpoint:   "nas.local",
		}
		require.NoError(t, store.RecordPass(ctx, p))
	}

	passes, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, passes, 3)

	// Newest first.
	assert.Equal(t, "consolidated", passes[0].Outcome)
	assert.Equal(t, "noop", passes[1].Outcome)
	assert.Equal(t, "mounted", passes[2].Outcome)
	assert.Equal(t, "nas.local", passes[0].Endpoint)
}

func TestStore_LastPass(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	last, err := store.LastPass(ctx)
	require.NoError(t, err)
	assert.Nil(t, last, "empty journal should yield nil")

	p := &Pass{
		ID:         uuid.New(),
		StartedAt:  time.Now().Truncate(time.Second),
		FinishedAt: time.Now().Truncate(time.Second),
		Outcome:    "unreachable",
		Detail:     "no endpoint reachable",
	}
	require.NoError(t, store.RecordPass(ctx, p))

	last, err = store.LastPass(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, p.ID, last.ID)
	assert.Equal(t, "unreachable", last.Outcome)
	assert.Equal(t, "no endpoint reachable", last.Detail)
}

func TestStore_Prune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := &Pass{
		ID:         uuid.New(),
		StartedAt:  time.Now().Add(-48 * time.Hour),
		FinishedAt: time.Now().Add(-48 * time.Hour),
		Outcome:    "noop",
	}
	recent := &Pass{
		ID:         uuid.New(),
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Outcome:    "noop",
	}
	require.NoError(t, store.RecordPass(ctx, old))
	require.NoError(t, store.RecordPass(ctx, recent))

	removed, err := store.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	passes, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, recent.ID, passes[0].ID)
}
