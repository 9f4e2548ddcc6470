package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/devhub-cache/src/devhub"
	"github.com/stake-plus/devhub-cache/src/store"
	"github.com/stake-plus/devhub-cache/src/store/storetest"
)

func TestAdvance(t *testing.T) {
	cur := store.SyncCursor{LastTimestamp: 50, LastBlockHeight: 500, Cursor: "old"}

	got := Advance(cur, []devhub.Transaction{
		txn("x", "{}", 60, 600),
		txn("x", "{}", 70, 700),
	}, "next")
	assert.Equal(t, int64(70), got.LastTimestamp)
	assert.Equal(t, int64(700), got.LastBlockHeight)
	assert.Equal(t, "next", got.Cursor)

	// empty batch only moves the cursor
	got = Advance(cur, nil, "again")
	assert.Equal(t, int64(50), got.LastTimestamp)
	assert.Equal(t, int64(500), got.LastBlockHeight)
	assert.Equal(t, "again", got.Cursor)
}

func TestAdvanceNeverMovesBack(t *testing.T) {
	cur := store.SyncCursor{LastTimestamp: 90, LastBlockHeight: 900}
	got := Advance(cur, []devhub.Transaction{txn("x", "{}", 10, 100)}, "c")
	assert.Equal(t, int64(90), got.LastTimestamp)
	assert.Equal(t, int64(900), got.LastBlockHeight)
}

func TestTrackerOverrides(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(storetest.New(t), nopLog)

	c, err := tr.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, c.LastTimestamp)

	_, err = tr.SetCursor(ctx, "abc")
	require.NoError(t, err)
	_, err = tr.SetBlockHeight(ctx, 42)
	require.NoError(t, err)
	c, err = tr.SetTimestamp(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, store.SyncCursor{ID: 1, LastTimestamp: 99, LastBlockHeight: 42, Cursor: "abc"}, c)

	c, err = tr.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", c.Cursor)
	assert.Equal(t, int64(42), c.LastBlockHeight)

	_, err = tr.SetBlockHeight(ctx, -1)
	assert.Error(t, err)
	_, err = tr.SetTimestamp(ctx, -1)
	assert.Error(t, err)

	c, err = tr.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(99), c.LastTimestamp, "rejected override must not persist")

	_, err = tr.Reset(ctx)
	require.NoError(t, err)
	c, err = tr.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, c.LastTimestamp)
	assert.Zero(t, c.LastBlockHeight)
	assert.Empty(t, c.Cursor)
}
