package statestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	type selection struct {
		Year   int      `json:"year"`
		Month  int      `json:"month"`
		OnCall []string `json:"onCall"`
	}

	in := selection{Year: 2025, Month: 8, OnCall: []string{"2025/8/5", "2025/8/12"}}
	require.NoError(t, s.Put(ctx, KeySelection, in))

	var out selection
	require.NoError(t, s.Get(ctx, KeySelection, &out))
	assert.Equal(t, in, out)
}

func TestPutOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", map[string]int{"v": 1}))
	require.NoError(t, s.Put(ctx, "k", map[string]int{"v": 2}))

	var out map[string]int
	require.NoError(t, s.Get(ctx, "k", &out))
	assert.Equal(t, 2, out["v"])
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t)

	var out map[string]any
	err := s.Get(context.Background(), "nope", &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", 42))
	require.NoError(t, s.Delete(ctx, "k"))

	var out int
	assert.ErrorIs(t, s.Get(ctx, "k", &out), ErrNotFound)
	// Deleting again is fine.
	assert.NoError(t, s.Delete(ctx, "k"))
}

func TestProgressRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadProgress(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	in := Progress{Current: 3, Total: 20, Mode: "fill", RunID: "abc"}
	require.NoError(t, s.SaveProgress(ctx, in))

	out, err := s.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
