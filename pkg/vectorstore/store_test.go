package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreThenRecallRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Store(ctx, "world-a", []string{"found a diamond at spawn", "built a shelter"}, map[string]any{"tags": []string{"mining"}})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	results, err := s.Recall(ctx, "world-a", "diamond", 5)
	require.NoError(t, err)
	require.Contains(t, results, "found a diamond at spawn")
}

func TestRecallIsWorldIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "world-a", []string{"hello from world a"}, nil)
	require.NoError(t, err)
	_, err = s.Store(ctx, "world-b", []string{"hello from world b"}, nil)
	require.NoError(t, err)

	results, err := s.Recall(ctx, "world-a", "hello", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"hello from world a"}, results)
}

func TestRecallScoresByTermOverlapThenRecency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "w", []string{"a cave with lava nearby"}, nil)
	require.NoError(t, err)
	_, err = s.Store(ctx, "w", []string{"a cave full of zombies and lava"}, nil)
	require.NoError(t, err)

	results, err := s.Recall(ctx, "w", "cave lava zombies", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a cave full of zombies and lava", results[0])
}

func TestRecallLimitCaps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "w", []string{"one", "two", "three"}, nil)
	require.NoError(t, err)

	results, err := s.Recall(ctx, "w", "", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestClearWorldRemovesOnlyThatWorld(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "world-a", []string{"a fact"}, nil)
	require.NoError(t, err)
	_, err = s.Store(ctx, "world-b", []string{"b fact"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.ClearWorld(ctx, "world-a"))

	aResults, err := s.Recall(ctx, "world-a", "fact", 10)
	require.NoError(t, err)
	require.Empty(t, aResults)

	bResults, err := s.Recall(ctx, "world-b", "fact", 10)
	require.NoError(t, err)
	require.Len(t, bResults, 1)
}
