package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidrun/corvid/pkg/vectorstore"
)

func newTestLocalStore(t *testing.T) *vectorstore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := vectorstore.Open(filepath.Join(dir, "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorePrefersRemoteServiceWhenHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/remember", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "facts_stored": 1})
	}))
	defer srv.Close()

	b := New(srv.URL, newTestLocalStore(t))
	result, err := b.Store(context.Background(), "world-a", []string{"hello"}, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.False(t, result.Fallback)
	require.Equal(t, int64(0), b.Stats().Fallback)
}

func TestStoreFallsBackToLocalWhenServiceUnreachable(t *testing.T) {
	local := newTestLocalStore(t)
	b := New("http://127.0.0.1:1", local)

	result, err := b.Store(context.Background(), "world-a", []string{"hello"}, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.True(t, result.Fallback)
	require.Equal(t, int64(1), b.Stats().Fallback)

	recall, err := b.Recall(context.Background(), "world-a", "hello", 5)
	require.NoError(t, err)
	require.True(t, recall.Fallback)
	require.Contains(t, recall.Results, "hello")
}

func TestRecallPrefersServiceResultsWhenHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/recall":
			json.NewEncoder(w).Encode(map[string]any{"success": true, "results": []string{"from the service"}, "count": 1})
		}
	}))
	defer srv.Close()

	b := New(srv.URL, newTestLocalStore(t))
	result, err := b.Recall(context.Background(), "world-a", "anything", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"from the service"}, result.Results)
	require.False(t, result.Fallback)
}

func TestHealthCheckCachesUnhealthyUntilIntervalElapses(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := New(srv.URL, newTestLocalStore(t))
	healthy, _ := b.HealthCheck(context.Background())
	require.False(t, healthy)
	require.True(t, b.shouldSkipService())

	// A Store call right after an unhealthy HealthCheck must skip the
	// network entirely and go straight to the local fallback.
	result, err := b.Store(context.Background(), "world-a", []string{"hello"}, nil)
	require.NoError(t, err)
	require.True(t, result.Fallback)
	require.Equal(t, 1, calls)
}

func TestClearWorldClearsLocalFallbackEvenIfRemoteFails(t *testing.T) {
	local := newTestLocalStore(t)
	_, err := local.Store(context.Background(), "world-a", []string{"a fact"}, nil)
	require.NoError(t, err)

	b := New("http://127.0.0.1:1", local)
	require.NoError(t, b.ClearWorld(context.Background(), "world-a"))

	results, err := local.Recall(context.Background(), "world-a", "fact", 5)
	require.NoError(t, err)
	require.Empty(t, results)
}
