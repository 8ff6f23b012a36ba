package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newTestSQLite)
}

func TestSQLiteStore_ReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceAll(ctx, sampleRecords()))
	require.NoError(t, s.Close())

	s, err = NewSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestNewSQLite_RequiresPath(t *testing.T) {
	_, err := NewSQLite(context.Background(), "")
	require.Error(t, err)
}
