package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/pricechart/store"
	"github.com/yitech/pricechart/store/storetest"
)

func TestStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prefs.json"))
	require.NoError(t, err)
	storetest.Run(t, s)
}

func TestPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, store.KeySymbol, "btcusdt"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	v, err := s.Get(ctx, store.KeySymbol)
	require.NoError(t, err)
	assert.Equal(t, "btcusdt", v)
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestFailedFlushKeepsPreviousValue(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "prefs.json"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v1"))

	// Point the store at a directory that does not exist so the flush fails.
	s.path = filepath.Join(dir, "gone", "prefs.json")
	assert.Error(t, s.Set(ctx, "k", "v2"))
	assert.Error(t, s.Set(ctx, "other", "x"))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	_, err = s.Get(ctx, "other")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
