// Package storetest holds the behaviour every store.Store backend shares.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/pricechart/store"
)

// Run exercises s. Keys are prefixed with t.Name() so a shared backend can
// be reused across runs.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	key := func(k string) string { return t.Name() + "/" + k }

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, key("missing"))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, key("a"), "1"))
		v, err := s.Get(ctx, key("a"))
		require.NoError(t, err)
		assert.Equal(t, "1", v)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, key("b"), "old"))
		require.NoError(t, s.Set(ctx, key("b"), "new"))
		v, err := s.Get(ctx, key("b"))
		require.NoError(t, err)
		assert.Equal(t, "new", v)
	})

	t.Run("empty value is stored", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, key("empty"), ""))
		v, err := s.Get(ctx, key("empty"))
		require.NoError(t, err)
		assert.Equal(t, "", v)
	})
}
