package presence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	online, err := r.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, r.Register(ctx, "u1", "c1"))
	require.NoError(t, r.Register(ctx, "u1", "c2"))

	online, err = r.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online)

	conns, err := r.Connections(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, conns)

	require.NoError(t, r.Unregister(ctx, "u1", "c1"))
	online, err = r.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, r.Unregister(ctx, "u1", "c2"))
	online, err = r.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online)

	// unregistering an unknown connection is harmless
	require.NoError(t, r.Unregister(ctx, "u1", "c9"))
}
