package modelmanager

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureLoadedCallsWarmupOnce(t *testing.T) {
	var calls int32
	m := New(Policy{}, func(ctx context.Context, name, kind string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	ctx := context.Background()
	require.NoError(t, m.EnsureLoaded(ctx, "text-model", "text"))
	require.NoError(t, m.EnsureLoaded(ctx, "text-model", "text"))
	require.Equal(t, int32(1), calls)
	require.True(t, m.IsLoaded("text-model"))
}

func TestAutoUnloadEvictsOthers(t *testing.T) {
	m := New(Policy{AutoUnload: true}, func(ctx context.Context, name, kind string) error { return nil })
	ctx := context.Background()
	require.NoError(t, m.EnsureLoaded(ctx, "a", "text"))
	require.NoError(t, m.EnsureLoaded(ctx, "b", "text"))
	require.False(t, m.IsLoaded("a"))
	require.True(t, m.IsLoaded("b"))
}

func TestKeepBothLoadedOverridesAutoUnload(t *testing.T) {
	m := New(Policy{AutoUnload: true, KeepBothLoaded: true}, func(ctx context.Context, name, kind string) error { return nil })
	ctx := context.Background()
	require.NoError(t, m.EnsureLoaded(ctx, "a", "text"))
	require.NoError(t, m.EnsureLoaded(ctx, "b", "vision"))
	require.True(t, m.IsLoaded("a"))
	require.True(t, m.IsLoaded("b"))
}

func TestCleanupInactiveUnloadsIdleModels(t *testing.T) {
	m := New(Policy{UnloadAfter: time.Millisecond}, func(ctx context.Context, name, kind string) error { return nil })
	require.NoError(t, m.EnsureLoaded(context.Background(), "a", "text"))
	time.Sleep(5 * time.Millisecond)
	unloaded := m.CleanupInactive()
	require.Equal(t, []string{"a"}, unloaded)
	require.False(t, m.IsLoaded("a"))
}
