package component

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LifecycleFactory creates a fresh, startable LifecycleComponent
type LifecycleFactory func(t *testing.T) LifecycleComponent

// StandardLifecycleTests checks the state machine contract every reader,
// writer and seam must honor.
func StandardLifecycleTests(t *testing.T, factory LifecycleFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, comp LifecycleComponent)
	}{
		{"StartStop", testStartStop},
		{"DoubleStart", testDoubleStart},
		{"StopWithoutStart", testStopWithoutStart},
		{"DoubleStop", testDoubleStop},
		{"NoRestartAfterStop", testNoRestartAfterStop},
		{"ConcurrentStop", testConcurrentStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := factory(t)
			require.NotNil(t, comp, "Component factory returned nil")
			tt.test(t, comp)
		})
	}
}

func lifecycleCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testStartStop(t *testing.T, comp LifecycleComponent) {
	ctx := lifecycleCtx(t)
	assert.Equal(t, StateIdle, comp.State())

	require.NoError(t, comp.Start(ctx), "Start should succeed on a fresh component")
	assert.True(t, comp.Running())

	require.NoError(t, comp.Stop(ctx), "Stop should succeed after Start")
	assert.Equal(t, StateStopped, comp.State())
	assert.False(t, comp.Running())

	select {
	case <-comp.Done():
	default:
		t.Fatal("Done should be closed after Stop returns")
	}
}

func testDoubleStart(t *testing.T, comp LifecycleComponent) {
	ctx := lifecycleCtx(t)
	require.NoError(t, comp.Start(ctx))
	assert.Error(t, comp.Start(ctx), "Second Start must be rejected")
	require.NoError(t, comp.Stop(ctx))
}

func testStopWithoutStart(t *testing.T, comp LifecycleComponent) {
	assert.NoError(t, comp.Stop(lifecycleCtx(t)), "Stop on an idle component is a no-op")
	assert.Equal(t, StateIdle, comp.State())
}

func testDoubleStop(t *testing.T, comp LifecycleComponent) {
	ctx := lifecycleCtx(t)
	require.NoError(t, comp.Start(ctx))
	require.NoError(t, comp.Stop(ctx))
	assert.NoError(t, comp.Stop(ctx), "Second Stop should be a no-op")
	assert.Equal(t, StateStopped, comp.State())
}

func testNoRestartAfterStop(t *testing.T, comp LifecycleComponent) {
	ctx := lifecycleCtx(t)
	require.NoError(t, comp.Start(ctx))
	require.NoError(t, comp.Stop(ctx))
	assert.Error(t, comp.Start(ctx), "Stopped is terminal")
}

func testConcurrentStop(t *testing.T, comp LifecycleComponent) {
	ctx := lifecycleCtx(t)
	require.NoError(t, comp.Start(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, comp.Stop(ctx))
		}()
	}
	wg.Wait()

	select {
	case <-comp.Done():
	case <-ctx.Done():
		t.Fatal("component never reached Stopped")
	}
	assert.Equal(t, StateStopped, comp.State())
}
