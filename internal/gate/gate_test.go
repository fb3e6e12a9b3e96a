package gate

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/burrow/internal/errors"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "initializing", Initializing.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestValueBeforeInitialize(t *testing.T) {
	g := New(func(context.Context) (string, error) { return "backend", nil }, nil)

	_, err := g.Value()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
	assert.Equal(t, Uninitialized, g.State())
}

func TestInitializeIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	g := New(func(context.Context) (string, error) {
		calls.Add(1)
		return "backend", nil
	}, nil)

	for i := 0; i < 3; i++ {
		v, err := g.Initialize(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "backend", v)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, Ready, g.State())

	v, err := g.Value()
	require.NoError(t, err)
	assert.Equal(t, "backend", v)
}

func TestConcurrentCallersShareOneAttempt(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	g := New(func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}, nil)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]int, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Initialize(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return g.State() == Initializing && calls.Load() == 1 },
		time.Second, time.Millisecond)

	_, err := g.Value()
	assert.ErrorIs(t, err, errors.ErrNotInitialized, "Value never blocks while initializing")

	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i])
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, g.Attempts())
}

func TestFailureIsRetryable(t *testing.T) {
	boom := stderrors.New("wasm download failed")
	var calls atomic.Int32
	g := New(func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", boom
		}
		return "backend", nil
	}, nil)

	_, err := g.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, errors.HasType(err, errors.TypeInitialization))
	assert.Equal(t, Uninitialized, g.State())

	v, err := g.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backend", v)
	assert.Equal(t, Ready, g.State())
	assert.Equal(t, 2, g.Attempts())
}

func TestAbandonedCallerDoesNotCancelAttempt(t *testing.T) {
	release := make(chan struct{})
	var sawCancel atomic.Bool
	g := New(func(ctx context.Context) (string, error) {
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return "backend", nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Initialize(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return g.State() == Initializing }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return g.State() == Ready }, time.Second, time.Millisecond)
	assert.False(t, sawCancel.Load(), "load must not observe the caller's cancellation")
}

func TestNewReady(t *testing.T) {
	g := NewReady("backend")
	assert.Equal(t, Ready, g.State())

	v, err := g.Value()
	require.NoError(t, err)
	assert.Equal(t, "backend", v)

	v, err = g.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backend", v)
	assert.Zero(t, g.Attempts())
}
