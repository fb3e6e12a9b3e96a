// Package gate tracks whether an asynchronously loaded dependency (the
// compiler backend) is ready, and makes sure it is loaded at most once at a
// time no matter how many callers ask for it.
package gate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/logging"
)

// State is the gate's lifecycle position.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Loader produces the gated value.
type Loader[T any] func(ctx context.Context) (T, error)

// Gate moves Uninitialized -> Initializing -> Ready. A failed load returns
// the gate to Uninitialized so the next caller retries; Ready is final.
type Gate[T any] struct {
	load   Loader[T]
	logger logging.Logger

	mu       sync.Mutex
	state    State
	value    T
	attempts int

	group singleflight.Group
}

// New creates a gate around load.
func New[T any](load Loader[T], logger logging.Logger) *Gate[T] {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gate[T]{
		load:   load,
		logger: logger.WithComponent("gate"),
	}
}

// NewReady creates a gate that is already Ready, for callers that load
// their dependency synchronously.
func NewReady[T any](value T) *Gate[T] {
	return &Gate[T]{
		logger: logging.NewNop(),
		state:  Ready,
		value:  value,
	}
}

// State returns the current state.
func (g *Gate[T]) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Attempts returns how many loads have been started.
func (g *Gate[T]) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// Initialize loads the value if needed and returns it. Concurrent callers
// share one in-flight attempt. A caller whose context ends stops waiting
// and gets ctx.Err(); the attempt itself runs to completion.
func (g *Gate[T]) Initialize(ctx context.Context) (T, error) {
	var zero T

	g.mu.Lock()
	if g.state == Ready {
		v := g.value
		g.mu.Unlock()
		return v, nil
	}
	g.state = Initializing
	g.mu.Unlock()

	loadCtx := context.WithoutCancel(ctx)
	ch := g.group.DoChan("initialize", func() (any, error) {
		return g.attempt(loadCtx)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (g *Gate[T]) attempt(ctx context.Context) (T, error) {
	g.mu.Lock()
	if g.state == Ready {
		v := g.value
		g.mu.Unlock()
		return v, nil
	}
	g.attempts++
	attempt := g.attempts
	g.mu.Unlock()

	start := time.Now()
	v, err := g.load(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.state = Uninitialized
		wrapped := errors.Wrap(err, errors.TypeInitialization, errors.CodeInitFailed, "compiler backend failed to load")
		g.logger.Warn(ctx, wrapped, "Initialization failed", "attempt", attempt)
		return v, wrapped
	}

	g.value = v
	g.state = Ready
	g.logger.Info(ctx, "Initialized", "attempt", attempt, "duration_ms", time.Since(start).Milliseconds())
	return v, nil
}

// Value returns the loaded value without blocking. It fails with
// errors.ErrNotInitialized unless the gate is Ready.
func (g *Gate[T]) Value() (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Ready {
		var zero T
		return zero, errors.ErrNotInitialized
	}
	return g.value, nil
}
