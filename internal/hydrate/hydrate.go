// Package hydrate turns compiled code back into renderable content on the
// rendering side. A Remote is a templ.Component that links the code once,
// memoizes the result and contains every failure: a broken document renders
// a fallback instead of failing the surrounding page.
package hydrate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/a-h/templ"
	"github.com/cespare/xxhash/v2"

	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/logging"
	"github.com/conneroisu/burrow/internal/runtime"
	"github.com/conneroisu/burrow/internal/sanitize"
)

// Props are the inputs of a Remote.
type Props struct {
	CompiledCode string             `json:"compiledCode"`
	Scope        map[string]any     `json:"scope,omitempty"`
	Components   runtime.Components `json:"-"`
	// Lazy defers linking to the first render and marks the output as a
	// lazy boundary.
	Lazy bool `json:"lazy,omitempty"`
}

// Fallback renders in place of content that failed to hydrate.
type Fallback func(err error) templ.Component

// DefaultFallback renders a generic alert. The error is not shown.
func DefaultFallback(error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div role="alert" class="burrow-error">This content could not be displayed.</div>`)
		return err
	})
}

// Option configures a Hydrator.
type Option func(*Hydrator)

// WithFallback replaces DefaultFallback.
func WithFallback(f Fallback) Option {
	return func(h *Hydrator) {
		if f != nil {
			h.fallback = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(h *Hydrator) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSanitizer shares a sanitizer, typically the one of an mdx.Service.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(h *Hydrator) {
		h.sanitizer = s
	}
}

// Hydrator holds what every Remote shares. It is safe for concurrent use.
type Hydrator struct {
	sanitizer *sanitize.Sanitizer
	logger    logging.Logger
	fallback  Fallback
}

// New creates a Hydrator.
func New(opts ...Option) *Hydrator {
	h := &Hydrator{
		logger:   logging.NewNop(),
		fallback: DefaultFallback,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.sanitizer == nil {
		h.sanitizer = sanitize.New(h.logger)
	}
	h.logger = h.logger.WithComponent("hydrate")
	return h
}

// Remote creates a component for props. Unless props.Lazy is set the code
// is linked immediately.
func (h *Hydrator) Remote(props Props) *Remote {
	r := &Remote{h: h}
	r.Update(props)
	return r
}

// memoKey is the identity of a set of props: the code by content, scope
// and components by map identity.
type memoKey struct {
	code       uint64
	scope      uintptr
	components uintptr
}

func keyOf(p Props) memoKey {
	return memoKey{
		code:       xxhash.Sum64String(p.CompiledCode),
		scope:      mapIdentity(p.Scope),
		components: mapIdentity(p.Components),
	}
}

func mapIdentity(m any) uintptr {
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Map || v.IsNil() {
		return 0
	}
	return v.Pointer()
}

// Remote renders hydrated content. It is safe for concurrent use.
type Remote struct {
	h *Hydrator

	mu      sync.Mutex
	props   Props
	key     memoKey
	linked  bool
	content *runtime.Content
	err     error
	links   int
}

// Update replaces the props. The code is re-linked only when the code, the
// scope map or the components map changed identity.
func (r *Remote) Update(props Props) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyOf(props)
	if !r.linked || key != r.key {
		r.linked = false
		r.content = nil
		r.err = nil
	}
	r.props = props
	r.key = key

	if !props.Lazy {
		r.link(context.Background())
	}
}

// link must be called with r.mu held.
func (r *Remote) link(ctx context.Context) {
	if r.linked {
		return
	}
	r.linked = true
	r.links++

	r.err = contain(func() error {
		scope := r.h.sanitizer.Sanitize(ctx, r.props.Scope)
		mod, err := runtime.Load(r.props.CompiledCode, runtime.ScopeLayer(scope))
		if err != nil {
			return err
		}
		r.content = mod.Content
		return nil
	})
}

// contain runs f and turns a panic into an error.
func contain(f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return f()
}

// Err returns the linking error, if any. A lazy Remote reports nil until
// its first render.
func (r *Remote) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Render implements templ.Component. Failures are logged and replaced by
// the fallback; only write errors of w are returned.
func (r *Remote) Render(ctx context.Context, w io.Writer) error {
	r.mu.Lock()
	r.link(ctx)
	content, linkErr, props := r.content, r.err, r.props
	r.mu.Unlock()

	var buf bytes.Buffer
	err := linkErr
	if err == nil {
		err = contain(func() error {
			return content.Component(props.Components).Render(ctx, &buf)
		})
	}
	if err != nil {
		buf.Reset()
		wrapped := errors.WrapHydration(err, "compiled content could not be hydrated")
		r.h.logger.Error(ctx, wrapped, "Hydration failed", "lazy", props.Lazy)
		if ferr := r.h.fallback(wrapped).Render(ctx, &buf); ferr != nil {
			return ferr
		}
	}

	if props.Lazy {
		if _, err := io.WriteString(w, `<div data-burrow-boundary="lazy">`); err != nil {
			return err
		}
	}
	if _, err := buf.WriteTo(w); err != nil {
		return err
	}
	if props.Lazy {
		_, err := io.WriteString(w, `</div>`)
		return err
	}
	return nil
}

// Render is a convenience for rendering props once into w.
func (h *Hydrator) Render(ctx context.Context, w io.Writer, props Props) error {
	return h.Remote(props).Render(ctx, w)
}
