// Package mdx is the view-layer surface of burrow. A Service owns the
// compiler backend behind an initialization gate, the artifact cache and
// the scope sanitizer, and exposes Serialize, SerializeWithCache, Evaluate
// and EvaluateSync.
package mdx

import (
	"context"
	"io"

	"github.com/a-h/templ"
	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/burrow/internal/cache"
	"github.com/conneroisu/burrow/internal/compiler"
	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/gate"
	"github.com/conneroisu/burrow/internal/logging"
	"github.com/conneroisu/burrow/internal/runtime"
	"github.com/conneroisu/burrow/internal/sanitize"
)

// EvaluateOptions control Evaluate and EvaluateSync.
type EvaluateOptions struct {
	Scope      map[string]any
	Compile    compiler.Options
	Components runtime.Components
	// Files is a virtual filesystem of documents keyed by path relative to
	// the evaluated source, e.g. "./Button.mdx". When set, every .md and
	// .mdx import must resolve to one of them; its default export binds
	// as a component and its named exports by name. Other imports are
	// left to the environment.
	Files map[string]string
}

// EvaluateResult is compiled content ready to render.
type EvaluateResult struct {
	// Default renders the content with the components given at evaluation.
	Default templ.Component
	Content *runtime.Content
	// Frontmatter is the program's frontmatter export, or the front-matter
	// parsed by the compiler adapter when the program has none.
	Frontmatter map[string]any
	Exports     map[string]any
}

// Option configures a Service.
type Option func(*Service)

// WithCache makes the service use store instead of a private one.
func WithCache(store *cache.Store) Option {
	return func(s *Service) {
		s.cache = store
	}
}

// WithDefaults sets compile options merged under every call's options.
func WithDefaults(opts compiler.Options) Option {
	return func(s *Service) {
		s.defaults = opts
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service compiles and evaluates documents. It is safe for concurrent use.
type Service struct {
	gate      *gate.Gate[compiler.Backend]
	adapter   *compiler.Adapter
	cache     *cache.Store
	sanitizer *sanitize.Sanitizer
	logger    logging.Logger
	defaults  compiler.Options

	misses singleflight.Group
}

// New creates a service whose backend is produced by load on first use.
func New(load compiler.Loader, opts ...Option) *Service {
	s := &Service{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New(cache.Config{})
	}

	s.gate = gate.New(gate.Loader[compiler.Backend](load), s.logger)
	s.adapter = compiler.NewAdapter(s.defaults, s.logger)
	s.sanitizer = sanitize.New(s.logger)
	s.logger = s.logger.WithComponent("mdx")
	return s
}

// NewWithBackend creates a service around an already loaded backend. It is
// Ready immediately.
func NewWithBackend(backend compiler.Backend, opts ...Option) *Service {
	s := New(compiler.Static(backend), opts...)
	s.gate = gate.NewReady(backend)
	return s
}

// Initialize loads the compiler backend if it is not loaded yet.
func (s *Service) Initialize(ctx context.Context) error {
	_, err := s.gate.Initialize(ctx)
	return err
}

// Ready reports whether the backend is loaded.
func (s *Service) Ready() bool {
	return s.gate.State() == gate.Ready
}

// Cache returns the artifact cache.
func (s *Service) Cache() *cache.Store {
	return s.cache
}

// Sanitizer returns the scope sanitizer shared by the service.
func (s *Service) Sanitizer() *sanitize.Sanitizer {
	return s.sanitizer
}

// Serialize compiles source, waiting for the backend if necessary. The
// returned scope is the sanitized form of opts.Scope.
func (s *Service) Serialize(ctx context.Context, source string, opts compiler.SerializeOptions) (*compiler.Result, error) {
	backend, err := s.gate.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	opts.Scope = s.sanitizer.Sanitize(ctx, opts.Scope)
	return s.adapter.Serialize(ctx, backend, source, opts)
}

// Key returns the cache key SerializeWithCache uses for source and opts.
func (s *Service) Key(source string, opts compiler.SerializeOptions) cache.Key {
	fp := s.adapter.Fingerprint(opts.Compile)
	if opts.ParseFrontmatter != nil && !*opts.ParseFrontmatter {
		fp += ";frontmatter=false"
	}
	return cache.KeyFor(source, fp)
}

// SerializeWithCache is Serialize backed by the artifact cache. A hit is
// combined with the caller's current scope; the scope is never cached.
// Concurrent misses for one key share a single compilation.
func (s *Service) SerializeWithCache(ctx context.Context, source string, opts compiler.SerializeOptions) (*compiler.Result, error) {
	perf := logging.StartOperation(s.logger, "serialize_with_cache")
	key := s.Key(source, opts)

	if entry, ok := s.cache.Get(key); ok {
		s.logger.Debug(ctx, "Cache hit", "key", string(key))
		perf.End(ctx)
		return s.fromEntry(ctx, entry, opts.Scope), nil
	}

	// The compilation outlives any one caller: a caller whose context ends
	// stops waiting and the others still get the result.
	compileCtx := context.WithoutCancel(ctx)
	ch := s.misses.DoChan(string(key), func() (any, error) {
		compiled, err := s.Serialize(compileCtx, source, compiler.SerializeOptions{
			Compile:          opts.Compile,
			ParseFrontmatter: opts.ParseFrontmatter,
		})
		if err != nil {
			return nil, err
		}
		entry := cache.Entry{
			CompiledCode: compiled.CompiledCode,
			Frontmatter:  compiled.Frontmatter,
			Images:       compiled.Images,
		}
		s.cache.Set(key, entry)
		return entry, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		perf.EndWithError(ctx, ctx.Err())
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		perf.EndWithError(ctx, res.Err)
		return nil, res.Err
	}

	s.logger.Debug(ctx, "Cache miss", "key", string(key), "shared", res.Shared)
	perf.End(ctx)
	return s.fromEntry(ctx, res.Val.(cache.Entry), opts.Scope), nil
}

func (s *Service) fromEntry(ctx context.Context, entry cache.Entry, scope map[string]any) *compiler.Result {
	entry = entry.Clone()
	return &compiler.Result{
		CompiledCode: entry.CompiledCode,
		Frontmatter:  entry.Frontmatter,
		Scope:        s.sanitizer.Sanitize(ctx, scope),
		Images:       entry.Images,
	}
}

// Evaluate compiles source and links it against the runtime bindings, the
// sanitized scope, the given components and the documents it imports from
// opts.Files, in that order of precedence.
func (s *Service) Evaluate(ctx context.Context, source string, opts EvaluateOptions) (*EvaluateResult, error) {
	backend, err := s.gate.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, backend, source, opts)
}

// EvaluateSync is Evaluate without waiting for the backend. It fails with
// errors.ErrNotInitialized until Initialize has completed.
func (s *Service) EvaluateSync(ctx context.Context, source string, opts EvaluateOptions) (*EvaluateResult, error) {
	backend, err := s.gate.Value()
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, backend, source, opts)
}

func (s *Service) evaluate(ctx context.Context, backend compiler.Backend, source string, opts EvaluateOptions) (*EvaluateResult, error) {
	perf := logging.StartOperation(s.logger, "evaluate")

	scope := s.sanitizer.Sanitize(ctx, opts.Scope)
	compiled, err := s.adapter.Serialize(ctx, backend, source, compiler.SerializeOptions{
		Scope:   scope,
		Compile: opts.Compile,
	})
	if err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}

	layers := []runtime.Layer{runtime.ScopeLayer(scope), runtime.ComponentsLayer(opts.Components)}
	if opts.Files != nil {
		imports, err := newBundler(s, opts, scope).layer(ctx, compiled.CompiledCode, ".")
		if err != nil {
			perf.EndWithError(ctx, err)
			return nil, err
		}
		layers = append(layers, imports)
	}

	mod, err := runtime.Load(compiled.CompiledCode, layers...)
	if err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}

	result := &EvaluateResult{
		Default:     evaluated(mod.Content.Component(opts.Components)),
		Content:     mod.Content,
		Frontmatter: compiled.Frontmatter,
		Exports:     mod.Exports,
	}
	if fm, ok := mod.Exports["frontmatter"].(map[string]any); ok {
		result.Frontmatter = fm
	}

	perf.End(ctx)
	return result, nil
}

// evaluated reports render failures of c as evaluation errors.
func evaluated(c templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := c.Render(ctx, w); err != nil {
			return errors.WrapEvaluation(err, errors.CodeRenderFailed, "compiled content failed to render")
		}
		return nil
	})
}
