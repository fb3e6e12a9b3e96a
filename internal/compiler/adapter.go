package compiler

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/logging"
)

// SerializeOptions control a single Serialize call.
type SerializeOptions struct {
	Scope   map[string]any `json:"scope,omitempty"`
	Compile Options        `json:"options,omitempty"`
	// ParseFrontmatter defaults to true.
	ParseFrontmatter *bool `json:"parseFrontmatter,omitempty"`
}

// Result is the payload handed from compilation to hydration.
type Result struct {
	CompiledCode string         `json:"compiledCode" yaml:"compiledCode"`
	Frontmatter  map[string]any `json:"frontmatter,omitempty" yaml:"frontmatter,omitempty"`
	Scope        map[string]any `json:"scope,omitempty" yaml:"scope,omitempty"`
	Images       []string       `json:"images,omitempty" yaml:"images,omitempty"`
}

// Adapter calls a backend with normalized options and shapes its output.
type Adapter struct {
	defaults Options
	logger   logging.Logger
}

// NewAdapter creates an adapter. defaults are merged under every call's
// options.
func NewAdapter(defaults Options, logger logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Adapter{
		defaults: defaults,
		logger:   logger.WithComponent("compiler"),
	}
}

// Normalize merges opts over the adapter defaults and applies the built-in
// defaults.
func (a *Adapter) Normalize(opts Options) Normalized {
	return a.defaults.Merge(opts).Normalize()
}

// Fingerprint returns the cache fingerprint for opts.
func (a *Adapter) Fingerprint(opts Options) string {
	return a.Normalize(opts).Fingerprint()
}

// Serialize compiles source and returns the result with parsed
// front-matter. Compiler failures are returned as compilation errors with
// the backend error as cause; context errors are returned unwrapped. Front-matter that fails to parse is logged
// and left out.
func (a *Adapter) Serialize(ctx context.Context, backend Backend, source string, opts SerializeOptions) (*Result, error) {
	norm := a.Normalize(opts.Compile)

	start := time.Now()
	out, err := backend.Compile(ctx, source, norm)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		a.decorate(err, source, norm)
		wrapped := errors.WrapCompilation(err)
		a.logger.Debug(ctx, "Compilation failed", "file", norm.Filepath, "error", err.Error())
		return nil, wrapped
	}
	if out == nil {
		return nil, errors.WrapCompilation(stderrors.New("backend returned no output"))
	}

	result := &Result{
		CompiledCode: out.Code,
		Scope:        opts.Scope,
		Images:       out.Images,
	}

	if boolOr(opts.ParseFrontmatter, true) && out.Frontmatter != nil {
		fm, err := ParseFrontmatter(out.Frontmatter)
		if err != nil {
			warning := errors.Wrap(err, errors.TypeFrontmatter, errors.CodeFrontmatterFailed, "front-matter ignored")
			if norm.Filepath != "" {
				warning.FilePath = norm.Filepath
			}
			a.logger.Warn(ctx, warning, "Failed to parse front-matter", "format", string(out.Frontmatter.Format))
		} else {
			result.Frontmatter = fm
		}
	}

	a.logger.Debug(ctx, "Compiled",
		"file", norm.Filepath,
		"bytes", len(out.Code),
		"images", len(out.Images),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// isContextErr reports cancellation and deadline errors, which are not
// compilation failures and are returned as they are.
func isContextErr(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// decorate fills in location details the backend left out.
func (a *Adapter) decorate(err error, source string, norm Normalized) {
	var ce *errors.CompileError
	if !stderrors.As(err, &ce) {
		return
	}
	if ce.File == "" {
		ce.File = norm.Filepath
	}
	if ce.Context == "" && ce.Line > 0 {
		ce.Context = errors.SourceContext(source, ce.Line, ce.Column)
	}
}
