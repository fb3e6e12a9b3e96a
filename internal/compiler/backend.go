// Package compiler wraps the external markdown compiler behind a narrow
// contract. It normalizes options, parses embedded front-matter and turns
// backend failures into structured compilation errors. It never caches;
// caching is the caller's decision.
package compiler

import (
	"context"
	"encoding/json"
)

// FrontmatterFormat is the syntax of a front-matter block.
type FrontmatterFormat string

const (
	FormatYAML FrontmatterFormat = "yaml"
	FormatTOML FrontmatterFormat = "toml"
)

// RawFrontmatter is the unparsed front-matter a backend found. Data, when
// present, is already JSON and takes precedence over Raw.
type RawFrontmatter struct {
	Raw    string            `json:"raw,omitempty"`
	Data   json.RawMessage   `json:"data,omitempty"`
	Format FrontmatterFormat `json:"format"`
}

// Output is what a backend returns for one source document.
type Output struct {
	Code          string          `json:"code"`
	Frontmatter   *RawFrontmatter `json:"frontmatter,omitempty"`
	Images        []string        `json:"images"`
	NamedExports  []string        `json:"namedExports"`
	Reexports     []string        `json:"reexports"`
	Imports       []string        `json:"imports"`
	DefaultExport string          `json:"defaultExport,omitempty"`
}

// Backend compiles extended-markdown source into generated code. Failures
// should be *errors.CompileError where the backend can locate them.
type Backend interface {
	Compile(ctx context.Context, source string, opts Normalized) (*Output, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, source string, opts Normalized) (*Output, error)

// Compile calls f.
func (f BackendFunc) Compile(ctx context.Context, source string, opts Normalized) (*Output, error) {
	return f(ctx, source, opts)
}

// Loader loads a backend, possibly slowly. It is called through the
// initialization gate.
type Loader func(ctx context.Context) (Backend, error)

// Static returns a Loader that yields b immediately.
func Static(b Backend) Loader {
	return func(context.Context) (Backend, error) {
		return b, nil
	}
}
