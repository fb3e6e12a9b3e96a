// Package markdown is burrow's built-in compiler backend. It parses
// extended markdown (CommonMark plus GFM, footnotes, math, JSX-style tags,
// {expressions} and ESM import/export lines) with goldmark and emits an IR
// program.
package markdown

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/conneroisu/burrow/internal/compiler"
	"github.com/conneroisu/burrow/internal/ir"
)

type engineKey struct {
	gfm       bool
	footnotes bool
}

// Backend compiles documents. It is safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	engines map[engineKey]goldmark.Markdown
}

// New creates a backend.
func New() *Backend {
	return &Backend{engines: make(map[engineKey]goldmark.Markdown)}
}

// Load is a compiler.Loader that builds a backend with its default parser
// ready.
func Load(ctx context.Context) (compiler.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := New()
	b.engine(compiler.Options{}.Normalize())
	return b, nil
}

func (b *Backend) engine(opts compiler.Normalized) goldmark.Markdown {
	key := engineKey{gfm: opts.GFM, footnotes: opts.Footnotes}

	b.mu.Lock()
	defer b.mu.Unlock()

	if md, ok := b.engines[key]; ok {
		return md
	}

	var exts []goldmark.Extender
	if key.gfm {
		exts = append(exts, extension.GFM)
	}
	if key.footnotes {
		exts = append(exts, extension.Footnote)
	}
	md := goldmark.New(goldmark.WithExtensions(exts...))
	b.engines[key] = md
	return md
}

// Compile implements compiler.Backend.
func (b *Backend) Compile(ctx context.Context, source string, opts compiler.Normalized) (*compiler.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := preprocess(source)
	mod, err := parseStatements(doc.statements)
	if err != nil {
		return nil, err
	}

	conv := newConverter([]byte(doc.body), 0, opts, b.engine(opts), newSlugger(), newImageSet())
	body, err := conv.document()
	if err != nil {
		return nil, err
	}

	prog := &ir.Program{
		Version:   ir.Version,
		Exports:   mod.exports,
		Reexports: mod.reexports,
		Layout:    mod.layout,
		Body:      body,
	}
	if opts.JSXRuntime != "" {
		prog.Imports = append(prog.Imports, ir.Import{Source: opts.JSXRuntime})
	}
	prog.Imports = append(prog.Imports, mod.imports...)

	out := &compiler.Output{
		Frontmatter:   doc.frontmatter,
		Images:        conv.images.list,
		DefaultExport: mod.layout,
	}

	if doc.frontmatter != nil && !mod.hasExport("frontmatter") {
		if data, err := compiler.ParseFrontmatter(doc.frontmatter); err == nil {
			encoded, err := json.Marshal(data)
			if err != nil {
				return nil, fmt.Errorf("encode front-matter: %w", err)
			}
			prog.Exports = append(prog.Exports, ir.Export{Name: "frontmatter", Value: ir.Value{Literal: encoded}})
			out.Frontmatter = &compiler.RawFrontmatter{
				Raw:    doc.frontmatter.Raw,
				Data:   encoded,
				Format: doc.frontmatter.Format,
			}
		}
	}

	code, err := ir.Encode(prog)
	if err != nil {
		return nil, fmt.Errorf("encode compiled program: %w", err)
	}
	out.Code = code
	out.NamedExports = prog.ExportNames()
	for _, re := range prog.Reexports {
		out.Reexports = append(out.Reexports, re.Source)
	}
	for _, imp := range prog.Imports {
		out.Imports = append(out.Imports, imp.Source)
	}
	return out, nil
}
