// Package build renders a content directory to a static site: one HTML file
// per page, an index listing them and a manifest describing the run.
//
// Pages are built concurrently through the shared artifact cache, so a
// generator reusing a warm service only links and renders.
package build

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/a-h/templ"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/burrow/internal/compiler"
	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/hydrate"
	"github.com/conneroisu/burrow/internal/logging"
	"github.com/conneroisu/burrow/internal/mdx"
	"github.com/conneroisu/burrow/internal/validation"
)

const (
	// IndexFile is the generated page listing. A content page named
	// "index" replaces it.
	IndexFile = "index.html"
	// ManifestFile describes the last run.
	ManifestFile = "manifest.json"
)

// Options configures one Generate run.
type Options struct {
	ContentDir string
	OutputDir  string
	// Workers bounds concurrent page builds. Zero means one per CPU.
	Workers int
	// Scope is passed to every page.
	Scope map[string]any
	Lazy  bool
	// Layout wraps each page. Nil writes the body alone.
	Layout Layout
	// Clean removes OutputDir before building.
	Clean bool
}

// Page is the outcome of building one source.
type Page struct {
	Source
	Output   string        `json:"output,omitempty"`
	Title    string        `json:"title,omitempty"`
	Bytes    int64         `json:"bytes"`
	Hash     string        `json:"hash,omitempty"`
	CacheHit bool          `json:"cache_hit"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Err      error         `json:"-"`
}

// Report summarizes a Generate run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	OutputDir   string    `json:"output_dir"`
	Pages       []Page    `json:"pages"`
	Metrics     *Metrics  `json:"metrics"`
}

// Failed returns the pages that did not build.
func (r *Report) Failed() []Page {
	var failed []Page
	for _, p := range r.Pages {
		if p.Err != nil {
			failed = append(failed, p)
		}
	}
	return failed
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Generator builds static sites from an MDX service.
type Generator struct {
	svc    *mdx.Service
	logger logging.Logger
}

// NewGenerator creates a generator backed by svc.
func NewGenerator(svc *mdx.Service, opts ...Option) *Generator {
	g := &Generator{svc: svc, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithComponent("build")
	return g
}

// Generate builds every page under opts.ContentDir into opts.OutputDir.
// A page that fails is recorded in the report and does not stop the
// others; the returned error is reserved for setup failures and
// cancellation.
func (g *Generator) Generate(ctx context.Context, opts Options) (*Report, error) {
	perf := logging.StartOperation(g.logger, "generate")

	outDir, err := validation.ValidatePath(opts.OutputDir)
	if err != nil {
		return nil, errors.NewConfigError(errors.CodeConfigInvalid,
			fmt.Sprintf("invalid output directory %q: %v", opts.OutputDir, err))
	}
	if opts.Clean {
		if err := g.clean(outDir, opts.ContentDir); err != nil {
			return nil, err
		}
	}

	sources, err := Scan(opts.ContentDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	report := &Report{
		GeneratedAt: time.Now(),
		OutputDir:   outDir,
		Pages:       make([]Page, len(sources)),
		Metrics:     NewMetrics(),
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i, src := range sources {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			page := g.buildPage(gctx, src, outDir, opts)
			report.Pages[i] = page
			report.Metrics.Record(page)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}

	if err := g.writeIndex(ctx, report, opts.Layout); err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}
	if err := writeManifest(report); err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}

	snapshot := report.Metrics.Snapshot()
	g.logger.Info(ctx, "Site generated",
		"dir", outDir,
		"pages", snapshot.TotalPages,
		"failed", snapshot.FailedPages,
		"cache_hits", snapshot.CacheHits,
	)
	perf.End(ctx)
	return report, nil
}

func (g *Generator) buildPage(ctx context.Context, src Source, outDir string, opts Options) (page Page) {
	start := time.Now()
	page.Source = src
	defer func() {
		page.Duration = time.Since(start)
	}()

	source, err := os.ReadFile(src.Path)
	if err != nil {
		return g.fail(ctx, page, fmt.Errorf("read %s: %w", src.Path, err))
	}

	sopts := compiler.SerializeOptions{
		Compile: compiler.Options{Filepath: src.Path},
		Scope:   opts.Scope,
	}
	page.CacheHit = g.svc.Cache().Contains(g.svc.Key(string(source), sopts))
	result, err := g.svc.SerializeWithCache(ctx, string(source), sopts)
	if err != nil {
		return g.fail(ctx, page, err)
	}

	// The hydrator contains render failures; the fallback hook surfaces them.
	var renderErr error
	h := hydrate.New(
		hydrate.WithLogger(g.logger),
		hydrate.WithSanitizer(g.svc.Sanitizer()),
		hydrate.WithFallback(func(err error) templ.Component {
			renderErr = err
			return hydrate.DefaultFallback(err)
		}),
	)
	body := h.Remote(hydrate.Props{
		CompiledCode: result.CompiledCode,
		Scope:        result.Scope,
		Lazy:         opts.Lazy,
	})
	page.Title = Title(result.Frontmatter, path.Base(src.Name))

	var buf bytes.Buffer
	if err := wrap(opts.Layout, page.Title, body).Render(ctx, &buf); err != nil {
		return g.fail(ctx, page, err)
	}
	if renderErr != nil {
		return g.fail(ctx, page, renderErr)
	}

	out := filepath.Join(outDir, filepath.FromSlash(src.Name)+".html")
	if err := writeFile(out, buf.Bytes()); err != nil {
		return g.fail(ctx, page, err)
	}

	page.Output = out
	page.Bytes = int64(buf.Len())
	page.Hash = fmt.Sprintf("%016x", xxhash.Sum64(buf.Bytes()))
	g.logger.Debug(ctx, "Built page", "page", src.Name, "bytes", page.Bytes, "cache_hit", page.CacheHit)
	return page
}

func (g *Generator) fail(ctx context.Context, page Page, err error) Page {
	page.Err = err
	page.Error = err.Error()
	fields := append([]any{"page", page.Name}, errors.Fields(err)...)
	g.logger.Warn(ctx, err, "Page failed to build", fields...)
	return page
}

// writeIndex lists the built pages unless a content page already took
// the index slot.
func (g *Generator) writeIndex(ctx context.Context, report *Report, layout Layout) error {
	names := make([]string, 0, len(report.Pages))
	for _, p := range report.Pages {
		if p.Err != nil {
			continue
		}
		if p.Name == "index" {
			g.logger.Debug(ctx, "Content page replaces generated index")
			return nil
		}
		names = append(names, p.Name)
	}

	var buf bytes.Buffer
	index := Index(names, func(name string) string { return name + ".html" })
	if err := wrap(layout, "Pages", index).Render(ctx, &buf); err != nil {
		return fmt.Errorf("render index: %w", err)
	}
	return writeFile(filepath.Join(report.OutputDir, IndexFile), buf.Bytes())
}

func writeManifest(report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeFile(filepath.Join(report.OutputDir, ManifestFile), append(data, '\n'))
}

// clean removes outDir. It refuses a filesystem root, the working
// directory or any of its parents, and anything containing the content.
func (g *Generator) clean(outDir, contentDir string) error {
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return err
	}
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	absContent, err := filepath.Abs(contentDir)
	if err != nil {
		return err
	}
	if filepath.Dir(absOut) == absOut {
		return fmt.Errorf("refusing to clean %s: it is a filesystem root", outDir)
	}
	if absOut == wd || absOut == absContent {
		return stderrors.New("refusing to clean the working or content directory")
	}
	if rel, err := filepath.Rel(absOut, wd); err == nil && filepath.IsLocal(rel) {
		return fmt.Errorf("refusing to clean %s: it contains the working directory", outDir)
	}
	if rel, err := filepath.Rel(absOut, absContent); err == nil && filepath.IsLocal(rel) {
		return fmt.Errorf("refusing to clean %s: it contains the content directory", outDir)
	}

	if err := os.RemoveAll(absOut); err != nil {
		return fmt.Errorf("failed to clean output directory: %w", err)
	}
	g.logger.Debug(context.Background(), "Cleaned output directory", "dir", outDir)
	return nil
}

func wrap(layout Layout, title string, body templ.Component) templ.Component {
	if layout == nil {
		return body
	}
	return layout(title, body)
}

func writeFile(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
