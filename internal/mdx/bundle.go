package mdx

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/burrow/internal/compiler"
	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/ir"
	"github.com/conneroisu/burrow/internal/runtime"
)

// IsDocument reports whether an import source names a document Evaluate
// can resolve from EvaluateOptions.Files.
func IsDocument(source string) bool {
	switch path.Ext(source) {
	case ".mdx", ".md":
		return true
	default:
		return false
	}
}

// FilePath normalizes a virtual file name or a resolved import: slash
// separated, relative to the root of Files, without "./" segments.
func FilePath(name string) string {
	return path.Clean(strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/"))
}

// bundler links the document imports of one Evaluate call. Each file is
// compiled through the artifact cache and linked once per call.
type bundler struct {
	s      *Service
	opts   EvaluateOptions
	scope  map[string]any
	files  map[string]string
	loaded map[string]*runtime.Module
	active map[string]bool
}

func newBundler(s *Service, opts EvaluateOptions, scope map[string]any) *bundler {
	files := make(map[string]string, len(opts.Files))
	for name, source := range opts.Files {
		files[FilePath(name)] = source
	}
	return &bundler{
		s:      s,
		opts:   opts,
		scope:  scope,
		files:  files,
		loaded: make(map[string]*runtime.Module),
		active: make(map[string]bool),
	}
}

// layer returns the bindings the document imports of code introduce. dir is
// the directory of the importing file; "." for the entry document.
func (b *bundler) layer(ctx context.Context, code, dir string) (runtime.Layer, error) {
	p, err := ir.Decode(code)
	if err != nil {
		return runtime.Layer{}, errors.WrapEvaluation(err, errors.CodeDecodeFailed, "compiled code could not be decoded")
	}

	bindings := make(map[string]any)
	for _, imp := range p.Imports {
		if !IsDocument(imp.Source) {
			continue
		}
		name := FilePath(path.Join(dir, imp.Source))
		mod, err := b.load(ctx, name)
		if err != nil {
			return runtime.Layer{}, err
		}

		if imp.Default != "" {
			bindings[imp.Default] = b.component(mod.Content)
		}
		if imp.Namespace != "" {
			ns := make(map[string]any, len(mod.Exports)+1)
			for k, v := range mod.Exports {
				ns[k] = v
			}
			ns["default"] = b.component(mod.Content)
			bindings[imp.Namespace] = ns
		}
		for _, local := range imp.Names {
			v, ok := mod.Exports[imp.Imported(local)]
			if !ok {
				return runtime.Layer{}, importError(name,
					fmt.Sprintf("%s does not export %q", name, imp.Imported(local)))
			}
			bindings[local] = v
		}
	}
	return runtime.Layer{Name: runtime.LayerImports, Bindings: bindings}, nil
}

func (b *bundler) load(ctx context.Context, name string) (*runtime.Module, error) {
	if mod, ok := b.loaded[name]; ok {
		return mod, nil
	}
	if b.active[name] {
		return nil, importError(name, fmt.Sprintf("import cycle through %s", name))
	}
	if !fs.ValidPath(name) {
		return nil, importError(name, fmt.Sprintf("cannot resolve import %q: path leaves the file root", name))
	}
	source, ok := b.files[name]
	if !ok {
		return nil, importError(name, fmt.Sprintf("cannot resolve import %q: not among the provided files", name))
	}

	b.active[name] = true
	defer delete(b.active, name)

	copts := b.opts.Compile
	copts.Filepath = name
	compiled, err := b.s.SerializeWithCache(ctx, source, compiler.SerializeOptions{Compile: copts})
	if err != nil {
		return nil, err
	}

	imports, err := b.layer(ctx, compiled.CompiledCode, path.Dir(name))
	if err != nil {
		return nil, err
	}
	mod, err := runtime.Load(compiled.CompiledCode,
		runtime.ScopeLayer(b.scope),
		runtime.ComponentsLayer(b.opts.Components),
		imports,
	)
	if err != nil {
		return nil, err
	}

	b.s.logger.Debug(ctx, "Linked import", "file", name, "bytes", len(source))
	b.loaded[name] = mod
	return mod, nil
}

// component renders imported content. Its attributes and children are
// visible to the document as props.
func (b *bundler) component(content *runtime.Content) runtime.Component {
	overrides := b.opts.Components
	return func(p runtime.Props) templ.Component {
		props := make(map[string]any, len(p.Attrs)+1)
		for k, v := range p.Attrs {
			props[k] = v
		}
		if p.Children != nil {
			props["children"] = p.Children
		}
		return content.With(runtime.Layer{
			Name:     runtime.LayerProps,
			Bindings: map[string]any{"props": props},
		}).Component(overrides)
	}
}

func importError(name, msg string) error {
	return errors.New(errors.TypeEvaluation, errors.CodeImportFailed, msg).WithContext("import", name)
}
