// Package runtime executes compiled programs. It is the only place generated
// code is turned into something renderable, and it does so by interpreting
// the typed IR against an explicit, ordered set of binding layers. Nothing in
// this package evaluates free-form text.
package runtime

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Standard layer names, lowest precedence first.
const (
	LayerRuntime    = "runtime"
	LayerScope      = "scope"
	LayerComponents = "components"
	LayerImports    = "imports"
	LayerModule     = "module"
	LayerProps      = "props"
)

// Props are passed to components.
type Props struct {
	Attrs    map[string]any
	Children templ.Component
}

// Component renders a component from props.
type Component func(Props) templ.Component

// Components maps tag names to component implementations.
type Components map[string]Component

// Layer is a named set of bindings.
type Layer struct {
	Name     string
	Bindings map[string]any
}

// Environment is an ordered list of layers. Later layers take precedence
// over earlier ones.
type Environment struct {
	layers []Layer
}

// NewEnvironment builds an environment from layers in precedence order,
// lowest first.
func NewEnvironment(layers ...Layer) *Environment {
	return &Environment{layers: append([]Layer(nil), layers...)}
}

// With returns a new environment with layer added at the highest precedence.
func (e *Environment) With(layer Layer) *Environment {
	return NewEnvironment(append(e.Layers(), layer)...)
}

// Layers returns the layers in precedence order, lowest first.
func (e *Environment) Layers() []Layer {
	if e == nil {
		return nil
	}
	return append([]Layer(nil), e.layers...)
}

// Lookup returns the highest-precedence binding for name.
func (e *Environment) Lookup(name string) (any, bool) {
	v, _, ok := e.Resolve(name)
	return v, ok
}

// Resolve returns the binding for name and the layer that supplied it.
func (e *Environment) Resolve(name string) (any, string, bool) {
	if e == nil {
		return nil, "", false
	}
	for i := len(e.layers) - 1; i >= 0; i-- {
		if v, ok := e.layers[i].Bindings[name]; ok {
			return v, e.layers[i].Name, true
		}
	}
	return nil, "", false
}

// LookupIn returns the binding for name from the named layer only.
func (e *Environment) LookupIn(layer, name string) (any, bool) {
	if e == nil {
		return nil, false
	}
	for i := len(e.layers) - 1; i >= 0; i-- {
		if e.layers[i].Name != layer {
			continue
		}
		if v, ok := e.layers[i].Bindings[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Bindings returns the runtime layer: the primitives every program may use.
func Bindings() Layer {
	return Layer{
		Name: LayerRuntime,
		Bindings: map[string]any{
			"Fragment": Component(func(p Props) templ.Component {
				if p.Children == nil {
					return templ.NopComponent
				}
				return p.Children
			}),
		},
	}
}

// ComponentsLayer converts overrides into an environment layer.
func ComponentsLayer(components Components) Layer {
	bindings := make(map[string]any, len(components))
	for name, c := range components {
		bindings[name] = c
	}
	return Layer{Name: LayerComponents, Bindings: bindings}
}

// AsComponent adapts the supported component shapes to a Component.
func AsComponent(v any) (Component, bool) {
	switch c := v.(type) {
	case Component:
		return c, c != nil
	case func(Props) templ.Component:
		return Component(c), c != nil
	case templ.Component:
		if c == nil {
			return nil, false
		}
		return func(p Props) templ.Component {
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				if p.Children != nil {
					ctx = templ.WithChildren(ctx, p.Children)
				}
				return c.Render(ctx, w)
			})
		}, true
	default:
		return nil, false
	}
}
