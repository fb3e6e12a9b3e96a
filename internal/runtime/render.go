package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/burrow/internal/ir"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

var urlAttrs = map[string]bool{
	"href": true, "src": true, "action": true, "formaction": true,
	"poster": true, "cite": true, "xlink:href": true,
}

var attrAliases = map[string]string{
	"className": "class",
	"htmlFor":   "for",
}

// Content is the default export of a linked module: its body, optionally
// wrapped in a layout.
type Content struct {
	program *ir.Program
	env     *Environment
}

// Program returns the program the content was linked from.
func (c *Content) Program() *ir.Program {
	return c.program
}

// Environment returns the environment the content renders against,
// including the module's own exports.
func (c *Content) Environment() *Environment {
	return c.env
}

// With returns a copy of c that also sees layer, above every other layer.
func (c *Content) With(layer Layer) *Content {
	return &Content{program: c.program, env: c.env.With(layer)}
}

// Component returns a renderable for the content. Overrides are consulted
// before the environment for every component tag and may also replace
// intrinsic elements by tag name.
func (c *Content) Component(overrides Components) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		r := &renderer{env: c.env, overrides: overrides}
		body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			return r.nodes(ctx, w, c.program.Body)
		})

		if c.program.Layout == "" {
			return body.Render(ctx, w)
		}

		layout, err := r.lookupComponent(c.program.Layout)
		if err != nil {
			return fmt.Errorf("layout: %w", err)
		}
		attrs := map[string]any{}
		if mod, ok := lastLayer(c.env, LayerModule); ok {
			for k, v := range mod.Bindings {
				attrs[k] = v
			}
		}
		out := layout(Props{Attrs: attrs, Children: body})
		if out == nil {
			return nil
		}
		return out.Render(templ.WithChildren(ctx, body), w)
	})
}

// RenderString renders c into a string.
func RenderString(ctx context.Context, c templ.Component) (string, error) {
	var b strings.Builder
	if err := c.Render(ctx, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func lastLayer(env *Environment, name string) (Layer, bool) {
	layers := env.Layers()
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i].Name == name {
			return layers[i], true
		}
	}
	return Layer{}, false
}

type renderer struct {
	env       *Environment
	overrides Components
}

func (r *renderer) nodes(ctx context.Context, w io.Writer, nodes []ir.Node) error {
	for _, n := range nodes {
		if err := r.node(ctx, w, n); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) node(ctx context.Context, w io.Writer, n ir.Node) error {
	switch n.Kind {
	case ir.KindText:
		_, err := io.WriteString(w, templ.EscapeString(n.Text))
		return err
	case ir.KindExpr:
		v, err := lookupPath(r.env, n.Ref)
		if err != nil {
			return err
		}
		return r.value(ctx, w, v)
	case ir.KindFragment:
		return r.nodes(ctx, w, n.Children)
	case ir.KindElement:
		return r.element(ctx, w, n)
	case ir.KindComponent:
		comp, err := r.lookupComponent(n.Tag)
		if err != nil {
			return err
		}
		return r.invoke(ctx, w, comp, n)
	default:
		return fmt.Errorf("unknown node kind %q", n.Kind)
	}
}

func (r *renderer) element(ctx context.Context, w io.Writer, n ir.Node) error {
	if comp, ok := r.intrinsicOverride(n.Tag); ok {
		return r.invoke(ctx, w, comp, n)
	}

	var b strings.Builder
	b.WriteString("<")
	b.WriteString(n.Tag)
	for _, a := range n.Attrs {
		v, err := evalValue(r.env, a.Value)
		if err != nil {
			return err
		}
		writeAttr(&b, a.Name, v)
	}
	b.WriteString(">")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	if voidElements[n.Tag] {
		return nil
	}
	if err := r.nodes(ctx, w, n.Children); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</"+n.Tag+">")
	return err
}

func (r *renderer) invoke(ctx context.Context, w io.Writer, comp Component, n ir.Node) error {
	attrs := make(map[string]any, len(n.Attrs))
	for _, a := range n.Attrs {
		v, err := evalValue(r.env, a.Value)
		if err != nil {
			return err
		}
		attrs[a.Name] = v
	}

	var children templ.Component
	if len(n.Children) > 0 {
		kids := n.Children
		children = templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			return r.nodes(ctx, w, kids)
		})
		ctx = templ.WithChildren(ctx, children)
	}

	out := comp(Props{Attrs: attrs, Children: children})
	if out == nil {
		return nil
	}
	return out.Render(ctx, w)
}

func (r *renderer) intrinsicOverride(tag string) (Component, bool) {
	if c, ok := r.overrides[tag]; ok && c != nil {
		return c, true
	}
	if v, ok := r.env.LookupIn(LayerComponents, tag); ok {
		return AsComponent(v)
	}
	return nil, false
}

func (r *renderer) lookupComponent(name string) (Component, error) {
	if c, ok := r.overrides[name]; ok && c != nil {
		return c, nil
	}
	v, err := lookupPath(r.env, name)
	if err != nil {
		var re *ReferenceError
		if errors.As(err, &re) {
			return nil, &ReferenceError{Name: name, Component: true}
		}
		return nil, err
	}
	if v == nil {
		return nil, &ReferenceError{Name: name, Component: true}
	}
	c, ok := AsComponent(v)
	if !ok {
		return nil, fmt.Errorf("%s is not a component (got %T)", name, v)
	}
	return c, nil
}

func (r *renderer) value(ctx context.Context, w io.Writer, v any) error {
	switch x := v.(type) {
	case nil, bool:
		return nil
	case string:
		_, err := io.WriteString(w, templ.EscapeString(x))
		return err
	case float64:
		_, err := io.WriteString(w, strconv.FormatFloat(x, 'f', -1, 64))
		return err
	case Component:
		return r.renderComponent(ctx, w, x)
	case func(Props) templ.Component:
		return r.renderComponent(ctx, w, x)
	case templ.Component:
		return x.Render(ctx, w)
	case []any:
		for _, item := range x {
			if err := r.value(ctx, w, item); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := r.value(ctx, w, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map, reflect.Struct, reflect.Func, reflect.Chan:
		return fmt.Errorf("value of type %T is not valid as content", v)
	default:
		_, err := io.WriteString(w, templ.EscapeString(fmt.Sprint(v)))
		return err
	}
}

func (r *renderer) renderComponent(ctx context.Context, w io.Writer, c Component) error {
	out := c(Props{Attrs: map[string]any{}})
	if out == nil {
		return nil
	}
	return out.Render(ctx, w)
}

func writeAttr(b *strings.Builder, name string, v any) {
	if alias, ok := attrAliases[name]; ok {
		name = alias
	}
	if strings.HasPrefix(strings.ToLower(name), "on") {
		return
	}

	var s string
	switch x := v.(type) {
	case nil:
		return
	case bool:
		if x {
			b.WriteString(" ")
			b.WriteString(name)
		}
		return
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case map[string]any:
		if name != "style" {
			data, err := json.Marshal(x)
			if err != nil {
				return
			}
			s = string(data)
			break
		}
		s = styleString(x)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			return
		case reflect.Map, reflect.Slice, reflect.Struct:
			data, err := json.Marshal(v)
			if err != nil {
				return
			}
			s = string(data)
		default:
			s = fmt.Sprint(v)
		}
	}

	if urlAttrs[strings.ToLower(name)] {
		s = string(templ.URL(s))
	}

	b.WriteString(" ")
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(templ.EscapeString(s))
	b.WriteString(`"`)
}

func styleString(style map[string]any) string {
	keys := make([]string, 0, len(style))
	for k := range style {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := style[k]
		if v == nil {
			continue
		}
		b.WriteString(cssProperty(k))
		b.WriteString(":")
		switch x := v.(type) {
		case string:
			b.WriteString(x)
		case float64:
			b.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
		default:
			b.WriteString(fmt.Sprint(x))
		}
		b.WriteString(";")
	}
	return b.String()
}

// cssProperty converts a camelCase style key into its CSS property name.
func cssProperty(k string) string {
	var b strings.Builder
	for i, r := range k {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
