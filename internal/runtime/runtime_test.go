package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/burrow/internal/ir"
)

func wrapper(tag string) Component {
	return func(p Props) templ.Component {
		return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			if _, err := fmt.Fprintf(w, "<%s data-kind=%q>", tag, fmt.Sprint(p.Attrs["kind"])); err != nil {
				return err
			}
			if p.Children != nil {
				if err := p.Children.Render(ctx, w); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintf(w, "</%s>", tag)
			return err
		})
	}
}

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	out, err := RenderString(context.Background(), c)
	require.NoError(t, err)
	return out
}

func TestEnvironmentPrecedence(t *testing.T) {
	env := NewEnvironment(
		Layer{Name: LayerRuntime, Bindings: map[string]any{"a": "runtime", "b": "runtime"}},
		Layer{Name: LayerScope, Bindings: map[string]any{"a": "scope", "c": "scope"}},
		Layer{Name: LayerComponents, Bindings: map[string]any{"a": "components"}},
	)

	v, layer, ok := env.Resolve("a")
	require.True(t, ok)
	assert.Equal(t, "components", v)
	assert.Equal(t, LayerComponents, layer)

	_, layer, _ = env.Resolve("b")
	assert.Equal(t, LayerRuntime, layer)

	_, ok = env.Lookup("missing")
	assert.False(t, ok)

	v, ok = env.LookupIn(LayerScope, "a")
	require.True(t, ok)
	assert.Equal(t, "scope", v)

	extended := env.With(Layer{Name: LayerModule, Bindings: map[string]any{"c": "module"}})
	v, _ = extended.Lookup("c")
	assert.Equal(t, "module", v)
	v, _ = env.Lookup("c")
	assert.Equal(t, "scope", v, "With must not modify the receiver")
}

func TestLinkResolvesExports(t *testing.T) {
	p := &ir.Program{
		Version: ir.Version,
		Exports: []ir.Export{
			{Name: "frontmatter", Value: ir.Lit(map[string]any{"title": "Post"})},
			{Name: "title", Value: ir.Ref("frontmatter.title")},
			{Name: "who", Value: ir.Ref("user.Name")},
		},
		Body: []ir.Node{ir.Expr("title")},
	}
	env := NewEnvironment(Bindings(), Layer{Name: LayerScope, Bindings: map[string]any{
		"user": struct{ Name string }{Name: "Ada"},
	}})

	mod, err := Link(p, env)
	require.NoError(t, err)

	assert.Equal(t, "Post", mod.Exports["title"])
	assert.Equal(t, "Ada", mod.Exports["who"])
	assert.Equal(t, map[string]any{"title": "Post"}, mod.Exports["frontmatter"])
	assert.Equal(t, "Post", render(t, mod.Content.Component(nil)))
}

func TestLinkFailures(t *testing.T) {
	t.Run("unresolved reference", func(t *testing.T) {
		p := &ir.Program{Version: ir.Version, Exports: []ir.Export{{Name: "x", Value: ir.Ref("nope")}}}
		_, err := Link(p, nil)
		var re *ReferenceError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "nope", re.Name)
		assert.Contains(t, err.Error(), "nope is not defined")
	})

	t.Run("member of undefined", func(t *testing.T) {
		p := &ir.Program{Version: ir.Version, Exports: []ir.Export{{Name: "x", Value: ir.Ref("a.b.c")}}}
		env := NewEnvironment(Layer{Name: LayerScope, Bindings: map[string]any{"a": map[string]any{}}})
		_, err := Link(p, env)
		var pe *PathError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "c", pe.Segment)
	})

	t.Run("unresolved re-export", func(t *testing.T) {
		p := &ir.Program{Version: ir.Version, Reexports: []ir.Reexport{{Source: "./x", Names: []string{"Y"}}}}
		_, err := Link(p, nil)
		var re *ReferenceError
		require.ErrorAs(t, err, &re)
	})

	t.Run("invalid program", func(t *testing.T) {
		_, err := Link(&ir.Program{Version: 99}, nil)
		assert.ErrorIs(t, err, ir.ErrInvalidProgram)
	})
}

func TestRenderEscapesAndSanitizes(t *testing.T) {
	p := &ir.Program{
		Version: ir.Version,
		Body: []ir.Node{
			ir.Element("p", []ir.Attr{
				{Name: "className", Value: ir.Lit("lead")},
				{Name: "onclick", Value: ir.Lit("alert(1)")},
				{Name: "hidden", Value: ir.Lit(false)},
				{Name: "data-x", Value: ir.Lit(`"quoted"`)},
			}, ir.Text("<b>not bold</b>")),
			ir.Element("a", []ir.Attr{{Name: "href", Value: ir.Lit("javascript:alert(1)")}}, ir.Text("bad")),
			ir.Element("a", []ir.Attr{{Name: "href", Value: ir.Lit("https://example.com/?a=1&b=2")}}, ir.Text("good")),
			ir.Element("img", []ir.Attr{{Name: "src", Value: ir.Lit("/x.png")}, {Name: "alt", Value: ir.Lit("x")}}),
			ir.Element("input", []ir.Attr{{Name: "checked", Value: ir.Lit(true)}, {Name: "disabled", Value: ir.Lit(true)}}),
			ir.Element("span", []ir.Attr{{Name: "style", Value: ir.Lit(map[string]any{"textAlign": "center"})}}),
			ir.Expr("html"),
		},
	}
	env := NewEnvironment(Bindings(), Layer{Name: LayerScope, Bindings: map[string]any{"html": "<script>x</script>"}})

	mod, err := Link(p, env)
	require.NoError(t, err)
	out := render(t, mod.Content.Component(nil))

	assert.Contains(t, out, `<p class="lead" data-x="&#34;quoted&#34;">&lt;b&gt;not bold&lt;/b&gt;</p>`)
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, `href="https://example.com/?a=1&amp;b=2"`)
	assert.Contains(t, out, `<img src="/x.png" alt="x">`)
	assert.NotContains(t, out, "</img>")
	assert.Contains(t, out, `<input checked disabled>`)
	assert.Contains(t, out, `<span style="text-align:center;"></span>`)
	assert.Contains(t, out, "&lt;script&gt;x&lt;/script&gt;")
}

func TestRenderComponents(t *testing.T) {
	p := &ir.Program{
		Version: ir.Version,
		Body: []ir.Node{
			ir.Component("Callout", []ir.Attr{{Name: "kind", Value: ir.Lit("info")}}, ir.Text("inside")),
			ir.Element("h1", nil, ir.Text("Title")),
		},
	}

	t.Run("from environment", func(t *testing.T) {
		env := NewEnvironment(Bindings(), ComponentsLayer(Components{"Callout": wrapper("aside")}))
		mod, err := Link(p, env)
		require.NoError(t, err)
		out := render(t, mod.Content.Component(nil))
		assert.Equal(t, `<aside data-kind="info">inside</aside><h1>Title</h1>`, out)
	})

	t.Run("render-time overrides win", func(t *testing.T) {
		env := NewEnvironment(Bindings(), ComponentsLayer(Components{"Callout": wrapper("aside")}))
		mod, err := Link(p, env)
		require.NoError(t, err)
		out := render(t, mod.Content.Component(Components{
			"Callout": wrapper("section"),
			"h1":      wrapper("h2"),
		}))
		assert.Equal(t, `<section data-kind="info">inside</section><h2 data-kind="<nil>">Title</h2>`, out)
	})

	t.Run("scope bindings never replace intrinsic elements", func(t *testing.T) {
		env := NewEnvironment(Bindings(),
			Layer{Name: LayerScope, Bindings: map[string]any{"h1": "shadow"}},
			ComponentsLayer(Components{"Callout": wrapper("aside")}))
		mod, err := Link(p, env)
		require.NoError(t, err)
		assert.Contains(t, render(t, mod.Content.Component(nil)), "<h1>Title</h1>")
	})

	t.Run("undefined component fails the render", func(t *testing.T) {
		mod, err := Link(p, nil)
		require.NoError(t, err)
		_, err = RenderString(context.Background(), mod.Content.Component(nil))
		var re *ReferenceError
		require.ErrorAs(t, err, &re)
		assert.True(t, re.Component)
		assert.Equal(t, "Callout", re.Name)
	})

	t.Run("non-component binding", func(t *testing.T) {
		env := NewEnvironment(Layer{Name: LayerScope, Bindings: map[string]any{"Callout": 42.0}})
		mod, err := Link(p, env)
		require.NoError(t, err)
		_, err = RenderString(context.Background(), mod.Content.Component(nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not a component")
	})
}

func TestRenderTemplComponentReceivesChildren(t *testing.T) {
	box := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<div>"); err != nil {
			return err
		}
		if err := templ.GetChildren(ctx).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</div>")
		return err
	})

	p := &ir.Program{Version: ir.Version, Body: []ir.Node{ir.Component("Box", nil, ir.Text("kid"))}}
	mod, err := Link(p, NewEnvironment(Layer{Name: LayerComponents, Bindings: map[string]any{"Box": box}}))
	require.NoError(t, err)
	assert.Equal(t, "<div>kid</div>", render(t, mod.Content.Component(nil)))
}

func TestRenderLayout(t *testing.T) {
	p := &ir.Program{
		Version: ir.Version,
		Exports: []ir.Export{{Name: "kind", Value: ir.Lit("post")}},
		Layout:  "Layout",
		Body:    []ir.Node{ir.Element("p", nil, ir.Text("body"))},
	}

	mod, err := Link(p, nil)
	require.NoError(t, err)

	out := render(t, mod.Content.Component(Components{"Layout": wrapper("main")}))
	assert.Equal(t, `<main data-kind="post"><p>body</p></main>`, out)

	_, err = RenderString(context.Background(), mod.Content.Component(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout")
}

func TestRenderValues(t *testing.T) {
	testCases := []struct {
		name    string
		value   any
		want    string
		wantErr bool
	}{
		{"nil", nil, "", false},
		{"bool", true, "", false},
		{"float", 3.5, "3.5", false},
		{"int", 7, "7", false},
		{"list", []any{"a", 1.0, nil}, "a1", false},
		{"typed list", []string{"x", "y"}, "xy", false},
		{"templ component", templ.Raw("<em>ok</em>"), "<em>ok</em>", false},
		{"component", wrapper("i"), `<i data-kind="<nil>"></i>`, false},
		{"map", map[string]any{"a": 1}, "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &ir.Program{Version: ir.Version, Body: []ir.Node{ir.Expr("v")}}
			mod, err := Link(p, NewEnvironment(Layer{Name: LayerComponents, Bindings: map[string]any{"v": tc.value}}))
			require.NoError(t, err)
			out, err := RenderString(context.Background(), mod.Content.Component(nil))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestFragmentBinding(t *testing.T) {
	p := &ir.Program{Version: ir.Version, Body: []ir.Node{ir.Component("Fragment", nil, ir.Text("a"), ir.Text("b"))}}
	mod, err := Link(p, NewEnvironment(Bindings()))
	require.NoError(t, err)
	assert.Equal(t, "ab", render(t, mod.Content.Component(nil)))
}

func TestAsComponent(t *testing.T) {
	_, ok := AsComponent("nope")
	assert.False(t, ok)
	_, ok = AsComponent(Component(nil))
	assert.False(t, ok)
	_, ok = AsComponent(templ.NopComponent)
	assert.True(t, ok)
}

func TestRenderPropagatesWriterErrors(t *testing.T) {
	p := &ir.Program{Version: ir.Version, Body: []ir.Node{ir.Text("x")}}
	mod, err := Link(p, nil)
	require.NoError(t, err)
	boom := errors.New("boom")
	err = mod.Content.Component(nil).Render(context.Background(), failingWriter{boom})
	assert.ErrorIs(t, err, boom)
}

type failingWriter struct{ err error }

func (f failingWriter) Write([]byte) (int, error) { return 0, f.err }
