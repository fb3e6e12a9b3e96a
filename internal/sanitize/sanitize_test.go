package sanitize

import (
	"context"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/burrow/internal/logging"
)

func TestStrip(t *testing.T) {
	scope := map[string]any{
		"title":       "Hello",
		"count":       3,
		"nested":      map[string]any{"fn": "kept as data"},
		"handler":     func() {},
		"component":   templ.NopComponent,
		"__proto__":   map[string]any{"polluted": true},
		"constructor": "x",
		"prototype":   nil,
	}

	clean, stripped := Strip(scope)

	assert.Equal(t, map[string]any{
		"title":  "Hello",
		"count":  3,
		"nested": map[string]any{"fn": "kept as data"},
	}, clean)

	require.Len(t, stripped, 5)
	assert.Equal(t, []Stripped{
		{Key: "__proto__", Reason: ReasonReservedKey},
		{Key: "component", Reason: ReasonCallable},
		{Key: "constructor", Reason: ReasonReservedKey},
		{Key: "handler", Reason: ReasonCallable},
		{Key: "prototype", Reason: ReasonReservedKey},
	}, stripped)

	assert.Len(t, scope, 8, "input scope must not be modified")
}

type card struct {
	Title  string
	Render templ.Component
	hidden func()
}

func TestStripNested(t *testing.T) {
	widget := templ.ComponentFunc(nil)
	plain := map[string]any{"a": 1.0, "b": []any{"x", 2.0}}
	scope := map[string]any{
		"data":  map[string]any{"w": widget, "title": "kept", "deep": map[string]any{"constructor": 1, "n": 2}},
		"items": []any{"first", func() {}, map[string]any{"fn": func() {}, "ok": true}},
		"typed": map[string]func(){"run": func() {}},
		"card":  &card{Title: "Card", Render: templ.NopComponent},
		"bytes": []byte("raw"),
		"plain": plain,
	}

	clean, stripped := Strip(scope)

	assert.Equal(t, map[string]any{"title": "kept", "deep": map[string]any{"n": 2}}, clean["data"])
	assert.Equal(t, []any{"first", nil, map[string]any{"ok": true}}, clean["items"])
	assert.Equal(t, map[string]any{}, clean["typed"])
	assert.Equal(t, map[string]any{"Title": "Card"}, clean["card"])
	assert.Equal(t, []byte("raw"), clean["bytes"])
	assert.Equal(t, plain, clean["plain"])

	assert.Equal(t, []Stripped{
		{Key: "card.Render", Reason: ReasonCallable},
		{Key: "data.deep.constructor", Reason: ReasonReservedKey},
		{Key: "data.w", Reason: ReasonCallable},
		{Key: "items.1", Reason: ReasonCallable},
		{Key: "items.2.fn", Reason: ReasonCallable},
		{Key: "typed.run", Reason: ReasonCallable},
	}, stripped)

	_, stillThere := scope["data"].(map[string]any)["w"]
	assert.True(t, stillThere, "input scope must not be modified")
}

func TestStripUnchangedNestedValuesKeepIdentity(t *testing.T) {
	type point struct{ X, Y int }
	nested := map[string]any{"a": map[string]any{"b": []any{1.0}}}
	p := &point{X: 1}

	clean, stripped := Strip(map[string]any{"nested": nested, "point": p})
	assert.Empty(t, stripped)
	assert.Same(t, p, clean["point"])
	assert.Equal(t, nested, clean["nested"])
}

func TestStripBoundsDepth(t *testing.T) {
	cycle := map[string]any{}
	cycle["self"] = cycle

	clean, stripped := Strip(map[string]any{"cycle": cycle})
	require.Len(t, stripped, 1)
	assert.Equal(t, ReasonTooDeep, stripped[0].Reason)
	assert.Contains(t, clean, "cycle")
}

func TestStripNilScope(t *testing.T) {
	clean, stripped := Strip(nil)
	assert.NotNil(t, clean)
	assert.Empty(t, clean)
	assert.Empty(t, stripped)
}

func TestIsCallable(t *testing.T) {
	testCases := []struct {
		name  string
		value any
		want  bool
	}{
		{"nil", nil, false},
		{"string", "s", false},
		{"slice", []int{1}, false},
		{"func", func(int) int { return 0 }, true},
		{"typed nil func", (func())(nil), true},
		{"component func", templ.ComponentFunc(nil), true},
		{"raw component", templ.Raw("<b>x</b>"), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsCallable(tc.value))
		})
	}
}

func TestSanitizeWarnsPerStrippedKey(t *testing.T) {
	rec := logging.NewRecorder()
	s := New(rec)

	out := s.Sanitize(context.Background(), map[string]any{
		"ok":        1,
		"onClick":   func() {},
		"__proto__": 1,
	})

	assert.Equal(t, map[string]any{"ok": 1}, out)

	warns := rec.Filter(logging.LevelWarn)
	require.Len(t, warns, 2)
	assert.Equal(t, "__proto__", warns[0].Fields["key"])
	assert.Equal(t, "onClick", warns[1].Fields["key"])
	assert.Equal(t, "sanitize", warns[0].Component)
}

func TestSanitizeIsIdempotent(t *testing.T) {
	s := New(nil)
	once := s.Sanitize(context.Background(), map[string]any{"a": 1, "f": func() {}})
	twice := s.Sanitize(context.Background(), once)
	assert.Equal(t, once, twice)
}
