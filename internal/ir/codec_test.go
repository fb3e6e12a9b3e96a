package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProgram() *Program {
	return &Program{
		Version: Version,
		Imports: []Import{{Source: "./components", Names: []string{"Callout"}}},
		Exports: []Export{
			{Name: "title", Value: Lit("Hello")},
			{Name: "heading", Value: Ref("frontmatter.title")},
		},
		Reexports: []Reexport{{Source: "./shared", Names: []string{"Note"}}},
		Layout:    "Layout",
		Body: []Node{
			Element("h1", []Attr{{Name: "id", Value: Lit("hello")}}, Text("Hello "), Element("strong", nil, Text("World"))),
			Component("Callout", []Attr{{Name: "type", Value: Lit("info")}}, Expr("title")),
			Fragment(Text("tail")),
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	code, err := Encode(sampleProgram())
	require.NoError(t, err)

	p, err := Decode(code)
	require.NoError(t, err)

	assert.Equal(t, []string{"title", "heading"}, p.ExportNames())
	assert.True(t, p.HasExport("heading"))
	assert.False(t, p.HasExport("missing"))
	assert.Equal(t, []string{"Callout"}, p.Imports[0].Bindings())
	assert.Equal(t, "Callout", p.Imports[0].Imported("Callout"))
	assert.Equal(t, "Bar", Import{Aliases: map[string]string{"B": "Bar"}}.Imported("B"))
	require.Len(t, p.Body, 3)
	assert.Equal(t, KindComponent, p.Body[1].Kind)
	assert.JSONEq(t, `"Hello"`, string(p.Exports[0].Value.Literal))
	assert.True(t, p.Exports[1].Value.IsRef())
}

func TestEncodeSetsVersion(t *testing.T) {
	p := &Program{Body: []Node{Text("x")}}
	code, err := Encode(p)
	require.NoError(t, err)
	assert.Contains(t, code, `"v":1`)
}

func TestDecodeRejects(t *testing.T) {
	testCases := []struct {
		name string
		code string
		want string
	}{
		{"not json", `function(){ return 1 }`, "invalid program"},
		{"unknown field", `{"v":1,"body":[],"eval":"x"}`, "unknown field"},
		{"trailing data", `{"v":1,"body":[]} {"v":1}`, "trailing data"},
		{"wrong version", `{"v":2,"body":[]}`, "unsupported version"},
		{"unknown kind", `{"v":1,"body":[{"k":"script","text":"alert(1)"}]}`, "unknown node kind"},
		{"bad element", `{"v":1,"body":[{"k":"element","tag":"x onload"}]}`, "bad element tag"},
		{"bad component", `{"v":1,"body":[{"k":"component","tag":"a-b"}]}`, "bad component name"},
		{"bad expr", `{"v":1,"body":[{"k":"expr","ref":"a()"}]}`, "bad expression reference"},
		{"text with children", `{"v":1,"body":[{"k":"text","text":"x","children":[{"k":"text"}]}]}`, "non-text fields"},
		{"bad attr name", `{"v":1,"body":[{"k":"element","tag":"a","attrs":[{"name":"x\"y","value":{"lit":"1"}}]}]}`, "bad name"},
		{"empty value", `{"v":1,"body":[{"k":"element","tag":"a","attrs":[{"name":"href","value":{}}]}]}`, "empty value"},
		{"both value forms", `{"v":1,"exports":[{"name":"a","value":{"lit":"1","ref":"b"}}],"body":[]}`, "both literal and reference"},
		{"duplicate export", `{"v":1,"exports":[{"name":"a","value":{"lit":1}},{"name":"a","value":{"lit":2}}],"body":[]}`, "duplicate export"},
		{"bad export name", `{"v":1,"exports":[{"name":"1a","value":{"lit":1}}],"body":[]}`, "bad name"},
		{"bad import binding", `{"v":1,"imports":[{"source":"x","names":["a.b"]}],"body":[]}`, "bad binding"},
		{"bad import alias", `{"v":1,"imports":[{"source":"x","names":["a"],"aliases":{"a":"b c"}}],"body":[]}`, "bad alias"},
		{"bad layout", `{"v":1,"layout":"a b","body":[]}`, "bad layout"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.code)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidProgram)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDecodeRejectsDeepNesting(t *testing.T) {
	code := `{"v":1,"body":[` + strings.Repeat(`{"k":"fragment","children":[`, MaxDepth+2) +
		strings.Repeat(`]}`, MaxDepth+2) + `]}`

	_, err := Decode(code)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting exceeds")
}

func TestIdentifiers(t *testing.T) {
	assert.True(t, IsIdentifier("frontmatter"))
	assert.True(t, IsIdentifier("_x$1"))
	assert.False(t, IsIdentifier("1x"))
	assert.False(t, IsIdentifier("a.b"))

	assert.True(t, IsPath("a.b.c"))
	assert.False(t, IsPath("a..b"))
	assert.False(t, IsPath("a[0]"))
	assert.Equal(t, []string{"a", "b"}, SplitPath("a.b"))
}

func TestWalk(t *testing.T) {
	var tags []string
	Walk(sampleProgram().Body, func(n Node) bool {
		if n.Tag != "" {
			tags = append(tags, n.Tag)
		}
		return n.Tag != "h1"
	})
	assert.Equal(t, []string{"h1", "Callout"}, tags)
}

func TestLitPanicsOnUnencodable(t *testing.T) {
	assert.Panics(t, func() { Lit(func() {}) })
}
