// Package ir defines the typed intermediate representation that burrow's
// compiler emits as "generated code". A Program is a tree of text, element,
// component, expression and fragment nodes plus the module's import and
// export declarations. It is the only thing the runtime will execute: the
// codec in this package rejects anything that is not a well-formed Program.
package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the IR format version written by Encode and required by Decode.
const Version = 1

// Kind identifies the type of a Node.
type Kind string

const (
	KindText      Kind = "text"
	KindElement   Kind = "element"
	KindComponent Kind = "component"
	KindExpr      Kind = "expr"
	KindFragment  Kind = "fragment"
)

// Program is a compiled module.
type Program struct {
	Version   int        `json:"v"`
	Imports   []Import   `json:"imports,omitempty"`
	Exports   []Export   `json:"exports,omitempty"`
	Reexports []Reexport `json:"reexports,omitempty"`
	// Layout names the binding used as the default export wrapper, if any.
	Layout string `json:"layout,omitempty"`
	Body   []Node `json:"body"`
}

// Import declares names the module expects to find in its environment.
type Import struct {
	Source    string   `json:"source"`
	Default   string   `json:"default,omitempty"`
	Namespace string   `json:"namespace,omitempty"`
	Names     []string `json:"names,omitempty"`
	// Aliases maps a renamed local name to the name it has in Source.
	Aliases map[string]string `json:"aliases,omitempty"`
}

// Imported returns the name local has in the source module.
func (i Import) Imported(local string) string {
	if name, ok := i.Aliases[local]; ok {
		return name
	}
	return local
}

// Bindings returns every local name the import introduces.
func (i Import) Bindings() []string {
	var out []string
	if i.Default != "" {
		out = append(out, i.Default)
	}
	if i.Namespace != "" {
		out = append(out, i.Namespace)
	}
	return append(out, i.Names...)
}

// Export is a named export and its value.
type Export struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Reexport forwards names from another module.
type Reexport struct {
	Source string   `json:"source"`
	Names  []string `json:"names,omitempty"`
}

// Value is either a JSON literal or a reference to a binding by dotted path.
type Value struct {
	Literal json.RawMessage `json:"lit,omitempty"`
	Ref     string          `json:"ref,omitempty"`
}

// Lit builds a literal Value. It panics if v cannot be marshaled, which only
// happens for programmer errors in compilers.
func Lit(v any) Value {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("ir: literal %T is not JSON encodable: %v", v, err))
	}
	return Value{Literal: data}
}

// Ref builds a reference Value.
func Ref(path string) Value {
	return Value{Ref: path}
}

// IsRef reports whether v refers to a binding.
func (v Value) IsRef() bool {
	return v.Ref != ""
}

// Attr is a single attribute or prop on an element or component node.
type Attr struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Node is one node of the body tree. Which fields are meaningful depends on
// Kind: Text for text, Tag/Attrs/Children for element and component,
// Ref for expr, Children for fragment.
type Node struct {
	Kind     Kind   `json:"k"`
	Text     string `json:"text,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Attrs    []Attr `json:"attrs,omitempty"`
	Children []Node `json:"children,omitempty"`
	Ref      string `json:"ref,omitempty"`
}

// Text creates a text node.
func Text(s string) Node {
	return Node{Kind: KindText, Text: s}
}

// Element creates an intrinsic element node.
func Element(tag string, attrs []Attr, children ...Node) Node {
	return Node{Kind: KindElement, Tag: tag, Attrs: attrs, Children: children}
}

// Component creates a component reference node.
func Component(name string, attrs []Attr, children ...Node) Node {
	return Node{Kind: KindComponent, Tag: name, Attrs: attrs, Children: children}
}

// Expr creates an expression node that renders a binding.
func Expr(path string) Node {
	return Node{Kind: KindExpr, Ref: path}
}

// Fragment groups children without a wrapper element.
func Fragment(children ...Node) Node {
	return Node{Kind: KindFragment, Children: children}
}

// ExportNames lists the names of all named exports in declaration order.
func (p *Program) ExportNames() []string {
	names := make([]string, 0, len(p.Exports))
	for _, e := range p.Exports {
		names = append(names, e.Name)
	}
	return names
}

// HasExport reports whether the program declares a named export.
func (p *Program) HasExport(name string) bool {
	for _, e := range p.Exports {
		if e.Name == name {
			return true
		}
	}
	return false
}

// SplitPath splits a dotted reference into its segments.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}

// Walk visits every node depth first. Returning false from fn skips the
// node's children.
func Walk(nodes []Node, fn func(Node) bool) {
	for _, n := range nodes {
		if fn(n) {
			Walk(n.Children, fn)
		}
	}
}
