package compiler

import (
	"fmt"
	"strings"
)

// DefaultJSXRuntime is the runtime import path written into generated code
// when none is configured.
const DefaultJSXRuntime = "burrow/runtime"

// Options are caller-facing compile options. Nil booleans take defaults.
type Options struct {
	GFM            *bool  `json:"gfm,omitempty" mapstructure:"gfm" yaml:"gfm,omitempty"`
	Footnotes      *bool  `json:"footnotes,omitempty" mapstructure:"footnotes" yaml:"footnotes,omitempty"`
	Math           *bool  `json:"math,omitempty" mapstructure:"math" yaml:"math,omitempty"`
	DefaultPlugins *bool  `json:"defaultPlugins,omitempty" mapstructure:"default_plugins" yaml:"default_plugins,omitempty"`
	JSXRuntime     string `json:"jsxRuntime,omitempty" mapstructure:"jsx_runtime" yaml:"jsx_runtime,omitempty"`
	Filepath       string `json:"filepath,omitempty" mapstructure:"filepath" yaml:"filepath,omitempty"`
}

// Normalized are options with every default applied.
type Normalized struct {
	GFM            bool
	Footnotes      bool
	Math           bool
	DefaultPlugins bool
	JSXRuntime     string
	Filepath       string
}

// Bool returns a pointer to b, for building Options literals.
func Bool(b bool) *bool {
	return &b
}

// Normalize applies defaults: GFM on, footnotes on, math off, default
// plugins on.
func (o Options) Normalize() Normalized {
	n := Normalized{
		GFM:            boolOr(o.GFM, true),
		Footnotes:      boolOr(o.Footnotes, true),
		Math:           boolOr(o.Math, false),
		DefaultPlugins: boolOr(o.DefaultPlugins, true),
		JSXRuntime:     strings.TrimSpace(o.JSXRuntime),
		Filepath:       o.Filepath,
	}
	if n.JSXRuntime == "" {
		n.JSXRuntime = DefaultJSXRuntime
	}
	return n
}

// Merge returns o with every field set in override replacing its
// counterpart.
func (o Options) Merge(override Options) Options {
	out := o
	if override.GFM != nil {
		out.GFM = override.GFM
	}
	if override.Footnotes != nil {
		out.Footnotes = override.Footnotes
	}
	if override.Math != nil {
		out.Math = override.Math
	}
	if override.DefaultPlugins != nil {
		out.DefaultPlugins = override.DefaultPlugins
	}
	if override.JSXRuntime != "" {
		out.JSXRuntime = override.JSXRuntime
	}
	if override.Filepath != "" {
		out.Filepath = override.Filepath
	}
	return out
}

// Fingerprint identifies the options that affect compiled output. Filepath
// only appears in diagnostics and is excluded.
func (n Normalized) Fingerprint() string {
	return fmt.Sprintf("gfm=%t;footnotes=%t;math=%t;plugins=%t;runtime=%s",
		n.GFM, n.Footnotes, n.Math, n.DefaultPlugins, n.JSXRuntime)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
