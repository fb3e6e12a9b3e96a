package runtime

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/conneroisu/burrow/internal/ir"
)

// ReferenceError reports a binding that could not be resolved.
type ReferenceError struct {
	Name      string
	Component bool
}

func (e *ReferenceError) Error() string {
	if e.Component {
		return fmt.Sprintf("expected component %q to be defined: you likely forgot to import, pass, or provide it", e.Name)
	}
	return fmt.Sprintf("%s is not defined", e.Name)
}

// PathError reports a member access on a value that has no members.
type PathError struct {
	Path    string
	Segment string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("cannot read %q of undefined in %s", e.Segment, e.Path)
}

// Module is a linked program.
type Module struct {
	Content *Content
	Exports map[string]any
}

// Link resolves every named export and re-export of p against env. The
// returned content sees the exports as its highest-precedence layer.
func Link(p *ir.Program, env *Environment) (*Module, error) {
	if err := ir.Validate(p); err != nil {
		return nil, err
	}
	if env == nil {
		env = NewEnvironment(Bindings())
	}

	exports := make(map[string]any, len(p.Exports)+len(p.Reexports))
	module := Layer{Name: LayerModule, Bindings: exports}
	scope := env.With(module)

	for _, exp := range p.Exports {
		v, err := evalValue(scope, exp.Value)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", exp.Name, err)
		}
		exports[exp.Name] = v
	}

	for _, re := range p.Reexports {
		for _, name := range re.Names {
			v, ok := env.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("re-export %s from %q: %w", name, re.Source, &ReferenceError{Name: name})
			}
			exports[name] = v
		}
	}

	return &Module{
		Content: &Content{program: p, env: scope},
		Exports: exports,
	}, nil
}

func evalValue(env *Environment, v ir.Value) (any, error) {
	if v.IsRef() {
		return lookupPath(env, v.Ref)
	}
	return decodeLiteral(v.Literal)
}

func decodeLiteral(raw json.RawMessage) (any, error) {
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode literal: %w", err)
	}
	return out, nil
}

// lookupPath resolves a dotted reference. The first segment must be bound;
// a missing member further along yields nil, like reading an absent key.
func lookupPath(env *Environment, path string) (any, error) {
	segments := ir.SplitPath(path)
	cur, ok := env.Lookup(segments[0])
	if !ok {
		return nil, &ReferenceError{Name: segments[0]}
	}
	for _, seg := range segments[1:] {
		if cur == nil {
			return nil, &PathError{Path: path, Segment: seg}
		}
		cur = member(cur, seg)
	}
	return cur, nil
}

func member(v any, name string) any {
	if m, ok := v.(map[string]any); ok {
		return m[name]
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		mv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil
		}
		return mv.Interface()
	case reflect.Struct:
		f, ok := rv.Type().FieldByName(name)
		if !ok || !f.IsExported() {
			return nil
		}
		fv, err := rv.FieldByIndexErr(f.Index)
		if err != nil {
			return nil
		}
		return fv.Interface()
	default:
		return nil
	}
}
