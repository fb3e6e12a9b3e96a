package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
)

// MaxDepth bounds node nesting accepted by Decode.
const MaxDepth = 256

// ErrInvalidProgram is wrapped by every validation failure.
var ErrInvalidProgram = errors.New("invalid program")

var (
	identPattern     = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	pathPattern      = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)
	elementPattern   = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)
	attrNamePattern  = regexp.MustCompile(`^[A-Za-z_:][A-Za-z0-9_:.\-]*$`)
	modSourcePattern = regexp.MustCompile(`^[^\x00-\x1f]+$`)
)

// IsIdentifier reports whether s is a valid binding name.
func IsIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// IsPath reports whether s is a valid dotted reference.
func IsPath(s string) bool {
	return pathPattern.MatchString(s)
}

// Encode serializes a program to its textual form.
func Encode(p *Program) (string, error) {
	if p.Version == 0 {
		p.Version = Version
	}
	if err := Validate(p); err != nil {
		return "", err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode program: %w", err)
	}
	return string(data), nil
}

// Decode parses and validates a program. Unknown fields, unknown node kinds,
// malformed names and trailing data are all rejected.
func Decode(code string) (*Program, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(code)))
	dec.DisallowUnknownFields()

	var p Program
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after program", ErrInvalidProgram)
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the structural rules of a program.
func Validate(p *Program) error {
	if p == nil {
		return fmt.Errorf("%w: nil program", ErrInvalidProgram)
	}
	if p.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidProgram, p.Version)
	}

	for i, imp := range p.Imports {
		if !modSourcePattern.MatchString(imp.Source) {
			return invalid("imports[%d]: bad source %q", i, imp.Source)
		}
		for _, name := range imp.Bindings() {
			if !IsIdentifier(name) {
				return invalid("imports[%d]: bad binding %q", i, name)
			}
		}
		for local, name := range imp.Aliases {
			if !IsIdentifier(local) || !IsIdentifier(name) {
				return invalid("imports[%d]: bad alias %q as %q", i, name, local)
			}
		}
	}

	seen := make(map[string]struct{}, len(p.Exports))
	for i, exp := range p.Exports {
		if !IsIdentifier(exp.Name) {
			return invalid("exports[%d]: bad name %q", i, exp.Name)
		}
		if _, dup := seen[exp.Name]; dup {
			return invalid("exports[%d]: duplicate export %q", i, exp.Name)
		}
		seen[exp.Name] = struct{}{}
		if err := validateValue(exp.Value); err != nil {
			return invalid("exports[%d] %s: %v", i, exp.Name, err)
		}
	}

	for i, re := range p.Reexports {
		if !modSourcePattern.MatchString(re.Source) {
			return invalid("reexports[%d]: bad source %q", i, re.Source)
		}
		for _, name := range re.Names {
			if !IsIdentifier(name) {
				return invalid("reexports[%d]: bad name %q", i, name)
			}
		}
	}

	if p.Layout != "" && !IsPath(p.Layout) {
		return invalid("bad layout %q", p.Layout)
	}

	return validateNodes(p.Body, "body", 0)
}

func validateValue(v Value) error {
	switch {
	case v.Ref != "" && len(v.Literal) > 0:
		return errors.New("value has both literal and reference")
	case v.Ref != "":
		if !IsPath(v.Ref) {
			return fmt.Errorf("bad reference %q", v.Ref)
		}
	case len(v.Literal) > 0:
		if !json.Valid(v.Literal) {
			return errors.New("literal is not valid JSON")
		}
	default:
		return errors.New("empty value")
	}
	return nil
}

func validateNodes(nodes []Node, at string, depth int) error {
	if depth > MaxDepth {
		return invalid("%s: nesting exceeds %d", at, MaxDepth)
	}
	for i, n := range nodes {
		where := fmt.Sprintf("%s[%d]", at, i)
		if err := validateNode(n, where, depth); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(n Node, where string, depth int) error {
	switch n.Kind {
	case KindText:
		if n.Tag != "" || n.Ref != "" || len(n.Attrs) > 0 || len(n.Children) > 0 {
			return invalid("%s: text node carries non-text fields", where)
		}
		return nil

	case KindExpr:
		if !IsPath(n.Ref) {
			return invalid("%s: bad expression reference %q", where, n.Ref)
		}
		if n.Tag != "" || n.Text != "" || len(n.Attrs) > 0 || len(n.Children) > 0 {
			return invalid("%s: expression node carries extra fields", where)
		}
		return nil

	case KindFragment:
		if n.Tag != "" || n.Text != "" || n.Ref != "" || len(n.Attrs) > 0 {
			return invalid("%s: fragment node carries extra fields", where)
		}

	case KindElement:
		if !elementPattern.MatchString(n.Tag) {
			return invalid("%s: bad element tag %q", where, n.Tag)
		}
		if err := validateAttrs(n.Attrs, where); err != nil {
			return err
		}

	case KindComponent:
		if !IsPath(n.Tag) {
			return invalid("%s: bad component name %q", where, n.Tag)
		}
		if err := validateAttrs(n.Attrs, where); err != nil {
			return err
		}

	default:
		return invalid("%s: unknown node kind %q", where, n.Kind)
	}

	if n.Text != "" || n.Ref != "" {
		return invalid("%s: %s node carries text or reference", where, n.Kind)
	}
	return validateNodes(n.Children, where+".children", depth+1)
}

func validateAttrs(attrs []Attr, where string) error {
	for i, a := range attrs {
		if !attrNamePattern.MatchString(a.Name) {
			return invalid("%s.attrs[%d]: bad name %q", where, i, a.Name)
		}
		if err := validateValue(a.Value); err != nil {
			return invalid("%s.attrs[%d] %s: %v", where, i, a.Name, err)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProgram, fmt.Sprintf(format, args...))
}
