// Package sanitize strips dangerous bindings from a caller-supplied scope
// before it crosses a trust boundary.
//
// Two kinds of entries are removed: callable values (any func, and anything
// that implements templ.Component) and the reserved keys __proto__,
// constructor and prototype. The runtime resolves dotted paths through maps,
// slices and struct fields, so the same rules apply at every depth: a nested
// container holding a stripped entry is replaced by a cleaned copy, and
// everything else is passed through as is. The input is never modified.
package sanitize

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/a-h/templ"

	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/logging"
)

// Reason describes why a scope entry was stripped.
type Reason string

const (
	ReasonReservedKey Reason = "reserved key"
	ReasonCallable    Reason = "callable value"
	ReasonTooDeep     Reason = "nesting too deep"
)

// MaxDepth bounds how far Strip descends into nested values. Deeper values
// are stripped, which also cuts reference cycles.
const MaxDepth = 32

var componentType = reflect.TypeOf((*templ.Component)(nil)).Elem()

var reservedKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// Stripped records a single removed entry. Key is the dotted path of the
// entry; slice elements use their index as the segment.
type Stripped struct {
	Key    string
	Reason Reason
}

// Sanitizer removes dangerous entries and logs a warning for each.
type Sanitizer struct {
	logger logging.Logger
}

// New creates a Sanitizer. A nil logger discards warnings.
func New(logger logging.Logger) *Sanitizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sanitizer{logger: logger.WithComponent("sanitize")}
}

// Sanitize returns a new scope without callable values or reserved keys.
// Each stripped entry produces one non-fatal warning.
func (s *Sanitizer) Sanitize(ctx context.Context, scope map[string]any) map[string]any {
	clean, stripped := Strip(scope)
	for _, st := range stripped {
		warning := errors.NewWarning(
			errors.TypeSanitization,
			errors.CodeScopeKeyStripped,
			fmt.Sprintf("scope entry %q removed: %s", st.Key, st.Reason),
		).WithContext("key", st.Key)
		s.logger.Warn(ctx, warning, "Stripped scope entry", "key", st.Key, "reason", string(st.Reason))
	}
	return clean
}

// Strip is the pure form of Sanitize. Stripped entries are reported in path
// order so diagnostics are deterministic.
func Strip(scope map[string]any) (map[string]any, []Stripped) {
	w := &walker{}
	clean := make(map[string]any, len(scope))
	for key, value := range scope {
		if v, ok := w.entry(key, key, value, 1); ok {
			clean[key] = v
		}
	}

	sort.Slice(w.stripped, func(i, j int) bool { return w.stripped[i].Key < w.stripped[j].Key })
	return clean, w.stripped
}

type walker struct {
	stripped []Stripped
}

func (w *walker) drop(path string, reason Reason) {
	w.stripped = append(w.stripped, Stripped{Key: path, Reason: reason})
}

// entry checks a keyed value and returns its cleaned form, or false when it
// must be removed.
func (w *walker) entry(path, key string, value any, depth int) (any, bool) {
	if IsReservedKey(key) {
		w.drop(path, ReasonReservedKey)
		return nil, false
	}
	return w.value(path, value, depth)
}

// value returns v unchanged when nothing below it is stripped, a cleaned
// copy when something is, and false when v itself must be removed.
func (w *walker) value(path string, v any, depth int) (any, bool) {
	if v == nil {
		return nil, true
	}
	if IsCallable(v) {
		w.drop(path, ReasonCallable)
		return nil, false
	}

	switch x := v.(type) {
	case string, bool, float64, int, int64:
		return v, true
	case map[string]any:
		if depth >= MaxDepth {
			w.drop(path, ReasonTooDeep)
			return nil, false
		}
		return w.stringMap(path, x, depth)
	case []any:
		if depth >= MaxDepth {
			w.drop(path, ReasonTooDeep)
			return nil, false
		}
		return w.slice(path, x, depth)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return v, true
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
	default:
		return v, true
	}
	if depth >= MaxDepth {
		w.drop(path, ReasonTooDeep)
		return nil, false
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v, true
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return w.converted(v, path, m, depth)
	case reflect.Struct:
		m := make(map[string]any)
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			fv, err := rv.FieldByIndexErr(f.Index)
			if err != nil {
				continue
			}
			m[f.Name] = fv.Interface()
		}
		return w.converted(v, path, m, depth)
	default:
		if !mayHold(rv.Type().Elem()) {
			return v, true
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		before := len(w.stripped)
		cleaned, _ := w.slice(path, items, depth)
		if len(w.stripped) == before {
			return v, true
		}
		return cleaned, true
	}
}

// mayHold reports whether values of type t can be or contain something
// Strip removes.
func mayHold(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return t.Implements(componentType)
	default:
		return true
	}
}

// converted cleans the generic form m of a typed map or struct. The
// original value is kept when nothing was stripped.
func (w *walker) converted(orig any, path string, m map[string]any, depth int) (any, bool) {
	before := len(w.stripped)
	cleaned, _ := w.stringMap(path, m, depth)
	if len(w.stripped) == before {
		return orig, true
	}
	return cleaned, true
}

func (w *walker) stringMap(path string, m map[string]any, depth int) (any, bool) {
	before := len(w.stripped)
	out := make(map[string]any, len(m))
	for k, v := range m {
		if cv, ok := w.entry(path+"."+k, k, v, depth+1); ok {
			out[k] = cv
		}
	}
	if len(w.stripped) == before {
		return m, true
	}
	return out, true
}

// slice keeps indices stable: a stripped element becomes nil.
func (w *walker) slice(path string, items []any, depth int) (any, bool) {
	before := len(w.stripped)
	out := make([]any, len(items))
	for i, item := range items {
		if cv, ok := w.value(path+"."+strconv.Itoa(i), item, depth+1); ok {
			out[i] = cv
		}
	}
	if len(w.stripped) == before {
		return items, true
	}
	return out, true
}

// IsReservedKey reports whether key is one of the prototype-pollution keys.
func IsReservedKey(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// IsCallable reports whether value can be invoked or rendered.
func IsCallable(value any) bool {
	if value == nil {
		return false
	}
	if _, ok := value.(templ.Component); ok {
		return true
	}
	return reflect.TypeOf(value).Kind() == reflect.Func
}
