//go:build property
// +build property

package sanitize

import (
	"testing"

	"github.com/a-h/templ"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSanitizerProperties checks that dangerous entries never survive and
// that every other entry passes through unchanged.
func TestSanitizerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	keyGen := gen.OneGenOf(
		gen.Identifier(),
		gen.OneConstOf("__proto__", "constructor", "prototype"),
	)

	properties.Property("no dangerous entry survives", prop.ForAll(
		func(keys []string, funcMask []bool) bool {
			scope := make(map[string]any, len(keys))
			for i, k := range keys {
				if i < len(funcMask) && funcMask[i] {
					scope[k] = func() {}
				} else {
					scope[k] = k
				}
			}

			clean, _ := Strip(scope)
			for k, v := range clean {
				if IsReservedKey(k) || IsCallable(v) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(keyGen),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("no dangerous entry survives at any depth", prop.ForAll(
		func(keys []string, funcMask []bool) bool {
			scope := map[string]any{}
			cur := scope
			for i, k := range keys {
				if i < len(funcMask) && funcMask[i] {
					cur[k] = []any{func() {}, map[string]any{k: templ.NopComponent}}
				}
				next := map[string]any{}
				cur["level"] = next
				cur = next
			}

			clean, _ := Strip(scope)
			return !dangerous(clean)
		},
		gen.SliceOf(keyGen),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("safe entries pass through unchanged", prop.ForAll(
		func(keys []string) bool {
			scope := make(map[string]any, len(keys))
			for _, k := range keys {
				scope[k] = len(k)
			}

			clean, stripped := Strip(scope)
			for k, v := range scope {
				if IsReservedKey(k) {
					if _, ok := clean[k]; ok {
						return false
					}
					continue
				}
				if clean[k] != v {
					return false
				}
			}
			return len(clean)+len(stripped) == len(scope)
		},
		gen.SliceOf(keyGen),
	))

	properties.TestingRun(t)
}

func dangerous(v any) bool {
	switch x := v.(type) {
	case map[string]any:
		for k, item := range x {
			if IsReservedKey(k) || dangerous(item) {
				return true
			}
		}
	case []any:
		for _, item := range x {
			if dangerous(item) {
				return true
			}
		}
	default:
		return IsCallable(v)
	}
	return false
}
