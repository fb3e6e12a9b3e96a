//go:build property
// +build property

package cache

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCacheProperties checks the key and bound invariants of the store.
func TestCacheProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("equal sources give equal keys", prop.ForAll(
		func(source, fp string) bool {
			return KeyFor(source, fp) == KeyFor(source, fp)
		},
		gen.AnyString(),
		gen.AlphaString(),
	))

	properties.Property("distinct sources give distinct keys", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			return KeyFor(a, "") != KeyFor(b, "")
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("size never exceeds max size", prop.ForAll(
		func(maxSize int, inserts []int) bool {
			s := New(Config{MaxSize: maxSize})
			for _, i := range inserts {
				s.Set(Key(fmt.Sprint(i)), Entry{CompiledCode: "x"})
				if s.Size() > maxSize {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.Property("inserting max size plus one evicts exactly the oldest", prop.ForAll(
		func(maxSize int) bool {
			s := New(Config{MaxSize: maxSize})
			for i := 0; i <= maxSize; i++ {
				s.Set(KeyFor(fmt.Sprint(i), ""), Entry{CompiledCode: fmt.Sprint(i)})
			}
			if _, ok := s.Get(KeyFor("0", "")); ok {
				return false
			}
			for i := 1; i <= maxSize; i++ {
				if _, ok := s.Get(KeyFor(fmt.Sprint(i), "")); !ok {
					return false
				}
			}
			return s.Stats().Evictions == 1
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
