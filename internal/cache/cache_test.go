package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/burrow/internal/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func entry(code string) Entry {
	return Entry{CompiledCode: code}
}

func TestKeyFor(t *testing.T) {
	t.Run("stable", func(t *testing.T) {
		assert.Equal(t, KeyFor("# A", ""), KeyFor("# A", ""))
		assert.Equal(t, KeyFor("# A", "gfm=1"), KeyFor("# A", "gfm=1"))
		assert.Len(t, string(KeyFor("# A", "")), 64)
	})

	t.Run("distinct sources", func(t *testing.T) {
		assert.NotEqual(t, KeyFor("# A", ""), KeyFor("# B", ""))
	})

	t.Run("options fingerprint participates", func(t *testing.T) {
		assert.NotEqual(t, KeyFor("# A", "math=0"), KeyFor("# A", "math=1"))
		assert.NotEqual(t, KeyFor("# A", ""), KeyFor("# A", "math=0"))
	})

	t.Run("separator prevents ambiguity", func(t *testing.T) {
		assert.NotEqual(t, KeyFor("ab", "c"), KeyFor("a", "bc"))
	})

	t.Run("concurrent callers agree", func(t *testing.T) {
		want := KeyFor("# concurrent", "x")
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.Equal(t, want, KeyFor("# concurrent", "x"))
			}()
		}
		wg.Wait()
	})
}

func TestDefaults(t *testing.T) {
	s := New(Config{})
	st := s.Stats()
	assert.Equal(t, DefaultMaxSize, st.MaxSize)
	assert.Equal(t, DefaultTTL, st.TTL)
	assert.Zero(t, st.HitRate())
}

func TestGetSet(t *testing.T) {
	s := New(Config{MaxSize: 10, TTL: time.Minute})

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("k", Entry{
		CompiledCode: "code",
		Frontmatter:  map[string]any{"title": "T"},
		Images:       []string{"a.png"},
	})

	got, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "code", got.CompiledCode)
	assert.Equal(t, "T", got.Frontmatter["title"])
	assert.False(t, got.InsertedAt.IsZero())

	st := s.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(1), st.Sets)
	assert.InDelta(t, 0.5, st.HitRate(), 0.0001)
}

func TestEntriesAreImmutable(t *testing.T) {
	s := New(Config{})

	fm := map[string]any{"tags": []any{"a"}, "nested": map[string]any{"x": 1}}
	images := []string{"a.png"}
	s.Set("k", Entry{CompiledCode: "c", Frontmatter: fm, Images: images})

	fm["title"] = "mutated"
	fm["nested"].(map[string]any)["x"] = 2
	images[0] = "mutated.png"

	got, ok := s.Get("k")
	require.True(t, ok)
	assert.NotContains(t, got.Frontmatter, "title")
	assert.Equal(t, 1, got.Frontmatter["nested"].(map[string]any)["x"])
	assert.Equal(t, []string{"a.png"}, got.Images)

	got.Images[0] = "changed-by-reader.png"
	again, _ := s.Get("k")
	assert.Equal(t, []string{"a.png"}, again.Images)
}

func TestReplaceDoesNotEvict(t *testing.T) {
	s := New(Config{MaxSize: 2})
	s.Set("a", entry("1"))
	s.Set("b", entry("2"))
	s.Set("a", entry("3"))

	assert.Equal(t, 2, s.Size())
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "3", got.CompiledCode)
	assert.Zero(t, s.Stats().Evictions)
}

func TestLRUEviction(t *testing.T) {
	t.Run("evicts the least recently inserted", func(t *testing.T) {
		s := New(Config{MaxSize: 3})
		for i := 0; i < 4; i++ {
			s.Set(KeyFor(fmt.Sprintf("# %d", i), ""), entry(fmt.Sprint(i)))
		}

		assert.Equal(t, 3, s.Size())
		_, ok := s.Get(KeyFor("# 0", ""))
		assert.False(t, ok)
		for i := 1; i < 4; i++ {
			_, ok := s.Get(KeyFor(fmt.Sprintf("# %d", i), ""))
			assert.True(t, ok, "source %d should remain", i)
		}
		assert.Equal(t, int64(1), s.Stats().Evictions)
	})

	t.Run("get refreshes recency", func(t *testing.T) {
		s := New(Config{MaxSize: 3})
		s.Set("a", entry("a"))
		s.Set("b", entry("b"))
		s.Set("c", entry("c"))

		_, ok := s.Get("a")
		require.True(t, ok)

		s.Set("d", entry("d"))

		_, ok = s.Get("b")
		assert.False(t, ok, "b was least recently used")
		_, ok = s.Get("a")
		assert.True(t, ok)
		assert.Equal(t, []Key{"a", "d", "c"}, s.Keys())
	})
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	s := New(Config{MaxSize: 10, TTL: time.Minute}, WithClock(clock.Now))

	s.Set("k", entry("code"))

	clock.Advance(time.Minute)
	_, ok := s.Get("k")
	assert.True(t, ok, "entry is still valid exactly at the ttl")

	clock.Advance(time.Millisecond)
	_, ok = s.Get("k")
	assert.False(t, ok)
	assert.Zero(t, s.Size(), "expired entry is evicted on read")
	assert.Equal(t, int64(1), s.Stats().Expirations)
}

func TestExpiredUnreadEntryKeepsSlot(t *testing.T) {
	clock := newFakeClock()
	s := New(Config{MaxSize: 2, TTL: time.Second}, WithClock(clock.Now))

	s.Set("old", entry("old"))
	clock.Advance(time.Hour)

	assert.Equal(t, 1, s.Size())

	s.Set("a", entry("a"))
	s.Set("b", entry("b"))
	assert.Equal(t, 2, s.Size())
	assert.Equal(t, []Key{"b", "a"}, s.Keys())
}

func TestContains(t *testing.T) {
	clock := newFakeClock()
	s := New(Config{MaxSize: 2, TTL: time.Minute}, WithClock(clock.Now))

	s.Set("a", entry("a"))
	s.Set("b", entry("b"))
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("missing"))

	// Contains does not promote, so "a" is still evicted first.
	s.Set("c", entry("c"))
	assert.False(t, s.Contains("a"))
	assert.Zero(t, s.Stats().Hits)
	assert.Zero(t, s.Stats().Misses)

	clock.Advance(2 * time.Minute)
	assert.False(t, s.Contains("b"))
	assert.Equal(t, 2, s.Size(), "Contains does not evict")
}

func TestConfigure(t *testing.T) {
	t.Run("max size one keeps only the latest", func(t *testing.T) {
		s := New(Config{})
		require.NoError(t, s.Configure(Config{MaxSize: 1}))

		first, second := KeyFor("# first", ""), KeyFor("# second", "")
		s.Set(first, entry("1"))
		s.Set(second, entry("2"))

		_, ok := s.Get(first)
		assert.False(t, ok)
		got, ok := s.Get(second)
		require.True(t, ok)
		assert.Equal(t, "2", got.CompiledCode)
	})

	t.Run("lowering max size is not retroactive", func(t *testing.T) {
		s := New(Config{MaxSize: 5})
		for _, k := range []Key{"a", "b", "c", "d"} {
			s.Set(k, entry(string(k)))
		}

		require.NoError(t, s.Configure(Config{MaxSize: 2}))
		assert.Equal(t, 4, s.Size())

		s.Set("e", entry("e"))
		assert.Equal(t, 2, s.Size())
		assert.Equal(t, []Key{"e", "d"}, s.Keys())
	})

	t.Run("zero leaves bounds unchanged", func(t *testing.T) {
		s := New(Config{MaxSize: 7, TTL: time.Second})
		require.NoError(t, s.Configure(Config{}))
		st := s.Stats()
		assert.Equal(t, 7, st.MaxSize)
		assert.Equal(t, time.Second, st.TTL)
	})

	t.Run("negative values are rejected", func(t *testing.T) {
		s := New(Config{})
		err := s.Configure(Config{MaxSize: -1})
		require.Error(t, err)
		assert.True(t, errors.HasType(err, errors.TypeCache))

		err = s.Configure(Config{TTL: -time.Second})
		require.Error(t, err)
		assert.Equal(t, DefaultMaxSize, s.Stats().MaxSize)
	})
}

func TestClearAndDelete(t *testing.T) {
	s := New(Config{})
	s.Set("a", entry("a"))
	s.Set("b", entry("b"))

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	assert.Equal(t, 1, s.Size())

	s.Clear()
	assert.Zero(t, s.Size())
	assert.Empty(t, s.Keys())

	s.Set("c", entry("c"))
	assert.Equal(t, 1, s.Size(), "store is usable after clear")
}

func TestTeardown(t *testing.T) {
	s := New(Config{})
	s.Set("a", entry("a"))

	s.Teardown()
	assert.True(t, s.Closed())
	assert.Zero(t, s.Size())

	s.Set("b", entry("b"))
	_, ok := s.Get("b")
	assert.False(t, ok)
	assert.Zero(t, s.Size())
}

func TestConcurrentAccess(t *testing.T) {
	s := New(Config{MaxSize: 16})
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := KeyFor(fmt.Sprintf("%d-%d", g, i%20), "")
				s.Set(k, entry("x"))
				s.Get(k)
				if i%50 == 0 {
					_ = s.Stats()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Size(), 16)
	assert.Len(t, s.Keys(), s.Size())
}
