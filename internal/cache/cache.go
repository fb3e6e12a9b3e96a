// Package cache provides the compiled-artifact store: a content-addressed
// map from source digest to compiled output, bounded by entry count (LRU)
// and entry age (TTL).
//
// TTL is checked lazily on Get; there is no background sweep, so an expired
// entry that is never read keeps its slot until it is evicted by size
// pressure or the store is cleared.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/burrow/internal/errors"
)

// Defaults applied by New when no bounds are configured.
const (
	DefaultMaxSize = 100
	DefaultTTL     = time.Hour
)

// Key is the hex SHA-256 digest identifying a cache entry.
type Key string

// KeyFor derives the key for source compiled with the given options
// fingerprint. An empty fingerprint yields the digest of the source alone.
func KeyFor(source, fingerprint string) Key {
	h := sha256.New()
	h.Write([]byte(source))
	if fingerprint != "" {
		h.Write([]byte{0})
		h.Write([]byte(fingerprint))
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Entry is a cached compilation artifact. The scope is never cached.
type Entry struct {
	CompiledCode string
	Frontmatter  map[string]any
	Images       []string
	InsertedAt   time.Time
}

// Clone returns a deep copy of e. Front-matter maps and slices are copied;
// other values are shared.
func (e Entry) Clone() Entry {
	out := e
	if e.Frontmatter != nil {
		out.Frontmatter = cloneMap(e.Frontmatter)
	}
	if e.Images != nil {
		out.Images = append([]string(nil), e.Images...)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Config holds the store bounds. Zero values leave a bound unchanged when
// passed to Configure.
type Config struct {
	MaxSize int
	TTL     time.Duration
}

// Stats is a snapshot of store counters.
type Stats struct {
	Size        int
	MaxSize     int
	TTL         time.Duration
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	Expirations int64
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the artifact cache. The zero value is not usable; call New.
type Store struct {
	mutex   sync.Mutex
	entries map[Key]*node
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	closed  bool

	// LRU list with sentinels; head.next is most recently used.
	head *node
	tail *node

	hits        int64
	misses      int64
	sets        int64
	evictions   int64
	expirations int64
}

type node struct {
	key   Key
	entry Entry
	prev  *node
	next  *node
}

// New creates a store. Non-positive bounds fall back to the defaults.
func New(cfg Config, opts ...Option) *Store {
	s := &Store{
		entries: make(map[Key]*node),
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		now:     time.Now,
		head:    &node{},
		tail:    &node{},
	}
	if s.maxSize <= 0 {
		s.maxSize = DefaultMaxSize
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	s.head.next = s.tail
	s.tail.prev = s.head

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the entry for key. An entry older than the TTL is evicted and
// reported as a miss. A hit promotes the entry to most recently used.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n, ok := s.entries[key]
	if !ok || s.closed {
		s.misses++
		return Entry{}, false
	}

	if s.now().Sub(n.entry.InsertedAt) > s.ttl {
		s.remove(n)
		s.expirations++
		s.misses++
		return Entry{}, false
	}

	s.moveToFront(n)
	s.hits++
	return n.entry.Clone(), true
}

// Contains reports whether key holds an unexpired entry. It does not
// promote the entry or touch the counters.
func (s *Store) Contains(key Key) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n, ok := s.entries[key]
	return ok && !s.closed && s.now().Sub(n.entry.InsertedAt) <= s.ttl
}

// Set stores entry under key, replacing any previous entry wholesale.
// Inserting a new key into a full store evicts least recently used entries
// until there is room.
func (s *Store) Set(key Key, entry Entry) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}

	entry = entry.Clone()
	entry.InsertedAt = s.now()
	s.sets++

	if n, ok := s.entries[key]; ok {
		n.entry = entry
		s.moveToFront(n)
		return
	}

	for len(s.entries) >= s.maxSize && s.tail.prev != s.head {
		lru := s.tail.prev
		s.remove(lru)
		s.evictions++
	}

	n := &node{key: key, entry: entry}
	s.entries[key] = n
	s.addToFront(n)
}

// Delete removes key if present.
func (s *Store) Delete(key Key) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n, ok := s.entries[key]
	if !ok {
		return false
	}
	s.remove(n)
	return true
}

// Clear empties the store. Counters are kept.
func (s *Store) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reset()
}

// Configure updates the bounds. Lowering MaxSize does not evict anything
// until the next Set.
func (s *Store) Configure(cfg Config) error {
	if cfg.MaxSize < 0 {
		return errors.New(errors.TypeCache, errors.CodeCacheConfig,
			fmt.Sprintf("max size must be greater than 0, got %d", cfg.MaxSize))
	}
	if cfg.TTL < 0 {
		return errors.New(errors.TypeCache, errors.CodeCacheConfig,
			fmt.Sprintf("ttl must be greater than 0, got %s", cfg.TTL))
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if cfg.MaxSize > 0 {
		s.maxSize = cfg.MaxSize
	}
	if cfg.TTL > 0 {
		s.ttl = cfg.TTL
	}
	return nil
}

// Size returns the current number of entries, expired or not.
func (s *Store) Size() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

// Keys returns keys from most to least recently used.
func (s *Store) Keys() []Key {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	keys := make([]Key, 0, len(s.entries))
	for n := s.head.next; n != s.tail; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return Stats{
		Size:        len(s.entries),
		MaxSize:     s.maxSize,
		TTL:         s.ttl,
		Hits:        s.hits,
		Misses:      s.misses,
		Sets:        s.sets,
		Evictions:   s.evictions,
		Expirations: s.expirations,
	}
}

// Teardown clears the store and rejects further use: Set becomes a no-op
// and Get always misses.
func (s *Store) Teardown() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reset()
	s.closed = true
}

// Closed reports whether Teardown has been called.
func (s *Store) Closed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

func (s *Store) reset() {
	s.entries = make(map[Key]*node)
	s.head.next = s.tail
	s.tail.prev = s.head
}

// LRU doubly-linked list operations
func (s *Store) addToFront(n *node) {
	n.prev = s.head
	n.next = s.head.next
	s.head.next.prev = n
	s.head.next = n
}

func (s *Store) unlink(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (s *Store) remove(n *node) {
	s.unlink(n)
	delete(s.entries, n.key)
}

func (s *Store) moveToFront(n *node) {
	s.unlink(n)
	s.addToFront(n)
}
