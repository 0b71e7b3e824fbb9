// Package cache provides a generic LRU cache with hit statistics and
// msgpack persistence.
package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrCorrupt is returned by Load when the persisted data cannot be decoded.
var ErrCorrupt = errors.New("corrupt cache data")

// Entry is a cache entry with its bookkeeping.
type Entry[V any] struct {
	Key        string    `msgpack:"key"`
	Value      V         `msgpack:"value"`
	AccessedAt time.Time `msgpack:"accessed_at"`
	CreatedAt  time.Time `msgpack:"created_at"`
	Size       int       `msgpack:"size"`
}

// LRU is an in-memory least-recently-used cache. It is safe for concurrent
// use.
type LRU[V any] struct {
	mu           sync.Mutex
	items        map[string]*listItem[V]
	lru          list[V] // most recent at front
	maxSize      int
	maxBytes     int64
	currentBytes int64
	sizeOf       func(V) int
	onEvict      func(key string, value V)

	hits   int64
	misses int64
}

type listItem[V any] struct {
	Entry[V]
	prev *listItem[V]
	next *listItem[V]
}

type list[V any] struct {
	head *listItem[V] // most recently accessed
	tail *listItem[V] // least recently accessed
	len  int
}

func (l *list[V]) unlink(item *listItem[V]) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

func (l *list[V]) pushFront(item *listItem[V]) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list[V]) pushBack(item *listItem[V]) {
	item.prev = l.tail
	item.next = nil
	if l.tail != nil {
		l.tail.next = item
	}
	l.tail = item
	if l.head == nil {
		l.head = item
	}
	l.len++
}

func (l *list[V]) moveToFront(item *listItem[V]) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

// Options configures an LRU.
type Options[V any] struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int

	// MaxBytes bounds the sum of entry sizes. 0 means unlimited.
	MaxBytes int64

	// SizeOf estimates the size of a value. Every entry counts as 1 when
	// it is nil.
	SizeOf func(V) int

	// OnEvict is called when an entry is evicted or deleted.
	OnEvict func(key string, value V)
}

// New creates an LRU with the given options.
func New[V any](opts Options[V]) *LRU[V] {
	return &LRU[V]{
		items:    make(map[string]*listItem[V]),
		maxSize:  opts.MaxSize,
		maxBytes: opts.MaxBytes,
		sizeOf:   opts.SizeOf,
		onEvict:  opts.OnEvict,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.Value, true
}

// Peek retrieves a value without touching recency or statistics.
func (c *LRU[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found {
		return item.Value, true
	}
	var zero V
	return zero, false
}

// Set stores a value, evicting least recently used entries past the limits.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := 1
	if c.sizeOf != nil {
		size = c.sizeOf(value)
	}
	now := time.Now()

	if item, exists := c.items[key]; exists {
		c.currentBytes -= int64(item.Size)
		item.Value = value
		item.Size = size
		item.AccessedAt = now
		c.currentBytes += int64(size)
		c.lru.moveToFront(item)
		c.evictIfNeeded()
		return
	}

	item := &listItem[V]{
		Entry: Entry[V]{
			Key:        key,
			Value:      value,
			AccessedAt: now,
			CreatedAt:  now,
			Size:       size,
		},
	}
	c.items[key] = item
	c.lru.pushFront(item)
	c.currentBytes += int64(size)
	c.evictIfNeeded()
}

// Delete removes a key.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return
	}
	c.remove(item)
}

// Clear removes every entry without calling OnEvict. Statistics are kept.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *LRU[V]) reset() {
	c.items = make(map[string]*listItem[V])
	c.lru = list[V]{}
	c.currentBytes = 0
}

// Len returns the number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the keys from most to least recently used.
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for item := c.lru.head; item != nil; item = item.next {
		keys = append(keys, item.Key)
	}
	return keys
}

func (c *LRU[V]) remove(item *listItem[V]) {
	c.lru.unlink(item)
	delete(c.items, item.Key)
	c.currentBytes -= int64(item.Size)
	if c.onEvict != nil {
		c.onEvict(item.Key, item.Value)
	}
}

func (c *LRU[V]) evictIfNeeded() {
	for c.shouldEvict() && c.lru.tail != nil {
		c.remove(c.lru.tail)
	}
}

func (c *LRU[V]) shouldEvict() bool {
	if c.maxSize > 0 && c.lru.len > c.maxSize {
		return true
	}
	// A single entry larger than the limit is still kept.
	return c.maxBytes > 0 && c.currentBytes > c.maxBytes && c.lru.len > 1
}

// Stats is a snapshot of cache usage.
type Stats struct {
	Length       int   `json:"length"`
	CurrentBytes int64 `json:"current_bytes"`
	HitCount     int64 `json:"hit_count"`
	MissCount    int64 `json:"miss_count"`
}

// HitRate returns hits / lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// Stats returns the current statistics.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Length:       len(c.items),
		CurrentBytes: c.currentBytes,
		HitCount:     c.hits,
		MissCount:    c.misses,
	}
}

// ResetStats zeroes the hit and miss counters.
func (c *LRU[V]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses = 0, 0
}

// persisted is the on-disk layout.
type persisted[V any] struct {
	Version int        `msgpack:"version"`
	Entries []Entry[V] `msgpack:"entries"`
}

const formatVersion = 1

// Save writes the entries, most recently used first, using msgpack.
func (c *LRU[V]) Save(w io.Writer) error {
	c.mu.Lock()
	data := persisted[V]{Version: formatVersion, Entries: make([]Entry[V], 0, len(c.items))}
	for item := c.lru.head; item != nil; item = item.next {
		data.Entries = append(data.Entries, item.Entry)
	}
	c.mu.Unlock()

	return msgpack.NewEncoder(w).Encode(&data)
}

// Load replaces the contents with entries written by Save, keeping their
// recency order. Entries past the limits are evicted.
func (c *LRU[V]) Load(r io.Reader) error {
	var data persisted[V]
	if err := msgpack.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if data.Version != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data.Version)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.reset()
	for _, entry := range data.Entries {
		if _, dup := c.items[entry.Key]; dup {
			continue
		}
		item := &listItem[V]{Entry: entry}
		c.items[entry.Key] = item
		c.lru.pushBack(item)
		c.currentBytes += int64(entry.Size)
	}
	c.evictIfNeeded()
	return nil
}

// PersistToFile saves c to path, creating parent directories. The file is
// written to a temporary name first and renamed into place.
func PersistToFile[V any](c *LRU[V], path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if err := c.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadFromFile loads c from path. A missing file leaves c empty.
func LoadFromFile[V any](c *LRU[V], path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return c.Load(f)
}
