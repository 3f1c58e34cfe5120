package geocache

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/osa030/tunemap/internal/infra/logger"
	"github.com/osa030/tunemap/internal/infra/metrics"
)

const (
	// DefaultTTL is how long an entry stays valid after it was fetched.
	DefaultTTL = time.Hour
	// DefaultMaxSize is the number of regions kept before eviction.
	DefaultMaxSize = 50
)

type options struct {
	ttl      time.Duration
	maxSize  int
	now      func() time.Time
	notifier Notifier
	log      *zerolog.Logger
}

// Option configures a Cache.
type Option func(*options)

// WithTTL sets the entry time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithMaxSize sets the maximum number of entries.
func WithMaxSize(n int) Option {
	return func(o *options) { o.maxSize = n }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithNotifier registers a receiver for cache changes.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = &l }
}

// Cache maps a country code to an Entry. Entries older than the TTL are
// logically absent: reads drop them lazily and writes sweep them. When a new
// key would exceed the maximum size, the entry with the oldest FetchedAt is
// evicted. Every mutation rewrites the durable store.
//
// A single mutex serializes all operations, including the durability write,
// since reads may also remove expired entries.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]Entry[T]
	store   Store[T]

	ttl      time.Duration
	maxSize  int
	now      func() time.Time
	notifier Notifier
	log      zerolog.Logger

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

// New creates a cache backed by store and loads its current contents.
// A nil store keeps the cache in memory only. Load failures are logged and
// the cache starts empty.
func New[T any](store Store[T], opts ...Option) *Cache[T] {
	o := options{
		ttl:     DefaultTTL,
		maxSize: DefaultMaxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxSize < 1 {
		o.maxSize = 1
	}
	if store == nil {
		store = nopStore[T]{}
	}

	c := &Cache[T]{
		entries:  make(map[string]Entry[T]),
		store:    store,
		ttl:      o.ttl,
		maxSize:  o.maxSize,
		now:      o.now,
		notifier: o.notifier,
	}
	if o.log != nil {
		c.log = *o.log
	} else {
		c.log = logger.Component("geocache")
	}

	c.load()
	return c
}

// load reads the store, drops expired entries and trims to maxSize.
func (c *Cache[T]) load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	loaded, err := c.store.Load()
	switch {
	case errors.Is(err, ErrNoDocument):
		c.log.Debug().Msg("no cache document found, starting empty")
		return
	case err != nil:
		c.log.Warn().Err(err).Msg("failed to load cache document, starting empty")
		return
	}

	now := c.now()
	dropped := 0
	for key, e := range loaded {
		k := e.Key()
		if k == "" {
			k = normalizeKey(key)
		}
		if k == "" || e.Expired(now, c.ttl) {
			dropped++
			continue
		}
		e.CountryCode = k
		c.entries[k] = e
	}
	for len(c.entries) > c.maxSize {
		c.evictOldestLocked()
		dropped++
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))

	c.log.Info().Int("entries", len(c.entries)).Int("dropped", dropped).Msg("cache document loaded")
	if dropped > 0 {
		_ = c.persistLocked()
	}
}

// Get returns the entry for key if it is present and unexpired. An expired
// entry is removed as a side effect.
func (c *Cache[T]) Get(key string) (Entry[T], bool) {
	key = normalizeKey(key)

	c.mu.Lock()
	e, ok, expired := c.getLocked(key, c.now())
	if expired {
		_ = c.persistLocked()
	}
	c.mu.Unlock()

	if expired {
		c.notify(Change{Op: OpExpire, Keys: []string{key}})
	}
	return e, ok
}

// GetMany looks up several keys under one lock, with the same lazy expiry
// as Get. The result holds only the keys that were found.
func (c *Cache[T]) GetMany(keys []string) map[string]Entry[T] {
	found := make(map[string]Entry[T], len(keys))
	var expiredKeys []string

	c.mu.Lock()
	now := c.now()
	for _, key := range keys {
		key = normalizeKey(key)
		e, ok, expired := c.getLocked(key, now)
		if expired {
			expiredKeys = append(expiredKeys, key)
		}
		if ok {
			found[key] = e
		}
	}
	if len(expiredKeys) > 0 {
		_ = c.persistLocked()
	}
	c.mu.Unlock()

	if len(expiredKeys) > 0 {
		c.notify(Change{Op: OpExpire, Keys: expiredKeys})
	}
	return found
}

// IsCached reports whether Get would succeed, with the same side effect.
func (c *Cache[T]) IsCached(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Put inserts or replaces the entry under its key. Inserting a new key into
// a full cache evicts the oldest entry first; replacing never evicts.
// The in-memory state is updated even if persisting fails.
func (c *Cache[T]) Put(e Entry[T]) error {
	return c.PutMany([]Entry[T]{e})
}

// PutMany applies Put to each entry in order and persists once. Duplicate
// keys within the batch resolve to the last one.
func (c *Cache[T]) PutMany(entries []Entry[T]) error {
	if len(entries) == 0 {
		return nil
	}

	c.mu.Lock()
	now := c.now()
	expired := c.sweepLocked(now)
	var evicted, stored []string
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := e.Key()
		if key == "" {
			c.log.Warn().Str("country_name", e.CountryName).Msg("ignoring entry without a country code")
			continue
		}
		e.CountryCode = key
		if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
			if k := c.evictOldestLocked(); k != "" {
				evicted = append(evicted, k)
			}
		}
		c.entries[key] = e
		if !seen[key] {
			seen[key] = true
			stored = append(stored, key)
		}
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	err := c.persistLocked()
	c.mu.Unlock()

	if len(expired) > 0 {
		c.notify(Change{Op: OpExpire, Keys: expired})
	}
	if len(evicted) > 0 {
		c.notify(Change{Op: OpEvict, Keys: evicted})
	}
	if len(stored) > 0 {
		c.notify(Change{Op: OpPut, Keys: stored})
	}
	return err
}

// Remove deletes key. Removing an absent key is a no-op.
func (c *Cache[T]) Remove(key string) error {
	key = normalizeKey(key)

	c.mu.Lock()
	if _, ok := c.entries[key]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.entries, key)
	metrics.CacheRemovals.WithLabelValues("removed").Inc()
	metrics.CacheEntries.Set(float64(len(c.entries)))
	err := c.persistLocked()
	c.mu.Unlock()

	c.notify(Change{Op: OpRemove, Keys: []string{key}})
	return err
}

// Clear drops every entry and purges the durable store.
func (c *Cache[T]) Clear() error {
	c.mu.Lock()
	keys := c.sortedKeysLocked()
	c.entries = make(map[string]Entry[T])
	metrics.CacheRemovals.WithLabelValues("cleared").Add(float64(len(keys)))
	metrics.CacheEntries.Set(0)
	err := c.store.Purge()
	c.mu.Unlock()

	if err != nil {
		metrics.CachePersistFailures.Inc()
		c.log.Error().Err(err).Msg("failed to purge cache document")
	} else {
		c.log.Info().Int("entries", len(keys)).Msg("cache cleared")
	}
	if len(keys) > 0 {
		c.notify(Change{Op: OpClear, Keys: keys})
	}
	return err
}

// Keys returns the live keys, sorted. It does not remove expired entries.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if !e.Expired(now, c.ttl) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Entries returns the live entries sorted by key.
func (c *Cache[T]) Entries() []Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]Entry[T], 0, len(c.entries))
	for _, k := range c.sortedKeysLocked() {
		if e := c.entries[k]; !e.Expired(now, c.ttl) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of live entries.
func (c *Cache[T]) Len() int {
	return len(c.Keys())
}

// Stats returns the cache counters. Entries counts live entries only, like Len.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	live := 0
	for _, e := range c.entries {
		if !e.Expired(now, c.ttl) {
			live++
		}
	}
	return Stats{
		Entries:     live,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// TTL returns the configured time-to-live.
func (c *Cache[T]) TTL() time.Duration { return c.ttl }

// MaxSize returns the configured capacity.
func (c *Cache[T]) MaxSize() int { return c.maxSize }

func (c *Cache[T]) getLocked(key string, now time.Time) (e Entry[T], ok bool, expired bool) {
	e, ok = c.entries[key]
	if !ok {
		c.misses++
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return Entry[T]{}, false, false
	}
	if e.Expired(now, c.ttl) {
		delete(c.entries, key)
		c.misses++
		c.expirations++
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		metrics.CacheRemovals.WithLabelValues("expired").Inc()
		metrics.CacheEntries.Set(float64(len(c.entries)))
		return Entry[T]{}, false, true
	}
	c.hits++
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return e, true, false
}

// sweepLocked removes every expired entry and returns their keys.
func (c *Cache[T]) sweepLocked(now time.Time) []string {
	var expired []string
	for k, e := range c.entries {
		if e.Expired(now, c.ttl) {
			expired = append(expired, k)
		}
	}
	sort.Strings(expired)
	for _, k := range expired {
		delete(c.entries, k)
	}
	if len(expired) > 0 {
		c.expirations += uint64(len(expired))
		metrics.CacheRemovals.WithLabelValues("expired").Add(float64(len(expired)))
	}
	return expired
}

// evictOldestLocked removes the entry with the oldest FetchedAt, breaking
// ties on the smaller key, and returns its key.
func (c *Cache[T]) evictOldestLocked() string {
	var oldest string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldest == "" || e.FetchedAt.Before(oldestAt) || (e.FetchedAt.Equal(oldestAt) && k < oldest) {
			oldest = k
			oldestAt = e.FetchedAt
		}
	}
	if oldest == "" {
		return ""
	}
	delete(c.entries, oldest)
	c.evictions++
	metrics.CacheRemovals.WithLabelValues("evicted").Inc()
	c.log.Debug().Str("key", oldest).Time("fetched_at", oldestAt).Msg("evicted oldest entry")
	return oldest
}

func (c *Cache[T]) sortedKeysLocked() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// persistLocked writes a copy of the entry set to the store.
func (c *Cache[T]) persistLocked() error {
	snapshot := make(map[string]Entry[T], len(c.entries))
	for k, e := range c.entries {
		snapshot[k] = e
	}
	if err := c.store.Save(snapshot); err != nil {
		metrics.CachePersistFailures.Inc()
		c.log.Error().Err(err).Msg("failed to save cache document")
		return errors.Wrap(err, "failed to persist cache")
	}
	return nil
}

func (c *Cache[T]) notify(ch Change) {
	if c.notifier != nil {
		c.notifier.Notify(ch)
	}
}
