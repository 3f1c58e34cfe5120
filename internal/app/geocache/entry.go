// Package geocache provides a persisted, size-bounded, TTL-expiring cache
// keyed by country code.
package geocache

import (
	"strings"
	"time"
)

// Entry is one cached region. It is only ever replaced as a whole.
type Entry[T any] struct {
	CountryCode string    `json:"countryCode"`
	CountryName string    `json:"countryName"`
	Payload     T         `json:"payload"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Key returns the normalized cache key of the entry.
func (e Entry[T]) Key() string {
	return normalizeKey(e.CountryCode)
}

// Expired reports whether the entry is older than ttl at now.
// An entry exactly ttl old is still valid.
func (e Entry[T]) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) > ttl
}

func normalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Op identifies the kind of cache change.
type Op string

const (
	OpPut    Op = "put"
	OpRemove Op = "remove"
	OpExpire Op = "expire"
	OpEvict  Op = "evict"
	OpClear  Op = "clear"
)

// Change describes a mutation of the cache.
type Change struct {
	Op   Op       `json:"op"`
	Keys []string `json:"keys"`
}

// Notifier receives cache changes. Notify is called without the cache lock
// held and must not block for long.
type Notifier interface {
	Notify(Change)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Change)

// Notify calls f(ch).
func (f NotifierFunc) Notify(ch Change) { f(ch) }

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries     int    `json:"entries"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}
