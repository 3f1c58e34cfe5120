package geocache

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
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

// memStore records saves and can be told to fail.
type memStore struct {
	mu      sync.Mutex
	doc     map[string]Entry[string]
	saves   int
	purges  int
	failErr error
}

func (s *memStore) Load() (map[string]Entry[string], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, ErrNoDocument
	}
	out := make(map[string]Entry[string], len(s.doc))
	for k, v := range s.doc {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) Save(entries map[string]Entry[string]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failErr != nil {
		return s.failErr
	}
	s.doc = entries
	return nil
}

func (s *memStore) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purges++
	if s.failErr != nil {
		return s.failErr
	}
	s.doc = nil
	return nil
}

func entryAt(code string, at time.Time) Entry[string] {
	return Entry[string]{
		CountryCode: code,
		CountryName: code + " name",
		Payload:     "track-" + code,
		FetchedAt:   at,
	}
}

func newTestCache(t *testing.T, store Store[string], clock *fakeClock, opts ...Option) *Cache[string] {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now), WithLogger(zerolog.Nop())}, opts...)
	return New[string](store, opts...)
}

func TestCache_PutGet(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)

	require.NoError(t, c.Put(entryAt("us", clock.Now())))

	got, ok := c.Get("US")
	require.True(t, ok)
	assert.Equal(t, "US", got.CountryCode)
	assert.Equal(t, "track-us", got.Payload)

	_, ok = c.Get(" us ")
	assert.True(t, ok, "keys should be normalized")

	_, ok = c.Get("FR")
	assert.False(t, ok)
}

func TestCache_TTLBoundary(t *testing.T) {
	tests := []struct {
		name    string
		age     time.Duration
		present bool
	}{
		{name: "fresh", age: 0, present: true},
		{name: "exactly ttl", age: time.Hour, present: true},
		{name: "one second past ttl", age: time.Hour + time.Second, present: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			store := &memStore{}
			c := newTestCache(t, store, clock)

			require.NoError(t, c.Put(entryAt("JP", clock.Now())))
			clock.Advance(tt.age)

			assert.Equal(t, tt.present, c.IsCached("JP"))
			_, ok := c.Get("JP")
			assert.Equal(t, tt.present, ok)
			if !tt.present {
				_, stillStored := store.doc["JP"]
				assert.False(t, stillStored, "expired entry should be dropped from the store")
			}
		})
	}
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock, WithMaxSize(3))

	base := clock.Now()
	require.NoError(t, c.Put(entryAt("BR", base.Add(2*time.Second))))
	require.NoError(t, c.Put(entryAt("AR", base)))
	require.NoError(t, c.Put(entryAt("CL", base.Add(time.Second))))

	require.NoError(t, c.Put(entryAt("PE", base.Add(3*time.Second))))

	assert.Equal(t, []string{"BR", "CL", "PE"}, c.Keys())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_EvictionTieBreaksOnKey(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock, WithMaxSize(2))

	at := clock.Now()
	require.NoError(t, c.Put(entryAt("ZA", at)))
	require.NoError(t, c.Put(entryAt("EG", at)))
	require.NoError(t, c.Put(entryAt("NG", at)))

	assert.Equal(t, []string{"NG", "ZA"}, c.Keys())
}

func TestCache_ReplaceDoesNotEvict(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock, WithMaxSize(2))

	require.NoError(t, c.Put(entryAt("US", clock.Now())))
	require.NoError(t, c.Put(entryAt("CA", clock.Now())))

	clock.Advance(time.Minute)
	replacement := entryAt("US", clock.Now())
	replacement.Payload = "new"
	require.NoError(t, c.Put(replacement))

	assert.Equal(t, 2, c.Len())
	got, ok := c.Get("US")
	require.True(t, ok)
	assert.Equal(t, "new", got.Payload)
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestCache_PutSweepsExpiredBeforeEvicting(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock, WithMaxSize(2))

	require.NoError(t, c.Put(entryAt("US", clock.Now())))
	clock.Advance(30 * time.Minute)
	require.NoError(t, c.Put(entryAt("CA", clock.Now())))

	clock.Advance(31 * time.Minute)
	require.NoError(t, c.Put(entryAt("MX", clock.Now())))

	assert.Equal(t, []string{"CA", "MX"}, c.Keys())
	stats := c.Stats()
	assert.Equal(t, uint64(0), stats.Evictions)
	assert.Equal(t, uint64(1), stats.Expirations)
}

func TestCache_SizeNeverExceedsMax(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock, WithMaxSize(5))

	codes := []string{"US", "GB", "DE", "FR", "IT", "ES", "NL", "SE", "NO", "DK", "FI", "PL"}
	for _, code := range codes {
		clock.Advance(time.Second)
		require.NoError(t, c.Put(entryAt(code, clock.Now())))
		assert.LessOrEqual(t, c.Len(), 5)
	}
	assert.Equal(t, []string{"DK", "FI", "NO", "PL", "SE"}, c.Keys())
}

func TestCache_PutManyMatchesSequentialPuts(t *testing.T) {
	tests := []struct {
		name          string
		maxSize       int
		existing      []string
		batch         [][2]string
		wantKeys      []string
		wantPayloads  map[string]string
		wantEvictions uint64
		wantStored    []string
	}{
		{
			name:          "mixed-case duplicate in a full cache",
			maxSize:       2,
			existing:      []string{"AR", "BR"},
			batch:         [][2]string{{"cl", "c1"}, {"CL", "c2"}},
			wantKeys:      []string{"BR", "CL"},
			wantPayloads:  map[string]string{"BR": "track-BR", "CL": "c2"},
			wantEvictions: 1,
			wantStored:    []string{"CL"},
		},
		{
			name:          "duplicate in a cache with room",
			maxSize:       3,
			existing:      []string{"AR"},
			batch:         [][2]string{{"br", "b1"}, {"BR", "b2"}},
			wantKeys:      []string{"AR", "BR"},
			wantPayloads:  map[string]string{"AR": "track-AR", "BR": "b2"},
			wantEvictions: 0,
			wantStored:    []string{"BR"},
		},
		{
			name:          "new keys beyond capacity",
			maxSize:       2,
			existing:      []string{"AR", "BR"},
			batch:         [][2]string{{"CL", "c"}, {"PE", "p"}},
			wantKeys:      []string{"CL", "PE"},
			wantPayloads:  map[string]string{"CL": "c", "PE": "p"},
			wantEvictions: 2,
			wantStored:    []string{"CL", "PE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stored []string
			batchCache := seededCache(t, tt.maxSize, tt.existing, WithNotifier(NotifierFunc(func(ch Change) {
				if ch.Op == OpPut {
					stored = ch.Keys
				}
			})))
			sequentialCache := seededCache(t, tt.maxSize, tt.existing)

			at := batchCache.now()
			batch := make([]Entry[string], 0, len(tt.batch))
			for _, b := range tt.batch {
				e := entryAt(b[0], at)
				e.Payload = b[1]
				batch = append(batch, e)
			}

			require.NoError(t, batchCache.PutMany(batch))
			for _, e := range batch {
				require.NoError(t, sequentialCache.Put(e))
			}

			for _, c := range []*Cache[string]{batchCache, sequentialCache} {
				assert.Equal(t, tt.wantKeys, c.Keys())
				assert.Equal(t, len(tt.wantKeys), c.Len())
				assert.Equal(t, tt.wantEvictions, c.Stats().Evictions)
				for code, payload := range tt.wantPayloads {
					got, ok := c.Get(code)
					require.True(t, ok, code)
					assert.Equal(t, payload, got.Payload)
					assert.Equal(t, code, got.CountryCode)
				}
			}
			assert.Equal(t, tt.wantStored, stored)
		})
	}
}

// seededCache returns a cache holding codes fetched one second apart, with
// its clock one second past the newest.
func seededCache(t *testing.T, maxSize int, codes []string, opts ...Option) *Cache[string] {
	t.Helper()
	clock := newFakeClock()
	c := newTestCache(t, nil, clock, append([]Option{WithMaxSize(maxSize)}, opts...)...)
	for _, code := range codes {
		require.NoError(t, c.Put(entryAt(code, clock.Now())))
		clock.Advance(time.Second)
	}
	return c
}

func TestCache_StatsCountsLiveEntries(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)

	require.NoError(t, c.Put(entryAt("US", clock.Now())))
	clock.Advance(30 * time.Minute)
	require.NoError(t, c.Put(entryAt("CA", clock.Now())))
	assert.Equal(t, 2, c.Stats().Entries)

	clock.Advance(31 * time.Minute)
	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, c.Len(), stats.Entries)
	assert.Equal(t, uint64(0), stats.Expirations)

	clock.Advance(30 * time.Minute)
	assert.Equal(t, 0, c.Stats().Entries)
	assert.Empty(t, c.Entries())
}

func TestCache_RemoveAndClear(t *testing.T) {
	clock := newFakeClock()
	store := &memStore{}
	c := newTestCache(t, store, clock)

	require.NoError(t, c.PutMany([]Entry[string]{
		entryAt("US", clock.Now()),
		entryAt("MX", clock.Now()),
	}))
	assert.Equal(t, 1, store.saves, "PutMany should persist once")

	require.NoError(t, c.Remove("mx"))
	require.NoError(t, c.Remove("MX"), "removing an absent key is a no-op")
	assert.Equal(t, []string{"US"}, c.Keys())

	require.NoError(t, c.Clear())
	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, store.doc)
	assert.Equal(t, 2, store.purges)
}

func TestCache_GetMany(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)

	require.NoError(t, c.Put(entryAt("KR", clock.Now())))
	clock.Advance(2 * time.Hour)
	require.NoError(t, c.Put(entryAt("JP", clock.Now())))

	got := c.GetMany([]string{"jp", "KR", "CN"})
	require.Len(t, got, 1)
	assert.Contains(t, got, "JP")
}

func TestCache_PersistenceRoundTrip(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "cache.json")

	first := newTestCache(t, NewFileStore[string](path), clock)
	require.NoError(t, first.Put(entryAt("AU", clock.Now())))
	require.NoError(t, first.Put(entryAt("NZ", clock.Now())))

	second := newTestCache(t, NewFileStore[string](path), clock)
	assert.Equal(t, []string{"AU", "NZ"}, second.Keys())
	got, ok := second.Get("NZ")
	require.True(t, ok)
	assert.Equal(t, "track-NZ", got.Payload)
	assert.True(t, got.FetchedAt.Equal(clock.Now()))
}

func TestCache_LoadDropsExpiredAndTrims(t *testing.T) {
	clock := newFakeClock()
	now := clock.Now()
	store := &memStore{doc: map[string]Entry[string]{
		"OLD": entryAt("OLD", now.Add(-2*time.Hour)),
		"A":   entryAt("A", now.Add(-3*time.Minute)),
		"B":   entryAt("B", now.Add(-2*time.Minute)),
		"C":   entryAt("C", now.Add(-1*time.Minute)),
	}}

	c := newTestCache(t, store, clock, WithMaxSize(2))

	assert.Equal(t, []string{"B", "C"}, c.Keys())
	assert.Equal(t, 1, store.saves, "dropped entries should be persisted at startup")
	assert.Len(t, store.doc, 2)
}

func TestCache_CorruptDocumentStartsEmpty(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, writeFile(path, "{not json"))

	c := newTestCache(t, NewFileStore[string](path), clock)
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Put(entryAt("IN", clock.Now())))
	reloaded := newTestCache(t, NewFileStore[string](path), clock)
	assert.Equal(t, []string{"IN"}, reloaded.Keys())
}

func TestCache_PersistFailureKeepsMemoryState(t *testing.T) {
	clock := newFakeClock()
	store := &memStore{failErr: errors.New("disk full")}
	c := newTestCache(t, store, clock)

	err := c.Put(entryAt("TH", clock.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, c.IsCached("TH"))
}

func TestCache_Notifications(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	var changes []Change
	c := newTestCache(t, nil, clock, WithMaxSize(1), WithNotifier(NotifierFunc(func(ch Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, ch)
	})))

	require.NoError(t, c.Put(entryAt("US", clock.Now())))
	clock.Advance(time.Second)
	require.NoError(t, c.Put(entryAt("CA", clock.Now())))
	require.NoError(t, c.Remove("CA"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Change{
		{Op: OpPut, Keys: []string{"US"}},
		{Op: OpEvict, Keys: []string{"US"}},
		{Op: OpPut, Keys: []string{"CA"}},
		{Op: OpRemove, Keys: []string{"CA"}},
	}, changes)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock, WithMaxSize(10))

	codes := []string{"US", "GB", "DE", "FR", "IT", "ES", "NL", "SE", "NO", "DK", "FI", "PL", "PT", "IE"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				code := codes[(offset+j)%len(codes)]
				_ = c.Put(entryAt(code, clock.Now()))
				c.Get(code)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 10)
}
