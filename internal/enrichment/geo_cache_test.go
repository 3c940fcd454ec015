package enrichment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/pterm/pterm"
)

func testLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace).WithWriter(io.Discard)
}

type fakeResolver struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]GeoInfo
	fail    map[string]bool
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		calls:   map[string]int{},
		results: map[string]GeoInfo{},
		fail:    map[string]bool{},
	}
}

func (f *fakeResolver) Name() string { return "fake" }

func (f *fakeResolver) Resolve(_ context.Context, ip string) (GeoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ip]++
	if f.fail[ip] {
		return nil, errors.New("lookup service unavailable")
	}
	if info, ok := f.results[ip]; ok {
		return info, nil
	}
	return GeoInfo{"ip": ip, "country": "ZZ"}, nil
}

func (f *fakeResolver) callCount(ip string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ip]
}

func TestGeoCache_HitSkipsResolver(t *testing.T) {
	resolver := newFakeResolver()
	resolver.results["8.8.8.8"] = GeoInfo{"ip": "8.8.8.8", "city": "Mountain View"}

	cache, err := NewGeoCache(resolver, nil, testLogger(), 100)
	if err != nil {
		t.Fatalf("NewGeoCache failed: %v", err)
	}

	first := cache.Lookup(context.Background(), "8.8.8.8")
	second := cache.Lookup(context.Background(), "8.8.8.8")

	if resolver.callCount("8.8.8.8") != 1 {
		t.Errorf("Expected 1 resolver call, got %d", resolver.callCount("8.8.8.8"))
	}
	if first["city"] != "Mountain View" || second["city"] != "Mountain View" {
		t.Errorf("Expected cached value on both calls, got %v and %v", first, second)
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d hits and %d misses", hits, misses)
	}
}

func TestGeoCache_FailureIsNotCached(t *testing.T) {
	resolver := newFakeResolver()
	resolver.fail["1.2.3.4"] = true

	cache, _ := NewGeoCache(resolver, nil, testLogger(), 100)

	if info := cache.Lookup(context.Background(), "1.2.3.4"); len(info) != 0 {
		t.Errorf("Expected empty result on failure, got %v", info)
	}
	if info := cache.Lookup(context.Background(), "1.2.3.4"); len(info) != 0 {
		t.Errorf("Expected empty result on second failure, got %v", info)
	}
	if resolver.callCount("1.2.3.4") != 2 {
		t.Errorf("Expected failed lookup to be retried, got %d calls", resolver.callCount("1.2.3.4"))
	}
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache, got %d entries", cache.Len())
	}

	// Recovery: once the service answers, the value is cached.
	resolver.mu.Lock()
	resolver.fail["1.2.3.4"] = false
	resolver.mu.Unlock()

	if info := cache.Lookup(context.Background(), "1.2.3.4"); info["country"] != "ZZ" {
		t.Errorf("Expected successful lookup after recovery, got %v", info)
	}
	cache.Lookup(context.Background(), "1.2.3.4")
	if resolver.callCount("1.2.3.4") != 3 {
		t.Errorf("Expected 3 resolver calls in total, got %d", resolver.callCount("1.2.3.4"))
	}
}

func TestGeoCache_LRUEviction(t *testing.T) {
	resolver := newFakeResolver()
	cache, _ := NewGeoCache(resolver, nil, testLogger(), 100)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		cache.Lookup(ctx, fmt.Sprintf("10.0.0.%d", i))
	}
	// Touch the oldest entry so it becomes most recently used.
	cache.Lookup(ctx, "10.0.0.0")
	// One more distinct IP evicts the least recently used one: 10.0.0.1.
	cache.Lookup(ctx, "10.0.1.0")

	if cache.Len() != 100 {
		t.Errorf("Expected cache capped at 100, got %d", cache.Len())
	}

	cache.Lookup(ctx, "10.0.0.0")
	if resolver.callCount("10.0.0.0") != 1 {
		t.Errorf("Expected recently used entry to survive, got %d calls", resolver.callCount("10.0.0.0"))
	}

	cache.Lookup(ctx, "10.0.0.1")
	if resolver.callCount("10.0.0.1") != 2 {
		t.Errorf("Expected evicted entry to be resolved again, got %d calls", resolver.callCount("10.0.0.1"))
	}
}

func TestGeoCache_EmptyIP(t *testing.T) {
	resolver := newFakeResolver()
	cache, _ := NewGeoCache(resolver, nil, testLogger(), 100)

	if info := cache.Lookup(context.Background(), ""); info != nil {
		t.Errorf("Expected nil for empty IP, got %v", info)
	}
	if len(resolver.calls) != 0 {
		t.Errorf("Expected no resolver calls, got %v", resolver.calls)
	}
}

func TestGeoCache_ConcurrentLookups(t *testing.T) {
	resolver := newFakeResolver()
	cache, _ := NewGeoCache(resolver, nil, testLogger(), 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cache.Lookup(context.Background(), fmt.Sprintf("192.0.2.%d", i%5))
		}(i)
	}
	wg.Wait()

	if cache.Len() != 5 {
		t.Errorf("Expected 5 cached IPs, got %d", cache.Len())
	}
}

type memoryStore struct {
	mu      sync.Mutex
	entries []Entry
	saved   map[string]GeoInfo
	touched map[string]int
	err     error
}

func (m *memoryStore) Recent(limit int) ([]Entry, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.entries) > limit {
		return m.entries[len(m.entries)-limit:], nil
	}
	return m.entries, nil
}

func (m *memoryStore) Save(ip string, info GeoInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]GeoInfo{}
	}
	m.saved[ip] = info
	return nil
}

func (m *memoryStore) Touch(ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touched == nil {
		m.touched = map[string]int{}
	}
	m.touched[ip]++
	return nil
}

func TestGeoCache_StoreWarmStartAndSave(t *testing.T) {
	store := &memoryStore{entries: []Entry{
		{IP: "198.51.100.1", Info: GeoInfo{"country": "NL"}},
		{IP: "198.51.100.2", Info: GeoInfo{}},
	}}
	resolver := newFakeResolver()
	cache, _ := NewGeoCache(resolver, store, testLogger(), 100)

	if err := cache.LoadCache(); err != nil {
		t.Fatalf("LoadCache failed: %v", err)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 preloaded entry (empty ones skipped), got %d", cache.Len())
	}

	if info := cache.Lookup(context.Background(), "198.51.100.1"); info["country"] != "NL" {
		t.Errorf("Expected preloaded value, got %v", info)
	}
	if resolver.callCount("198.51.100.1") != 0 {
		t.Error("Expected no resolver call for a preloaded IP")
	}

	cache.Lookup(context.Background(), "198.51.100.3")
	cache.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.saved["198.51.100.3"]; !ok {
		t.Error("Expected successful lookup to be persisted")
	}
}

func TestGeoCache_StoreLoadError(t *testing.T) {
	store := &memoryStore{err: errors.New("database locked")}
	cache, _ := NewGeoCache(newFakeResolver(), store, testLogger(), 100)

	if err := cache.LoadCache(); err == nil {
		t.Error("Expected LoadCache to report the store error")
	}
}

func TestGeoCache_HitTouchesStore(t *testing.T) {
	store := &memoryStore{entries: []Entry{{IP: "198.51.100.1", Info: GeoInfo{"country": "NL"}}}}
	cache, _ := NewGeoCache(newFakeResolver(), store, testLogger(), 100)
	if err := cache.LoadCache(); err != nil {
		t.Fatalf("LoadCache failed: %v", err)
	}

	cache.Lookup(context.Background(), "198.51.100.1")
	cache.Lookup(context.Background(), "198.51.100.1")
	cache.Lookup(context.Background(), "198.51.100.4")
	cache.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.touched["198.51.100.1"] != 2 {
		t.Errorf("Expected 2 touches for the cached IP, got %d", store.touched["198.51.100.1"])
	}
	if store.touched["198.51.100.4"] != 0 {
		t.Errorf("Expected a miss to save rather than touch, got %d touches", store.touched["198.51.100.4"])
	}
}
