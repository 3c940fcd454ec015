// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package enrichment

import (
	"context"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pterm/pterm"
)

const DefaultCacheSize = 100

// Entry is one persisted lookup result.
type Entry struct {
	IP   string
	Info GeoInfo
}

// Store persists successful lookups so the cache survives restarts.
type Store interface {
	// Recent returns up to limit entries, least recently seen first.
	Recent(limit int) ([]Entry, error)
	Save(ip string, info GeoInfo) error
	// Touch marks ip as seen now without changing its data.
	Touch(ip string) error
}

// GeoCache memoizes successful lookups in a bounded LRU. Failed lookups are
// never stored, so the next call for the same IP asks the resolver again.
// Concurrent misses for one IP may all resolve; the last Add wins.
type GeoCache struct {
	resolver Resolver
	store    Store
	cache    *lru.Cache[string, GeoInfo]
	logger   *pterm.Logger
	size     int

	hits   atomic.Int64
	misses atomic.Int64

	saves sync.WaitGroup
}

// NewGeoCache creates a cache in front of resolver. store may be nil.
func NewGeoCache(resolver Resolver, store Store, logger *pterm.Logger, size int) (*GeoCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, GeoInfo](size)
	if err != nil {
		return nil, err
	}
	return &GeoCache{
		resolver: resolver,
		store:    store,
		cache:    cache,
		logger:   logger,
		size:     size,
	}, nil
}

// Lookup returns the GeoInfo for ip, or nil when none could be obtained.
func (g *GeoCache) Lookup(ctx context.Context, ip string) GeoInfo {
	if ip == "" || g.resolver == nil {
		return nil
	}

	if cached, ok := g.cache.Get(ip); ok {
		g.hits.Add(1)
		g.logger.Trace("Geo cache hit", g.logger.Args("ip", ip))
		g.persist(ip, func() error { return g.store.Touch(ip) })
		return cached
	}

	g.misses.Add(1)
	g.logger.Trace("Geo cache miss, performing lookup", g.logger.Args("ip", ip, "resolver", g.resolver.Name()))

	info, err := g.resolver.Resolve(ctx, ip)
	if err != nil || len(info) == 0 {
		g.logger.Debug("Geo lookup failed", g.logger.Args("ip", ip, "error", err))
		return nil
	}

	g.cache.Add(ip, info)

	g.persist(ip, func() error { return g.store.Save(ip, info) })

	return info
}

// persist runs a store write in the background; Close waits for it.
func (g *GeoCache) persist(ip string, write func() error) {
	if g.store == nil {
		return
	}
	g.saves.Add(1)
	go func() {
		defer g.saves.Done()
		if err := write(); err != nil {
			g.logger.Debug("Failed to persist geo lookup", g.logger.Args("ip", ip, "error", err))
		}
	}()
}

// LoadCache preloads the cache from the store, keeping recency order.
func (g *GeoCache) LoadCache() error {
	if g.store == nil {
		return nil
	}

	entries, err := g.store.Recent(g.size)
	if err != nil {
		g.logger.WithCaller().Warn("Failed to load geo cache", g.logger.Args("error", err))
		return err
	}

	for _, e := range entries {
		if len(e.Info) > 0 {
			g.cache.Add(e.IP, e.Info)
		}
	}

	g.logger.Info("Loaded geo cache", g.logger.Args("entries", g.cache.Len(), "max_size", g.size))
	return nil
}

// Close waits for pending store writes.
func (g *GeoCache) Close() {
	g.saves.Wait()
}

// Len returns the number of cached IPs.
func (g *GeoCache) Len() int {
	return g.cache.Len()
}

// Stats returns cache hits and misses since startup.
func (g *GeoCache) Stats() (hits, misses int64) {
	return g.hits.Load(), g.misses.Load()
}
