/*
Copyright 2025 The HonyGo Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cache memoizes recognition results keyed by image content and
// recognition parameters.
package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/reyisok/HonyGo-1.0/pkg/engine"
)

// entry wraps a cached result with its creation time. Entries past their
// TTL are treated as misses even while still resident. The entry is
// immutable after insertion so concurrent readers need no locking.
type entry struct {
	result    engine.Result
	createdAt time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	MaxSize   int    `json:"max_size"`
}

// ResultCache is a size-bounded LRU with per-entry TTL. All methods are safe
// for concurrent use; a concurrent Put on the same key is last-write-wins.
type ResultCache struct {
	lru *lru.Cache[Key, *entry]
	ttl time.Duration
	max int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	// now is swapped in tests to drive TTL expiry deterministically.
	now func() time.Time
}

// New builds a cache bounded to maxEntries. A zero ttl disables expiry, the
// cache is then bounded by entry count only.
func New(maxEntries int, ttl time.Duration) (*ResultCache, error) {
	c := &ResultCache{ttl: ttl, max: maxEntries, now: time.Now}
	l, err := lru.NewWithEvict[Key, *entry](maxEntries, func(Key, *entry) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns the cached result for key. Expired entries are removed and
// reported as misses. A hit refreshes the entry's LRU recency.
func (c *ResultCache) Get(key Key) (engine.Result, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return engine.Result{}, false
	}
	if c.ttl > 0 && c.now().Sub(e.createdAt) >= c.ttl {
		c.lru.Remove(key)
		c.misses.Add(1)
		return engine.Result{}, false
	}
	c.hits.Add(1)
	return e.result, true
}

// Put stores the result under key, evicting the least recently used entry
// when the cache is full.
func (c *ResultCache) Put(key Key, result engine.Result) {
	c.lru.Add(key, &entry{result: result, createdAt: c.now()})
}

// Purge drops all entries.
func (c *ResultCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of resident entries, including not-yet-collected
// expired ones.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *ResultCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.lru.Len(),
		MaxSize:   c.max,
	}
}
