/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package query

import (
    "context"
    "strings"
    "sync"
    "time"

    "github.com/rs/zerolog"
)

// Stale-while-revalidate cache for remote query results. Fresh entries are
// served directly; stale-but-usable entries are served immediately while a
// single background refresh runs; misses fetch synchronously.

// Result is what every query resolution hands to a view. Stale data is
// usable data; Skipped means a required parameter was absent and no request
// was issued.
type Result[T any] struct {
    Data      T         `json:"data"`
    Err       error     `json:"-"`
    Stale     bool      `json:"stale"`
    Skipped   bool      `json:"skipped,omitempty"`
    FetchedAt time.Time `json:"fetchedAt"`
}

type entry struct {
    value     any
    fetchedAt time.Time
    expiresAt time.Time
    staleUntil time.Time
}

type Cache struct {
    mu       sync.Mutex
    entries  map[string]*entry
    inflight map[string]bool
    ttl      time.Duration
    staleTTL time.Duration
    log      zerolog.Logger
}

func NewCache(ttl, staleTTL time.Duration, log zerolog.Logger) *Cache {
    return &Cache{
        entries:  map[string]*entry{},
        inflight: map[string]bool{},
        ttl:      ttl,
        staleTTL: staleTTL,
        log:      log,
    }
}

func (c *Cache) lookup(key string, now time.Time) (any, time.Time, bool, bool) {
    c.mu.Lock()
    defer c.mu.Unlock()
    e, ok := c.entries[key]
    if !ok || now.After(e.staleUntil) { return nil, time.Time{}, false, false }
    return e.value, e.fetchedAt, now.Before(e.expiresAt), true
}

func (c *Cache) store(key string, v any, now time.Time) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.entries[key] = &entry{
        value:      v,
        fetchedAt:  now,
        expiresAt:  now.Add(c.ttl),
        staleUntil: now.Add(c.staleTTL),
    }
}

// MarkStale expires freshness for every key with the prefix without dropping
// the data; the next read serves stale and revalidates. Empty prefix hits
// everything. Used by the manual refresh endpoint.
func (c *Cache) MarkStale(prefix string) int {
    c.mu.Lock()
    defer c.mu.Unlock()
    n := 0
    for key, e := range c.entries {
        if strings.HasPrefix(key, prefix) {
            e.expiresAt = time.Time{}
            n++
        }
    }
    return n
}

// Invalidate drops entries with the prefix entirely.
func (c *Cache) Invalidate(prefix string) int {
    c.mu.Lock()
    defer c.mu.Unlock()
    n := 0
    for key := range c.entries {
        if strings.HasPrefix(key, prefix) {
            delete(c.entries, key)
            n++
        }
    }
    return n
}

func (c *Cache) tryAcquire(key string) bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.inflight[key] { return false }
    c.inflight[key] = true
    return true
}

func (c *Cache) release(key string) {
    c.mu.Lock()
    delete(c.inflight, key)
    c.mu.Unlock()
}

// Skip is the result for a query whose required parameter is absent.
func Skip[T any]() Result[T] { return Result[T]{Skipped: true} }

// Resolve serves key from the cache under stale-while-revalidate semantics.
func Resolve[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error)) Result[T] {
    now := time.Now()
    if v, at, fresh, ok := c.lookup(key, now); ok {
        data, cast := v.(T)
        if cast {
            if fresh { return Result[T]{Data: data, FetchedAt: at} }
            if c.tryAcquire(key) {
                go func() {
                    defer c.release(key)
                    bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
                    defer cancel()
                    fresh, err := fetch(bg)
                    if err != nil {
                        c.log.Warn().Str("key", key).Err(err).Msg("background revalidation failed")
                        return
                    }
                    c.store(key, fresh, time.Now())
                }()
            }
            return Result[T]{Data: data, Stale: true, FetchedAt: at}
        }
        c.log.Warn().Str("key", key).Msg("cache type mismatch, refetching")
    }
    data, err := fetch(ctx)
    if err != nil {
        var zero T
        return Result[T]{Data: zero, Err: err}
    }
    c.store(key, data, time.Now())
    return Result[T]{Data: data, FetchedAt: time.Now()}
}

// Refresh fetches unconditionally and replaces the entry. The cron warmer
// uses it so scheduled refreshes never serve from cache.
func Refresh[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error)) error {
    data, err := fetch(ctx)
    if err != nil { return err }
    c.store(key, data, time.Now())
    return nil
}
