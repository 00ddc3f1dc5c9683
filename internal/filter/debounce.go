/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package filter

import (
    "sync"
    "time"
)

// Debouncer delays a callback until input has been quiet for the configured
// interval. Each Trigger cancels the previous pending call; Stop cancels
// without firing. Safe for concurrent use.
type Debouncer struct {
    mu    sync.Mutex
    d     time.Duration
    timer *time.Timer
}

const DefaultDebounce = 300 * time.Millisecond

func NewDebouncer(d time.Duration) *Debouncer {
    if d <= 0 { d = DefaultDebounce }
    return &Debouncer{d: d}
}

func (db *Debouncer) Trigger(fn func()) {
    db.mu.Lock()
    defer db.mu.Unlock()
    if db.timer != nil { db.timer.Stop() }
    db.timer = time.AfterFunc(db.d, fn)
}

// Stop cancels any pending call, e.g. when the search box is cleared.
func (db *Debouncer) Stop() {
    db.mu.Lock()
    defer db.mu.Unlock()
    if db.timer != nil {
        db.timer.Stop()
        db.timer = nil
    }
}
