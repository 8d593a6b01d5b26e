//
// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
//
// Package threadclock implements the Thread Timestamp Layer: a
// fixed-capacity, LRU-evicting table mapping a thread id to the nanosecond
// timestamp at which it most recently went on-CPU.
//
// Concurrent insert/lookup/delete across CPUs touching different tids is the
// common case; per-entry atomicity is provided by Table's own mutex (the
// simplelru cache underneath is not safe for concurrent use), matching
// spec.md §5's requirement that the hash-table primitive guarantee at least
// that much.
package threadclock

import (
	"sync"

	log "github.com/golang/glog"
	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// Table tracks, per thread id, the timestamp at which that thread last went
// on-CPU. It evicts least-recently-used entries once at capacity (spec.md
// §3's "Per-thread state", capacity 32,768 by default).
type Table struct {
	mu    sync.Mutex
	cache *lru.LRU[uint32, uint64]
	// evictions counts entries dropped by capacity pressure rather than by
	// Take, purely for operator-facing diagnostics -- it has no effect on
	// correctness: an evicted, long-sleeping tid simply yields a zero
	// interval on its next context switch (spec.md §4.2).
	evictions uint64
}

// NewTable returns a Table with the given LRU capacity (spec.md §6's
// MAP_SIZE).
func NewTable(capacity int) *Table {
	t := &Table{}
	cache, err := lru.NewLRU[uint32, uint64](capacity, func(tid uint32, _ uint64) {
		t.evictions++
		log.V(2).Infof("threadclock: evicted tid %d under capacity pressure", tid)
	})
	if err != nil {
		// capacity <= 0: fall back to a single-entry table rather than
		// failing construction, since this layer never returns errors to
		// its caller (spec.md §7).
		cache, _ = lru.NewLRU[uint32, uint64](1, nil)
	}
	t.cache = cache
	return t
}

// MarkOnCPU records that tid went on-CPU at ts, overwriting any existing
// entry (spec.md §4.2's mark_on_cpu).
func (t *Table) MarkOnCPU(tid uint32, ts uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Add(tid, ts)
}

// TakeOnCPUMicros implements take_on_cpu_us: if tid has a recorded on-CPU
// timestamp and now is strictly after it, it returns the elapsed
// microseconds and deletes the entry (P3: at-most-once duration
// attribution, via delete-on-take). Otherwise it returns 0 and leaves the
// table untouched -- this covers both MissingBaseline (tid never marked, or
// already evicted) and ClockAnomaly (now <= since).
func (t *Table) TakeOnCPUMicros(tid uint32, now uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	since, ok := t.cache.Peek(tid)
	if !ok {
		return 0
	}
	if now <= since {
		log.V(2).Infof("threadclock: clock anomaly for tid %d (now=%d <= since=%d)", tid, now, since)
		return 0
	}
	t.cache.Remove(tid)
	return (now - since) / 1000
}

// Len returns the number of tids currently tracked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}

// Evictions returns the number of entries dropped by LRU capacity pressure
// over this Table's lifetime.
func (t *Table) Evictions() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictions
}
