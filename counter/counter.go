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
// Package counter implements the Counter Snapshot Layer: per-CPU monotonic
// hardware-counter sampling with delta-since-last-read semantics.
//
// Counters are freerunning and monotonic by construction; a read that
// appears to go backwards (counter multiplexing, CPU hotplug, an
// uninitialized slot) is treated as a zero delta rather than propagated, per
// spec.md §4.1 and §7 (ReadFailure / MissingBaseline).
package counter

import (
	log "github.com/golang/glog"
)

// Kind identifies one of the three hardware counters this layer tracks.
type Kind int

const (
	Cycles Kind = iota
	Instructions
	CacheMisses
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Cycles:
		return "cycles"
	case Instructions:
		return "instructions"
	case CacheMisses:
		return "cache-misses"
	default:
		return "unknown"
	}
}

// Reader reads the current freerunning value of one hardware counter on the
// calling CPU. Implementations must be safe to call from the CPU they were
// opened for; the Linux implementation (perf_linux.go) wraps a perf_event fd
// per (CPU, Kind), and the no-op build (perf_noop.go) always reports failure
// so non-Linux builds degrade to zero deltas exactly as §7's ReadFailure
// specifies.
type Reader interface {
	// Read returns the counter's current raw value for cpu. ok is false on
	// read failure (ReadFailure): callers must treat that as baseline-only,
	// zero-delta, per §4.1.
	Read(cpu int) (val uint64, ok bool)
}

// Snapshot owns the per-CPU baselines for one Kind and computes
// delta-since-last-read values. A Snapshot is not safe for concurrent calls
// to Delta with the same cpu from different goroutines -- spec.md §5
// guarantees this never happens, since each CPU's baseline is touched only
// by probes running on that CPU.
type Snapshot struct {
	kind   Kind
	reader Reader
	// prev holds the last-read raw value per CPU. Grown lazily to cover CPU
	// ids beyond the NumCPUs sizing hint, mirroring spec.md §6's NUM_CPUS
	// being a hint rather than a hard cap.
	prev []uint64
	seen []bool
}

// NewSnapshot returns a Snapshot over numCPUs CPUs, reading through reader.
// If reader is nil, Delta always returns 0 (equivalent to HW=0 in §6).
func NewSnapshot(kind Kind, reader Reader, numCPUs int) *Snapshot {
	if numCPUs < 1 {
		numCPUs = 1
	}
	return &Snapshot{
		kind:   kind,
		reader: reader,
		prev:   make([]uint64, numCPUs),
		seen:   make([]bool, numCPUs),
	}
}

func (s *Snapshot) grow(cpu int) {
	for cpu >= len(s.prev) {
		s.prev = append(s.prev, 0)
		s.seen = append(s.seen, false)
	}
}

// Delta returns the number of counted events accrued on cpu since the
// previous call to Delta for this cpu, implementing spec.md §4.1:
//
//   - a failed read returns 0 and leaves the baseline untouched
//     (ReadFailure: no baseline to advance),
//   - the first read on a cpu (MissingBaseline) returns 0 and seeds the
//     baseline,
//   - a non-increasing read (ClockAnomaly-equivalent for counters) returns
//     0, but the baseline still advances to the new value,
//   - otherwise returns val-prev and advances the baseline to val.
//
// The baseline always advances on a successful read regardless of which
// branch is taken (P2: baseline-advance independence) -- this is the one
// property every caller of Delta, suppressed or not, may rely on.
func (s *Snapshot) Delta(cpu int) uint64 {
	if s.reader == nil {
		return 0
	}
	if cpu < 0 {
		log.Warningf("counter: negative cpu id %d, treating as 0 delta", cpu)
		return 0
	}
	s.grow(cpu)

	val, ok := s.reader.Read(cpu)
	if !ok {
		log.V(2).Infof("counter: %s read failed on cpu %d", s.kind, cpu)
		return 0
	}

	var delta uint64
	if s.seen[cpu] && val > s.prev[cpu] {
		delta = val - s.prev[cpu]
	}
	s.prev[cpu] = val
	s.seen[cpu] = true
	return delta
}
