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
// Package collector assembles the counter, threadclock, ringbuf, and probe
// layers into the single process-lifetime value spec.md §9 calls for: "a
// central controller value whose lifetime equals program-attachment
// lifetime." Collector is the one type an ELF loader (out of scope, see
// spec.md §1) needs to construct and whose Handlers it binds to kernel
// tracepoints.
package collector

import (
	log "github.com/golang/glog"

	"github.com/google/cpuenergy/config"
	"github.com/google/cpuenergy/counter"
	"github.com/google/cpuenergy/probe"
	"github.com/google/cpuenergy/ringbuf"
)

// Collector owns every piece of process-lifetime state described in
// spec.md §3/§9: the three per-CPU counter baselines, the thread-timestamp
// table, and the ring buffer, wired to the four probe handlers.
type Collector struct {
	cfg      config.Config
	Handlers *probe.Handlers
	RingBuf  *ringbuf.RingBuffer

	cyclesReader, instrReader, cacheMissReader *counter.PerfReader
}

// New constructs a Collector per cfg (see config.Build / config.Default).
// When cfg.HW is true, it opens real per-CPU perf_event counters (Linux) or
// always-failing stand-ins (non-Linux, see counter/perf_noop.go); when
// false, no perf fds are opened at all and every counter delta is 0,
// matching spec.md §6's HW=0 contract.
func New(cfg config.Config) *Collector {
	rb := ringbuf.New(0)

	var cyclesSnap, instrSnap, cacheMissSnap *counter.Snapshot
	c := &Collector{cfg: cfg, RingBuf: rb}

	if cfg.HW {
		c.cyclesReader = counter.OpenPerfReader(counter.Cycles, cfg.NumCPUs)
		c.instrReader = counter.OpenPerfReader(counter.Instructions, cfg.NumCPUs)
		c.cacheMissReader = counter.OpenPerfReader(counter.CacheMisses, cfg.NumCPUs)
		cyclesSnap = counter.NewSnapshot(counter.Cycles, c.cyclesReader, cfg.NumCPUs)
		instrSnap = counter.NewSnapshot(counter.Instructions, c.instrReader, cfg.NumCPUs)
		cacheMissSnap = counter.NewSnapshot(counter.CacheMisses, c.cacheMissReader, cfg.NumCPUs)
	} else {
		log.Infof("collector: HW disabled, counter deltas will always be 0")
		cyclesSnap = counter.NewSnapshot(counter.Cycles, nil, cfg.NumCPUs)
		instrSnap = counter.NewSnapshot(counter.Instructions, nil, cfg.NumCPUs)
		cacheMissSnap = counter.NewSnapshot(counter.CacheMisses, nil, cfg.NumCPUs)
	}

	c.Handlers = probe.NewHandlers(cfg, rb, cyclesSnap, instrSnap, cacheMissSnap)
	return c
}

// Close releases any open perf_event file descriptors. It does not drain or
// close the ring buffer: per spec.md §5, in-flight reserved-but-not-submitted
// records complete or are discarded by the runtime unloading the programs,
// which this simulation leaves to the caller's own shutdown sequence.
func (c *Collector) Close() {
	for _, r := range []*counter.PerfReader{c.cyclesReader, c.instrReader, c.cacheMissReader} {
		if r != nil {
			r.Close()
		}
	}
}

// Config returns the Collector's effective configuration.
func (c *Collector) Config() config.Config {
	return c.cfg
}
