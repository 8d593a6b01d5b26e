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
// Package probe implements the four probe-program handlers of spec.md §4.4:
// sched_switch, softirq_entry, page-cache accessed/dirtied, and task-free.
// Each handler composes the counter, threadclock, and ringbuf layers and
// must remain cheap and allocation-free, as it models code that runs with
// preemption disabled in kernel context.
//
// Per-thread state machine (spec.md §4.4, reproduced for reference):
//
//	NEW -- first SCHED_SWITCH (arriving) --> ON_CPU (timestamp stored)
//	ON_CPU -- SCHED_SWITCH (departing)     --> OFF_CPU (duration taken)
//	OFF_CPU -- SCHED_SWITCH (arriving)     --> ON_CPU
//	ANY    -- task_free                    --> TERMINAL (advisory only)
//
// Terminal state is advisory: a later probe on a recycled tid simply starts
// a new NEW->ON_CPU cycle.
package probe

import (
	log "github.com/golang/glog"

	"github.com/google/cpuenergy/config"
	"github.com/google/cpuenergy/counter"
	"github.com/google/cpuenergy/event"
	"github.com/google/cpuenergy/ringbuf"
	"github.com/google/cpuenergy/threadclock"
)

// Task identifies a thread the way the kernel's sched_switch tracepoint
// does: a thread id (tid) within a thread-group id (tgid, i.e. the
// user-visible pid).
type Task struct {
	TGID uint32
	TID  uint32
}

// KernelContext supplies the facts only the attaching runtime can provide.
// An out-of-scope ELF loader is expected to implement this over real
// tracepoint context in production, and a userspace simulation (or test)
// may implement it directly; see SPEC_FULL.md §2.
type KernelContext interface {
	// NowNanos returns the kernel-monotonic clock, ktime_ns().
	NowNanos() uint64
	// CPU returns smp_processor_id(), the processor executing the probe.
	CPU() int
	// CurrentCgroupID returns bpf_get_current_cgroup_id() at the moment the
	// probe runs. See SPEC_FULL.md §9 for the departing-vs-arriving
	// attribution caveat this spec resolves by labeling it the departing
	// thread's cgroup.
	CurrentCgroupID() uint64
}

// Handlers ties the counter, threadclock, and ringbuf layers together into
// the four probe entry points. It is the process-lifetime, single owner of
// per-CPU and per-thread state described in spec.md §9; collector.Collector
// constructs and owns one.
type Handlers struct {
	cfg   config.Config
	rb    *ringbuf.RingBuffer
	clock *threadclock.Table

	cycles    *counter.Snapshot
	instr     *counter.Snapshot
	cacheMiss *counter.Snapshot

	switchCount uint32 // for the optional SampleRate knob, §9 expansion
}

// NewHandlers wires the snapshot layers (already opened by the caller,
// e.g. against counter.OpenPerfReader or a fake for tests) to a ring buffer
// and thread-timestamp table sized per cfg.
func NewHandlers(cfg config.Config, rb *ringbuf.RingBuffer, cycles, instr, cacheMiss *counter.Snapshot) *Handlers {
	return &Handlers{
		cfg:       cfg,
		rb:        rb,
		clock:     threadclock.NewTable(cfg.MapSize),
		cycles:    cycles,
		instr:     instr,
		cacheMiss: cacheMiss,
	}
}

// emit reserves a slot, fills it, and submits it, silently dropping the
// event on ReservationFailure (spec.md §4.3/§7). It never blocks.
func (h *Handlers) emit(rec event.Record) {
	res, ok := h.rb.Reserve()
	if !ok {
		log.V(2).Infof("probe: ring buffer full, dropping %s event", rec.Type)
		return
	}
	res.Fill(rec)
	if res.Submit() == ringbuf.ForceWakeup {
		// The loader-supplied consumer wiring is responsible for actually
		// waking the poller; this core only computes the decision, per
		// spec.md §4.3.
		log.V(3).Infof("probe: ring buffer crossed wake-up threshold")
	}
}

// SchedSwitch implements the sched_switch handler of spec.md §4.4.1.
func (h *Handlers) SchedSwitch(ctx KernelContext, departing, arriving Task) {
	now := ctx.NowNanos()
	cpu := ctx.CPU()

	var cycles, instr, cacheMiss uint64
	if h.cfg.HW {
		// Baselines must advance even when this sample will be suppressed
		// below (P2), so these are read unconditionally once HW is enabled.
		cycles = h.cycles.Delta(cpu)
		instr = h.instr.Delta(cpu)
		cacheMiss = h.cacheMiss.Delta(cpu)
	}

	onCPUMicros := h.clock.TakeOnCPUMicros(departing.TID, now)
	h.clock.MarkOnCPU(arriving.TID, now)

	// §4.4.1 step 5: cgroup of the departing thread, captured before the
	// switch completes.
	cgroupID := ctx.CurrentCgroupID()

	h.switchCount++
	if h.cfg.SampleRate > 0 && h.switchCount%h.cfg.SampleRate != 0 {
		return
	}

	if onCPUMicros == 0 {
		// No measured on-CPU window for the departing thread (clock skew,
		// first observation, or post-eviction): suppress counter deltas
		// rather than attribute them to an unmeasured interval.
		cycles, instr, cacheMiss = 0, 0, 0
	}

	h.emit(event.Record{
		Type:           event.SchedSwitch,
		TS:             now,
		PID:            arriving.TGID,
		TID:            arriving.TID,
		OffCPUPID:      departing.TGID,
		OffCPUTID:      departing.TID,
		OffCPUCgroupID: cgroupID,
		CPUCycles:      cycles,
		CPUInstr:       instr,
		CacheMiss:      cacheMiss,
		CPUID:          uint32(cpu),
	})
}

// SoftIRQEntry implements the softirq_entry handler of spec.md §4.4.2.
// vec outside the recorded filter set is ignored (P5, §7 UnknownIrq).
func (h *Handlers) SoftIRQEntry(ctx KernelContext, current Task, vec uint32) {
	if !config.RecordedIRQVectors[vec] {
		return
	}
	h.emit(event.Record{
		Type:      event.IRQ,
		TS:        ctx.NowNanos(),
		PID:       current.TGID,
		TID:       current.TID,
		CPUID:     uint32(ctx.CPU()),
		IRQNumber: vec,
	})
}

// PageCacheAccessed implements the read-path page-cache handler of spec.md
// §4.4.3 (function-exit of mark_page_accessed).
func (h *Handlers) PageCacheAccessed(ctx KernelContext, tgid uint32) {
	h.emitPageCacheHit(ctx, tgid)
}

// PageCacheDirtied implements the write-path page-cache handler of spec.md
// §4.4.3 (tracepoint writeback_dirty_folio).
func (h *Handlers) PageCacheDirtied(ctx KernelContext, tgid uint32) {
	h.emitPageCacheHit(ctx, tgid)
}

func (h *Handlers) emitPageCacheHit(ctx KernelContext, tgid uint32) {
	h.emit(event.Record{
		Type: event.PageCacheHit,
		TS:   ctx.NowNanos(),
		PID:  tgid,
	})
}

// TaskFree implements the task-free handler of spec.md §4.4.4.
func (h *Handlers) TaskFree(ctx KernelContext, tgid uint32) {
	h.emit(event.Record{
		Type: event.Free,
		TS:   ctx.NowNanos(),
		PID:  tgid,
	})
}
