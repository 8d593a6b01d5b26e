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
// Package event defines the fixed-layout record the probe core emits into
// the ring buffer, and its little-endian wire encoding.
//
// The four event variants are a closed tagged union discriminated by Type:
// this is intentionally a flat struct with a tag, not a polymorphic
// hierarchy, so that it can be laid out as a fixed 72-byte record and
// decoded by byte offset on the consumer side without any schema exchange.
package event

import "encoding/binary"

// Type discriminates the four event variants sharing the Record layout.
type Type uint64

const (
	// SchedSwitch records a context switch: the departing and arriving
	// threads, the CPU, and the hardware-counter deltas accrued by the
	// departing thread's on-CPU interval.
	SchedSwitch Type = 1
	// IRQ records entry into one of the recorded soft-IRQ vectors.
	IRQ Type = 2
	// PageCacheHit records a page-cache read or write-dirty event.
	PageCacheHit Type = 3
	// Free records a process's termination.
	Free Type = 4
)

func (t Type) String() string {
	switch t {
	case SchedSwitch:
		return "SCHED_SWITCH"
	case IRQ:
		return "IRQ"
	case PageCacheHit:
		return "PAGE_CACHE_HIT"
	case Free:
		return "FREE"
	default:
		return "UNKNOWN"
	}
}

// Size is the fixed, wire-exact byte size of a Record. Every emitted event
// is exactly this many bytes (P4: record-size invariance).
const Size = 72

// Record is the fixed-layout event record of spec.md §3. All four variants
// share this layout; fields unused by a given variant are left zero.
type Record struct {
	// Type discriminates the variant; see the Type constants.
	Type Type
	// TS is the kernel-monotonic nanosecond timestamp at emission.
	TS uint64
	// PID is the tgid of the on-CPU thread (SchedSwitch: arriving thread;
	// IRQ/PageCacheHit/Free: the acting/exiting thread).
	PID uint32
	// TID is the tid of the on-CPU thread, mirroring PID's thread/process
	// split.
	TID uint32
	// OffCPUPID is the tgid of the thread leaving the CPU. SchedSwitch only.
	OffCPUPID uint32
	// OffCPUTID is the tid of the thread leaving the CPU. SchedSwitch only.
	OffCPUTID uint32
	// OffCPUCgroupID is the cgroup of the thread leaving the CPU. SchedSwitch
	// only. See the cgroup-attribution open question in SPEC_FULL.md §9.
	OffCPUCgroupID uint64
	// CPUCycles is the hardware cycle-count delta for the on-CPU interval
	// that just ended. SchedSwitch only, zero if HW is disabled.
	CPUCycles uint64
	// CPUInstr is the retired-instruction delta for the same interval.
	CPUInstr uint64
	// CacheMiss is the last-level-cache-miss delta for the same interval.
	CacheMiss uint64
	// CPUID is the processor id at emission.
	CPUID uint32
	// IRQNumber is the soft-IRQ vector. IRQ only: one of {2,3,4}.
	IRQNumber uint32
}

// byte offsets of each field within the 72-byte record. Kept as package
// constants (rather than computed via reflection or unsafe) so that decoding
// never depends on struct layout or alignment decisions the Go compiler
// makes for Record itself -- the wire format is defined by these offsets,
// not by sizeof(Record).
const (
	offType           = 0
	offTS             = 8
	offPID            = 16
	offTID            = 20
	offOffCPUPID      = 24
	offOffCPUTID      = 28
	offOffCPUCgroupID = 32
	offCPUCycles      = 40
	offCPUInstr       = 48
	offCacheMiss      = 56
	offCPUID          = 64
	offIRQNumber      = 68
)

// Encode writes r into buf in the wire layout. buf must be at least Size
// bytes; Encode does not allocate.
func Encode(r Record, buf []byte) {
	_ = buf[Size-1] // bounds check hint, mirrors the teacher's fixed-frame decode style
	binary.LittleEndian.PutUint64(buf[offType:], uint64(r.Type))
	binary.LittleEndian.PutUint64(buf[offTS:], r.TS)
	binary.LittleEndian.PutUint32(buf[offPID:], r.PID)
	binary.LittleEndian.PutUint32(buf[offTID:], r.TID)
	binary.LittleEndian.PutUint32(buf[offOffCPUPID:], r.OffCPUPID)
	binary.LittleEndian.PutUint32(buf[offOffCPUTID:], r.OffCPUTID)
	binary.LittleEndian.PutUint64(buf[offOffCPUCgroupID:], r.OffCPUCgroupID)
	binary.LittleEndian.PutUint64(buf[offCPUCycles:], r.CPUCycles)
	binary.LittleEndian.PutUint64(buf[offCPUInstr:], r.CPUInstr)
	binary.LittleEndian.PutUint64(buf[offCacheMiss:], r.CacheMiss)
	binary.LittleEndian.PutUint32(buf[offCPUID:], r.CPUID)
	binary.LittleEndian.PutUint32(buf[offIRQNumber:], r.IRQNumber)
}

// Decode reads a Record back out of buf, which must be at least Size bytes.
func Decode(buf []byte) Record {
	_ = buf[Size-1]
	return Record{
		Type:           Type(binary.LittleEndian.Uint64(buf[offType:])),
		TS:             binary.LittleEndian.Uint64(buf[offTS:]),
		PID:            binary.LittleEndian.Uint32(buf[offPID:]),
		TID:            binary.LittleEndian.Uint32(buf[offTID:]),
		OffCPUPID:      binary.LittleEndian.Uint32(buf[offOffCPUPID:]),
		OffCPUTID:      binary.LittleEndian.Uint32(buf[offOffCPUTID:]),
		OffCPUCgroupID: binary.LittleEndian.Uint64(buf[offOffCPUCgroupID:]),
		CPUCycles:      binary.LittleEndian.Uint64(buf[offCPUCycles:]),
		CPUInstr:       binary.LittleEndian.Uint64(buf[offCPUInstr:]),
		CacheMiss:      binary.LittleEndian.Uint64(buf[offCacheMiss:]),
		CPUID:          binary.LittleEndian.Uint32(buf[offCPUID:]),
		IRQNumber:      binary.LittleEndian.Uint32(buf[offIRQNumber:]),
	}
}
