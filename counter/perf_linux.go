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
//go:build linux

package counter

import (
	"encoding/binary"
	"unsafe"

	log "github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// perfConfig maps a Kind to the PERF_TYPE_HARDWARE config the kernel
// understands, matching aclements-go-perfevent/events.EventCPUCycles,
// EventInstructions and EventCacheMisses.
func perfConfig(k Kind) uint64 {
	switch k {
	case Cycles:
		return unix.PERF_COUNT_HW_CPU_CYCLES
	case Instructions:
		return unix.PERF_COUNT_HW_INSTRUCTIONS
	case CacheMisses:
		return unix.PERF_COUNT_HW_CACHE_MISSES
	default:
		return unix.PERF_COUNT_HW_CPU_CYCLES
	}
}

// PerfReader opens one whole-CPU, freerunning perf_event counter fd per CPU
// for a single Kind, the way the in-kernel original opens a
// BPF_MAP_TYPE_PERF_EVENT_ARRAY populated by the loader -- one fd per CPU,
// read from whichever CPU is currently executing. Open with PID -1 so the
// counter runs for any task on the CPU, not just the calling one.
//
// Modeled on aclements-go-perfevent/perf.OpenCounter, simplified to a single
// ungrouped event per fd since the probe core reads each counter
// independently (spec.md §4.1 calls Delta once per counter).
type PerfReader struct {
	kind Kind
	fds  []int
}

// OpenPerfReader opens numCPUs per-CPU counters for kind. Failure to open a
// given CPU's fd (e.g. a CPU that doesn't exist, or perf_event_paranoid
// denying access) leaves that CPU's fd unset; Read on that CPU then reports
// failure (ReadFailure), matching §7's degrade-not-fail policy.
func OpenPerfReader(kind Kind, numCPUs int) *PerfReader {
	pr := &PerfReader{kind: kind, fds: make([]int, numCPUs)}
	for i := range pr.fds {
		pr.fds[i] = -1
	}
	attr := unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_HARDWARE,
		Config: perfConfig(kind),
		Bits:   unix.PerfBitDisabled,
	}
	attr.Size = uint32(unsafe.Sizeof(attr))
	for cpu := 0; cpu < numCPUs; cpu++ {
		fd, err := unix.PerfEventOpen(&attr, -1, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			log.Warningf("counter: perf_event_open(%s, cpu=%d): %v", kind, cpu, err)
			continue
		}
		if _, err := unix.IoctlGetInt(fd, unix.PERF_EVENT_IOC_ENABLE); err != nil {
			log.Warningf("counter: enabling %s on cpu %d: %v", kind, cpu, err)
		}
		pr.fds[cpu] = fd
	}
	return pr
}

// Read implements Reader.
func (pr *PerfReader) Read(cpu int) (uint64, bool) {
	if cpu < 0 || cpu >= len(pr.fds) || pr.fds[cpu] < 0 {
		return 0, false
	}
	var buf [8]byte
	n, err := unix.Read(pr.fds[cpu], buf[:])
	if err != nil || n != len(buf) {
		return 0, false
	}
	return binary.NativeEndian.Uint64(buf[:]), true
}

// Close releases all open perf_event fds.
func (pr *PerfReader) Close() {
	for i, fd := range pr.fds {
		if fd >= 0 {
			unix.Close(fd)
			pr.fds[i] = -1
		}
	}
}
