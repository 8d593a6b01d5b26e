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

// Package kctx provides a reference, userspace-only implementation of
// probe.KernelContext, for local simulation and manual exercising of the
// collector without a real attached loader. It is not a substitute for the
// real kernel context a loader supplies at each tracepoint.
package kctx

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/cpuenergy/cgroupid"
)

// statProcessorField is the 0-indexed field of /proc/<pid>/stat holding the
// "processor" the thread last ran on (man 5 proc: field 39, 1-indexed).
const statProcessorField = 38

// Local implements probe.KernelContext by reading this process's own
// /proc/self/stat for the CPU it is currently running on, the monotonic
// system clock for the timestamp, and cgroupid.Resolver for the cgroup id.
//
// It deliberately does not implement probe.KernelContext by import, so that
// probe need not depend on kctx: callers pass a *Local wherever a
// probe.KernelContext is expected, the way the rest of this module passes
// fakes in tests.
type Local struct {
	pid       uint32
	cgroups   *cgroupid.Resolver
	startMono time.Time
}

// NewLocal returns a Local bound to the calling process's own pid.
func NewLocal() *Local {
	return &Local{
		pid:       uint32(os.Getpid()),
		cgroups:   cgroupid.NewResolver(),
		startMono: time.Now(),
	}
}

// NowNanos returns nanoseconds since Local was constructed, standing in for
// ktime_ns() (spec.md §4.4.1 step 1). Only relative deltas within a single
// Local's lifetime are meaningful, matching the probe core's own reliance on
// per-CPU monotonicity rather than wall-clock absolutes.
func (l *Local) NowNanos() uint64 {
	return uint64(time.Since(l.startMono).Nanoseconds())
}

// CPU reads the "processor" field out of /proc/<pid>/stat, standing in for
// smp_processor_id(). Returns -1 if it could not be determined.
func (l *Local) CPU() int {
	cpu, err := processorField(l.pid)
	if err != nil {
		return -1
	}
	return cpu
}

// CurrentCgroupID resolves this process's cgroup id via cgroupid.Resolver.
func (l *Local) CurrentCgroupID() uint64 {
	id, ok := l.cgroups.Resolve(l.pid)
	if !ok {
		return 0
	}
	return id
}

func processorField(pid uint32) (int, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	if !sc.Scan() {
		return 0, fmt.Errorf("kctx: empty /proc/%d/stat", pid)
	}
	line := sc.Text()

	// The comm field (2nd, parenthesized) may itself contain spaces or
	// parens, so split on the last ')' rather than by field index.
	closeIdx := strings.LastIndex(line, ")")
	if closeIdx < 0 {
		return 0, fmt.Errorf("kctx: malformed /proc/%d/stat", pid)
	}
	rest := strings.Fields(line[closeIdx+1:])
	// rest[0] is field 3 (state); statProcessorField is 0-indexed from
	// field 1, so within rest it is at statProcessorField-2.
	idx := statProcessorField - 2
	if idx < 0 || idx >= len(rest) {
		return 0, fmt.Errorf("kctx: /proc/%d/stat too short", pid)
	}
	return strconv.Atoi(rest[idx])
}
