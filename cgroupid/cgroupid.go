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

// Package cgroupid provides a userspace-side reference implementation of
// probe.KernelContext.CurrentCgroupID, for the simulation and test use
// cases called out in SPEC_FULL.md §6. A real attached probe reads
// bpf_get_current_cgroup_id() directly; this package approximates that for
// any process still running, by resolving its unified cgroup path under
// /proc/<pid>/cgroup the way ja7ad's proc/cgroup inspection reads
// /proc/self/mountinfo, then using the cgroupfs directory's inode number as
// the cgroup id (the same identifier bpf_get_current_cgroup_id returns on a
// cgroup-v2-only host).
package cgroupid

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

const unifiedMount = "/sys/fs/cgroup"

// Resolver resolves a pid's current cgroup id, caching the (path, id) pair
// per pid. The cache is guarded by a mutex, so Resolve and Forget are safe
// to call from many goroutines.
type Resolver struct {
	mu    sync.RWMutex
	byPid map[uint32]cacheEntry
}

type cacheEntry struct {
	path string
	id   uint64
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{byPid: make(map[uint32]cacheEntry)}
}

// Resolve returns the cgroup id for pid, or 0, false if it could not be
// determined (the process has exited, cgroupfs isn't mounted, etc). Callers
// on the hot path should prefer the real bpf_get_current_cgroup_id(); this
// is for simulation and tests.
func (r *Resolver) Resolve(pid uint32) (uint64, bool) {
	path, err := cgroupPath(pid)
	if err != nil {
		return 0, false
	}

	r.mu.RLock()
	if e, ok := r.byPid[pid]; ok && e.path == path {
		r.mu.RUnlock()
		return e.id, true
	}
	r.mu.RUnlock()

	id, ok := inodeOf(filepath.Join(unifiedMount, path))
	if !ok {
		return 0, false
	}

	r.mu.Lock()
	r.byPid[pid] = cacheEntry{path: path, id: id}
	r.mu.Unlock()
	return id, true
}

// Forget drops any cached entry for pid, for use from a FREE-event handler
// so the cache doesn't grow unboundedly across process churn.
func (r *Resolver) Forget(pid uint32) {
	r.mu.Lock()
	delete(r.byPid, pid)
	r.mu.Unlock()
}

// cgroupPath reads the unified (cgroup v2) path for pid out of
// /proc/<pid>/cgroup, whose lines look like "0::/user.slice/...".
func cgroupPath(pid uint32) (string, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "0::") {
			continue
		}
		return strings.TrimPrefix(line, "0::"), nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("cgroupid: no unified cgroup line for pid %d", pid)
}

func inodeOf(path string) (uint64, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, false
	}
	return st.Ino, true
}
