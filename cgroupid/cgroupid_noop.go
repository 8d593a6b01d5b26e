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
//go:build !linux

package cgroupid

import "sync"

// Resolver is the non-Linux stand-in: there is no /proc/<pid>/cgroup to
// read, so Resolve always reports failure.
type Resolver struct {
	mu sync.Mutex
}

// NewResolver returns a Resolver that never resolves a cgroup id.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve always returns 0, false on non-Linux platforms.
func (r *Resolver) Resolve(pid uint32) (uint64, bool) {
	return 0, false
}

// Forget is a no-op.
func (r *Resolver) Forget(pid uint32) {}
