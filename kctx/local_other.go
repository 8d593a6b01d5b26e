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

package kctx

import (
	"os"
	"time"

	"github.com/google/cpuenergy/cgroupid"
)

// Local is the non-Linux stand-in: there is no /proc/<pid>/stat to read, so
// CPU always reports -1 and CurrentCgroupID always reports 0, consistent
// with cgroupid.Resolver's non-Linux behavior.
type Local struct {
	pid       uint32
	cgroups   *cgroupid.Resolver
	startMono time.Time
}

// NewLocal returns a Local bound to the calling process's own pid.
func NewLocal() *Local {
	return &Local{pid: uint32(os.Getpid()), cgroups: cgroupid.NewResolver(), startMono: time.Now()}
}

// NowNanos returns nanoseconds since Local was constructed.
func (l *Local) NowNanos() uint64 {
	return uint64(time.Since(l.startMono).Nanoseconds())
}

// CPU always returns -1 on non-Linux platforms.
func (l *Local) CPU() int { return -1 }

// CurrentCgroupID always returns 0 on non-Linux platforms.
func (l *Local) CurrentCgroupID() uint64 {
	_, _ = l.cgroups.Resolve(l.pid)
	return 0
}
