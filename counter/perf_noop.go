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

package counter

// PerfReader is the non-Linux stand-in for the real perf_event-backed
// reader: perf_event_open doesn't exist off Linux, so every Read fails,
// which Snapshot.Delta treats as ReadFailure (§7) and reports as a zero
// delta. Mirrors aclements-go-perfevent/perfbench's counters_noop.go.
type PerfReader struct{}

// OpenPerfReader returns a PerfReader that always fails to read, regardless
// of kind or numCPUs.
func OpenPerfReader(kind Kind, numCPUs int) *PerfReader {
	return &PerfReader{}
}

// Read always reports failure on non-Linux platforms.
func (pr *PerfReader) Read(cpu int) (uint64, bool) {
	return 0, false
}

// Close is a no-op.
func (pr *PerfReader) Close() {}
