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
package event

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{
			name: "sched switch",
			rec: Record{
				Type: SchedSwitch, TS: 1_000_000, PID: 200, TID: 200,
				OffCPUPID: 100, OffCPUTID: 100, OffCPUCgroupID: 55,
				CPUCycles: 400, CPUInstr: 700, CacheMiss: 10, CPUID: 0,
			},
		},
		{
			name: "irq",
			rec:  Record{Type: IRQ, PID: 70, TID: 77, CPUID: 2, IRQNumber: 3},
		},
		{
			name: "page cache hit",
			rec:  Record{Type: PageCacheHit, PID: 42, TID: 42},
		},
		{
			name: "free",
			rec:  Record{Type: Free, PID: 9001},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, Size)
			Encode(tc.rec, buf)
			got := Decode(buf)
			if diff := cmp.Diff(tc.rec, got); diff != "" {
				t.Errorf("Encode/Decode round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecordSizeInvariant(t *testing.T) {
	// P4: every emitted record is exactly 72 bytes.
	if Size != 72 {
		t.Fatalf("Size = %d, want 72", Size)
	}
	buf := make([]byte, Size)
	Encode(Record{Type: SchedSwitch, IRQNumber: 0xFFFFFFFF}, buf)
	if len(buf) != 72 {
		t.Fatalf("encoded buffer length = %d, want 72", len(buf))
	}
}
