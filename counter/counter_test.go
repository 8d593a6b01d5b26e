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
package counter

import "testing"

// fakeReader is a scripted Reader: each call to Read for a CPU consumes the
// next value queued for that CPU, or reports failure once exhausted.
type fakeReader struct {
	values map[int][]uint64
	fail   map[int][]bool
}

func (f *fakeReader) Read(cpu int) (uint64, bool) {
	vs := f.values[cpu]
	fs := f.fail[cpu]
	if len(vs) == 0 {
		return 0, false
	}
	v := vs[0]
	f.values[cpu] = vs[1:]
	failed := false
	if len(fs) > 0 {
		failed = fs[0]
		f.fail[cpu] = fs[1:]
	}
	if failed {
		return 0, false
	}
	return v, true
}

func TestDeltaMonotonicSequence(t0 *testing.T) {
	t0.Run("S1: 100->500 then baseline 500->900", func(t *testing.T) {
		r := &fakeReader{values: map[int][]uint64{0: {100, 500, 900}}}
		s := NewSnapshot(Cycles, r, 1)
		if got := s.Delta(0); got != 0 {
			t.Fatalf("first Delta = %d, want 0 (MissingBaseline)", got)
		}
		if got := s.Delta(0); got != 400 {
			t.Fatalf("second Delta = %d, want 400", got)
		}
		if got := s.Delta(0); got != 400 {
			t.Fatalf("third Delta = %d, want 400", got)
		}
	})
}

func TestDeltaNonNegativity(t *testing.T) {
	// P1: a decrement (counter reset/hotplug/multiplexing) yields 0, not a
	// negative or wrapped value.
	r := &fakeReader{values: map[int][]uint64{0: {500, 100}}}
	s := NewSnapshot(Cycles, r, 1)
	s.Delta(0) // seed baseline at 500
	if got := s.Delta(0); got != 0 {
		t.Fatalf("Delta after decrement = %d, want 0", got)
	}
}

func TestBaselineUntouchedByReadFailure(t *testing.T) {
	// P2: even a suppressed (failed) read doesn't disturb a prior baseline;
	// and the first successful read after failures still seeds correctly.
	r := &fakeReader{
		values: map[int][]uint64{0: {100, 0, 300}},
		fail:   map[int][]bool{0: {false, true, false}},
	}
	s := NewSnapshot(Cycles, r, 1)
	if got := s.Delta(0); got != 0 {
		t.Fatalf("seed Delta = %d, want 0", got)
	}
	if got := s.Delta(0); got != 0 {
		t.Fatalf("Delta on ReadFailure = %d, want 0", got)
	}
	if got := s.Delta(0); got != 200 {
		t.Fatalf("Delta after failure = %d, want 200 (baseline untouched by failed read)", got)
	}
}

func TestDeltaNilReaderAlwaysZero(t *testing.T) {
	s := NewSnapshot(CacheMisses, nil, 4)
	for cpu := 0; cpu < 4; cpu++ {
		if got := s.Delta(cpu); got != 0 {
			t.Fatalf("Delta(%d) with nil reader = %d, want 0", cpu, got)
		}
	}
}

func TestDeltaGrowsBeyondSizingHint(t *testing.T) {
	r := &fakeReader{values: map[int][]uint64{5: {10, 40}}}
	s := NewSnapshot(Instructions, r, 1)
	s.Delta(5)
	if got := s.Delta(5); got != 30 {
		t.Fatalf("Delta(5) = %d, want 30", got)
	}
}
