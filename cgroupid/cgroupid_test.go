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

package cgroupid

import (
	"os"
	"testing"
)

func TestResolveSelfIsCached(t *testing.T) {
	r := NewResolver()
	pid := uint32(os.Getpid())

	id, ok := r.Resolve(pid)
	if !ok {
		t.Skip("cgroupfs not available in this sandbox")
	}

	cached, ok := r.Resolve(pid)
	if !ok || cached != id {
		t.Fatalf("second Resolve = %d, %v, want cached %d, true", cached, ok, id)
	}

	r.Forget(pid)
	if _, ok := r.byPid[pid]; ok {
		t.Fatal("Forget did not remove the cache entry")
	}
}

func TestResolveUnknownPid(t *testing.T) {
	r := NewResolver()
	if _, ok := r.Resolve(0); ok {
		t.Fatal("Resolve(0) = true, want false for a nonexistent pid")
	}
}
