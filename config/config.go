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
// Package config holds the compile-time-configurable constants of the probe
// core. In the kernel original these live in a BTF-tagged read-only section;
// here they are a plain struct built with functional options, the way the
// loader is expected to size and gate the collector before attachment.
package config

import (
	log "github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Soft-IRQ vectors the IRQ probe records. All other vectors are ignored.
const (
	IRQVectorNetTX = 2
	IRQVectorNetRX = 3
	IRQVectorBlock = 4
)

// RecordedIRQVectors is the fixed filter set from spec.md §6.
var RecordedIRQVectors = map[uint32]bool{
	IRQVectorNetTX: true,
	IRQVectorNetRX: true,
	IRQVectorBlock: true,
}

// Config is the collector's compile-time-configurable state.
type Config struct {
	// HW gates whether hardware performance counters are read at all. When
	// false, counter deltas are always zero, matching §6's HW=0 behavior.
	HW bool
	// NumCPUs sizes the per-CPU baseline arrays. It is a sizing hint, not a
	// hard cap enforced by the collector: CPU ids beyond it simply grow the
	// backing slice.
	NumCPUs int
	// MapSize is the thread-timestamp table's LRU capacity.
	MapSize int
	// SampleRate, when nonzero, restores the superseded sampling knob
	// described in spec.md §9: only every Nth SchedSwitch call emits an
	// event, though baselines and the timestamp table are still updated on
	// every call. Zero (the default) disables sampling.
	SampleRate uint32
}

// Default returns the Config matching spec.md §6's defaults.
func Default() Config {
	return Config{
		HW:      true,
		NumCPUs: 128,
		MapSize: 32768,
	}
}

// Option mutates a Config at construction time.
type Option func(c *Config) error

// Build applies opts to the default Config, in order, and returns the
// result. An error from any Option aborts construction.
func Build(opts ...Option) (Config, error) {
	c := Default()
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return Config{}, err
		}
	}
	return c, nil
}

// WithHW enables or disables hardware counter reads.
func WithHW(enabled bool) Option {
	return func(c *Config) error {
		c.HW = enabled
		return nil
	}
}

// WithNumCPUs sets the per-CPU array sizing hint.
func WithNumCPUs(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return status.Errorf(codes.InvalidArgument, "NumCPUs must be positive, got %d", n)
		}
		c.NumCPUs = n
		return nil
	}
}

// WithMapSize sets the thread-timestamp table's LRU capacity.
func WithMapSize(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return status.Errorf(codes.InvalidArgument, "MapSize must be positive, got %d", n)
		}
		c.MapSize = n
		return nil
	}
}

// WithSampleRate restores the sampling knob described in spec.md §9. A rate
// of 0 disables sampling (every switch emits); a rate of N emits every Nth
// switch.
func WithSampleRate(n uint32) Option {
	return func(c *Config) error {
		log.V(1).Infof("sched_switch sampling enabled at rate %d", n)
		c.SampleRate = n
		return nil
	}
}
