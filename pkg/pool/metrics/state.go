/*
Copyright 2025 The HonyGo Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics is a library to interact with worker instance metrics.
package metrics

import (
	"fmt"
	"time"
)

// NewState initializes an empty MetricsState.
func NewState() *MetricsState {
	return &MetricsState{}
}

// MetricsState holds the latest state of the metrics scraped from a worker
// instance. Instances of this struct are treated as immutable once
// published; updates replace the whole pointer.
type MetricsState struct {
	// CPUUsage is the worker process CPU utilization in [0, 1].
	CPUUsage float64
	// MemoryBytes is the worker resident set size.
	MemoryBytes float64
	// ActiveTasks is the number of recognitions currently running.
	ActiveTasks int
	// WaitingQueueSize is the number of requests waiting on the worker's
	// concurrency limiter.
	WaitingQueueSize int
	// MaxConcurrency is the worker's configured concurrent task limit.
	MaxConcurrency int

	// UpdateTime records the last time the metrics were scraped.
	UpdateTime time.Time
}

// String returns a string with all MetricsState information.
func (s *MetricsState) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%+v", *s)
}

// Clone creates a copy of MetricsState and returns its pointer. Clone
// returns nil if the object being cloned is nil.
func (s *MetricsState) Clone() *MetricsState {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Fresh reports whether the state was updated within threshold.
func (s *MetricsState) Fresh(now time.Time, threshold time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Sub(s.UpdateTime) <= threshold
}
