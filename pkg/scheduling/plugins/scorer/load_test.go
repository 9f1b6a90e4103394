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

package scorer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reyisok/HonyGo-1.0/pkg/pool/metrics"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
)

type fakeEndpoint struct {
	id      string
	active  int
	cap     int
	avgRT   time.Duration
	metrics *metrics.MetricsState
}

func (f *fakeEndpoint) ID() string                     { return f.id }
func (f *fakeEndpoint) Routable() bool                 { return true }
func (f *fakeEndpoint) ActiveTasks() int               { return f.active }
func (f *fakeEndpoint) Capacity() int                  { return f.cap }
func (f *fakeEndpoint) AvgResponseTime() time.Duration { return f.avgRT }
func (f *fakeEndpoint) Metrics() *metrics.MetricsState { return f.metrics }

func defaultConfig() LoadConfig {
	return LoadConfig{
		CPUWeight:          0.3,
		MemoryWeight:       0.1,
		ActiveTasksWeight:  0.4,
		ResponseTimeWeight: 0.2,
		TaskUnitCost:       1,
	}
}

func TestLoadScoreIdleBeatsLoaded(t *testing.T) {
	idle := &fakeEndpoint{id: "idle", cap: 2, metrics: &metrics.MetricsState{}}
	loaded := &fakeEndpoint{
		id:     "loaded",
		active: 2,
		cap:    2,
		avgRT:  5 * time.Second,
		metrics: &metrics.MetricsState{
			CPUUsage:    0.9,
			MemoryBytes: 800 << 20,
		},
	}

	s := NewLoad(defaultConfig())
	scores := s.Score(context.Background(), &types.Request{RequestID: "r1"}, []types.Endpoint{idle, loaded})

	assert.Greater(t, scores[types.Endpoint(idle)], scores[types.Endpoint(loaded)])
	assert.InDelta(t, 1.0, scores[types.Endpoint(idle)], 1e-9, "a fully idle instance scores the base score")
}

func TestLoadScoreStaysInUnitRange(t *testing.T) {
	monster := &fakeEndpoint{
		id:     "overloaded",
		active: 100,
		cap:    1,
		avgRT:  10 * time.Minute,
		metrics: &metrics.MetricsState{
			CPUUsage:    4.2,
			MemoryBytes: 64 << 30,
		},
	}

	s := NewLoad(defaultConfig())
	scores := s.Score(context.Background(), &types.Request{RequestID: "r1"}, []types.Endpoint{monster})

	score := scores[types.Endpoint(monster)]
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestLoadScoreZeroWeightsFallBackToBase(t *testing.T) {
	e := &fakeEndpoint{id: "any", cap: 1, active: 1, metrics: &metrics.MetricsState{CPUUsage: 1}}

	s := NewLoad(LoadConfig{})
	scores := s.Score(context.Background(), &types.Request{RequestID: "r1"}, []types.Endpoint{e})
	assert.InDelta(t, 1.0, scores[types.Endpoint(e)], 1e-9)
}

func TestLoadScoreActiveTasksPenalty(t *testing.T) {
	// With only the task weight active, the score degrades linearly with
	// assigned load.
	cfg := LoadConfig{ActiveTasksWeight: 1, TaskUnitCost: 1}
	s := NewLoad(cfg)

	half := &fakeEndpoint{id: "half", active: 1, cap: 2, metrics: &metrics.MetricsState{}}
	full := &fakeEndpoint{id: "full", active: 2, cap: 2, metrics: &metrics.MetricsState{}}

	scores := s.Score(context.Background(), &types.Request{RequestID: "r1"}, []types.Endpoint{half, full})
	assert.InDelta(t, 0.5, scores[types.Endpoint(half)], 1e-9)
	assert.InDelta(t, 0.0, scores[types.Endpoint(full)], 1e-9)
}
