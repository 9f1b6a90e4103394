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

// Package scorer provides the scorers used by the load balancer.
package scorer

import (
	"context"
	"time"

	"github.com/reyisok/HonyGo-1.0/pkg/pool/metrics"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/framework"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
)

const LoadScorerType = "load"

// compile-time type validation
var _ framework.Scorer = &Load{}

// LoadConfig carries the load score weights and the normalization
// references. Each metric is normalized into [0, 1] before weighting, so
// the weights are comparable with each other.
type LoadConfig struct {
	CPUWeight          float64
	MemoryWeight       float64
	ActiveTasksWeight  float64
	ResponseTimeWeight float64
	// TaskUnitCost scales the normalized active task count.
	TaskUnitCost float64
	// MemoryReferenceBytes is the memory usage treated as fully loaded.
	MemoryReferenceBytes float64
	// ResponseTimeReference is the response time treated as fully loaded.
	ResponseTimeReference time.Duration
}

// Load scores endpoints by how lightly loaded they are: an idle instance
// scores 1, a fully loaded one approaches 0. The score is a weighted sum of
// CPU, memory, active task and response time penalties subtracted from the
// base score.
type Load struct {
	typedName framework.TypedName
	config    LoadConfig
}

// NewLoad builds the scorer; zero-valued references fall back to defaults.
func NewLoad(config LoadConfig) *Load {
	if config.MemoryReferenceBytes <= 0 {
		config.MemoryReferenceBytes = 1 << 30 // 1 GiB
	}
	if config.ResponseTimeReference <= 0 {
		config.ResponseTimeReference = 10 * time.Second
	}
	if config.TaskUnitCost <= 0 {
		config.TaskUnitCost = 1
	}
	return &Load{
		typedName: framework.TypedName{Type: LoadScorerType, Name: LoadScorerType},
		config:    config,
	}
}

// TypedName returns the type and name tuple of this plugin instance.
func (s *Load) TypedName() framework.TypedName {
	return s.typedName
}

// Score computes the load score per endpoint.
func (s *Load) Score(_ context.Context, _ *types.Request, endpoints []types.Endpoint) map[types.Endpoint]float64 {
	scores := make(map[types.Endpoint]float64, len(endpoints))
	for _, endpoint := range endpoints {
		scores[endpoint] = s.scoreOne(endpoint)
	}
	return scores
}

func (s *Load) scoreOne(endpoint types.Endpoint) float64 {
	// An endpoint that was never scraped carries no resource penalty; the
	// assigned-task and response-time terms still apply.
	ms := endpoint.Metrics()
	if ms == nil {
		ms = metrics.NewState()
	}

	cpu := clamp01(ms.CPUUsage)
	mem := clamp01(ms.MemoryBytes / s.config.MemoryReferenceBytes)

	var tasks float64
	if capacity := endpoint.Capacity(); capacity > 0 {
		tasks = clamp01(float64(endpoint.ActiveTasks()) * s.config.TaskUnitCost / float64(capacity))
	}

	rt := clamp01(float64(endpoint.AvgResponseTime()) / float64(s.config.ResponseTimeReference))

	const base = 1.0
	totalWeight := s.config.CPUWeight + s.config.MemoryWeight + s.config.ActiveTasksWeight + s.config.ResponseTimeWeight
	if totalWeight <= 0 {
		return base
	}
	penalty := cpu*s.config.CPUWeight + mem*s.config.MemoryWeight +
		tasks*s.config.ActiveTasksWeight + rt*s.config.ResponseTimeWeight
	return clamp01(base - penalty/totalWeight)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
