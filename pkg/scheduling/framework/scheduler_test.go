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

package framework

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reyisok/HonyGo-1.0/pkg/pool/metrics"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
)

type fakeEndpoint struct {
	id string
}

func (f *fakeEndpoint) ID() string                     { return f.id }
func (f *fakeEndpoint) Routable() bool                 { return true }
func (f *fakeEndpoint) ActiveTasks() int               { return 0 }
func (f *fakeEndpoint) Capacity() int                  { return 1 }
func (f *fakeEndpoint) AvgResponseTime() time.Duration { return 0 }
func (f *fakeEndpoint) Metrics() *metrics.MetricsState { return metrics.NewState() }

type fakeFilter struct {
	keep map[string]bool
}

func (f *fakeFilter) TypedName() TypedName { return TypedName{Type: "fake-filter", Name: "fake-filter"} }

func (f *fakeFilter) Filter(_ context.Context, _ *types.Request, endpoints []types.Endpoint) []types.Endpoint {
	var out []types.Endpoint
	for _, e := range endpoints {
		if f.keep[e.ID()] {
			out = append(out, e)
		}
	}
	return out
}

type fakeScorer struct {
	scores map[string]float64
}

func (f *fakeScorer) TypedName() TypedName { return TypedName{Type: "fake-scorer", Name: "fake-scorer"} }

func (f *fakeScorer) Score(_ context.Context, _ *types.Request, endpoints []types.Endpoint) map[types.Endpoint]float64 {
	out := make(map[types.Endpoint]float64, len(endpoints))
	for _, e := range endpoints {
		out[e] = f.scores[e.ID()]
	}
	return out
}

type firstPicker struct{}

func (firstPicker) TypedName() TypedName { return TypedName{Type: "first-picker", Name: "first-picker"} }

func (firstPicker) Pick(_ context.Context, scored []*types.ScoredEndpoint) types.Endpoint {
	best := scored[0]
	for _, s := range scored[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best.Endpoint
}

func endpoints(ids ...string) []types.Endpoint {
	out := make([]types.Endpoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, &fakeEndpoint{id: id})
	}
	return out
}

func TestScheduleNoEligibleEndpoint(t *testing.T) {
	s := NewScheduler(firstPicker{}, []Filter{&fakeFilter{keep: map[string]bool{}}}, nil)

	_, err := s.Schedule(context.Background(), &types.Request{RequestID: "r1"}, endpoints("a", "b"))
	require.Error(t, err)
	assert.Equal(t, errutil.ServiceUnavailable, errutil.CanonicalCode(err))
}

func TestSchedulePicksHighestWeightedScore(t *testing.T) {
	scorerA := &fakeScorer{scores: map[string]float64{"a": 1.0, "b": 0.2}}
	scorerB := &fakeScorer{scores: map[string]float64{"a": 0.0, "b": 1.0}}
	s := NewScheduler(firstPicker{}, nil, []*WeightedScorer{
		NewWeightedScorer(scorerA, 1),
		NewWeightedScorer(scorerB, 3),
	})

	// a: 1*1 + 0*3 = 1; b: 0.2*1 + 1*3 = 3.2
	picked, err := s.Schedule(context.Background(), &types.Request{RequestID: "r1"}, endpoints("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "b", picked.ID())
}

func TestScheduleClampsScorerOutput(t *testing.T) {
	// A misbehaving scorer must not let an endpoint buy more than weight 1
	// per scorer, nor push another below zero.
	wild := &fakeScorer{scores: map[string]float64{"a": 50, "b": -50}}
	tame := &fakeScorer{scores: map[string]float64{"a": 0, "b": 0.9}}
	s := NewScheduler(firstPicker{}, nil, []*WeightedScorer{
		NewWeightedScorer(wild, 1),
		NewWeightedScorer(tame, 1),
	})

	// a: clamp(50)=1 + 0 = 1; b: clamp(-50)=0 + 0.9 = 0.9 -> a wins, but
	// only by the clamped margin.
	picked, err := s.Schedule(context.Background(), &types.Request{RequestID: "r1"}, endpoints("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "a", picked.ID())
}

func TestScheduleFiltersThenScores(t *testing.T) {
	filter := &fakeFilter{keep: map[string]bool{"b": true, "c": true}}
	scorer := &fakeScorer{scores: map[string]float64{"a": 1, "b": 0.5, "c": 0.7}}
	s := NewScheduler(firstPicker{}, []Filter{filter}, []*WeightedScorer{NewWeightedScorer(scorer, 1)})

	picked, err := s.Schedule(context.Background(), &types.Request{RequestID: "r1"}, endpoints("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, "c", picked.ID(), "the filtered-out top scorer must not win")
}
