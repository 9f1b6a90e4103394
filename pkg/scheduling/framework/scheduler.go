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

	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

// Scheduler runs the filter, score and pick cycle over a candidate set.
type Scheduler struct {
	filters []Filter
	scorers []*WeightedScorer
	picker  Picker
}

// NewScheduler assembles a scheduler from its plugins. The picker is
// required; filters and scorers may be empty.
func NewScheduler(picker Picker, filters []Filter, scorers []*WeightedScorer) *Scheduler {
	return &Scheduler{
		filters: filters,
		scorers: scorers,
		picker:  picker,
	}
}

// Schedule selects one endpoint for the request, or returns an error when
// the filters leave no eligible candidate.
func (s *Scheduler) Schedule(ctx context.Context, request *types.Request, candidates []types.Endpoint) (types.Endpoint, error) {
	logger := logutil.FromContext(ctx).WithName("scheduler")

	endpoints := candidates
	for _, filter := range s.filters {
		before := len(endpoints)
		endpoints = filter.Filter(ctx, request, endpoints)
		logger.V(logutil.DEBUG).Info("Ran filter", "filter", filter.TypedName().String(), "before", before, "after", len(endpoints))
		if len(endpoints) == 0 {
			break
		}
	}
	if len(endpoints) == 0 {
		return nil, errutil.Error{Code: errutil.ServiceUnavailable, Msg: "no eligible instance after filtering"}
	}

	scored := s.score(ctx, request, endpoints)

	picked := s.picker.Pick(ctx, scored)
	if picked == nil {
		return nil, errutil.Error{Code: errutil.Internal, Msg: "picker returned no endpoint"}
	}
	logger.V(logutil.DEBUG).Info("Picked endpoint", "request", request.RequestID, "endpoint", picked.ID())
	return picked, nil
}

// score accumulates the weighted scorer outputs per endpoint, clamping each
// scorer's value into [0, 1].
func (s *Scheduler) score(ctx context.Context, request *types.Request, endpoints []types.Endpoint) []*types.ScoredEndpoint {
	totals := make(map[types.Endpoint]float64, len(endpoints))
	for _, weighted := range s.scorers {
		scores := weighted.Score(ctx, request, endpoints)
		for endpoint, score := range scores {
			if score < 0 {
				score = 0
			} else if score > 1 {
				score = 1
			}
			totals[endpoint] += score * weighted.Weight()
		}
	}

	scored := make([]*types.ScoredEndpoint, 0, len(endpoints))
	for _, endpoint := range endpoints {
		scored = append(scored, &types.ScoredEndpoint{Endpoint: endpoint, Score: totals[endpoint]})
	}
	return scored
}
