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

// Package picker provides the final endpoint selection step.
package picker

import (
	"context"
	"slices"
	"strings"

	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/framework"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

const MaxScorePickerType = "max-score-picker"

// compile-time type validation
var _ framework.Picker = &MaxScorePicker{}

// MaxScorePicker picks the endpoint with the maximum score from the list of
// candidates. Ties are broken by instance identifier ordering so that the
// same inputs always produce the same choice.
type MaxScorePicker struct {
	typedName framework.TypedName
}

// NewMaxScorePicker initializes a new MaxScorePicker and returns its pointer.
func NewMaxScorePicker() *MaxScorePicker {
	return &MaxScorePicker{
		typedName: framework.TypedName{Type: MaxScorePickerType, Name: MaxScorePickerType},
	}
}

// TypedName returns the type and name tuple of this plugin instance.
func (p *MaxScorePicker) TypedName() framework.TypedName {
	return p.typedName
}

// Pick selects the endpoint with the maximum score from the list of
// candidates.
func (p *MaxScorePicker) Pick(ctx context.Context, scored []*types.ScoredEndpoint) types.Endpoint {
	if len(scored) == 0 {
		return nil
	}
	logutil.FromContext(ctx).V(logutil.DEBUG).Info("Selecting endpoint with max score", "num-of-candidates", len(scored))

	sorted := slices.Clone(scored)
	slices.SortStableFunc(sorted, func(a, b *types.ScoredEndpoint) int { // highest score first
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.ID(), b.ID())
	})
	return sorted[0].Endpoint
}
