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

package picker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reyisok/HonyGo-1.0/pkg/pool/metrics"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
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

func scored(pairs ...any) []*types.ScoredEndpoint {
	out := make([]*types.ScoredEndpoint, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, &types.ScoredEndpoint{
			Endpoint: &fakeEndpoint{id: pairs[i].(string)},
			Score:    pairs[i+1].(float64),
		})
	}
	return out
}

func TestPickHighestScore(t *testing.T) {
	p := NewMaxScorePicker()
	picked := p.Pick(context.Background(), scored("a", 0.2, "b", 0.9, "c", 0.5))
	assert.Equal(t, "b", picked.ID())
}

func TestPickTieBreaksByID(t *testing.T) {
	p := NewMaxScorePicker()

	// Same inputs in any order must produce the same winner.
	first := p.Pick(context.Background(), scored("zeta", 0.9, "alpha", 0.9, "mid", 0.9))
	second := p.Pick(context.Background(), scored("mid", 0.9, "zeta", 0.9, "alpha", 0.9))

	assert.Equal(t, "alpha", first.ID())
	assert.Equal(t, "alpha", second.ID())
}

func TestPickEmpty(t *testing.T) {
	p := NewMaxScorePicker()
	assert.Nil(t, p.Pick(context.Background(), nil))
}

func TestPickDoesNotMutateInput(t *testing.T) {
	p := NewMaxScorePicker()
	input := scored("c", 0.1, "a", 0.9, "b", 0.5)
	_ = p.Pick(context.Background(), input)

	assert.Equal(t, "c", input[0].ID())
	assert.Equal(t, "a", input[1].ID())
	assert.Equal(t, "b", input[2].ID())
}
