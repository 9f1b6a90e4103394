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

// Package framework defines the extension points of endpoint selection:
// filters narrow the candidate set, weighted scorers rank it, and a picker
// makes the final choice.
package framework

import (
	"context"

	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
)

// Plugin is implemented by every extension point implementation.
type Plugin interface {
	// TypedName returns the plugin type and instance name.
	TypedName() TypedName
}

// TypedName is the type and name tuple identifying a plugin instance.
type TypedName struct {
	Type string
	Name string
}

func (t TypedName) String() string {
	return t.Type + "/" + t.Name
}

// Filter narrows a list of candidate endpoints based on the request.
type Filter interface {
	Plugin
	Filter(ctx context.Context, request *types.Request, endpoints []types.Endpoint) []types.Endpoint
}

// Scorer scores candidate endpoints with a value within [0, 1], where 1 is
// the best score. Values outside the range are clamped by the scheduler.
type Scorer interface {
	Plugin
	Score(ctx context.Context, request *types.Request, endpoints []types.Endpoint) map[types.Endpoint]float64
}

// Picker picks the final endpoint from the scored candidates.
type Picker interface {
	Plugin
	Pick(ctx context.Context, scored []*types.ScoredEndpoint) types.Endpoint
}
