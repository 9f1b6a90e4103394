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

// Package filter provides the candidate filters used by the load balancer.
package filter

import (
	"context"
	"time"

	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/framework"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
)

const AvailableFilterType = "available"

// compile-time type validation
var _ framework.Filter = &Available{}

// Available keeps endpoints that may take one more request: they are
// routable, under capacity and their metrics are not stale. Failed
// instances are never routable, so they can never pass this filter.
type Available struct {
	typedName          framework.TypedName
	stalenessThreshold time.Duration

	// now is swapped in tests.
	now func() time.Time
}

// NewAvailable builds the filter. A zero stalenessThreshold disables the
// freshness check.
func NewAvailable(stalenessThreshold time.Duration) *Available {
	return &Available{
		typedName:          framework.TypedName{Type: AvailableFilterType, Name: AvailableFilterType},
		stalenessThreshold: stalenessThreshold,
		now:                time.Now,
	}
}

// TypedName returns the type and name tuple of this plugin instance.
func (f *Available) TypedName() framework.TypedName {
	return f.typedName
}

// Filter drops endpoints that cannot take the request.
func (f *Available) Filter(_ context.Context, _ *types.Request, endpoints []types.Endpoint) []types.Endpoint {
	now := f.now()
	filtered := make([]types.Endpoint, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if !endpoint.Routable() {
			continue
		}
		if capacity := endpoint.Capacity(); capacity > 0 && endpoint.ActiveTasks() >= capacity {
			continue
		}
		if f.stalenessThreshold > 0 && !endpoint.Metrics().Fresh(now, f.stalenessThreshold) {
			continue
		}
		filtered = append(filtered, endpoint)
	}
	return filtered
}
