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

// Package types holds the shared types of the scheduling framework.
package types

import (
	"time"

	"github.com/reyisok/HonyGo-1.0/pkg/pool/metrics"
)

// Endpoint is the scheduling framework's view of a routing candidate. The
// pool's Instance satisfies it.
type Endpoint interface {
	ID() string
	// Routable reports whether the endpoint may receive requests at all.
	Routable() bool
	// ActiveTasks is the number of requests currently assigned.
	ActiveTasks() int
	// Capacity is the maximum number of concurrent requests.
	Capacity() int
	// AvgResponseTime is the rolling mean of recent request durations.
	AvgResponseTime() time.Duration
	// Metrics returns the latest scraped metrics state.
	Metrics() *metrics.MetricsState
}

// Request carries the request properties the framework consults when
// selecting an endpoint.
type Request struct {
	RequestID string
	Languages []string
	Keywords  []string
}

// ScoredEndpoint pairs an endpoint with its accumulated weighted score.
type ScoredEndpoint struct {
	Endpoint
	Score float64
}
