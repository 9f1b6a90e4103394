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

// Package saturation implements a mechanism to determine if the OCR worker
// pool is considered saturated based on observed load.
//
// The detector provides a global saturation signal (IsSaturated) based on
// per-instance queue depths and assigned load. The gateway consults it
// before accepting work so overload is rejected at the edge instead of
// timing out deep in the dispatch path.
package saturation

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

const loggerName = "SaturationDetector"

// Config holds the thresholds for determining saturation.
type Config struct {
	// QueueDepthThreshold defines the worker waiting queue size above which
	// an instance is considered to have insufficient capacity for new
	// requests.
	QueueDepthThreshold int
	// MetricsStalenessThreshold defines how old an instance's scraped
	// metrics can be. Instances with metrics older than this are treated as
	// having no capacity for safety.
	MetricsStalenessThreshold time.Duration
}

// EndpointSource provides access to the routable instances.
type EndpointSource interface {
	RoutableEndpoints() []types.Endpoint
}

// Detector determines pool saturation from live instance state.
type Detector struct {
	source EndpointSource
	config *Config
	logger logr.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewDetector creates a new saturation detector over the given endpoint
// source.
func NewDetector(config *Config, source EndpointSource, logger logr.Logger) *Detector {
	logger = logger.WithName(loggerName)
	logger.V(logutil.DEFAULT).Info("Creating new SaturationDetector",
		"queueDepthThreshold", config.QueueDepthThreshold,
		"metricsStalenessThreshold", config.MetricsStalenessThreshold.String())
	return &Detector{
		source: source,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// IsSaturated checks if the pool is currently considered saturated. The
// pool is saturated if NO instance currently has good capacity, where good
// capacity means:
//  1. Assigned load is below the instance's concurrency capacity.
//  2. Scraped metrics are fresh and report a waiting queue at or below the
//     threshold.
//
// A pool with no routable instances is saturated by definition.
func (d *Detector) IsSaturated(_ context.Context) bool {
	endpoints := d.source.RoutableEndpoints()
	if len(endpoints) == 0 {
		d.logger.V(logutil.VERBOSE).Info("No routable instances; pool is considered SATURATED")
		return true
	}

	now := d.now()
	for _, endpoint := range endpoints {
		if endpoint.ActiveTasks() >= endpoint.Capacity() {
			d.logger.V(logutil.TRACE).Info("Instance at capacity",
				"instance", endpoint.ID(), "activeTasks", endpoint.ActiveTasks(), "capacity", endpoint.Capacity())
			continue
		}

		state := endpoint.Metrics()
		if state == nil || !state.Fresh(now, d.config.MetricsStalenessThreshold) {
			d.logger.V(logutil.TRACE).Info("Instance metrics are stale, considered as not having good capacity",
				"instance", endpoint.ID())
			continue
		}
		if state.WaitingQueueSize > d.config.QueueDepthThreshold {
			d.logger.V(logutil.TRACE).Info("Instance waiting queue is above threshold",
				"instance", endpoint.ID(), "waitingQueueSize", state.WaitingQueueSize, "threshold", d.config.QueueDepthThreshold)
			continue
		}

		return false
	}

	d.logger.V(logutil.VERBOSE).Info("No instance with good capacity; pool is considered SATURATED")
	return true
}
