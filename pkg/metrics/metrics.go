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

// Package metrics holds the Prometheus instrumentation of the pool service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// PoolSubsystem groups the pool-level metrics.
	PoolSubsystem = "ocr_pool"
)

// RequestLatencyBuckets covers recognitions from 5ms to 5 minutes.
var RequestLatencyBuckets = []float64{
	0.005, 0.025, 0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1.0, 1.25, 1.5, 2, 3, 4, 5,
	6, 8, 10, 15, 20, 30, 45, 60, 120, 180, 240, 300,
}

var (
	requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: PoolSubsystem,
			Name:      "request_total",
			Help:      "Counter of OCR requests broken out by outcome code.",
		},
		[]string{"code"},
	)

	requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: PoolSubsystem,
			Name:      "request_duration_seconds",
			Help:      "OCR request processing time distribution, dispatch through result return.",
			Buckets:   RequestLatencyBuckets,
		},
		[]string{"code"},
	)

	instanceCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: PoolSubsystem,
			Name:      "instances",
			Help:      "Number of pool instances per lifecycle status.",
		},
		[]string{"status"},
	)

	dispatchRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: PoolSubsystem,
			Name:      "dispatch_retries_total",
			Help:      "Counter of dispatch attempts retried against a different instance.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: PoolSubsystem,
			Name:      "queue_depth",
			Help:      "Number of requests currently waiting for an instance.",
		},
	)

	scalingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: PoolSubsystem,
			Name:      "scaling_events_total",
			Help:      "Counter of completed scaling operations per direction.",
		},
		[]string{"direction"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: PoolSubsystem,
			Name:      "cache_lookups_total",
			Help:      "Counter of result cache lookups per outcome.",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

// Register registers all pool service metrics with the registry exactly
// once.
func Register(registry prometheus.Registerer) {
	registerOnce.Do(func() {
		registry.MustRegister(
			requestTotal,
			requestLatency,
			instanceCount,
			dispatchRetries,
			queueDepth,
			scalingEvents,
			cacheLookups,
		)
	})
}

// RecordRequest observes one finished request.
func RecordRequest(code string, duration time.Duration) {
	requestTotal.WithLabelValues(code).Inc()
	requestLatency.WithLabelValues(code).Observe(duration.Seconds())
}

// RecordInstanceCount publishes the per-status instance counts. Statuses
// absent from the map are reset to zero on the next scrape via Set calls by
// the caller.
func RecordInstanceCount(status string, count int) {
	instanceCount.WithLabelValues(status).Set(float64(count))
}

// RecordDispatchRetry counts one retry against a different instance.
func RecordDispatchRetry() {
	dispatchRetries.Inc()
}

// RecordQueueDepth publishes the current backpressure queue depth.
func RecordQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// RecordScalingEvent counts one completed scale operation.
func RecordScalingEvent(direction string) {
	scalingEvents.WithLabelValues(direction).Inc()
}

// RecordCacheLookup counts one cache lookup outcome ("hit" or "miss").
func RecordCacheLookup(outcome string) {
	cacheLookups.WithLabelValues(outcome).Inc()
}
