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

package worker

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	poolmetrics "github.com/reyisok/HonyGo-1.0/pkg/pool/metrics"
)

// statsSampleInterval is how often the process stats gauges refresh.
const statsSampleInterval = 5 * time.Second

// Metrics exposes the worker's load gauges on a dedicated registry. The
// metric names are the contract with the pool's scrape client.
type Metrics struct {
	registry *prometheus.Registry

	activeTasks    prometheus.Gauge
	waitingTasks   prometheus.Gauge
	maxConcurrency prometheus.Gauge
	cpuUsage       prometheus.Gauge
	memoryBytes    prometheus.Gauge
}

// NewMetrics builds and registers the worker gauges.
func NewMetrics(instanceID string, maxConcurrency int) *Metrics {
	labels := prometheus.Labels{"instance_id": instanceID}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        poolmetrics.ActiveTasksMetricName,
			Help:        "Number of recognitions currently executing.",
			ConstLabels: labels,
		}),
		waitingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        poolmetrics.WaitingQueueSizeMetricName,
			Help:        "Number of recognitions waiting for a concurrency slot.",
			ConstLabels: labels,
		}),
		maxConcurrency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        poolmetrics.MaxConcurrencyMetricName,
			Help:        "Configured concurrency limit of this worker.",
			ConstLabels: labels,
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        poolmetrics.CPUUsageMetricName,
			Help:        "Process CPU usage as a fraction of total machine capacity.",
			ConstLabels: labels,
		}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        poolmetrics.MemoryBytesMetricName,
			Help:        "Resident memory of the worker process in bytes.",
			ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(m.activeTasks, m.waitingTasks, m.maxConcurrency, m.cpuUsage, m.memoryBytes)
	m.maxConcurrency.Set(float64(maxConcurrency))
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SampleLoop periodically refreshes the CPU and memory gauges until the
// context is canceled.
func (m *Metrics) SampleLoop(ctx context.Context) {
	prevCPU := processCPUTime()
	prevWall := time.Now()

	ticker := time.NewTicker(statsSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cpu := processCPUTime()
		wall := time.Now()
		if elapsed := wall.Sub(prevWall); elapsed > 0 {
			m.cpuUsage.Set(cpuRatio(cpu-prevCPU, elapsed))
		}
		prevCPU, prevWall = cpu, wall

		m.memoryBytes.Set(float64(processResidentBytes()))
	}
}

// cpuRatio converts CPU time spent over a wall-clock window into a fraction
// of total machine capacity, clamped at zero for clock anomalies.
func cpuRatio(cpuDelta, elapsed time.Duration) float64 {
	ratio := cpuDelta.Seconds() / elapsed.Seconds() / float64(runtime.NumCPU())
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}
