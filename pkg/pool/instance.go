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

// Package pool owns the set of worker instances: their lifecycle, health,
// load accounting and request dispatch.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/reyisok/HonyGo-1.0/pkg/pool/metrics"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

// Status is the lifecycle state of a worker instance.
type Status string

const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusIdle     Status = "idle"
	StatusBusy     Status = "busy"
	StatusFailed   Status = "failed"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
)

// Routable reports whether an instance in this status may receive requests.
// Failed instances are never routable.
func (s Status) Routable() bool {
	switch s {
	case StatusReady, StatusIdle, StatusBusy:
		return true
	default:
		return false
	}
}

// responseTimeWindow bounds the rolling response time sample set.
const responseTimeWindow = 100

// fetchMetricsTimeout bounds one scrape of a worker.
const fetchMetricsTimeout = 5 * time.Second

// Process is the handle the pool keeps on a spawned worker process.
type Process interface {
	// Stop terminates the process and waits for it to exit.
	Stop() error
	// Alive reports whether the process is still running.
	Alive() bool
}

// Instance is a single worker owned exclusively by the pool manager.
// Status, load accounting and response times are guarded by mu; the scraped
// metrics state is an atomically replaced immutable pointer.
type Instance struct {
	id       string
	port     int
	address  string
	capacity int

	process Process

	mu            sync.Mutex
	status        Status
	activeTasks   int
	processed     uint64
	errors        uint64
	probeFailures int
	responseTimes []time.Duration
	createdAt     time.Time
	lastUsed      time.Time

	metrics atomic.Pointer[metrics.MetricsState]

	// refresh loop plumbing
	stopOnce sync.Once
	done     chan struct{}
	logger   logr.Logger
}

// newInstance constructs an instance in Starting state and kicks off its
// metrics refresh loop.
func newInstance(parentCtx context.Context, id string, port, capacity int, proc Process, client metrics.Client, interval time.Duration) *Instance {
	inst := &Instance{
		id:        id,
		port:      port,
		address:   fmt.Sprintf("127.0.0.1:%d", port),
		capacity:  capacity,
		process:   proc,
		status:    StatusStarting,
		createdAt: time.Now(),
		done:      make(chan struct{}),
		logger:    logutil.FromContext(parentCtx).WithName("instance").WithValues("instance", id, "port", port),
	}
	inst.metrics.Store(metrics.NewState())
	go inst.refreshLoop(parentCtx, client, interval)
	return inst
}

// ID returns the instance identifier.
func (i *Instance) ID() string { return i.id }

// Port returns the port the worker listens on.
func (i *Instance) Port() int { return i.port }

// Address returns the host:port of the worker.
func (i *Instance) Address() string { return i.address }

// Capacity returns the number of recognitions the worker may run at once.
func (i *Instance) Capacity() int { return i.capacity }

// refreshLoop periodically scrapes the worker's metrics until the instance
// is stopped or the parent context is canceled.
func (i *Instance) refreshLoop(parentCtx context.Context, client metrics.Client, interval time.Duration) {
	i.logger.V(logutil.DEFAULT).Info("Starting metrics refresher")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-i.done:
			return
		case <-parentCtx.Done():
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(parentCtx, fetchMetricsTimeout)
		updated, err := client.FetchMetrics(ctx, i.address, i.Metrics())
		cancel()
		if err != nil {
			// The scrape can race instance teardown; the health checker owns
			// failure detection, the refresher only reports.
			i.logger.V(logutil.TRACE).Error(err, "Failed to refresh metrics")
			continue
		}
		i.metrics.Store(updated)
		i.logger.V(logutil.TRACE).Info("Refreshed metrics", "updated", updated)
	}
}

// stopRefreshLoop terminates the refresh loop. Safe to call more than once.
func (i *Instance) stopRefreshLoop() {
	i.stopOnce.Do(func() { close(i.done) })
}

// Metrics returns the latest scraped metrics state.
func (i *Instance) Metrics() *metrics.MetricsState {
	return i.metrics.Load()
}

// Status returns the current lifecycle status.
func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Routable reports whether the instance may receive requests right now.
func (i *Instance) Routable() bool {
	return i.Status().Routable()
}

// ActiveTasks returns the pool-side in-flight count for this instance.
func (i *Instance) ActiveTasks() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.activeTasks
}

// AvgResponseTime returns the mean of the rolling response time window.
func (i *Instance) AvgResponseTime() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.avgResponseTimeLocked()
}

func (i *Instance) avgResponseTimeLocked() time.Duration {
	if len(i.responseTimes) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range i.responseTimes {
		sum += d
	}
	return sum / time.Duration(len(i.responseTimes))
}

// recordResponseTime appends to the rolling window, keeping only the most
// recent samples.
func (i *Instance) recordResponseTime(d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.responseTimes = append(i.responseTimes, d)
	if len(i.responseTimes) > responseTimeWindow {
		i.responseTimes = i.responseTimes[len(i.responseTimes)-responseTimeWindow:]
	}
}

// Snapshot is the externally visible view of an instance, served by the
// /pool/status endpoint.
type Snapshot struct {
	ID              string        `json:"id"`
	Port            int           `json:"port"`
	Status          Status        `json:"status"`
	ActiveTasks     int           `json:"active_tasks"`
	Processed       uint64        `json:"processed_requests"`
	Errors          uint64        `json:"error_count"`
	CPUUsage        float64       `json:"cpu_usage"`
	MemoryBytes     float64       `json:"memory_bytes"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	CreatedAt       time.Time     `json:"created_at"`
	LastUsed        time.Time     `json:"last_used"`
}

// SnapshotView captures a consistent view of the instance.
func (i *Instance) SnapshotView() Snapshot {
	ms := i.Metrics()
	i.mu.Lock()
	defer i.mu.Unlock()
	return Snapshot{
		ID:              i.id,
		Port:            i.port,
		Status:          i.status,
		ActiveTasks:     i.activeTasks,
		Processed:       i.processed,
		Errors:          i.errors,
		CPUUsage:        ms.CPUUsage,
		MemoryBytes:     ms.MemoryBytes,
		AvgResponseTime: i.avgResponseTimeLocked(),
		CreatedAt:       i.createdAt,
		LastUsed:        i.lastUsed,
	}
}
