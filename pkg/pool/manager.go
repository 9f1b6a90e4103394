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

package pool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/reyisok/HonyGo-1.0/pkg/config"
	"github.com/reyisok/HonyGo-1.0/pkg/engine"
	"github.com/reyisok/HonyGo-1.0/pkg/metrics"
	poolmetrics "github.com/reyisok/HonyGo-1.0/pkg/pool/metrics"
	"github.com/reyisok/HonyGo-1.0/pkg/ports"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/framework"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

// healthProbeTimeout bounds one health probe of a worker.
const healthProbeTimeout = 2 * time.Second

// queuePollInterval is how often a queued request retries acquisition.
const queuePollInterval = 50 * time.Millisecond

// startupGraceMultiplier widens the failure threshold for instances that
// are still starting, so slow engine warm-up is not treated as a crash.
const startupGraceMultiplier = 4

// bounds is the atomically swappable part of the manager configuration, so
// a config reload can adjust the pool without a restart.
type bounds struct {
	min int
	max int
}

// Manager owns the instance roster. All instance-set mutation and request
// assignment is serialized through mu; dispatch itself runs outside the
// lock so independent instances process in parallel.
type Manager struct {
	cfg          config.PoolConfig
	backpressure config.BackpressureConfig

	bounds atomic.Pointer[bounds]

	store        *Datastore
	ports        *ports.Manager
	spawner      Spawner
	scrapeClient poolmetrics.Client
	worker       WorkerClient
	scheduler    *framework.Scheduler
	logger       logr.Logger

	// mu serializes selection+assignment and roster mutation.
	mu sync.Mutex

	// queueSlots bounds the number of requests waiting for an instance.
	queueSlots chan struct{}
	queued     atomic.Int64

	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64
}

// NewManager wires the manager from its collaborators.
func NewManager(
	cfg config.PoolConfig,
	backpressure config.BackpressureConfig,
	portMgr *ports.Manager,
	spawner Spawner,
	scrapeClient poolmetrics.Client,
	worker WorkerClient,
	scheduler *framework.Scheduler,
	logger logr.Logger,
) *Manager {
	m := &Manager{
		cfg:          cfg,
		backpressure: backpressure,
		store:        NewDatastore(),
		ports:        portMgr,
		spawner:      spawner,
		scrapeClient: scrapeClient,
		worker:       worker,
		scheduler:    scheduler,
		logger:       logger.WithName("pool-manager"),
	}
	m.bounds.Store(&bounds{min: cfg.MinInstances, max: cfg.MaxInstances})
	if backpressure.Policy == config.BackpressureQueue {
		m.queueSlots = make(chan struct{}, backpressure.QueueDepth)
	}
	return m
}

// UpdateBounds adjusts the scaling bounds, e.g. after a config reload. The
// health loop converges the pool towards the new bounds.
func (m *Manager) UpdateBounds(minInstances, maxInstances int) {
	if minInstances <= 0 || maxInstances < minInstances {
		return
	}
	m.bounds.Store(&bounds{min: minInstances, max: maxInstances})
	m.logger.V(logutil.DEFAULT).Info("Updated pool bounds", "min", minInstances, "max", maxInstances)
}

// Bounds returns the current scaling bounds.
func (m *Manager) Bounds() (minInstances, maxInstances int) {
	b := m.bounds.Load()
	return b.min, b.max
}

// Start brings the pool up to the minimum instance count and starts the
// health check loop. It returns once the minimum instances are spawned;
// they become Ready asynchronously as their health probes succeed.
func (m *Manager) Start(ctx context.Context) error {
	minInstances, _ := m.Bounds()
	for i := 0; i < minInstances; i++ {
		if _, err := m.createInstance(ctx); err != nil {
			return fmt.Errorf("initialize pool: %w", err)
		}
	}
	go m.healthLoop(ctx)
	m.logger.V(logutil.DEFAULT).Info("Pool started", "instances", minInstances)
	return nil
}

// Stop tears down every instance.
func (m *Manager) Stop(ctx context.Context) error {
	for _, inst := range m.store.List(AllInstancesPredicate) {
		m.teardownInstance(ctx, inst)
	}
	return nil
}

// createInstance allocates a port, spawns a worker and registers it in
// Starting state. The caller does not hold mu.
func (m *Manager) createInstance(ctx context.Context) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createInstanceLocked(ctx)
}

func (m *Manager) createInstanceLocked(ctx context.Context) (*Instance, error) {
	_, maxInstances := m.Bounds()
	if m.store.Count(AllInstancesPredicate) >= maxInstances {
		return nil, errutil.Error{Code: errutil.PoolResourceExhausted, Msg: "maximum instance count reached"}
	}

	id := "ocr-" + strings.Split(uuid.NewString(), "-")[0]
	port, err := m.ports.Allocate(id)
	if err != nil {
		return nil, err
	}

	proc, err := m.spawner.Spawn(ctx, id, port)
	if err != nil {
		m.ports.Release(port)
		return nil, errutil.Error{Code: errutil.Internal, Msg: fmt.Sprintf("spawn instance: %v", err)}
	}

	inst := newInstance(ctx, id, port, m.cfg.WorkerConcurrency, proc, m.scrapeClient, m.cfg.MetricsRefreshInterval)
	m.store.Add(inst)
	m.logger.V(logutil.DEFAULT).Info("Created instance", "instance", id, "port", port)
	return inst, nil
}

// teardownInstance stops the worker and releases its resources. Safe to
// call for already-removed instances.
func (m *Manager) teardownInstance(_ context.Context, inst *Instance) {
	inst.mu.Lock()
	inst.status = StatusStopping
	inst.mu.Unlock()

	inst.stopRefreshLoop()
	if inst.process != nil {
		if err := inst.process.Stop(); err != nil {
			m.logger.V(logutil.VERBOSE).Error(err, "Failed to stop worker process", "instance", inst.ID())
		}
	}
	m.ports.Release(inst.Port())
	m.store.Remove(inst.ID())

	inst.mu.Lock()
	inst.status = StatusStopped
	inst.mu.Unlock()
	m.logger.V(logutil.DEFAULT).Info("Removed instance", "instance", inst.ID())
}

// Acquire selects the best eligible instance for the request and assigns
// one unit of load to it. Selection and assignment happen under the same
// lock, so two concurrent requests can never over-commit an instance.
func (m *Manager) Acquire(ctx context.Context, request *types.Request, exclude map[string]bool) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	instances := m.store.List(RoutablePredicate)
	candidates := make([]types.Endpoint, 0, len(instances))
	for _, inst := range instances {
		if exclude[inst.ID()] {
			continue
		}
		candidates = append(candidates, inst)
	}

	picked, err := m.scheduler.Schedule(ctx, request, candidates)
	if err != nil {
		return nil, err
	}
	inst := picked.(*Instance)

	inst.mu.Lock()
	inst.activeTasks++
	inst.status = StatusBusy
	inst.lastUsed = time.Now()
	inst.mu.Unlock()
	return inst, nil
}

// Release returns the assigned load unit and records the outcome. It must
// be called exactly once per successful Acquire, including on timeout and
// cancellation; a worker that responds after its request timed out must
// not be double-counted.
func (m *Manager) Release(inst *Instance, outcome error, duration time.Duration) {
	inst.mu.Lock()
	if inst.activeTasks > 0 {
		inst.activeTasks--
	}
	inst.processed++
	if outcome != nil {
		inst.errors++
	}
	if inst.status == StatusBusy && inst.activeTasks == 0 {
		inst.status = StatusIdle
	}
	inst.mu.Unlock()
	inst.recordResponseTime(duration)
}

// Dispatch routes one recognition through the pool, retrying retryable
// failures against other instances up to the configured retry limit.
func (m *Manager) Dispatch(ctx context.Context, request *types.Request, input engine.Input) (engine.Result, error) {
	m.totalRequests.Add(1)

	exclude := make(map[string]bool)
	attempts := 1 + m.cfg.RetryLimit
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.RecordDispatchRetry()
		}

		inst, err := m.acquireWithBackpressure(ctx, request, exclude, attempt == 0)
		if err != nil {
			m.failedRequests.Add(1)
			return engine.Result{}, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
		start := time.Now()
		result, dispatchErr := m.worker.Recognize(attemptCtx, inst.Address(), input)
		cancel()
		m.Release(inst, dispatchErr, time.Since(start))

		if dispatchErr == nil {
			m.successfulRequests.Add(1)
			return result, nil
		}
		m.logger.V(logutil.VERBOSE).Info("Dispatch attempt failed",
			"request", request.RequestID, "instance", inst.ID(), "attempt", attempt, "error", dispatchErr.Error())
		lastErr = dispatchErr
		if !errutil.Retryable(dispatchErr) || ctx.Err() != nil {
			break
		}
		exclude[inst.ID()] = true
	}

	m.failedRequests.Add(1)
	return engine.Result{}, lastErr
}

// acquireWithBackpressure applies the configured backpressure policy when
// no instance is immediately available. Only the first dispatch attempt may
// queue; a retry that finds no candidate fails fast so the bounded-retry
// contract holds (excluded instances never come back within one request).
func (m *Manager) acquireWithBackpressure(ctx context.Context, request *types.Request, exclude map[string]bool, allowQueue bool) (*Instance, error) {
	inst, err := m.Acquire(ctx, request, exclude)
	if err == nil {
		return inst, nil
	}
	if errutil.CanonicalCode(err) != errutil.ServiceUnavailable {
		return nil, err
	}

	if !allowQueue || m.backpressure.Policy != config.BackpressureQueue {
		return nil, errutil.Error{Code: errutil.PoolResourceExhausted, Msg: "no available OCR instance"}
	}

	// Claim a queue slot; a full queue rejects immediately.
	select {
	case m.queueSlots <- struct{}{}:
	default:
		return nil, errutil.Error{Code: errutil.PoolResourceExhausted, Msg: "backpressure queue is full"}
	}
	m.queued.Add(1)
	metrics.RecordQueueDepth(int(m.queued.Load()))
	defer func() {
		<-m.queueSlots
		m.queued.Add(-1)
		metrics.RecordQueueDepth(int(m.queued.Load()))
	}()

	// The wait is bounded: a caller without its own deadline must still get
	// an answer within the dispatch timeout.
	deadline := time.NewTimer(m.cfg.RequestTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, errutil.Error{Code: errutil.PoolResourceExhausted, Msg: "request canceled while queued"}
		case <-deadline.C:
			return nil, errutil.Error{Code: errutil.PoolResourceExhausted, Msg: "timed out waiting for a free instance"}
		case <-ticker.C:
		}
		inst, err := m.Acquire(ctx, request, exclude)
		if err == nil {
			return inst, nil
		}
		if errutil.CanonicalCode(err) != errutil.ServiceUnavailable {
			return nil, err
		}
	}
}

// healthLoop periodically probes every instance, promotes starting ones,
// tears down failed ones and keeps the pool within bounds.
func (m *Manager) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		m.checkInstances(ctx)
		m.converge(ctx)
		m.publishInstanceCounts()
	}
}

// checkInstances probes all instances once.
func (m *Manager) checkInstances(ctx context.Context) {
	for _, inst := range m.store.List(AllInstancesPredicate) {
		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		healthy := inst.process.Alive() && m.worker.Healthy(probeCtx, inst.Address())
		cancel()

		inst.mu.Lock()
		status := inst.status
		if healthy {
			inst.probeFailures = 0
			if status == StatusStarting {
				inst.status = StatusReady
				m.logger.V(logutil.DEFAULT).Info("Instance became ready", "instance", inst.ID())
			}
			inst.mu.Unlock()
			continue
		}

		inst.probeFailures++
		failures := inst.probeFailures
		inst.mu.Unlock()

		threshold := m.cfg.FailureThreshold
		if status == StatusStarting {
			threshold *= startupGraceMultiplier
		}
		if failures >= threshold || !inst.process.Alive() {
			m.markFailed(ctx, inst)
		}
	}
}

// markFailed takes the instance out of routing and tears it down. The
// status flip happens under the manager lock so a concurrent Acquire cannot
// assign to the instance between its routable-list snapshot and the
// assignment. The replacement, if any, is spawned by converge.
func (m *Manager) markFailed(ctx context.Context, inst *Instance) {
	m.mu.Lock()
	inst.mu.Lock()
	if inst.status == StatusFailed || inst.status == StatusStopping || inst.status == StatusStopped {
		inst.mu.Unlock()
		m.mu.Unlock()
		return
	}
	inst.status = StatusFailed
	inst.mu.Unlock()
	m.mu.Unlock()

	m.logger.Error(nil, "Instance failed health checking", "instance", inst.ID())
	m.teardownInstance(ctx, inst)
}

// converge drives the instance count back inside the configured bounds.
func (m *Manager) converge(ctx context.Context) {
	minInstances, maxInstances := m.Bounds()
	for m.store.Count(AllInstancesPredicate) < minInstances {
		if _, err := m.createInstance(ctx); err != nil {
			m.logger.Error(err, "Failed to replace instance")
			return
		}
	}
	for m.store.Count(AllInstancesPredicate) > maxInstances {
		if !m.removeOneIdle(ctx) {
			return
		}
	}
}

// removeOneIdle tears down one instance that carries no load, preferring
// the least recently used. Never-used instances, including ones still
// starting, sort first. Returns false when every instance is loaded.
func (m *Manager) removeOneIdle(ctx context.Context) bool {
	m.mu.Lock()
	var victim *Instance
	for _, inst := range m.store.List(AllInstancesPredicate) {
		inst.mu.Lock()
		idle := inst.activeTasks == 0 &&
			inst.status != StatusStopping && inst.status != StatusStopped && inst.status != StatusFailed
		lastUsed := inst.lastUsed
		inst.mu.Unlock()
		if !idle {
			continue
		}
		if victim == nil || lastUsed.Before(victimLastUsed(victim)) {
			victim = inst
		}
	}
	if victim != nil {
		// Flip to Stopping under the manager lock so no concurrent Acquire
		// can assign to it while we tear it down.
		victim.mu.Lock()
		victim.status = StatusStopping
		victim.mu.Unlock()
	}
	m.mu.Unlock()

	if victim == nil {
		return false
	}
	m.teardownInstance(ctx, victim)
	return true
}

func victimLastUsed(inst *Instance) time.Time {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.lastUsed
}

// ScaleUp adds up to n instances, clamped to the maximum bound. Returns
// the number actually added.
func (m *Manager) ScaleUp(ctx context.Context, n int) int {
	added := 0
	for i := 0; i < n; i++ {
		if _, err := m.createInstance(ctx); err != nil {
			m.logger.V(logutil.VERBOSE).Info("Scale-up stopped early", "added", added, "reason", err.Error())
			break
		}
		added++
	}
	return added
}

// ScaleDown removes up to n idle instances, never going below the minimum
// bound. Returns the number actually removed.
func (m *Manager) ScaleDown(ctx context.Context, n int) int {
	minInstances, _ := m.Bounds()
	removed := 0
	for i := 0; i < n; i++ {
		if m.store.Count(AllInstancesPredicate)-1 < minInstances {
			break
		}
		if !m.removeOneIdle(ctx) {
			break
		}
		removed++
	}
	return removed
}

// RoutableEndpoints exposes the routable instances as scheduling endpoints,
// for saturation probing.
func (m *Manager) RoutableEndpoints() []types.Endpoint {
	instances := m.store.List(RoutablePredicate)
	out := make([]types.Endpoint, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst)
	}
	return out
}

// InstanceCount returns the current roster size.
func (m *Manager) InstanceCount() int {
	return m.store.Count(AllInstancesPredicate)
}

// Utilization returns the aggregate pool utilization in [0, 1]: the sum of
// assigned load over the sum of capacity across routable instances. A pool
// with no routable instances reports full utilization.
func (m *Manager) Utilization() float64 {
	instances := m.store.List(RoutablePredicate)
	if len(instances) == 0 {
		return 1
	}
	var active, capacity int
	for _, inst := range instances {
		active += inst.ActiveTasks()
		capacity += inst.Capacity()
	}
	if capacity == 0 {
		return 1
	}
	util := float64(active) / float64(capacity)
	if util > 1 {
		util = 1
	}
	return util
}

// Snapshots returns the per-instance views, ordered by id.
func (m *Manager) Snapshots() []Snapshot {
	instances := m.store.List(AllInstancesPredicate)
	out := make([]Snapshot, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst.SnapshotView())
	}
	return out
}

// StatusSummary aggregates the roster for the /health and /pool/status
// endpoints.
type StatusSummary struct {
	TotalInstances     int           `json:"total_instances"`
	ReadyInstances     int           `json:"ready_instances"`
	IdleInstances      int           `json:"idle_instances"`
	BusyInstances      int           `json:"busy_instances"`
	StartingInstances  int           `json:"starting_instances"`
	TotalRequests      uint64        `json:"total_requests"`
	SuccessfulRequests uint64        `json:"successful_requests"`
	FailedRequests     uint64        `json:"failed_requests"`
	AvgResponseTime    time.Duration `json:"average_response_time"`
	QueueLength        int           `json:"queue_length"`
	Utilization        float64       `json:"utilization"`
}

// Summary builds the aggregate view.
func (m *Manager) Summary() StatusSummary {
	s := StatusSummary{
		TotalRequests:      m.totalRequests.Load(),
		SuccessfulRequests: m.successfulRequests.Load(),
		FailedRequests:     m.failedRequests.Load(),
		QueueLength:        int(m.queued.Load()),
		Utilization:        m.Utilization(),
	}
	var rtSum time.Duration
	var rtCount int
	for _, inst := range m.store.List(AllInstancesPredicate) {
		s.TotalInstances++
		switch inst.Status() {
		case StatusReady:
			s.ReadyInstances++
		case StatusIdle:
			s.IdleInstances++
		case StatusBusy:
			s.BusyInstances++
		case StatusStarting:
			s.StartingInstances++
		}
		if avg := inst.AvgResponseTime(); avg > 0 {
			rtSum += avg
			rtCount++
		}
	}
	if rtCount > 0 {
		s.AvgResponseTime = rtSum / time.Duration(rtCount)
	}
	return s
}

// publishInstanceCounts pushes per-status roster sizes to Prometheus.
func (m *Manager) publishInstanceCounts() {
	counts := map[Status]int{
		StatusStarting: 0, StatusReady: 0, StatusIdle: 0,
		StatusBusy: 0, StatusFailed: 0,
	}
	for _, inst := range m.store.List(AllInstancesPredicate) {
		counts[inst.Status()]++
	}
	for status, count := range counts {
		metrics.RecordInstanceCount(string(status), count)
	}
}
