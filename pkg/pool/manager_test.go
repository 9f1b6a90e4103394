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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reyisok/HonyGo-1.0/pkg/config"
	"github.com/reyisok/HonyGo-1.0/pkg/engine"
	poolmetrics "github.com/reyisok/HonyGo-1.0/pkg/pool/metrics"
	"github.com/reyisok/HonyGo-1.0/pkg/ports"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/framework"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/plugins/filter"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/plugins/picker"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/plugins/scorer"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

// --- fakes ---

type fakeProcess struct {
	mu    sync.Mutex
	alive bool
}

func (p *fakeProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
	return nil
}

func (p *fakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

type fakeSpawner struct {
	mu      sync.Mutex
	spawned []string
}

func (s *fakeSpawner) Spawn(_ context.Context, instanceID string, _ int) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawned = append(s.spawned, instanceID)
	return &fakeProcess{alive: true}, nil
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawned)
}

type fakeScrapeClient struct{}

func (fakeScrapeClient) FetchMetrics(_ context.Context, _ string, existing *poolmetrics.MetricsState) (*poolmetrics.MetricsState, error) {
	state := existing.Clone()
	if state == nil {
		state = poolmetrics.NewState()
	}
	state.UpdateTime = time.Now()
	return state, nil
}

// fakeWorker scripts per-address recognition outcomes. Unscripted addresses
// succeed.
type fakeWorker struct {
	mu        sync.Mutex
	failures  map[string]error
	calls     []string
	unhealthy map[string]bool
}

func (w *fakeWorker) Recognize(_ context.Context, address string, _ engine.Input) (engine.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, address)
	if err, ok := w.failures[address]; ok {
		return engine.Result{}, err
	}
	return engine.Result{PlainText: "recognized by " + address}, nil
}

func (w *fakeWorker) Healthy(_ context.Context, address string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.unhealthy[address]
}

func (w *fakeWorker) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

// --- helpers ---

func testPoolConfig() config.PoolConfig {
	cfg := config.Default().Pool
	cfg.MinInstances = 2
	cfg.MaxInstances = 4
	cfg.WorkerConcurrency = 2
	cfg.RequestTimeout = time.Second
	cfg.RetryLimit = 2
	// Keep the background loops quiet during tests.
	cfg.HealthCheckInterval = time.Hour
	cfg.MetricsRefreshInterval = time.Hour
	return cfg
}

func newTestManager(t *testing.T, cfg config.PoolConfig, backpressure config.BackpressureConfig, worker *fakeWorker) (*Manager, *fakeSpawner) {
	t.Helper()
	spawner := &fakeSpawner{}
	scheduler := framework.NewScheduler(
		picker.NewMaxScorePicker(),
		[]framework.Filter{filter.NewAvailable(0)},
		[]*framework.WeightedScorer{
			framework.NewWeightedScorer(scorer.NewLoad(scorer.LoadConfig{ActiveTasksWeight: 1}), 1),
		},
	)
	m := NewManager(
		cfg,
		backpressure,
		ports.NewManager(18901, 18940, nil),
		spawner,
		fakeScrapeClient{},
		worker,
		scheduler,
		logutil.NewTestLogger(),
	)
	return m, spawner
}

// startReady brings the pool up and promotes every instance to Ready, as
// the health loop would after successful probes.
func startReady(t *testing.T, m *Manager) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	for _, inst := range m.store.List(AllInstancesPredicate) {
		inst.mu.Lock()
		inst.status = StatusReady
		inst.mu.Unlock()
	}
	t.Cleanup(func() {
		_ = m.Stop(context.Background())
		cancel()
	})
	return cancel
}

func request(id string) *types.Request {
	return &types.Request{RequestID: id}
}

// --- tests ---

func TestStartSpawnsMinimumInstances(t *testing.T) {
	m, spawner := newTestManager(t, testPoolConfig(), config.Default().Backpressure, &fakeWorker{})
	startReady(t, m)

	assert.Equal(t, 2, m.InstanceCount())
	assert.Equal(t, 2, spawner.count())
}

func TestAcquireReleaseAccounting(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinInstances = 1
	m, _ := newTestManager(t, cfg, config.Default().Backpressure, &fakeWorker{})
	startReady(t, m)

	inst, err := m.Acquire(context.Background(), request("r1"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, inst.ActiveTasks())
	assert.Equal(t, StatusBusy, inst.Status())

	m.Release(inst, nil, 120*time.Millisecond)
	assert.Equal(t, 0, inst.ActiveTasks())
	assert.Equal(t, StatusIdle, inst.Status())
	assert.Equal(t, 120*time.Millisecond, inst.AvgResponseTime())
}

func TestAcquireSerializesUnderCapacity(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinInstances = 1
	cfg.WorkerConcurrency = 1
	m, _ := newTestManager(t, cfg, config.Default().Backpressure, &fakeWorker{})
	startReady(t, m)

	_, err := m.Acquire(context.Background(), request("r1"), nil)
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), request("r2"), nil)
	require.Error(t, err, "a full instance must not be over-committed")
	assert.Equal(t, errutil.ServiceUnavailable, errutil.CanonicalCode(err))
}

func TestDispatchSuccess(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinInstances = 1
	worker := &fakeWorker{}
	m, _ := newTestManager(t, cfg, config.Default().Backpressure, worker)
	startReady(t, m)

	result, err := m.Dispatch(context.Background(), request("r1"), engine.Input{Image: []byte("png")})
	require.NoError(t, err)
	assert.Contains(t, result.PlainText, "recognized")

	summary := m.Summary()
	assert.Equal(t, uint64(1), summary.TotalRequests)
	assert.Equal(t, uint64(1), summary.SuccessfulRequests)
	assert.Equal(t, uint64(0), summary.FailedRequests)

	inst := m.store.List(AllInstancesPredicate)[0]
	assert.Equal(t, 0, inst.ActiveTasks(), "load must be released after dispatch")
}

func TestDispatchRetriesAgainstDifferentInstance(t *testing.T) {
	worker := &fakeWorker{failures: map[string]error{}}
	m, _ := newTestManager(t, testPoolConfig(), config.Default().Backpressure, worker)
	startReady(t, m)

	// Fail whichever instance the scheduler picks first.
	instances := m.store.List(AllInstancesPredicate)
	worker.failures[instances[0].Address()] = errutil.Error{Code: errutil.ServiceUnavailable, Msg: "connection refused"}

	result, err := m.Dispatch(context.Background(), request("r1"), engine.Input{Image: []byte("png")})
	require.NoError(t, err)
	assert.Contains(t, result.PlainText, instances[1].Address())

	require.Equal(t, 2, worker.callCount())
	assert.NotEqual(t, worker.calls[0], worker.calls[1], "the retry must go to a different instance")
}

func TestDispatchDoesNotRetryDeterministicFailures(t *testing.T) {
	worker := &fakeWorker{failures: map[string]error{}}
	m, _ := newTestManager(t, testPoolConfig(), config.Default().Backpressure, worker)
	startReady(t, m)

	for _, inst := range m.store.List(AllInstancesPredicate) {
		worker.failures[inst.Address()] = errutil.Error{Code: errutil.RecognitionFailed, Msg: "no text"}
	}

	_, err := m.Dispatch(context.Background(), request("r1"), engine.Input{Image: []byte("png")})
	require.Error(t, err)
	assert.Equal(t, errutil.RecognitionFailed, errutil.CanonicalCode(err))
	assert.Equal(t, 1, worker.callCount())
	assert.Equal(t, uint64(1), m.Summary().FailedRequests)
}

func TestDispatchExhaustsCandidates(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinInstances = 1
	worker := &fakeWorker{failures: map[string]error{}}
	m, _ := newTestManager(t, cfg, config.Default().Backpressure, worker)
	startReady(t, m)

	inst := m.store.List(AllInstancesPredicate)[0]
	worker.failures[inst.Address()] = errutil.Error{Code: errutil.DispatchTimeout, Msg: "timed out"}

	_, err := m.Dispatch(context.Background(), request("r1"), engine.Input{Image: []byte("png")})
	require.Error(t, err)
	// The only instance failed and is excluded from the retry, so the
	// second attempt finds no candidate.
	assert.Equal(t, errutil.PoolResourceExhausted, errutil.CanonicalCode(err))
	assert.Equal(t, 1, worker.callCount())
}

func TestDispatchQueuePolicyRejectsWhenFull(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinInstances = 1
	cfg.WorkerConcurrency = 1
	backpressure := config.BackpressureConfig{
		Policy:     config.BackpressureQueue,
		QueueDepth: 1,
		RetryAfter: time.Second,
	}
	m, _ := newTestManager(t, cfg, backpressure, &fakeWorker{})
	startReady(t, m)

	// Occupy the only slot so new requests queue.
	_, err := m.Acquire(context.Background(), request("blocker"), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := m.Dispatch(ctx, request("queued"), engine.Input{Image: []byte("png")})
		done <- err
	}()

	// While the first request waits in the queue, a second one finds the
	// queue full and is rejected immediately.
	time.Sleep(20 * time.Millisecond)
	_, err = m.acquireWithBackpressure(context.Background(), request("rejected"), nil, true)
	require.Error(t, err)
	assert.Equal(t, errutil.PoolResourceExhausted, errutil.CanonicalCode(err))

	// The queued request gives up when its context expires.
	err = <-done
	require.Error(t, err)
	assert.Equal(t, errutil.PoolResourceExhausted, errutil.CanonicalCode(err))
}

func TestDispatchQueuePolicyFailsFastOnRetry(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinInstances = 1
	backpressure := config.BackpressureConfig{
		Policy:     config.BackpressureQueue,
		QueueDepth: 10,
		RetryAfter: time.Second,
	}
	worker := &fakeWorker{failures: map[string]error{}}
	m, _ := newTestManager(t, cfg, backpressure, worker)
	startReady(t, m)

	inst := m.store.List(AllInstancesPredicate)[0]
	worker.failures[inst.Address()] = errutil.Error{Code: errutil.DispatchTimeout, Msg: "timed out"}

	// After the only instance fails and is excluded, the retry must not
	// queue for capacity that can never appear within this request.
	start := time.Now()
	_, err := m.Dispatch(context.Background(), request("r1"), engine.Input{Image: []byte("png")})
	require.Error(t, err)
	assert.Equal(t, errutil.PoolResourceExhausted, errutil.CanonicalCode(err))
	assert.Equal(t, 1, worker.callCount())
	assert.Less(t, time.Since(start), cfg.RequestTimeout, "the failure surfaces without a queue wait")
}

func TestQueueWaitIsBounded(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinInstances = 1
	cfg.WorkerConcurrency = 1
	cfg.RequestTimeout = 200 * time.Millisecond
	backpressure := config.BackpressureConfig{
		Policy:     config.BackpressureQueue,
		QueueDepth: 10,
		RetryAfter: time.Second,
	}
	m, _ := newTestManager(t, cfg, backpressure, &fakeWorker{})
	startReady(t, m)

	// Occupy the only slot and never release it; a queued caller without
	// its own deadline must still get an answer.
	_, err := m.Acquire(context.Background(), request("blocker"), nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = m.acquireWithBackpressure(context.Background(), request("queued"), nil, true)
	require.Error(t, err)
	assert.Equal(t, errutil.PoolResourceExhausted, errutil.CanonicalCode(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHealthLoopReplacesDeadInstance(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinInstances = 1
	worker := &fakeWorker{unhealthy: map[string]bool{}}
	m, spawner := newTestManager(t, cfg, config.Default().Backpressure, worker)
	startReady(t, m)

	victim := m.store.List(AllInstancesPredicate)[0]
	require.NoError(t, victim.process.Stop())

	ctx := context.Background()
	m.checkInstances(ctx)
	m.converge(ctx)

	assert.Equal(t, 1, m.InstanceCount(), "pool converges back to the minimum")
	assert.Nil(t, m.store.Get(victim.ID()), "the dead instance is removed")
	assert.Equal(t, 2, spawner.count(), "a replacement is spawned")
}

func TestFailedInstanceNeverReceivesRequests(t *testing.T) {
	worker := &fakeWorker{unhealthy: map[string]bool{}}
	m, _ := newTestManager(t, testPoolConfig(), config.Default().Backpressure, worker)
	startReady(t, m)

	instances := m.store.List(AllInstancesPredicate)
	failed := instances[0]
	failed.mu.Lock()
	failed.status = StatusFailed
	failed.mu.Unlock()

	for i := 0; i < 4; i++ {
		inst, err := m.Acquire(context.Background(), request("r"), nil)
		if err != nil {
			break
		}
		assert.NotEqual(t, failed.ID(), inst.ID())
	}
}

func TestMarkFailedExcludesInstanceFromRouting(t *testing.T) {
	m, _ := newTestManager(t, testPoolConfig(), config.Default().Backpressure, &fakeWorker{})
	startReady(t, m)

	instances := m.store.List(AllInstancesPredicate)
	victim := instances[0]

	// Acquire concurrently with the failure so the status flip and the
	// routable-list snapshot contend for the manager lock.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if inst, err := m.Acquire(context.Background(), request("r"), nil); err == nil {
				m.Release(inst, nil, time.Millisecond)
			}
		}
	}()
	m.markFailed(context.Background(), victim)
	<-done

	assert.Nil(t, m.store.Get(victim.ID()), "a failed instance leaves the roster")
	assert.Equal(t, StatusStopped, victim.Status())

	// All subsequent selections go to the survivor.
	for i := 0; i < 3; i++ {
		inst, err := m.Acquire(context.Background(), request("r"), nil)
		require.NoError(t, err)
		assert.NotEqual(t, victim.ID(), inst.ID())
		m.Release(inst, nil, time.Millisecond)
	}
}

func TestScaleUpRespectsMaximum(t *testing.T) {
	m, _ := newTestManager(t, testPoolConfig(), config.Default().Backpressure, &fakeWorker{})
	startReady(t, m)

	added := m.ScaleUp(context.Background(), 10)
	assert.Equal(t, 2, added, "min=2 max=4 leaves room for two more")
	assert.Equal(t, 4, m.InstanceCount())
}

func TestScaleDownRespectsMinimumAndSkipsBusy(t *testing.T) {
	m, _ := newTestManager(t, testPoolConfig(), config.Default().Backpressure, &fakeWorker{})
	startReady(t, m)
	m.ScaleUp(context.Background(), 2)
	require.Equal(t, 4, m.InstanceCount())

	// Pin one instance with active work; it must survive the scale-down.
	busy, err := m.Acquire(context.Background(), request("pin"), nil)
	require.NoError(t, err)

	removed := m.ScaleDown(context.Background(), 10)
	assert.Equal(t, 2, removed, "scale-down stops at the minimum")
	assert.Equal(t, 2, m.InstanceCount())
	assert.NotNil(t, m.store.Get(busy.ID()), "the busy instance survives")
}

func TestScaleDownRemovesStartingInstances(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinInstances = 1
	m, _ := newTestManager(t, cfg, config.Default().Backpressure, &fakeWorker{})
	startReady(t, m)

	// The scaled-up instances are still Starting; they carry no load and
	// must be eligible for removal.
	m.ScaleUp(context.Background(), 2)
	require.Equal(t, 3, m.InstanceCount())

	removed := m.ScaleDown(context.Background(), 10)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, m.InstanceCount())
}

func TestUtilization(t *testing.T) {
	m, _ := newTestManager(t, testPoolConfig(), config.Default().Backpressure, &fakeWorker{})
	startReady(t, m)

	// 2 instances with capacity 2 each; occupy 2 of 4 slots.
	_, err := m.Acquire(context.Background(), request("r1"), nil)
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), request("r2"), nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, m.Utilization(), 1e-9)
}

func TestUtilizationWithNoRoutableInstances(t *testing.T) {
	m, _ := newTestManager(t, testPoolConfig(), config.Default().Backpressure, &fakeWorker{})
	assert.InDelta(t, 1.0, m.Utilization(), 1e-9, "an empty pool reports full utilization")
}

func TestUpdateBoundsRejectsInvalidValues(t *testing.T) {
	m, _ := newTestManager(t, testPoolConfig(), config.Default().Backpressure, &fakeWorker{})

	m.UpdateBounds(3, 8)
	minInstances, maxInstances := m.Bounds()
	assert.Equal(t, 3, minInstances)
	assert.Equal(t, 8, maxInstances)

	m.UpdateBounds(0, 8)
	minInstances, maxInstances = m.Bounds()
	assert.Equal(t, 3, minInstances, "invalid bounds are ignored")
	assert.Equal(t, 8, maxInstances)
}

func TestSummaryCountsStatuses(t *testing.T) {
	m, _ := newTestManager(t, testPoolConfig(), config.Default().Backpressure, &fakeWorker{})
	startReady(t, m)

	_, err := m.Acquire(context.Background(), request("r1"), nil)
	require.NoError(t, err)

	summary := m.Summary()
	assert.Equal(t, 2, summary.TotalInstances)
	assert.Equal(t, 1, summary.ReadyInstances)
	assert.Equal(t, 1, summary.BusyInstances)
	assert.Equal(t, 0, summary.IdleInstances)
}
