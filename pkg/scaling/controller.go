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

// Package scaling implements the dynamic scaling controller. It watches
// aggregate pool utilization and grows or shrinks the instance pool within
// its configured bounds, with per-direction cooldowns to damp oscillation.
package scaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/reyisok/HonyGo-1.0/pkg/config"
	"github.com/reyisok/HonyGo-1.0/pkg/metrics"
	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

// State is the controller's current phase, exposed for the status endpoint.
type State string

const (
	StateIdle        State = "idle"
	StateMonitoring  State = "monitoring"
	StateEvaluating  State = "evaluating"
	StateScalingUp   State = "scaling_up"
	StateScalingDown State = "scaling_down"
)

// Pool is the slice of the pool manager the controller drives.
type Pool interface {
	Utilization() float64
	InstanceCount() int
	Bounds() (minInstances, maxInstances int)
	ScaleUp(ctx context.Context, n int) int
	ScaleDown(ctx context.Context, n int) int
}

// Controller evaluates pool utilization on a fixed interval and issues
// scale operations. At most one scale operation runs at a time; a manual
// request that races an automatic one fails with a ScalingConflict rather
// than queueing behind it.
type Controller struct {
	cfg    config.ScalingConfig
	pool   Pool
	logger logr.Logger

	// scaleMu is the single-flight guard for scale operations.
	scaleMu sync.Mutex

	mu            sync.Mutex
	state         State
	lastScaleUp   time.Time
	lastScaleDown time.Time

	now func() time.Time
}

// NewController wires the controller. It does nothing until Run is called.
func NewController(cfg config.ScalingConfig, pool Pool, logger logr.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		pool:   pool,
		logger: logger.WithName("scaling-controller"),
		state:  StateIdle,
		now:    time.Now,
	}
}

// State returns the controller's current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run drives the evaluation loop until the context is canceled.
func (c *Controller) Run(ctx context.Context) {
	if !c.cfg.Enabled {
		c.logger.V(logutil.DEFAULT).Info("Dynamic scaling disabled")
		return
	}
	c.logger.V(logutil.DEFAULT).Info("Starting scaling controller",
		"interval", c.cfg.Interval, "scaleUpThreshold", c.cfg.ScaleUpThreshold,
		"scaleDownThreshold", c.cfg.ScaleDownThreshold)
	c.setState(StateMonitoring)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.setState(StateIdle)
			return
		case <-ticker.C:
		}
		c.evaluate(ctx)
	}
}

// evaluate takes one utilization sample and scales if a threshold is
// crossed and the direction is out of cooldown.
func (c *Controller) evaluate(ctx context.Context) {
	c.setState(StateEvaluating)
	defer c.setState(StateMonitoring)

	util := c.pool.Utilization()
	count := c.pool.InstanceCount()
	minInstances, maxInstances := c.pool.Bounds()
	now := c.now()

	c.mu.Lock()
	lastUp, lastDown := c.lastScaleUp, c.lastScaleDown
	c.mu.Unlock()

	switch {
	case util >= c.cfg.ScaleUpThreshold && count < maxInstances:
		if now.Sub(lastUp) < c.cfg.ScaleUpCooldown {
			c.logger.V(logutil.DEBUG).Info("Scale-up suppressed by cooldown",
				"utilization", util, "sinceLast", now.Sub(lastUp))
			return
		}
		if err := c.scale(ctx, 1); err != nil {
			c.logger.V(logutil.VERBOSE).Info("Automatic scale-up skipped", "reason", err.Error())
		}
	case util <= c.cfg.ScaleDownThreshold && count > minInstances:
		if now.Sub(lastDown) < c.cfg.ScaleDownCooldown {
			c.logger.V(logutil.DEBUG).Info("Scale-down suppressed by cooldown",
				"utilization", util, "sinceLast", now.Sub(lastDown))
			return
		}
		if err := c.scale(ctx, -1); err != nil {
			c.logger.V(logutil.VERBOSE).Info("Automatic scale-down skipped", "reason", err.Error())
		}
	}
}

// Scale performs a manual scale by delta instances (positive grows the
// pool). It fails with a ScalingConflict if another scale operation is in
// flight and never moves the pool outside its bounds.
func (c *Controller) Scale(ctx context.Context, delta int) error {
	if delta == 0 {
		return nil
	}
	return c.scale(ctx, delta)
}

// scale is the single-flight scale operation shared by the automatic loop
// and manual requests.
func (c *Controller) scale(ctx context.Context, delta int) error {
	if !c.scaleMu.TryLock() {
		return errutil.Error{Code: errutil.ScalingConflict, Msg: "another scaling operation is in progress"}
	}
	defer c.scaleMu.Unlock()

	if delta > 0 {
		c.setState(StateScalingUp)
		added := c.pool.ScaleUp(ctx, delta)
		if added == 0 {
			return errutil.Error{Code: errutil.PoolResourceExhausted, Msg: "pool already at maximum size"}
		}
		c.mu.Lock()
		c.lastScaleUp = c.now()
		c.mu.Unlock()
		metrics.RecordScalingEvent("up")
		c.logger.V(logutil.DEFAULT).Info("Scaled pool up",
			"added", added, "instances", c.pool.InstanceCount())
		return nil
	}

	c.setState(StateScalingDown)
	removed := c.pool.ScaleDown(ctx, -delta)
	if removed == 0 {
		return errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("cannot remove %d instance(s) without violating the minimum pool size", -delta)}
	}
	c.mu.Lock()
	c.lastScaleDown = c.now()
	c.mu.Unlock()
	metrics.RecordScalingEvent("down")
	c.logger.V(logutil.DEFAULT).Info("Scaled pool down",
		"removed", removed, "instances", c.pool.InstanceCount())
	return nil
}
