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

// Package config holds the pool service configuration, its defaults and
// validation. All numeric defaults are illustrative starting points and are
// meant to be tuned per deployment; none of them is a contractual constant.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
)

// Pool bounds and dispatch behavior.
type PoolConfig struct {
	MinInstances int `yaml:"minInstances"`
	MaxInstances int `yaml:"maxInstances"`
	// WorkerConcurrency is the number of recognitions a single worker may run
	// at once.
	WorkerConcurrency int `yaml:"workerConcurrency"`
	// RequestTimeout bounds a single dispatch to a worker.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// RetryLimit is the number of additional instances tried after a
	// retryable dispatch failure.
	RetryLimit int `yaml:"retryLimit"`
	// HealthCheckInterval drives the periodic health probe of all workers.
	HealthCheckInterval time.Duration `yaml:"healthCheckInterval"`
	// MetricsRefreshInterval drives the per-instance metrics scrape loop.
	MetricsRefreshInterval time.Duration `yaml:"metricsRefreshInterval"`
	// MetricsStalenessThreshold is the age above which scraped instance
	// metrics no longer count as fresh.
	MetricsStalenessThreshold time.Duration `yaml:"metricsStalenessThreshold"`
	// FailureThreshold is the number of consecutive failed health probes
	// after which an instance is marked failed.
	FailureThreshold int `yaml:"failureThreshold"`
	// WorkerCommand is the executable spawned per instance.
	WorkerCommand string `yaml:"workerCommand"`
	// GPU enables GPU recognition on spawned workers.
	GPU bool `yaml:"gpu"`
	// Languages is the default language set passed to workers.
	Languages []string `yaml:"languages"`
}

// ScalingConfig configures the dynamic scaling controller.
type ScalingConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Interval           time.Duration `yaml:"interval"`
	ScaleUpThreshold   float64       `yaml:"scaleUpThreshold"`
	ScaleDownThreshold float64       `yaml:"scaleDownThreshold"`
	ScaleUpCooldown    time.Duration `yaml:"scaleUpCooldown"`
	ScaleDownCooldown  time.Duration `yaml:"scaleDownCooldown"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int           `yaml:"maxEntries"`
	TTL        time.Duration `yaml:"ttl"`
}

// ScoringConfig carries the load score weights. The weights are applied to
// normalized metric values, so they are comparable with each other.
type ScoringConfig struct {
	CPUWeight          float64 `yaml:"cpuWeight"`
	MemoryWeight       float64 `yaml:"memoryWeight"`
	ActiveTasksWeight  float64 `yaml:"activeTasksWeight"`
	ResponseTimeWeight float64 `yaml:"responseTimeWeight"`
	// TaskUnitCost scales the active task count before weighting.
	TaskUnitCost float64 `yaml:"taskUnitCost"`
}

// BackpressureConfig selects what happens when no instance can take a
// request.
type BackpressureConfig struct {
	// Policy is either "reject" or "queue".
	Policy string `yaml:"policy"`
	// QueueDepth bounds the wait queue when Policy is "queue".
	QueueDepth int `yaml:"queueDepth"`
	// RetryAfter is the hint returned to rejected callers.
	RetryAfter time.Duration `yaml:"retryAfter"`
}

// PortsConfig configures the worker port range.
type PortsConfig struct {
	RangeStart    int   `yaml:"rangeStart"`
	RangeEnd      int   `yaml:"rangeEnd"`
	ReservedPorts []int `yaml:"reservedPorts"`
}

// GatewayConfig configures the HTTP surface.
type GatewayConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	MaxBatchSize int    `yaml:"maxBatchSize"`
}

const (
	BackpressureReject = "reject"
	BackpressureQueue  = "queue"
)

// Config is the root configuration consumed read-only by all components.
type Config struct {
	Pool         PoolConfig         `yaml:"pool"`
	Scaling      ScalingConfig      `yaml:"scaling"`
	Cache        CacheConfig        `yaml:"cache"`
	Scoring      ScoringConfig      `yaml:"scoring"`
	Backpressure BackpressureConfig `yaml:"backpressure"`
	Ports        PortsConfig        `yaml:"ports"`
	Gateway      GatewayConfig      `yaml:"gateway"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			MinInstances:              2,
			MaxInstances:              10,
			WorkerConcurrency:         1,
			RequestTimeout:            30 * time.Second,
			RetryLimit:                2,
			HealthCheckInterval:       5 * time.Second,
			MetricsRefreshInterval:    time.Second,
			MetricsStalenessThreshold: 5 * time.Second,
			FailureThreshold:          3,
			WorkerCommand:             "ocrworker",
			Languages:                 []string{"eng"},
		},
		Scaling: ScalingConfig{
			Enabled:            true,
			Interval:           10 * time.Second,
			ScaleUpThreshold:   0.8,
			ScaleDownThreshold: 0.3,
			ScaleUpCooldown:    30 * time.Second,
			ScaleDownCooldown:  60 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 1000,
			TTL:        time.Hour,
		},
		Scoring: ScoringConfig{
			CPUWeight:          0.3,
			MemoryWeight:       0.1,
			ActiveTasksWeight:  0.4,
			ResponseTimeWeight: 0.2,
			TaskUnitCost:       1.0,
		},
		Backpressure: BackpressureConfig{
			Policy:     BackpressureReject,
			QueueDepth: 100,
			RetryAfter: time.Second,
		},
		Ports: PortsConfig{
			RangeStart:    8901,
			RangeEnd:      8920,
			ReservedPorts: []int{8900},
		},
		Gateway: GatewayConfig{
			Host:         "127.0.0.1",
			Port:         8900,
			MaxBatchSize: 10,
		},
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errutil.Error{Code: errutil.BadConfiguration, Msg: fmt.Sprintf("read config file %q: %v", path, err)}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errutil.Error{Code: errutil.BadConfiguration, Msg: fmt.Sprintf("parse config file %q: %v", path, err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency of the configuration.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return errutil.Error{Code: errutil.BadConfiguration, Msg: fmt.Sprintf(format, args...)}
	}
	if c.Pool.MinInstances <= 0 {
		return bad("pool.minInstances must be greater than 0, got %d", c.Pool.MinInstances)
	}
	if c.Pool.MaxInstances < c.Pool.MinInstances {
		return bad("pool.maxInstances (%d) must not be lower than pool.minInstances (%d)",
			c.Pool.MaxInstances, c.Pool.MinInstances)
	}
	if c.Pool.WorkerConcurrency <= 0 {
		return bad("pool.workerConcurrency must be greater than 0, got %d", c.Pool.WorkerConcurrency)
	}
	if c.Pool.RequestTimeout <= 0 {
		return bad("pool.requestTimeout must be positive, got %s", c.Pool.RequestTimeout)
	}
	if c.Pool.RetryLimit < 0 {
		return bad("pool.retryLimit must not be negative, got %d", c.Pool.RetryLimit)
	}
	if c.Scaling.Enabled {
		if c.Scaling.Interval <= 0 {
			return bad("scaling.interval must be positive, got %s", c.Scaling.Interval)
		}
		if c.Scaling.ScaleUpThreshold <= 0 || c.Scaling.ScaleUpThreshold > 1 {
			return bad("scaling.scaleUpThreshold must be in (0, 1], got %g", c.Scaling.ScaleUpThreshold)
		}
		if c.Scaling.ScaleDownThreshold < 0 || c.Scaling.ScaleDownThreshold >= c.Scaling.ScaleUpThreshold {
			return bad("scaling.scaleDownThreshold must be in [0, scaleUpThreshold), got %g", c.Scaling.ScaleDownThreshold)
		}
	}
	if c.Cache.Enabled {
		if c.Cache.MaxEntries <= 0 {
			return bad("cache.maxEntries must be greater than 0, got %d", c.Cache.MaxEntries)
		}
		if c.Cache.TTL < 0 {
			return bad("cache.ttl must not be negative, got %s", c.Cache.TTL)
		}
	}
	switch c.Backpressure.Policy {
	case BackpressureReject:
	case BackpressureQueue:
		if c.Backpressure.QueueDepth <= 0 {
			return bad("backpressure.queueDepth must be greater than 0 with the queue policy, got %d", c.Backpressure.QueueDepth)
		}
	default:
		return bad("backpressure.policy must be %q or %q, got %q", BackpressureReject, BackpressureQueue, c.Backpressure.Policy)
	}
	if c.Ports.RangeStart <= 0 || c.Ports.RangeEnd > 65535 || c.Ports.RangeStart > c.Ports.RangeEnd {
		return bad("ports.rangeStart..rangeEnd must be a valid port range, got %d..%d", c.Ports.RangeStart, c.Ports.RangeEnd)
	}
	if free := c.Ports.RangeEnd - c.Ports.RangeStart + 1 - len(c.Ports.ReservedPorts); free < c.Pool.MaxInstances {
		return bad("port range %d..%d leaves %d usable ports, fewer than pool.maxInstances (%d)",
			c.Ports.RangeStart, c.Ports.RangeEnd, free, c.Pool.MaxInstances)
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return bad("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}
	if c.Gateway.MaxBatchSize <= 0 {
		return bad("gateway.maxBatchSize must be greater than 0, got %d", c.Gateway.MaxBatchSize)
	}
	return nil
}
