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

// Package runner composes the OCR pool service: configuration, pool
// manager, scaling controller, result cache, keyword matcher and the HTTP
// gateway, plus ordered shutdown of all of it.
package runner

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/reyisok/HonyGo-1.0/pkg/cache"
	"github.com/reyisok/HonyGo-1.0/pkg/config"
	"github.com/reyisok/HonyGo-1.0/pkg/gateway"
	"github.com/reyisok/HonyGo-1.0/pkg/keyword"
	"github.com/reyisok/HonyGo-1.0/pkg/metrics"
	"github.com/reyisok/HonyGo-1.0/pkg/pool"
	poolmetrics "github.com/reyisok/HonyGo-1.0/pkg/pool/metrics"
	"github.com/reyisok/HonyGo-1.0/pkg/ports"
	"github.com/reyisok/HonyGo-1.0/pkg/saturation"
	"github.com/reyisok/HonyGo-1.0/pkg/scaling"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/framework"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/plugins/filter"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/plugins/picker"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/plugins/scorer"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
	"github.com/reyisok/HonyGo-1.0/pkg/util/shutdown"
	"github.com/reyisok/HonyGo-1.0/version"
)

// scrapeTimeout bounds one metrics scrape of a worker.
const scrapeTimeout = 5 * time.Second

// similarityThreshold is the keyword similarity cut-off for fuzzy and
// similarity matching.
const similarityThreshold = 0.8

// shutdownDeadline bounds the whole shutdown sequence.
const shutdownDeadline = 30 * time.Second

var (
	configFile = pflag.String(
		"config-file",
		"",
		"Path to the YAML configuration file. Built-in defaults are used when empty.")
	logVerbosity = pflag.Int(
		"v",
		logutil.DEFAULT,
		"Number for the log level verbosity.")
	host = pflag.String(
		"host",
		"",
		"Gateway listen host, overrides the configuration file.")
	port = pflag.Int(
		"port",
		0,
		"Gateway listen port, overrides the configuration file.")
	workerCommand = pflag.String(
		"worker-command",
		"",
		"Path to the ocrworker executable, overrides the configuration file.")
)

// Runner builds and runs the pool service.
type Runner struct{}

// NewRunner returns a Runner with default options.
func NewRunner() *Runner {
	return &Runner{}
}

// Run blocks until the context is canceled or a component fails to start.
func (r *Runner) Run(ctx context.Context) error {
	pflag.Parse()

	logger := logutil.NewLogger(*logVerbosity)
	ctx = logutil.IntoContext(ctx, logger)
	setupLog := logger.WithName("setup")
	setupLog.Info("Starting OCR pool service", "version", version.BuildRef)

	cfg, reloadHook, err := r.loadConfig(ctx)
	if err != nil {
		setupLog.Error(err, "Invalid configuration")
		return err
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	portMgr := ports.NewManager(cfg.Ports.RangeStart, cfg.Ports.RangeEnd, cfg.Ports.ReservedPorts)
	spawner := &pool.ExecSpawner{
		Command:     cfg.Pool.WorkerCommand,
		Languages:   cfg.Pool.Languages,
		Concurrency: cfg.Pool.WorkerConcurrency,
		GPU:         cfg.Pool.GPU,
	}

	scheduler := framework.NewScheduler(
		picker.NewMaxScorePicker(),
		[]framework.Filter{filter.NewAvailable(cfg.Pool.MetricsStalenessThreshold)},
		[]*framework.WeightedScorer{
			framework.NewWeightedScorer(scorer.NewLoad(scorer.LoadConfig{
				CPUWeight:          cfg.Scoring.CPUWeight,
				MemoryWeight:       cfg.Scoring.MemoryWeight,
				ActiveTasksWeight:  cfg.Scoring.ActiveTasksWeight,
				ResponseTimeWeight: cfg.Scoring.ResponseTimeWeight,
				TaskUnitCost:       cfg.Scoring.TaskUnitCost,
			}), 1),
		},
	)

	manager := pool.NewManager(
		cfg.Pool,
		cfg.Backpressure,
		portMgr,
		spawner,
		poolmetrics.NewHTTPClient(scrapeTimeout),
		pool.NewHTTPWorkerClient(),
		scheduler,
		logger,
	)
	*reloadHook = func(updated *config.Config) {
		manager.UpdateBounds(updated.Pool.MinInstances, updated.Pool.MaxInstances)
	}

	detector := saturation.NewDetector(&saturation.Config{
		QueueDepthThreshold:       cfg.Pool.WorkerConcurrency,
		MetricsStalenessThreshold: cfg.Pool.MetricsStalenessThreshold,
	}, manager, logger)

	controller := scaling.NewController(cfg.Scaling, manager, logger)

	var resultCache *cache.ResultCache
	if cfg.Cache.Enabled {
		resultCache, err = cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		if err != nil {
			setupLog.Error(err, "Failed to build result cache")
			return err
		}
	}

	server := gateway.NewServer(
		cfg.Gateway,
		cfg.Backpressure,
		manager,
		resultCache,
		keyword.NewMatcher(similarityThreshold),
		detector,
		controller,
		registry,
		logger,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hooks := &shutdown.Hooks{}
	hooks.Register(shutdown.Hook{
		Name:     "pool-manager",
		Priority: 10,
		Run:      manager.Stop,
	})

	if err := manager.Start(runCtx); err != nil {
		setupLog.Error(err, "Failed to start the instance pool")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer shutdownCancel()
		_ = hooks.Execute(shutdownCtx, logger)
		return err
	}
	go controller.Run(runCtx)

	serveErr := server.Run(runCtx)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer shutdownCancel()
	if err := hooks.Execute(shutdownCtx, logger); err != nil {
		logger.Error(err, "Shutdown completed with errors")
	}
	return serveErr
}

// loadConfig resolves the effective configuration and, when a config file
// is given, starts watching it. The returned hook pointer lets the caller
// install the reload reaction after the pool manager exists.
func (r *Runner) loadConfig(ctx context.Context) (*config.Config, *func(*config.Config), error) {
	onReload := new(func(*config.Config))

	var cfg *config.Config
	if *configFile != "" {
		reloader, err := config.NewReloader(ctx, *configFile, func(updated *config.Config) {
			if fn := *onReload; fn != nil {
				fn(updated)
			}
		})
		if err != nil {
			return nil, nil, err
		}
		cfg = reloader.Get()
	} else {
		cfg = config.Default()
	}

	if *host != "" {
		cfg.Gateway.Host = *host
	}
	if *port > 0 {
		cfg.Gateway.Port = *port
	}
	if *workerCommand != "" {
		cfg.Pool.WorkerCommand = *workerCommand
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, onReload, nil
}
