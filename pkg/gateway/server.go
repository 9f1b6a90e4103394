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

// Package gateway implements the HTTP entry point of the OCR pool service:
// recognition submission (single and batch), pool introspection and health.
// Every response is wrapped in a uniform envelope carrying the request id
// and server-side processing time.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reyisok/HonyGo-1.0/pkg/cache"
	"github.com/reyisok/HonyGo-1.0/pkg/config"
	"github.com/reyisok/HonyGo-1.0/pkg/engine"
	"github.com/reyisok/HonyGo-1.0/pkg/keyword"
	"github.com/reyisok/HonyGo-1.0/pkg/pool"
	"github.com/reyisok/HonyGo-1.0/pkg/scaling"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

// shutdownTimeout bounds the drain of in-flight requests on exit.
const shutdownTimeout = 15 * time.Second

// Dispatcher is the slice of the pool manager the gateway needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, request *types.Request, input engine.Input) (engine.Result, error)
	Summary() pool.StatusSummary
	Snapshots() []pool.Snapshot
}

// SaturationSignal reports whether the pool can take more work.
type SaturationSignal interface {
	IsSaturated(ctx context.Context) bool
}

// ScalingView exposes the scaling controller to the HTTP surface: its
// phase for status reporting and manual resizing for the operator API.
type ScalingView interface {
	State() scaling.State
	Scale(ctx context.Context, delta int) error
}

// Server is the gateway HTTP server.
type Server struct {
	cfg          config.GatewayConfig
	backpressure config.BackpressureConfig
	retryAfter   time.Duration

	dispatcher Dispatcher
	cache      *cache.ResultCache
	matcher    keyword.Matcher
	saturation SaturationSignal
	scaling    ScalingView
	registry   *prometheus.Registry
	logger     logr.Logger
}

// NewServer wires the gateway. cache may be nil when result caching is
// disabled.
func NewServer(
	cfg config.GatewayConfig,
	backpressure config.BackpressureConfig,
	dispatcher Dispatcher,
	resultCache *cache.ResultCache,
	matcher keyword.Matcher,
	saturation SaturationSignal,
	scalingView ScalingView,
	registry *prometheus.Registry,
	logger logr.Logger,
) *Server {
	return &Server{
		cfg:          cfg,
		backpressure: backpressure,
		retryAfter:   backpressure.RetryAfter,
		dispatcher: dispatcher,
		cache:      resultCache,
		matcher:    matcher,
		saturation: saturation,
		scaling:    scalingView,
		registry:   registry,
		logger:     logger.WithName("gateway"),
	}
}

// Run serves until the context is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /ocr", s.handleOCR)
	mux.HandleFunc("POST /ocr/batch", s.handleOCRBatch)
	mux.HandleFunc("GET /pool/status", s.handlePoolStatus)
	mux.HandleFunc("POST /pool/scale", s.handlePoolScale)
	mux.HandleFunc("GET /pool/metrics", s.handlePoolMetrics)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.V(logutil.DEFAULT).Info("Gateway listening", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
