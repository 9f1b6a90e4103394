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

// Package worker implements the single-instance OCR worker process. Each
// worker serves recognitions over HTTP, bounds its own concurrency, and
// exposes the load gauges the pool manager scrapes.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/reyisok/HonyGo-1.0/pkg/engine"
	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

// shutdownTimeout bounds the drain of in-flight recognitions on exit.
const shutdownTimeout = 10 * time.Second

// Options configures a worker server.
type Options struct {
	InstanceID  string
	Port        int
	Concurrency int
}

// Server is the worker's HTTP surface.
type Server struct {
	opts    Options
	engine  engine.Engine
	metrics *Metrics
	logger  logr.Logger

	// slots bounds concurrent recognitions.
	slots chan struct{}
}

// NewServer builds a worker server around the given engine.
func NewServer(opts Options, eng engine.Engine, logger logr.Logger) *Server {
	return &Server{
		opts:    opts,
		engine:  eng,
		metrics: NewMetrics(opts.InstanceID, opts.Concurrency),
		logger:  logger.WithName("worker").WithValues("instance", opts.InstanceID),
		slots:   make(chan struct{}, opts.Concurrency),
	}
}

// Run serves until the context is canceled, then drains in-flight work.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /recognize", s.handleRecognize)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.opts.Port),
		Handler: mux,
	}

	go s.metrics.SampleLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.V(logutil.DEFAULT).Info("Worker listening", "address", srv.Addr, "engine", s.engine.Name(), "concurrency", s.opts.Concurrency)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	var input engine.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("decode request: %v", err)})
		return
	}
	if len(input.Image) == 0 {
		s.writeError(w, errutil.Error{Code: errutil.BadRequest, Msg: "image data is empty"})
		return
	}

	// Wait for a concurrency slot; the waiting gauge covers the queued span.
	s.metrics.waitingTasks.Inc()
	select {
	case s.slots <- struct{}{}:
		s.metrics.waitingTasks.Dec()
	case <-r.Context().Done():
		s.metrics.waitingTasks.Dec()
		s.writeError(w, errutil.Error{Code: errutil.ServiceUnavailable, Msg: "request canceled while waiting for a slot"})
		return
	}
	s.metrics.activeTasks.Inc()
	defer func() {
		<-s.slots
		s.metrics.activeTasks.Dec()
	}()

	result, err := s.engine.Recognize(r.Context(), input)
	if err != nil {
		s.logger.V(logutil.VERBOSE).Info("Recognition failed", "error", err.Error())
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.V(logutil.VERBOSE).Error(err, "Failed to write response")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// writeError maps canonical error codes onto HTTP statuses and writes the
// JSON error body the pool client expects.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errutil.CanonicalCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errutil.BadRequest:
		status = http.StatusBadRequest
	case errutil.RecognitionFailed:
		status = http.StatusUnprocessableEntity
	case errutil.ServiceUnavailable:
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if typed, ok := err.(errutil.Error); ok {
		msg = typed.Msg
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": msg,
	})
}
