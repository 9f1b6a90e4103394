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

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/reyisok/HonyGo-1.0/pkg/cache"
	"github.com/reyisok/HonyGo-1.0/pkg/config"
	"github.com/reyisok/HonyGo-1.0/pkg/engine"
	"github.com/reyisok/HonyGo-1.0/pkg/keyword"
	"github.com/reyisok/HonyGo-1.0/pkg/metrics"
	"github.com/reyisok/HonyGo-1.0/pkg/pool"
	"github.com/reyisok/HonyGo-1.0/pkg/scaling"
	"github.com/reyisok/HonyGo-1.0/pkg/scheduling/types"
	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
	requtil "github.com/reyisok/HonyGo-1.0/pkg/util/request"
)

// ocrRequest is the wire shape of a single recognition. Image travels
// base64-encoded inside the JSON body.
type ocrRequest struct {
	Image         []byte            `json:"image"`
	Languages     []string          `json:"languages,omitempty"`
	Region        *engine.Region    `json:"region,omitempty"`
	Keywords      []string          `json:"keywords,omitempty"`
	MatchStrategy string            `json:"match_strategy,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ocrResponse is the data payload for a completed recognition.
type ocrResponse struct {
	Result  engine.Result   `json:"result"`
	Matches []keyword.Match `json:"matches,omitempty"`
	Cached  bool            `json:"cached"`
}

// batchRequest bounds a set of recognitions submitted together.
type batchRequest struct {
	Items []ocrRequest `json:"items"`
}

// batchItem is one entry of a batch response. Index refers back to the
// request's items array.
type batchItem struct {
	Index   int           `json:"index"`
	Success bool          `json:"success"`
	Data    *ocrResponse  `json:"data,omitempty"`
	Error   *errorPayload `json:"error,omitempty"`
}

type batchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

type batchResponse struct {
	Items   []batchItem  `json:"items"`
	Summary batchSummary `json:"summary"`
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := requtil.ExtractRequestID(r)

	var req ocrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(w, requestID, started, nil, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("decode request body: %v", err)})
		return
	}

	resp, err := s.processOne(r.Context(), requestID, req)
	s.finish(w, requestID, started, resp, err)
}

func (s *Server) handleOCRBatch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := requtil.ExtractRequestID(r)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(w, requestID, started, nil, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("decode request body: %v", err)})
		return
	}
	if len(req.Items) == 0 {
		s.finish(w, requestID, started, nil, errutil.Error{Code: errutil.BadRequest, Msg: "batch contains no items"})
		return
	}
	if len(req.Items) > s.cfg.MaxBatchSize {
		s.finish(w, requestID, started, nil, errutil.Error{
			Code: errutil.BadRequest,
			Msg:  fmt.Sprintf("batch size %d exceeds the maximum of %d", len(req.Items), s.cfg.MaxBatchSize),
		})
		return
	}

	// Items run concurrently; a failing item never affects its siblings.
	items := make([]batchItem, len(req.Items))
	var wg sync.WaitGroup
	for i, item := range req.Items {
		wg.Add(1)
		go func(index int, item ocrRequest) {
			defer wg.Done()
			itemID := fmt.Sprintf("%s-%d", requestID, index)
			resp, err := s.processOne(r.Context(), itemID, item)
			if err != nil {
				msg := err.Error()
				if typed, ok := err.(errutil.Error); ok {
					msg = typed.Msg
				}
				items[index] = batchItem{
					Index: index,
					Error: &errorPayload{Code: errutil.CanonicalCode(err), Message: msg},
				}
				return
			}
			items[index] = batchItem{Index: index, Success: true, Data: resp}
		}(i, item)
	}
	wg.Wait()

	summary := batchSummary{Total: len(items)}
	for _, item := range items {
		if item.Success {
			summary.Success++
		} else {
			summary.Failed++
		}
	}
	s.finish(w, requestID, started, &batchResponse{Items: items, Summary: summary}, nil)
}

// processOne runs the full pipeline for a single image: validation, cache
// consult, dispatch, cache fill and keyword matching.
func (s *Server) processOne(ctx context.Context, requestID string, req ocrRequest) (*ocrResponse, error) {
	if len(req.Image) == 0 {
		return nil, errutil.Error{Code: errutil.BadRequest, Msg: "image data is empty"}
	}
	strategy, err := keyword.ParseStrategy(req.MatchStrategy)
	if err != nil {
		return nil, err
	}
	if req.Region != nil && req.Region.IsEmpty() {
		return nil, errutil.Error{Code: errutil.BadRequest, Msg: "region has non-positive dimensions"}
	}

	key := cache.KeyFor(req.Image, req.Languages, req.Keywords, string(strategy))
	result, cached := s.lookupCache(key)
	if !cached {
		// Under the reject policy, overload is refused at the edge before a
		// dispatch attempt. The queue policy lets the pool absorb the burst.
		if s.backpressure.Policy == config.BackpressureReject &&
			s.saturation != nil && s.saturation.IsSaturated(ctx) {
			return nil, errutil.Error{Code: errutil.PoolResourceExhausted, Msg: "pool is saturated"}
		}

		result, err = s.dispatcher.Dispatch(ctx, &types.Request{
			RequestID: requestID,
			Languages: req.Languages,
			Keywords:  req.Keywords,
		}, engine.Input{
			ID:        requestID,
			Image:     req.Image,
			Languages: req.Languages,
			Region:    req.Region,
			Metadata:  req.Metadata,
		})
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Put(key, result)
		}
	}

	resp := &ocrResponse{Result: result, Cached: cached}
	if len(req.Keywords) > 0 {
		matches, err := s.matcher.Match(result, req.Keywords, strategy)
		if err != nil {
			return nil, err
		}
		resp.Matches = matches
	}
	return resp, nil
}

// lookupCache consults the result cache, recording the lookup outcome.
func (s *Server) lookupCache(key cache.Key) (engine.Result, bool) {
	if s.cache == nil {
		return engine.Result{}, false
	}
	result, ok := s.cache.Get(key)
	if ok {
		metrics.RecordCacheLookup("hit")
	} else {
		metrics.RecordCacheLookup("miss")
	}
	return result, ok
}

// finish writes the envelope and records the request metrics.
func (s *Server) finish(w http.ResponseWriter, requestID string, started time.Time, data any, err error) {
	if err != nil {
		code := errutil.CanonicalCode(err)
		metrics.RecordRequest(code, time.Since(started))
		s.logger.V(logutil.VERBOSE).Info("Request failed", "request", requestID, "code", code, "error", err.Error())
		writeError(w, requestID, started, err, s.retryAfter)
		return
	}
	metrics.RecordRequest("ok", time.Since(started))
	writeSuccess(w, requestID, started, data)
}

// healthData is the /health payload.
type healthData struct {
	Status string             `json:"status"`
	Pool   pool.StatusSummary `json:"pool"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := requtil.ExtractRequestID(r)

	summary := s.dispatcher.Summary()
	status := "ok"
	if summary.ReadyInstances+summary.IdleInstances+summary.BusyInstances == 0 {
		status = "degraded"
	}
	writeSuccess(w, requestID, started, healthData{Status: status, Pool: summary})
}

// poolStatusData is the /pool/status payload.
type poolStatusData struct {
	Summary      pool.StatusSummary `json:"summary"`
	ScalingState scaling.State      `json:"scaling_state"`
	Instances    []pool.Snapshot    `json:"instances"`
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := requtil.ExtractRequestID(r)

	writeSuccess(w, requestID, started, poolStatusData{
		Summary:      s.dispatcher.Summary(),
		ScalingState: s.scaling.State(),
		Instances:    s.dispatcher.Snapshots(),
	})
}

// scaleRequest is the wire shape of a manual resize. A positive delta adds
// instances, a negative one removes them.
type scaleRequest struct {
	Delta int `json:"delta"`
}

// scaleData is the /pool/scale payload: the pool summary after the resize.
type scaleData struct {
	Delta int                `json:"delta"`
	Pool  pool.StatusSummary `json:"pool"`
}

func (s *Server) handlePoolScale(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := requtil.ExtractRequestID(r)

	var req scaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finish(w, requestID, started, nil, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("decode request body: %v", err)})
		return
	}
	if req.Delta == 0 {
		s.finish(w, requestID, started, nil, errutil.Error{Code: errutil.BadRequest, Msg: "delta must be non-zero"})
		return
	}

	if err := s.scaling.Scale(r.Context(), req.Delta); err != nil {
		s.finish(w, requestID, started, nil, err)
		return
	}
	s.logger.V(logutil.DEFAULT).Info("Manual scale applied", "request", requestID, "delta", req.Delta)
	s.finish(w, requestID, started, scaleData{Delta: req.Delta, Pool: s.dispatcher.Summary()}, nil)
}

// poolMetricsData is the /pool/metrics payload: aggregate load and cache
// effectiveness in one place.
type poolMetricsData struct {
	Pool  pool.StatusSummary `json:"pool"`
	Cache *cache.Stats       `json:"cache,omitempty"`
}

func (s *Server) handlePoolMetrics(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := requtil.ExtractRequestID(r)

	data := poolMetricsData{Pool: s.dispatcher.Summary()}
	if s.cache != nil {
		stats := s.cache.Stats()
		data.Cache = &stats
	}
	writeSuccess(w, requestID, started, data)
}
