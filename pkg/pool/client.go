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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/reyisok/HonyGo-1.0/pkg/engine"
	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
)

// WorkerClient performs a recognition against one worker instance.
type WorkerClient interface {
	Recognize(ctx context.Context, address string, input engine.Input) (engine.Result, error)
	// Healthy probes the worker's health endpoint.
	Healthy(ctx context.Context, address string) bool
}

// HTTPWorkerClient is the production WorkerClient. Timeouts come from the
// per-call context so the dispatch timeout is owned by the manager.
type HTTPWorkerClient struct {
	client *http.Client
}

// NewHTTPWorkerClient builds the client.
func NewHTTPWorkerClient() *HTTPWorkerClient {
	return &HTTPWorkerClient{client: &http.Client{}}
}

// workerErrorBody mirrors the worker's JSON error shape.
type workerErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Recognize POSTs the input to the worker and decodes the result.
func (c *HTTPWorkerClient) Recognize(ctx context.Context, address string, input engine.Input) (engine.Result, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return engine.Result{}, errutil.Error{Code: errutil.Internal, Msg: fmt.Sprintf("encode worker request: %v", err)}
	}
	url := fmt.Sprintf("http://%s/recognize", address)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return engine.Result{}, errutil.Error{Code: errutil.Internal, Msg: fmt.Sprintf("build worker request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return engine.Result{}, errutil.Error{Code: errutil.DispatchTimeout, Msg: fmt.Sprintf("dispatch to %s timed out", address)}
		}
		return engine.Result{}, errutil.Error{Code: errutil.ServiceUnavailable, Msg: fmt.Sprintf("dispatch to %s failed: %v", address, err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		var wireErr workerErrorBody
		if json.Unmarshal(data, &wireErr) == nil && wireErr.Code != "" {
			return engine.Result{}, errutil.Error{Code: wireErr.Code, Msg: wireErr.Message}
		}
		switch resp.StatusCode {
		case http.StatusServiceUnavailable, http.StatusTooManyRequests:
			return engine.Result{}, errutil.Error{Code: errutil.ServiceUnavailable, Msg: fmt.Sprintf("worker %s is at capacity", address)}
		case http.StatusUnprocessableEntity:
			return engine.Result{}, errutil.Error{Code: errutil.RecognitionFailed, Msg: fmt.Sprintf("worker %s produced no usable result", address)}
		default:
			return engine.Result{}, errutil.Error{Code: errutil.Internal, Msg: fmt.Sprintf("worker %s returned status %d", address, resp.StatusCode)}
		}
	}

	var result engine.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return engine.Result{}, errutil.Error{Code: errutil.Internal, Msg: fmt.Sprintf("decode worker response: %v", err)}
	}
	return result, nil
}

// Healthy probes GET /healthz.
func (c *HTTPWorkerClient) Healthy(ctx context.Context, address string) bool {
	url := fmt.Sprintf("http://%s/healthz", address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}
