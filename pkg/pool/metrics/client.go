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

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/multierr"
)

// Metric names exposed by the ocrworker binary on its /metrics endpoint.
const (
	ActiveTasksMetricName      = "ocrworker_active_tasks"
	WaitingQueueSizeMetricName = "ocrworker_waiting_tasks"
	MaxConcurrencyMetricName   = "ocrworker_max_concurrency"
	CPUUsageMetricName         = "ocrworker_cpu_usage_ratio"
	MemoryBytesMetricName      = "ocrworker_memory_bytes"
)

// Client scrapes the Prometheus text exposition of a worker instance.
type Client interface {
	FetchMetrics(ctx context.Context, address string, existing *MetricsState) (*MetricsState, error)
}

// HTTPClient is the production Client.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient builds a scrape client with the given per-scrape timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// FetchMetrics fetches and parses the worker's /metrics endpoint. The
// returned state is a fresh object; existing is only consulted to carry
// forward values for metrics that were missing from the scrape.
func (c *HTTPClient) FetchMetrics(ctx context.Context, address string, existing *MetricsState) (*MetricsState, error) {
	url := fmt.Sprintf("http://%s/metrics", address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics from %s: %w", address, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from %s: %v", address, resp.StatusCode)
	}

	parser := expfmt.TextParser{}
	metricFamilies, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, err
	}
	return promToState(metricFamilies, existing), nil
}

// promToState converts scraped metric families into a new MetricsState.
// Missing metrics keep the previous value so a partially failing scrape does
// not zero out the instance's load picture.
func promToState(families map[string]*dto.MetricFamily, existing *MetricsState) *MetricsState {
	updated := existing.Clone()
	if updated == nil {
		updated = NewState()
	}

	var errs error
	if v, err := gaugeValue(families, ActiveTasksMetricName); err == nil {
		updated.ActiveTasks = int(v)
	} else {
		errs = multierr.Append(errs, err)
	}
	if v, err := gaugeValue(families, WaitingQueueSizeMetricName); err == nil {
		updated.WaitingQueueSize = int(v)
	} else {
		errs = multierr.Append(errs, err)
	}
	if v, err := gaugeValue(families, MaxConcurrencyMetricName); err == nil {
		updated.MaxConcurrency = int(v)
	} else {
		errs = multierr.Append(errs, err)
	}
	if v, err := gaugeValue(families, CPUUsageMetricName); err == nil {
		updated.CPUUsage = v
	} else {
		errs = multierr.Append(errs, err)
	}
	if v, err := gaugeValue(families, MemoryBytesMetricName); err == nil {
		updated.MemoryBytes = v
	} else {
		errs = multierr.Append(errs, err)
	}
	_ = errs // individual metrics are optional; the scrape as a whole succeeded

	updated.UpdateTime = time.Now()
	return updated
}

func gaugeValue(families map[string]*dto.MetricFamily, name string) (float64, error) {
	family, ok := families[name]
	if !ok || len(family.GetMetric()) == 0 {
		return 0, fmt.Errorf("metric family %q not found", name)
	}
	m := family.GetMetric()[0]
	if g := m.GetGauge(); g != nil {
		return g.GetValue(), nil
	}
	return m.GetUntyped().GetValue(), nil
}
