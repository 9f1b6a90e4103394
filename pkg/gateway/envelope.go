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
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
	requtil "github.com/reyisok/HonyGo-1.0/pkg/util/request"
)

// envelope is the uniform response wrapper for every gateway endpoint.
type envelope struct {
	Success        bool          `json:"success"`
	Data           any           `json:"data,omitempty"`
	Error          *errorPayload `json:"error,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	RequestID      string        `json:"request_id"`
	ProcessingTime float64       `json:"processing_time"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpStatusFor maps canonical error codes onto HTTP statuses.
func httpStatusFor(code string) int {
	switch code {
	case errutil.BadRequest:
		return http.StatusBadRequest
	case errutil.PoolResourceExhausted, errutil.ServiceUnavailable:
		return http.StatusServiceUnavailable
	case errutil.DispatchTimeout:
		return http.StatusGatewayTimeout
	case errutil.RecognitionFailed:
		return http.StatusUnprocessableEntity
	case errutil.ScalingConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeSuccess wraps data in a success envelope.
func writeSuccess(w http.ResponseWriter, requestID string, started time.Time, data any) {
	writeEnvelope(w, http.StatusOK, envelope{
		Success:        true,
		Data:           data,
		Timestamp:      time.Now().UTC(),
		RequestID:      requestID,
		ProcessingTime: float64(time.Since(started).Microseconds()) / 1000,
	})
}

// writeError wraps err in a failure envelope, attaching a Retry-After hint
// to 503 responses when one is configured.
func writeError(w http.ResponseWriter, requestID string, started time.Time, err error, retryAfter time.Duration) {
	code := errutil.CanonicalCode(err)
	msg := err.Error()
	if typed, ok := err.(errutil.Error); ok {
		msg = typed.Msg
	}

	status := httpStatusFor(code)
	if status == http.StatusServiceUnavailable && retryAfter > 0 {
		w.Header().Set(requtil.RetryAfterHeaderKey, strconv.Itoa(int(retryAfter.Seconds())))
	}
	writeEnvelope(w, status, envelope{
		Success:        false,
		Error:          &errorPayload{Code: code, Message: msg},
		Timestamp:      time.Now().UTC(),
		RequestID:      requestID,
		ProcessingTime: float64(time.Since(started).Microseconds()) / 1000,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
