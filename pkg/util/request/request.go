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

package request

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	// RequestIdHeaderKey carries the caller-supplied request identifier.
	RequestIdHeaderKey = "x-request-id"
	// RetryAfterHeaderKey hints when a rejected caller should retry.
	RetryAfterHeaderKey = "Retry-After"
)

// ExtractRequestID returns the request identifier from the incoming request
// headers, generating a fresh one when the caller did not supply any.
func ExtractRequestID(req *http.Request) string {
	if id := req.Header.Get(RequestIdHeaderKey); id != "" {
		return id
	}
	return uuid.NewString()
}
