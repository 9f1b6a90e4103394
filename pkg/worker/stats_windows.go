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

//go:build windows

package worker

import (
	"runtime"
	"time"
)

// processCPUTime is not available through a portable API on windows; the
// CPU gauge stays at zero there.
func processCPUTime() time.Duration {
	return 0
}

// processResidentBytes approximates resident memory with the Go runtime's
// view of memory obtained from the OS.
func processResidentBytes() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Sys
}
