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

// Package shutdown runs registered shutdown hooks in priority order.
package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

// Hook is a named shutdown callback. Hooks with a lower priority run first.
type Hook struct {
	Name     string
	Priority int
	Run      func(ctx context.Context) error
}

// Hooks is an ordered collection of shutdown hooks. The zero value is ready
// to use.
type Hooks struct {
	mu    sync.Mutex
	hooks []Hook
	done  bool
}

// Register adds a hook. Registration after Execute has run is ignored.
func (h *Hooks) Register(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.hooks = append(h.hooks, hook)
}

// Execute runs all registered hooks lowest-priority-first. A failing or
// panicking hook never prevents the remaining hooks from running; all
// failures are aggregated into the returned error. Execute runs at most
// once.
func (h *Hooks) Execute(ctx context.Context, logger logr.Logger) error {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return nil
	}
	h.done = true
	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Priority < hooks[j].Priority })

	var errs error
	for _, hook := range hooks {
		logger.V(logutil.VERBOSE).Info("Running shutdown hook", "hook", hook.Name, "priority", hook.Priority)
		if err := runHook(ctx, hook); err != nil {
			logger.Error(err, "Shutdown hook failed", "hook", hook.Name)
			errs = multierr.Append(errs, fmt.Errorf("hook %q: %w", hook.Name, err))
		}
	}
	return errs
}

func runHook(ctx context.Context, hook Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook.Run(ctx)
}
