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

package config

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
)

// debounceDelay waits for write events to settle before reloading.
const debounceDelay = 250 * time.Millisecond

// Reloader watches a config file and re-parses it on change. Reload is
// best-effort: a file that fails to parse or validate keeps the previous
// configuration in place.
type Reloader struct {
	cfg *atomic.Pointer[Config]
}

// NewReloader loads the file at path and starts watching it until ctx is
// canceled. Subscribers observe updates through Get.
func NewReloader(ctx context.Context, path string, onReload func(*Config)) (*Reloader, error) {
	init, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfgPtr := &atomic.Pointer[Config]{}
	cfgPtr.Store(init)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	logger := logutil.FromContext(ctx).WithName("config-reloader").WithValues("path", path)

	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	go func() {
		defer w.Close()

		var debounceTimer *time.Timer

		for {
			select {
			case ev := <-w.Events:
				logger.V(logutil.TRACE).Info("Config file changed", "event", ev)

				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				// Debounce: reset the timer if we get another event.
				if debounceTimer != nil {
					debounceTimer.Stop()
				}

				debounceTimer = time.AfterFunc(debounceDelay, func() {
					cfg, err := Load(path)
					if err != nil {
						logger.Error(err, "Failed to reload configuration, keeping previous one")
						return
					}
					cfgPtr.Store(cfg)
					logger.V(logutil.DEFAULT).Info("Reloaded configuration")
					if onReload != nil {
						onReload(cfg)
					}
				})

			case err := <-w.Errors:
				if err != nil {
					logger.Error(err, "config watcher failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Reloader{cfg: cfgPtr}, nil
}

// Get returns the most recently loaded configuration.
func (r *Reloader) Get() *Config {
	return r.cfg.Load()
}
