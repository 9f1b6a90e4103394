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

// Package logging provides the shared logger construction and the verbosity
// level conventions used across the pool service and the worker.
package logging

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels used with logger.V(...). Error messages do not carry a
// level, they are always logged.
const (
	// DEFAULT is for informational messages that should usually be shown.
	DEFAULT = 0
	// VERBOSE is for messages useful when following what the service does.
	VERBOSE = 1
	// DEBUG is for messages useful when debugging a component.
	DEBUG = 2
	// TRACE is for high-frequency messages, e.g. per-request or per-scrape.
	TRACE = 4
)

// atomicLevel is shared so the verbosity can be adjusted after the root
// logger has been handed out.
var atomicLevel = uberzap.NewAtomicLevelAt(zapcore.InfoLevel)

// NewLogger builds the root logger at the given verbosity. Passing 0 keeps
// the info level; higher values enable the corresponding V levels.
func NewLogger(verbosity int) logr.Logger {
	if verbosity > 0 {
		atomicLevel.SetLevel(zapcore.Level(-verbosity)) //nolint:gosec // verbosity is a small flag value
	}
	cfg := uberzap.NewProductionConfig()
	cfg.Level = atomicLevel
	zl, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		// The production config cannot fail to build; fall back to a no-op
		// logger rather than panicking during startup.
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// NewTestLogger creates a development-mode logger with all levels enabled,
// for use in tests.
func NewTestLogger() logr.Logger {
	cfg := uberzap.NewDevelopmentConfig()
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-TRACE))
	zl, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// NewTestLoggerIntoContext creates a test logger and inserts it into the
// given context.
func NewTestLoggerIntoContext(ctx context.Context) context.Context {
	return logr.NewContext(ctx, NewTestLogger())
}

// FromContext returns the logger stored in ctx, or a discarding logger when
// none was stored.
func FromContext(ctx context.Context) logr.Logger {
	if logger, err := logr.FromContext(ctx); err == nil {
		return logger
	}
	return logr.Discard()
}

// IntoContext stores the logger in the returned context.
func IntoContext(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}
