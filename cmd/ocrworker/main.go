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

// The ocrworker binary is one OCR instance: a Tesseract engine behind a
// small HTTP server. The pool service spawns one ocrworker per instance
// and talks to it over localhost.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/reyisok/HonyGo-1.0/pkg/engine/tesseract"
	logutil "github.com/reyisok/HonyGo-1.0/pkg/util/logging"
	"github.com/reyisok/HonyGo-1.0/pkg/worker"
)

var (
	port = pflag.Int(
		"port",
		0,
		"Port to listen on. Assigned by the pool service.")
	instanceID = pflag.String(
		"instance-id",
		"",
		"Identifier of this instance within the pool.")
	concurrency = pflag.Int(
		"concurrency",
		1,
		"Maximum number of recognitions processed at once.")
	languages = pflag.StringSlice(
		"languages",
		[]string{"eng"},
		"Default trained-data languages.")
	gpu = pflag.Bool(
		"gpu",
		false,
		"Enable GPU-accelerated recognition when the engine supports it.")
	logVerbosity = pflag.Int(
		"v",
		logutil.DEFAULT,
		"Number for the log level verbosity.")
)

func main() {
	pflag.Parse()

	logger := logutil.NewLogger(*logVerbosity)
	if *port <= 0 {
		logger.Error(nil, "--port is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logutil.IntoContext(ctx, logger)

	if *gpu {
		logger.V(logutil.DEFAULT).Info("GPU flag set but the tesseract engine runs on CPU only")
	}
	eng := tesseract.New(tesseract.Options{DefaultLanguages: *languages})
	server := worker.NewServer(worker.Options{
		InstanceID:  *instanceID,
		Port:        *port,
		Concurrency: *concurrency,
	}, eng, logger)

	if err := server.Run(ctx); err != nil {
		logger.Error(err, "Worker exited with an error")
		os.Exit(1)
	}
}
