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
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Spawner starts worker processes. It is an interface so tests can run the
// pool without real processes.
type Spawner interface {
	Spawn(ctx context.Context, instanceID string, port int) (Process, error)
}

// ExecSpawner launches the ocrworker binary with os/exec.
type ExecSpawner struct {
	// Command is the worker executable path.
	Command string
	// Languages is the default language set passed to every worker.
	Languages []string
	// Concurrency is the worker's concurrent task limit.
	Concurrency int
	// GPU enables GPU recognition.
	GPU bool
}

// Spawn starts one worker listening on the given port.
func (s *ExecSpawner) Spawn(ctx context.Context, instanceID string, port int) (Process, error) {
	args := []string{
		"--port", strconv.Itoa(port),
		"--instance-id", instanceID,
		"--concurrency", strconv.Itoa(s.Concurrency),
	}
	if len(s.Languages) > 0 {
		args = append(args, "--languages", strings.Join(s.Languages, ","))
	}
	if s.GPU {
		args = append(args, "--gpu")
	}
	cmd := exec.Command(s.Command, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", instanceID, err)
	}
	p := &execProcess{cmd: cmd, exited: make(chan struct{})}
	go p.wait()
	return p, nil
}

// stopGracePeriod is how long a worker gets to exit after SIGTERM before it
// is killed.
const stopGracePeriod = 5 * time.Second

type execProcess struct {
	cmd    *exec.Cmd
	exited chan struct{}

	mu      sync.Mutex
	waitErr error
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.waitErr = err
	p.mu.Unlock()
	close(p.exited)
}

func (p *execProcess) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

func (p *execProcess) Stop() error {
	if !p.Alive() {
		return nil
	}
	// Ask nicely first; the worker flushes in-flight work on SIGTERM.
	if err := p.cmd.Process.Signal(termSignal); err != nil {
		return p.cmd.Process.Kill()
	}
	select {
	case <-p.exited:
		return nil
	case <-time.After(stopGracePeriod):
		return p.cmd.Process.Kill()
	}
}
