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

// Package ports allocates and reclaims the network ports used by spawned
// worker instances.
package ports

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	errutil "github.com/reyisok/HonyGo-1.0/pkg/util/error"
)

// probeTimeout bounds the TCP dial used to check that a candidate port is
// not already in use by a foreign process.
const probeTimeout = time.Second

// Allocation records the owner of an allocated port.
type Allocation struct {
	Port        int
	InstanceID  string
	AllocatedAt time.Time
}

// Manager hands out ports from a fixed range, skipping reserved ports and
// ports that are already bound on the host.
type Manager struct {
	mu        sync.Mutex
	free      map[int]struct{}
	allocated map[int]Allocation

	// probe is swapped in tests to avoid real dialing.
	probe func(port int) bool
}

// NewManager builds a manager for the inclusive range [start, end], never
// handing out any of the reserved ports.
func NewManager(start, end int, reserved []int) *Manager {
	reservedSet := make(map[int]struct{}, len(reserved))
	for _, p := range reserved {
		reservedSet[p] = struct{}{}
	}
	free := make(map[int]struct{})
	for p := start; p <= end; p++ {
		if _, ok := reservedSet[p]; !ok {
			free[p] = struct{}{}
		}
	}
	return &Manager{
		free:      free,
		allocated: make(map[int]Allocation),
		probe:     isPortFree,
	}
}

// Allocate reserves the lowest free port for the given instance. Ports that
// turn out to be bound by another process are skipped for this allocation
// but remain in the free set, so they are retried later.
func (m *Manager) Allocate(instanceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]int, 0, len(m.free))
	for p := range m.free {
		candidates = append(candidates, p)
	}
	sort.Ints(candidates)

	for _, p := range candidates {
		if !m.probe(p) {
			continue
		}
		delete(m.free, p)
		m.allocated[p] = Allocation{Port: p, InstanceID: instanceID, AllocatedAt: time.Now()}
		return p, nil
	}
	return 0, errutil.Error{Code: errutil.PoolResourceExhausted, Msg: "no free port in the configured range"}
}

// Release returns the port to the free set. Releasing a port that is not
// allocated is a no-op.
func (m *Manager) Release(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.allocated[port]; !ok {
		return
	}
	delete(m.allocated, port)
	m.free[port] = struct{}{}
}

// Allocations returns a snapshot of the current allocations.
func (m *Manager) Allocations() []Allocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Allocation, 0, len(m.allocated))
	for _, a := range m.allocated {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// FreeCount returns the number of ports currently available.
func (m *Manager) FreeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.free)
}

// isPortFree reports whether nothing is listening on the port. A successful
// dial means the port is taken.
func isPortFree(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), probeTimeout)
	if err != nil {
		return true
	}
	_ = conn.Close()
	return false
}
