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

package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(start, end int, reserved []int) *Manager {
	m := NewManager(start, end, reserved)
	m.probe = func(int) bool { return true }
	return m
}

func TestAllocateLowestFirst(t *testing.T) {
	m := newTestManager(8901, 8905, nil)

	p1, err := m.Allocate("inst-a")
	require.NoError(t, err)
	p2, err := m.Allocate("inst-b")
	require.NoError(t, err)

	assert.Equal(t, 8901, p1)
	assert.Equal(t, 8902, p2)
}

func TestAllocateSkipsReserved(t *testing.T) {
	m := newTestManager(8900, 8902, []int{8900, 8901})

	p, err := m.Allocate("inst-a")
	require.NoError(t, err)
	assert.Equal(t, 8902, p)
}

func TestAllocateSkipsBoundPorts(t *testing.T) {
	m := NewManager(8901, 8903, nil)
	m.probe = func(port int) bool { return port != 8901 }

	p, err := m.Allocate("inst-a")
	require.NoError(t, err)
	assert.Equal(t, 8902, p)

	// The skipped port stays in the free set for later retries.
	assert.Equal(t, 2, m.FreeCount())
}

func TestAllocateExhaustion(t *testing.T) {
	m := newTestManager(8901, 8902, nil)

	_, err := m.Allocate("inst-a")
	require.NoError(t, err)
	_, err = m.Allocate("inst-b")
	require.NoError(t, err)

	_, err = m.Allocate("inst-c")
	require.Error(t, err)
}

func TestReleaseReturnsPortToPool(t *testing.T) {
	m := newTestManager(8901, 8901, nil)

	p, err := m.Allocate("inst-a")
	require.NoError(t, err)
	assert.Equal(t, 0, m.FreeCount())

	m.Release(p)
	assert.Equal(t, 1, m.FreeCount())

	again, err := m.Allocate("inst-b")
	require.NoError(t, err)
	assert.Equal(t, p, again)
}

func TestDoubleReleaseIsNoOp(t *testing.T) {
	m := newTestManager(8901, 8902, nil)

	p, err := m.Allocate("inst-a")
	require.NoError(t, err)

	m.Release(p)
	m.Release(p)
	assert.Equal(t, 2, m.FreeCount())

	// Releasing a port outside the range never grows the pool.
	m.Release(9999)
	assert.Equal(t, 2, m.FreeCount())
}

func TestAllocationsTracksOwner(t *testing.T) {
	m := newTestManager(8901, 8905, nil)

	_, err := m.Allocate("inst-a")
	require.NoError(t, err)

	allocs := m.Allocations()
	require.Len(t, allocs, 1)
	assert.Equal(t, "inst-a", allocs[0].InstanceID)
	assert.Equal(t, 8901, allocs[0].Port)
	assert.False(t, allocs[0].AllocatedAt.IsZero())
}
