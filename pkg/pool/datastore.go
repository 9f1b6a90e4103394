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
	"sort"
	"sync"
)

// AllInstancesPredicate matches every instance.
var AllInstancesPredicate = func(*Instance) bool { return true }

// RoutablePredicate matches instances that may receive requests.
var RoutablePredicate = func(i *Instance) bool { return i.Routable() }

// Datastore is the thread-safe roster of instances. Mutation is owned by
// the Manager; other components only read.
type Datastore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewDatastore returns an empty roster.
func NewDatastore() *Datastore {
	return &Datastore{instances: make(map[string]*Instance)}
}

// Add inserts the instance.
func (d *Datastore) Add(inst *Instance) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.instances[inst.ID()] = inst
}

// Remove deletes the instance by id, returning it when present.
func (d *Datastore) Remove(id string) *Instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, ok := d.instances[id]
	if !ok {
		return nil
	}
	delete(d.instances, id)
	return inst
}

// Get returns the instance by id, or nil.
func (d *Datastore) Get(id string) *Instance {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.instances[id]
}

// List returns the instances matching the predicate, ordered by id for
// deterministic iteration.
func (d *Datastore) List(predicate func(*Instance) bool) []*Instance {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Instance, 0, len(d.instances))
	for _, inst := range d.instances {
		if predicate(inst) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Count returns the number of instances matching the predicate.
func (d *Datastore) Count(predicate func(*Instance) bool) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, inst := range d.instances {
		if predicate(inst) {
			n++
		}
	}
	return n
}
