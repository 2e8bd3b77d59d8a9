/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"cmp"
	"slices"
	"sync"
)

// SQLModel is a table-backed model. Instance returns a Bun struct pointer;
// tables are created in ascending Priority, so a referenced table needs a
// lower priority than the tables pointing at it.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

type ModelRegistry interface {
	Register(model SQLModel)
	// Models returns the registered models by priority, ties in
	// registration order.
	Models() []SQLModel
	Instances() []interface{}
}

type modelRegistry struct {
	mu     sync.RWMutex
	sorted []SQLModel
}

func NewModelRegistry(models ...SQLModel) ModelRegistry {
	r := &modelRegistry{}
	for _, m := range models {
		r.Register(m)
	}
	return r
}

func (r *modelRegistry) Register(model SQLModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sorted = append(r.sorted, model)
	slices.SortStableFunc(r.sorted, func(a, b SQLModel) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
}

func (r *modelRegistry) Models() []SQLModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sorted)
}

func (r *modelRegistry) Instances() []interface{} {
	models := r.Models()
	out := make([]interface{}, 0, len(models))
	for _, m := range models {
		out = append(out, m.Instance())
	}
	return out
}

type modelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter pairs a model instance, typically a typed nil pointer,
// with its creation priority.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return modelAdapter{instance: instance, priority: priority}
}

func (a modelAdapter) Instance() interface{} { return a.instance }
func (a modelAdapter) Priority() int         { return a.priority }
