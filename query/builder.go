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

package query

import (
	"fmt"

	"github.com/tomoncle/testspec/database"
	"github.com/tomoncle/testspec/types"
)

type Option func(*Builder)

// WithLogger sets the logger that reports dropped conditions.
func WithLogger(logger database.Logger) Option {
	return func(b *Builder) { b.logger = database.LoggerOrNop(logger) }
}

// Builder accumulates a query specification for one entity type. It is not
// safe for concurrent use; Build freezes a copy, so a builder may keep being
// extended after it has been built.
type Builder struct {
	desc      *Descriptor
	logger    database.Logger
	filters   []types.FilterCondition
	sorts     []types.SortCondition
	search    *types.SearchParams
	page      *types.PaginationParams
	relations []string
	distinct  bool
}

func NewBuilder(desc *Descriptor, opts ...Option) *Builder {
	b := &Builder{desc: desc, logger: database.LoggerOrNop(nil)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) AddFilter(filter types.FilterCondition) *Builder {
	b.filters = append(b.filters, filter)
	return b
}

func (b *Builder) AddFilters(filters ...types.FilterCondition) *Builder {
	b.filters = append(b.filters, filters...)
	return b
}

func (b *Builder) AddSort(sort types.SortCondition) *Builder {
	b.sorts = append(b.sorts, sort)
	return b
}

func (b *Builder) AddSorts(sorts ...types.SortCondition) *Builder {
	b.sorts = append(b.sorts, sorts...)
	return b
}

// SetSearch replaces any previous search.
func (b *Builder) SetSearch(search types.SearchParams) *Builder {
	b.search = &search
	return b
}

// SetPagination replaces any previous page window.
func (b *Builder) SetPagination(page types.PaginationParams) *Builder {
	b.page = &page
	return b
}

func (b *Builder) AddRelationship(name string) *Builder {
	b.relations = append(b.relations, name)
	return b
}

func (b *Builder) AddRelationships(names ...string) *Builder {
	b.relations = append(b.relations, names...)
	return b
}

func (b *Builder) SetDistinct(distinct bool) *Builder {
	b.distinct = distinct
	return b
}

// Spec freezes the current state of the builder.
func (b *Builder) Spec() types.QuerySpec {
	return types.NewQuerySpec(b.filters, b.sorts, b.search, b.page, b.relations, b.distinct)
}

// Build compiles the full query: filters, search, sorts, page window,
// relations and distinct.
func (b *Builder) Build() (*Compiled, error) {
	return Compile(b.desc, b.Spec(), b.logger)
}

// BuildCount compiles the row-count query of the current spec: filters and
// search only.
func (b *Builder) BuildCount() (*Compiled, error) {
	c, err := Compile(b.desc, b.Spec(), b.logger)
	if err != nil {
		return nil, err
	}
	return c.countOnly(), nil
}

// Compile resolves spec against desc. Conditions the descriptor cannot
// satisfy are dropped and reported by Compiled.Dropped; only a missing
// descriptor is an error.
func Compile(desc *Descriptor, spec types.QuerySpec, logger database.Logger) (*Compiled, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: compile: no entity descriptor", database.ErrInternal)
	}
	c := &Compiled{desc: desc, spec: spec, distinct: spec.Distinct()}
	drop := func(clause Clause, field string, op types.FilterOperator, reason DropReason) {
		d := Dropped{Clause: clause, Field: field, Operator: op, Reason: reason}
		c.dropped = append(c.dropped, d)
		database.LoggerOrNop(logger).Warn("Query condition dropped",
			"entity", desc.entity, "clause", clause, "field", field, "operator", op, "reason", reason)
		database.ObserveDroppedCondition(string(clause), string(reason))
	}

	for _, f := range spec.Filters() {
		field, ok := desc.Field(f.Field)
		switch {
		case !ok:
			drop(ClauseFilter, f.Field, f.Operator, ReasonUnknownField)
		case !f.Operator.IsValid():
			drop(ClauseFilter, f.Field, f.Operator, ReasonUnsupportedOperator)
		case !f.WellFormed():
			drop(ClauseFilter, f.Field, f.Operator, ReasonArity)
		case f.Operator == types.OpNotIn && len(f.Values) == 0:
			// nothing to exclude
		default:
			c.where = append(c.where, predicate{field: field, op: f.Operator, value: f.Value, values: f.Values})
		}
	}

	if search, ok := spec.Search(); ok && !search.IsEmpty() {
		for _, name := range search.Fields {
			field, ok := desc.Field(name)
			if !ok {
				drop(ClauseSearch, name, "", ReasonUnknownField)
				continue
			}
			if field.Kind != KindText && !search.ExactMatch {
				drop(ClauseSearch, name, "", ReasonNotText)
				continue
			}
			c.search = append(c.search, searchPredicate(field, search))
		}
	}

	for _, s := range spec.Sorts() {
		field, ok := desc.Field(s.Field)
		if !ok {
			drop(ClauseSort, s.Field, "", ReasonUnknownField)
			continue
		}
		dir := s.Direction
		if dir == "" {
			dir = types.Ascending
		}
		if !dir.IsValid() {
			drop(ClauseSort, s.Field, "", ReasonInvalidDirection)
			continue
		}
		c.orders = append(c.orders, order{field: field, direction: dir})
	}

	for _, name := range spec.Relations() {
		if !desc.HasRelation(name) {
			drop(ClauseRelation, name, "", ReasonUnknownRelation)
			continue
		}
		c.relations = append(c.relations, name)
	}

	if page, ok := spec.Pagination(); ok {
		c.page = &page
	}
	return c, nil
}

func searchPredicate(field Field, search types.SearchParams) predicate {
	switch {
	case search.ExactMatch:
		return predicate{field: field, op: types.OpEq, value: search.Query}
	case search.CaseSensitive:
		return predicate{field: field, op: types.OpLike, value: "%" + search.Query + "%"}
	default:
		return predicate{field: field, op: types.OpILike, value: "%" + search.Query + "%"}
	}
}
