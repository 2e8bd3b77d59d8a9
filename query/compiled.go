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
	"slices"

	"github.com/uptrace/bun"

	"github.com/tomoncle/testspec/types"
)

// Clause names the part of a spec a dropped condition came from.
type Clause string

const (
	ClauseFilter   Clause = "filter"
	ClauseSearch   Clause = "search"
	ClauseSort     Clause = "sort"
	ClauseRelation Clause = "relation"
)

type DropReason string

const (
	ReasonUnknownField        DropReason = "unknown_field"
	ReasonUnknownRelation     DropReason = "unknown_relation"
	ReasonUnsupportedOperator DropReason = "unsupported_operator"
	ReasonArity               DropReason = "arity"
	ReasonInvalidDirection    DropReason = "invalid_direction"
	ReasonNotText             DropReason = "not_text"
)

// Dropped records a condition that compilation skipped.
type Dropped struct {
	Clause   Clause
	Field    string
	Operator types.FilterOperator
	Reason   DropReason
}

func (d Dropped) String() string {
	if d.Operator != "" {
		return fmt.Sprintf("%s %s %s: %s", d.Clause, d.Field, d.Operator, d.Reason)
	}
	return fmt.Sprintf("%s %s: %s", d.Clause, d.Field, d.Reason)
}

type order struct {
	field     Field
	direction types.SortDirection
}

// Compiled is an executable query. It is immutable and may be applied any
// number of times, from any goroutine.
type Compiled struct {
	desc      *Descriptor
	spec      types.QuerySpec
	where     []predicate
	search    []predicate
	orders    []order
	relations []string
	page      *types.PaginationParams
	distinct  bool
	count     bool
	dropped   []Dropped
}

func (c *Compiled) Descriptor() *Descriptor { return c.desc }

// Spec returns the specification the query was compiled from.
func (c *Compiled) Spec() types.QuerySpec { return c.spec }

// Dropped returns the conditions compilation skipped, in spec order.
func (c *Compiled) Dropped() []Dropped { return slices.Clone(c.dropped) }

// IsCount reports whether the query was built with BuildCount.
func (c *Compiled) IsCount() bool { return c.count }

func (c *Compiled) countOnly() *Compiled {
	cc := *c
	cc.orders = nil
	cc.page = nil
	cc.relations = nil
	cc.count = true
	return &cc
}

// Apply adds the compiled clauses to q, whose model must be of the
// descriptor's type.
func (c *Compiled) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	q = c.applyPredicates(q)
	if c.count {
		return q
	}
	for _, name := range c.relations {
		q = q.Relation(name)
	}
	for _, o := range c.orders {
		q = q.OrderExpr(column+" "+o.direction.SQL(), bun.Ident(o.field.Column))
	}
	if c.page != nil {
		q = q.Limit(c.page.GetPageSize()).Offset(c.page.GetOffset())
	}
	if c.distinct {
		q = q.Distinct()
	}
	return q
}

// applyPredicates adds filters (AND) and the search group (OR).
func (c *Compiled) applyPredicates(q *bun.SelectQuery) *bun.SelectQuery {
	d := q.Dialect().Name()
	for _, p := range c.where {
		expr, args := p.render(d)
		q = q.Where(expr, args...)
	}
	if len(c.search) > 0 {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, p := range c.search {
				expr, args := p.render(d)
				q = q.WhereOr(expr, args...)
			}
			return q
		})
	}
	return q
}
