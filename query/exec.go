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
	"context"
	"fmt"
	"reflect"

	"github.com/uptrace/bun"

	"github.com/tomoncle/testspec/database"
)

// Fetch runs c and returns the matching entities in query order. T must be
// the descriptor's model type.
func Fetch[T any](ctx context.Context, idb bun.IDB, c *Compiled) ([]*T, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: fetch: nil query", database.ErrInternal)
	}
	if typ := reflect.TypeFor[T](); typ != c.desc.modelType {
		return nil, fmt.Errorf("%w: fetch: query compiled for %s, scanned into %s",
			database.ErrInternal, c.desc.entity, typ.Name())
	}
	items := make([]*T, 0)
	q := c.Apply(idb.NewSelect().Model(&items))
	if err := q.Scan(ctx); err != nil {
		return nil, database.Classify("fetch "+c.desc.entity, err)
	}
	return items, nil
}

// Count returns the number of rows matching the filters and search of c.
// Sorts, page window and relations are ignored. A distinct query is counted
// over a subquery.
func Count(ctx context.Context, idb bun.IDB, c *Compiled) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("%w: count: nil query", database.ErrInternal)
	}
	q := c.applyPredicates(idb.NewSelect().Model(c.desc.newModel()))
	if !c.distinct {
		n, err := q.Count(ctx)
		if err != nil {
			return 0, database.Classify("count "+c.desc.entity, err)
		}
		return n, nil
	}
	var n int
	err := idb.NewSelect().
		TableExpr("(?) AS distinct_rows", q.Distinct()).
		ColumnExpr("count(*)").
		Scan(ctx, &n)
	if err != nil {
		return 0, database.Classify("count "+c.desc.entity, err)
	}
	return n, nil
}
