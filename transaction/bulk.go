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

package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/testspec/database"
)

// ErrUnknownColumn is returned by BulkUpdate for a field set naming a column
// the entity does not have.
var ErrUnknownColumn = errors.New("unknown column")

const updatedAtColumn = "updated_at"

// Update is a partial update of one row, keyed by column name.
type Update struct {
	ID     any
	Fields map[string]any
}

// BulkManager runs batched writes in a scope of its session. Every call is
// atomic: it runs in a savepoint when a scope is open, in a root transaction
// otherwise, and holds that scope across all of its batches.
type BulkManager struct {
	m *Manager
}

func (m *Manager) Bulk() *BulkManager { return &BulkManager{m: m} }

func (bm *BulkManager) size(batchSize int) int {
	if batchSize > 0 {
		return batchSize
	}
	return bm.m.engine.batchSize
}

// BulkCreate inserts items in batches of batchSize (the engine default when
// <= 0) and returns them in input order, with generated values filled in. A
// failing batch undoes the whole call.
func BulkCreate[T any](ctx context.Context, bm *BulkManager, items []*T, batchSize int) ([]*T, error) {
	if len(items) == 0 {
		return items, nil
	}
	table, err := tableOf(bm.m.engine.db, reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	size := bm.size(batchSize)
	err = bm.m.Do(ctx, true, func(ctx context.Context, s *Scope) error {
		for start := 0; start < len(items); start += size {
			batch := items[start:min(start+size, len(items))]
			if _, err := s.IDB().NewInsert().Model(&batch).Exec(ctx); err != nil {
				return database.Classify(fmt.Sprintf("bulk create %s batch %d", table.Name, start/size+1), err)
			}
		}
		return nil
	})
	if err != nil {
		bm.m.engine.logger.Error("Bulk create failed", "table", table.Name, "rows", len(items), "error", err)
		return nil, err
	}
	database.ObserveBulkRows("create", int64(len(items)))
	return items, nil
}

// BulkUpdate applies one targeted UPDATE per item, batchSize items at a
// time. Every column is checked before the first statement runs. It returns
// the number of rows affected.
func BulkUpdate[T any](ctx context.Context, bm *BulkManager, updates []Update, batchSize int) (int64, error) {
	table, err := tableOf(bm.m.engine.db, reflect.TypeFor[T]())
	if err != nil {
		return 0, err
	}
	pk := table.PKs[0].Name
	for i, u := range updates {
		if len(u.Fields) == 0 {
			return 0, fmt.Errorf("%w: bulk update %s item %d: empty field set", ErrUnknownColumn, table.Name, i)
		}
		for col := range u.Fields {
			if _, ok := table.FieldMap[col]; !ok || col == pk {
				return 0, fmt.Errorf("%w: bulk update %s item %d: %q", ErrUnknownColumn, table.Name, i, col)
			}
		}
	}
	if len(updates) == 0 {
		return 0, nil
	}
	_, touch := table.FieldMap[updatedAtColumn]

	size := bm.size(batchSize)
	var total int64
	err = bm.m.Do(ctx, true, func(ctx context.Context, s *Scope) error {
		for start := 0; start < len(updates); start += size {
			for _, u := range updates[start:min(start+size, len(updates))] {
				q := s.IDB().NewUpdate().Model((*T)(nil))
				cols := make([]string, 0, len(u.Fields))
				for col := range u.Fields {
					cols = append(cols, col)
				}
				sort.Strings(cols)
				for _, col := range cols {
					q = q.Set("? = ?", bun.Ident(col), u.Fields[col])
				}
				if _, ok := u.Fields[updatedAtColumn]; touch && !ok {
					q = q.Set("? = ?", bun.Ident(updatedAtColumn), time.Now())
				}
				res, err := q.Where("? = ?", bun.Ident(pk), u.ID).Exec(ctx)
				if err != nil {
					return database.Classify("bulk update "+table.Name, err)
				}
				n, err := rowsAffected(res, "bulk update "+table.Name)
				if err != nil {
					return err
				}
				total += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	database.ObserveBulkRows("update", total)
	return total, nil
}

// BulkDelete deletes the rows of T with the given ids, batchSize ids per
// statement, and returns the number deleted.
func BulkDelete[T any, ID comparable](ctx context.Context, bm *BulkManager, ids []ID, batchSize int) (int64, error) {
	table, err := tableOf(bm.m.engine.db, reflect.TypeFor[T]())
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	pk := bun.Ident(table.PKs[0].Name)
	size := bm.size(batchSize)
	var total int64
	err = bm.m.Do(ctx, true, func(ctx context.Context, s *Scope) error {
		for start := 0; start < len(ids); start += size {
			chunk := ids[start:min(start+size, len(ids))]
			res, err := s.IDB().NewDelete().Model((*T)(nil)).
				Where("? IN (?)", pk, bun.In(chunk)).
				Exec(ctx)
			if err != nil {
				return database.Classify("bulk delete "+table.Name, err)
			}
			n, err := rowsAffected(res, "bulk delete "+table.Name)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	database.ObserveBulkRows("delete", total)
	return total, nil
}

func rowsAffected(res sql.Result, op string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Classify(op, err)
	}
	return n, nil
}
