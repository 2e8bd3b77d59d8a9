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

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/testspec/database"
	"github.com/tomoncle/testspec/types"
)

// LockMode selects what a lock request does when the row is already locked.
type LockMode string

const (
	Blocking   LockMode = "blocking"
	SkipLocked LockMode = "skip_locked"
	NoWait     LockMode = "no_wait"
)

var _ types.BaseEnum = Blocking

func (m LockMode) IsValid() bool {
	switch m {
	case Blocking, SkipLocked, NoWait:
		return true
	}
	return false
}

func (m LockMode) String() string {
	if !m.IsValid() {
		return types.IllegalName
	}
	return string(m)
}

func (m LockMode) Desc() string {
	switch m {
	case Blocking:
		return "wait until the row is released"
	case SkipLocked:
		return "leave out rows locked elsewhere"
	case NoWait:
		return "fail at once if the row is locked elsewhere"
	}
	return types.IllegalName
}

func (m LockMode) forClause() string {
	switch m {
	case SkipLocked:
		return "UPDATE SKIP LOCKED"
	case NoWait:
		return "UPDATE NOWAIT"
	}
	return "UPDATE"
}

const pkColumn = "?TableAlias.?"

// LockManager takes row locks inside the scopes of one session. Locks belong
// to the innermost open frame and are released when it rolls back, or when
// the root frame closes.
type LockManager struct {
	m *Manager
}

func (m *Manager) Locks() *LockManager { return &LockManager{m: m} }

// LockOne locks the row of T with primary key id. It returns ErrNotFound when
// the row does not exist, and (nil, nil) when mode is SkipLocked and another
// session holds the row. NoWait contention fails with ErrLockConflict.
func LockOne[T any](ctx context.Context, lm *LockManager, id any, mode LockMode) (*T, error) {
	top, table, err := lm.prepare(reflect.TypeFor[T](), mode)
	if err != nil {
		return nil, err
	}
	op := "lock " + table.Name
	pk := bun.Ident(table.PKs[0].Name)

	if !lm.m.engine.emulateLocks {
		item := new(T)
		err := top.tx.NewSelect().Model(item).
			Where(pkColumn+" = ?", pk, id).
			For(mode.forClause()).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			lm.observe(mode, "acquired")
			return item, nil
		case errors.Is(err, sql.ErrNoRows) && mode == SkipLocked:
			exists, xerr := top.tx.NewSelect().Model((*T)(nil)).Where(pkColumn+" = ?", pk, id).Exists(ctx)
			if xerr != nil {
				lm.observe(mode, "error")
				return nil, database.Classify(op, xerr)
			}
			if exists {
				lm.observe(mode, "skipped")
				return nil, nil
			}
		}
		return nil, lm.fail(mode, database.Classify(op, err))
	}

	key := lockKey{table: table.Name, id: fmt.Sprint(id)}
	owner := lm.m.owner(top)
	outcome, err := lm.m.engine.locks.acquire(ctx, key, owner, mode)
	if err != nil {
		return nil, lm.fail(mode, err)
	}
	if outcome == lockSkipped {
		lm.observe(mode, "skipped")
		return nil, nil
	}
	item := new(T)
	if err := top.tx.NewSelect().Model(item).Where(pkColumn+" = ?", pk, id).Limit(1).Scan(ctx); err != nil {
		if outcome == lockTaken {
			lm.m.engine.locks.drop(key, owner)
		}
		return nil, lm.fail(mode, database.Classify(op, err))
	}
	lm.observe(mode, "acquired")
	return item, nil
}

// LockMany locks the rows of T with the given ids and returns those actually
// locked, ordered by primary key. Missing ids, and with SkipLocked ids held
// by another session, are left out.
func LockMany[T any, ID comparable](ctx context.Context, lm *LockManager, ids []ID, mode LockMode) ([]*T, error) {
	top, table, err := lm.prepare(reflect.TypeFor[T](), mode)
	if err != nil {
		return nil, err
	}
	items := make([]*T, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}
	op := "lock " + table.Name
	pk := bun.Ident(table.PKs[0].Name)

	if !lm.m.engine.emulateLocks {
		err := top.tx.NewSelect().Model(&items).
			Where(pkColumn+" IN (?)", pk, bun.In(ids)).
			OrderExpr(pkColumn+" ASC", pk).
			For(mode.forClause()).
			Scan(ctx)
		if err != nil {
			return nil, lm.fail(mode, database.Classify(op, err))
		}
		lm.observe(mode, "acquired")
		return items, nil
	}

	// Acquire in a stable order so that two sessions locking overlapping
	// sets cannot deadlock on the table.
	keys := make(map[string]ID, len(ids))
	for _, id := range ids {
		keys[fmt.Sprint(id)] = id
	}
	order := make([]string, 0, len(keys))
	for k := range keys {
		order = append(order, k)
	}
	sort.Strings(order)

	locks := lm.m.engine.locks
	owner := lm.m.owner(top)
	var taken []lockKey
	locked := make([]ID, 0, len(order))
	for _, k := range order {
		key := lockKey{table: table.Name, id: k}
		outcome, err := locks.acquire(ctx, key, owner, mode)
		if err != nil {
			for _, key := range taken {
				locks.drop(key, owner)
			}
			return nil, lm.fail(mode, err)
		}
		switch outcome {
		case lockTaken:
			taken = append(taken, key)
			locked = append(locked, keys[k])
		case lockHeld:
			locked = append(locked, keys[k])
		}
	}
	if len(locked) > 0 {
		err := top.tx.NewSelect().Model(&items).
			Where(pkColumn+" IN (?)", pk, bun.In(locked)).
			OrderExpr(pkColumn+" ASC", pk).
			Scan(ctx)
		if err != nil {
			for _, key := range taken {
				locks.drop(key, owner)
			}
			return nil, lm.fail(mode, database.Classify(op, err))
		}
	}

	found := make(map[string]struct{}, len(items))
	for _, item := range items {
		v := table.PKs[0].Value(reflect.ValueOf(item).Elem())
		found[fmt.Sprint(v.Interface())] = struct{}{}
	}
	for _, key := range taken {
		if _, ok := found[key.id]; !ok {
			locks.drop(key, owner)
		}
	}
	lm.observe(mode, "acquired")
	return items, nil
}

func (lm *LockManager) prepare(typ reflect.Type, mode LockMode) (*frame, *schema.Table, error) {
	if !mode.IsValid() {
		return nil, nil, fmt.Errorf("%w: invalid lock mode %q", database.ErrInternal, string(mode))
	}
	top := lm.m.top()
	if top == nil {
		return nil, nil, fmt.Errorf("%w: row locks need an open scope", ErrNoTransaction)
	}
	table, err := tableOf(lm.m.engine.db, typ)
	if err != nil {
		return nil, nil, err
	}
	return top, table, nil
}

func (lm *LockManager) observe(mode LockMode, outcome string) {
	database.ObserveLock(string(mode), outcome)
}

func (lm *LockManager) fail(mode LockMode, err error) error {
	switch {
	case database.IsNotFound(err):
		lm.observe(mode, "not_found")
	case database.IsLockConflict(err):
		lm.observe(mode, "conflict")
	default:
		lm.observe(mode, "error")
	}
	return err
}

func tableOf(db *bun.DB, typ reflect.Type) (*schema.Table, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct model", database.ErrInternal, typ)
	}
	table := db.Table(typ)
	if len(table.PKs) != 1 {
		return nil, fmt.Errorf("%w: %s needs exactly one primary key column", database.ErrInternal, typ.Name())
	}
	return table, nil
}
