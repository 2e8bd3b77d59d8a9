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

package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"

	"github.com/tomoncle/testspec/database"
	"github.com/tomoncle/testspec/query"
	"github.com/tomoncle/testspec/transaction"
	"github.com/tomoncle/testspec/types"
)

const (
	isActiveColumn  = "is_active"
	createdAtColumn = "created_at"
	updatedAtColumn = "updated_at"
)

type Option func(*options)

type options struct {
	logger          database.Logger
	retrier         *transaction.Retrier
	defaultPageSize int
	maxPageSize     int
}

func WithLogger(logger database.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRetrier overrides the engine's retrier for WithRetry.
func WithRetrier(r *transaction.Retrier) Option {
	return func(o *options) { o.retrier = r }
}

// WithPageSizes sets the page size used when a query has none and the
// largest page a query may ask for.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(o *options) {
		if defaultSize > 0 {
			o.defaultPageSize = defaultSize
		}
		if maxSize > 0 {
			o.maxPageSize = maxSize
		}
	}
}

// Base is the generic repository of entity type T.
type Base[T any] struct {
	desc            *query.Descriptor
	engine          *transaction.Engine
	retrier         *transaction.Retrier
	logger          database.Logger
	defaultPageSize int
	maxPageSize     int
	softDelete      bool
	timestamps      bool
}

var _ Repository[struct{ bun.BaseModel }] = (*Base[struct{ bun.BaseModel }])(nil)

// NewBase describes T and binds it to engine. T must be a bun model with a
// single primary key column.
func NewBase[T any](engine *transaction.Engine, opts ...Option) (*Base[T], error) {
	o := options{defaultPageSize: types.DefaultPageSize, maxPageSize: types.DefaultMaxPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	desc, err := query.Describe(engine.DB(), (*T)(nil))
	if err != nil {
		return nil, err
	}
	if o.retrier == nil {
		o.retrier = engine.Retrier()
	}
	_, softDelete := desc.Field(isActiveColumn)
	_, timestamps := desc.Field(createdAtColumn)
	return &Base[T]{
		desc:            desc,
		engine:          engine,
		retrier:         o.retrier,
		logger:          database.LoggerOrNop(o.logger),
		defaultPageSize: o.defaultPageSize,
		maxPageSize:     max(o.maxPageSize, o.defaultPageSize),
		softDelete:      softDelete,
		timestamps:      timestamps,
	}, nil
}

func (r *Base[T]) Descriptor() *query.Descriptor { return r.desc }

func (r *Base[T]) db(sess *Session) bun.IDB {
	if sess == nil {
		return r.engine.DB()
	}
	return sess.Current()
}

func (r *Base[T]) session(sess *Session) *Session {
	if sess == nil {
		return r.engine.NewManager()
	}
	return sess
}

func (r *Base[T]) op(name string) string { return name + " " + r.desc.Entity() }

// Query starts a query over T.
func (r *Base[T]) Query() *query.Builder {
	return query.NewBuilder(r.desc, query.WithLogger(r.logger))
}

// active starts a query over the rows not soft-deleted.
func (r *Base[T]) active() *query.Builder {
	b := r.Query()
	if r.softDelete {
		b.AddFilter(types.Eq(isActiveColumn, true))
	}
	return b
}

func (r *Base[T]) Fetch(ctx context.Context, sess *Session, c *query.Compiled) ([]*T, error) {
	return query.Fetch[T](ctx, r.db(sess), c)
}

func (r *Base[T]) Count(ctx context.Context, sess *Session, c *query.Compiled) (int, error) {
	return query.Count(ctx, r.db(sess), c)
}

// Find returns one page of the rows matching spec with the total count.
// Without sorts the newest rows come first; without pagination the first
// page of the default size is returned.
func (r *Base[T]) Find(ctx context.Context, sess *Session, spec types.QuerySpec) (*types.Pagination[T], error) {
	sorts := spec.Sorts()
	if len(sorts) == 0 && r.timestamps {
		sorts = []types.SortCondition{types.Desc(createdAtColumn)}
	}
	page := types.NewPaginationParams(1, r.defaultPageSize, r.maxPageSize)
	if p, ok := spec.Pagination(); ok {
		page = types.NewPaginationParams(p.GetPage(), p.GetPageSize(), r.maxPageSize)
	}
	var search *types.SearchParams
	if s, ok := spec.Search(); ok {
		search = &s
	}
	full := types.NewQuerySpec(spec.Filters(), sorts, search, &page, spec.Relations(), spec.Distinct())
	c, err := query.Compile(r.desc, full, r.logger)
	if err != nil {
		return nil, err
	}

	result := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	if result.Total, err = r.Count(ctx, sess, c); err != nil || result.Total == 0 {
		return result, err
	}
	if result.Items, err = r.Fetch(ctx, sess, c); err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns the active row with the given id.
func (r *Base[T]) Get(ctx context.Context, sess *Session, id any) (*T, error) {
	return r.GetWithRelationships(ctx, sess, id)
}

// GetWithRelationships is Get with the named relations loaded.
func (r *Base[T]) GetWithRelationships(ctx context.Context, sess *Session, id any, relations ...string) (*T, error) {
	c, err := r.active().
		AddFilter(types.Eq(r.desc.PrimaryKey(), id)).
		AddRelationships(relations...).
		SetPagination(types.NewPaginationParams(1, 1, 1)).
		Build()
	if err != nil {
		return nil, err
	}
	items, err := r.Fetch(ctx, sess, c)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s %v", database.ErrNotFound, r.desc.Entity(), id)
	}
	return items[0], nil
}

func (r *Base[T]) Exists(ctx context.Context, sess *Session, id any) (bool, error) {
	c, err := r.active().AddFilter(types.Eq(r.desc.PrimaryKey(), id)).BuildCount()
	if err != nil {
		return false, err
	}
	n, err := r.Count(ctx, sess, c)
	return n > 0, err
}

func (r *Base[T]) Create(ctx context.Context, sess *Session, item *T) error {
	if _, err := r.db(sess).NewInsert().Model(item).Exec(ctx); err != nil {
		return database.Classify(r.op("create"), err)
	}
	return nil
}

// Upsert inserts items, updating fields of rows that collide on
// conflictKeys (the primary key when empty). MySQL resolves collisions on
// any unique key and ignores conflictKeys.
func (r *Base[T]) Upsert(ctx context.Context, sess *Session, fields []string, conflictKeys []string, items ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: %s: no fields to update", transaction.ErrUnknownColumn, r.op("upsert"))
	}
	for _, name := range slices.Concat(fields, conflictKeys) {
		if _, ok := r.desc.Field(name); !ok {
			return fmt.Errorf("%w: %s: %q", transaction.ErrUnknownColumn, r.op("upsert"), name)
		}
	}
	if len(items) == 0 {
		return nil
	}
	if len(conflictKeys) == 0 {
		conflictKeys = []string{r.desc.PrimaryKey()}
	}

	q := r.db(sess).NewInsert().Model(&items)
	db := r.engine.DB()
	switch {
	case db.HasFeature(feature.InsertOnConflict):
		keys := make([]bun.Ident, len(conflictKeys))
		for i, k := range conflictKeys {
			keys[i] = bun.Ident(k)
		}
		q = q.On("CONFLICT (?) DO UPDATE", bun.In(keys))
		for _, f := range fields {
			q = q.Set("? = EXCLUDED.?", bun.Ident(f), bun.Ident(f))
		}
	case db.HasFeature(feature.InsertOnDuplicateKey):
		q = q.On("DUPLICATE KEY UPDATE")
		for _, f := range fields {
			q = q.Set("? = VALUES(?)", bun.Ident(f), bun.Ident(f))
		}
	default:
		return fmt.Errorf("%w: %s: dialect %s has no upsert", database.ErrInternal, r.op("upsert"), db.Dialect().Name())
	}
	if _, err := q.Exec(ctx); err != nil {
		return database.Classify(r.op("upsert"), err)
	}
	return nil
}

// Update writes every column of item, found by primary key.
func (r *Base[T]) Update(ctx context.Context, sess *Session, item *T) error {
	res, err := r.db(sess).NewUpdate().Model(item).WherePK().Exec(ctx)
	if err != nil {
		return database.Classify(r.op("update"), err)
	}
	return r.affected(res, "update")
}

// SoftDelete marks the row inactive. Inactive rows are hidden from Get,
// Exists and the finders but stay in the table.
func (r *Base[T]) SoftDelete(ctx context.Context, sess *Session, id any) error {
	if !r.softDelete {
		return fmt.Errorf("%w: %s has no %s column", database.ErrInternal, r.desc.Entity(), isActiveColumn)
	}
	q := r.db(sess).NewUpdate().Model((*T)(nil)).Set("? = ?", bun.Ident(isActiveColumn), false)
	if _, ok := r.desc.Field(updatedAtColumn); ok {
		q = q.Set("? = ?", bun.Ident(updatedAtColumn), time.Now().UTC())
	}
	res, err := q.Where("? = ?", bun.Ident(r.desc.PrimaryKey()), id).Exec(ctx)
	if err != nil {
		return database.Classify(r.op("soft delete"), err)
	}
	return r.affected(res, "soft delete")
}

func (r *Base[T]) HardDelete(ctx context.Context, sess *Session, id any) error {
	res, err := r.db(sess).NewDelete().Model((*T)(nil)).
		Where("? = ?", bun.Ident(r.desc.PrimaryKey()), id).
		Exec(ctx)
	if err != nil {
		return database.Classify(r.op("delete"), err)
	}
	return r.affected(res, "delete")
}

func (r *Base[T]) affected(res interface{ RowsAffected() (int64, error) }, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return database.Classify(r.op(op), err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s: no matching row", database.ErrNotFound, r.op(op))
	}
	return nil
}

// Search runs a free-text search over active rows.
func (r *Base[T]) Search(ctx context.Context, sess *Session, search types.SearchParams, page types.PaginationParams) (*types.Pagination[T], error) {
	return r.Find(ctx, sess, r.active().SetSearch(search).SetPagination(page).Spec())
}

// ListRecent returns up to limit active rows created in the last days days,
// newest first.
func (r *Base[T]) ListRecent(ctx context.Context, sess *Session, days, limit int) ([]*T, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	c, err := r.active().
		AddFilter(types.Gte(createdAtColumn, since)).
		AddSort(types.Desc(createdAtColumn)).
		SetPagination(types.NewPaginationParams(1, limit, r.maxPageSize)).
		Build()
	if err != nil {
		return nil, err
	}
	return r.Fetch(ctx, sess, c)
}

// ListByDateRange returns the active rows whose field lies in [from, to],
// latest first. A nil bound is open.
func (r *Base[T]) ListByDateRange(ctx context.Context, sess *Session, field string, from, to *time.Time) ([]*T, error) {
	c, err := r.active().
		AddFilters(types.DateRange(field, from, to)...).
		AddSort(types.Desc(field)).
		Build()
	if err != nil {
		return nil, err
	}
	return r.Fetch(ctx, sess, c)
}

func (r *Base[T]) CountActive(ctx context.Context, sess *Session) (int, error) {
	return r.countByActive(ctx, sess, true)
}

func (r *Base[T]) CountInactive(ctx context.Context, sess *Session) (int, error) {
	return r.countByActive(ctx, sess, false)
}

func (r *Base[T]) countByActive(ctx context.Context, sess *Session, active bool) (int, error) {
	if !r.softDelete {
		return 0, fmt.Errorf("%w: %s has no %s column", database.ErrInternal, r.desc.Entity(), isActiveColumn)
	}
	c, err := r.Query().AddFilter(types.Eq(isActiveColumn, active)).BuildCount()
	if err != nil {
		return 0, err
	}
	return r.Count(ctx, sess, c)
}

// LockOne locks a row in the current scope of sess. See transaction.LockOne.
func (r *Base[T]) LockOne(ctx context.Context, sess *Session, id any, mode transaction.LockMode) (*T, error) {
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", transaction.ErrNoTransaction, r.op("lock"))
	}
	return transaction.LockOne[T](ctx, sess.Locks(), id, mode)
}

func (r *Base[T]) LockMany(ctx context.Context, sess *Session, ids []any, mode transaction.LockMode) ([]*T, error) {
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", transaction.ErrNoTransaction, r.op("lock"))
	}
	return transaction.LockMany[T](ctx, sess.Locks(), ids, mode)
}

// WithLock runs fn in a new scope of sess (a fresh session when nil) with
// the row locked. The row must exist; a skipped lock reports ErrLockConflict.
func (r *Base[T]) WithLock(ctx context.Context, sess *Session, id any, mode transaction.LockMode,
	fn func(ctx context.Context, s *transaction.Scope, item *T) error) error {
	m := r.session(sess)
	return m.Do(ctx, true, func(ctx context.Context, s *transaction.Scope) error {
		item, err := transaction.LockOne[T](ctx, m.Locks(), id, mode)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: %s %v is locked by another session", database.ErrLockConflict, r.desc.Entity(), id)
		}
		return fn(ctx, s, item)
	})
}

// WithRetry runs fn in a root scope of sess, retried on transient failures.
func (r *Base[T]) WithRetry(ctx context.Context, sess *Session, fn func(ctx context.Context, s *transaction.Scope) error) error {
	return r.session(sess).DoWithRetry(ctx, r.retrier, fn)
}

func (r *Base[T]) BulkCreate(ctx context.Context, sess *Session, items []*T) ([]*T, error) {
	return transaction.BulkCreate(ctx, r.session(sess).Bulk(), items, 0)
}

func (r *Base[T]) BulkUpdate(ctx context.Context, sess *Session, updates []transaction.Update) (int64, error) {
	return transaction.BulkUpdate[T](ctx, r.session(sess).Bulk(), updates, 0)
}

func (r *Base[T]) BulkDelete(ctx context.Context, sess *Session, ids []any) (int64, error) {
	return transaction.BulkDelete[T](ctx, r.session(sess).Bulk(), ids, 0)
}
