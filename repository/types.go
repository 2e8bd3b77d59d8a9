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
	"time"

	"github.com/tomoncle/testspec/query"
	"github.com/tomoncle/testspec/transaction"
	"github.com/tomoncle/testspec/types"
)

type Session = transaction.Manager

// CrudRepository defines single-entity reads and writes.
type CrudRepository[T any] interface {
	Get(ctx context.Context, sess *Session, id any) (*T, error)
	GetWithRelationships(ctx context.Context, sess *Session, id any, relations ...string) (*T, error)
	Exists(ctx context.Context, sess *Session, id any) (bool, error)
	Create(ctx context.Context, sess *Session, item *T) error
	Upsert(ctx context.Context, sess *Session, fields []string, conflictKeys []string, items ...*T) error
	Update(ctx context.Context, sess *Session, item *T) error
	SoftDelete(ctx context.Context, sess *Session, id any) error
	HardDelete(ctx context.Context, sess *Session, id any) error
}

// QueryRepository defines compiled queries, pages and the finders shared by
// every entity.
type QueryRepository[T any] interface {
	Query() *query.Builder
	Fetch(ctx context.Context, sess *Session, c *query.Compiled) ([]*T, error)
	Count(ctx context.Context, sess *Session, c *query.Compiled) (int, error)
	Find(ctx context.Context, sess *Session, spec types.QuerySpec) (*types.Pagination[T], error)
	Search(ctx context.Context, sess *Session, search types.SearchParams, page types.PaginationParams) (*types.Pagination[T], error)
	ListRecent(ctx context.Context, sess *Session, days, limit int) ([]*T, error)
	ListByDateRange(ctx context.Context, sess *Session, field string, from, to *time.Time) ([]*T, error)
	CountActive(ctx context.Context, sess *Session) (int, error)
	CountInactive(ctx context.Context, sess *Session) (int, error)
}

// LockingRepository defines row locks and the work run under them.
type LockingRepository[T any] interface {
	LockOne(ctx context.Context, sess *Session, id any, mode transaction.LockMode) (*T, error)
	LockMany(ctx context.Context, sess *Session, ids []any, mode transaction.LockMode) ([]*T, error)
	WithLock(ctx context.Context, sess *Session, id any, mode transaction.LockMode,
		fn func(ctx context.Context, s *transaction.Scope, item *T) error) error
	WithRetry(ctx context.Context, sess *Session, fn func(ctx context.Context, s *transaction.Scope) error) error
}

// BulkRepository defines batched writes. Each call is atomic.
type BulkRepository[T any] interface {
	BulkCreate(ctx context.Context, sess *Session, items []*T) ([]*T, error)
	BulkUpdate(ctx context.Context, sess *Session, updates []transaction.Update) (int64, error)
	BulkDelete(ctx context.Context, sess *Session, ids []any) (int64, error)
}

// Repository combines every capability of the generic repository.
type Repository[T any] interface {
	CrudRepository[T]
	QueryRepository[T]
	LockingRepository[T]
	BulkRepository[T]
	Descriptor() *query.Descriptor
}
