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
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/tomoncle/testspec/database"
)

var (
	// ErrTransactionActive is returned when a root scope is requested while
	// the session already has one open.
	ErrTransactionActive = errors.New("transaction already active")
	// ErrScopeOrder is returned when scopes are not closed in LIFO order.
	ErrScopeOrder = errors.New("transaction scope closed out of order")
	// ErrNoTransaction is returned by operations that need an open scope.
	ErrNoTransaction = errors.New("no active transaction")
)

const defaultBatchSize = 1000

type Option func(*Engine)

func WithLogger(logger database.Logger) Option {
	return func(e *Engine) { e.logger = database.LoggerOrNop(logger) }
}

// WithRetrier sets the retrier DoWithRetry uses when given none.
func WithRetrier(r *Retrier) Option {
	return func(e *Engine) {
		if r != nil {
			e.retrier = r
		}
	}
}

// WithBatchSize sets the default bulk batch size.
func WithBatchSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// WithEmulatedLocks forces (or disables) the in-process lock table. It is on
// by default for sqlite only.
func WithEmulatedLocks(on bool) Option {
	return func(e *Engine) { e.emulateLocks = on }
}

// Engine is shared by every session over one database. It is safe for
// concurrent use.
type Engine struct {
	db           *bun.DB
	logger       database.Logger
	retrier      *Retrier
	locks        *lockTable
	batchSize    int
	emulateLocks bool
}

func NewEngine(db *bun.DB, opts ...Option) *Engine {
	e := &Engine{
		db:           db,
		logger:       database.LoggerOrNop(nil),
		locks:        newLockTable(),
		batchSize:    defaultBatchSize,
		emulateLocks: db.Dialect().Name() == dialect.SQLite,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retrier == nil {
		e.retrier = NewRetrier(RetryWithLogger(e.logger))
	}
	return e
}

func (e *Engine) DB() *bun.DB { return e.db }

func (e *Engine) Retrier() *Retrier { return e.retrier }

func (e *Engine) BatchSize() int { return e.batchSize }

// NewManager starts a session. A session is owned by one goroutine.
func (e *Engine) NewManager() *Manager {
	return &Manager{engine: e, id: uuid.NewString()}
}

type frameKind string

const (
	rootFrame      frameKind = "root"
	savepointFrame frameKind = "savepoint"
)

type frame struct {
	id        string
	kind      frameKind
	tx        bun.Tx
	savepoint string
	parent    *frame
	done      bool
}

// Scope is the handle of one open frame.
type Scope struct {
	m *Manager
	f *frame
}

// IDB is the handle statements of this scope run on.
func (s *Scope) IDB() bun.IDB { return s.f.tx }

func (s *Scope) Tx() bun.Tx { return s.f.tx }

// Nested reports whether the scope is a savepoint.
func (s *Scope) Nested() bool { return s.f.kind == savepointFrame }

func (s *Scope) Closed() bool { return s.f.done }

// Manager is the frame stack of one persistence session: a root transaction
// and the savepoints nested under it.
type Manager struct {
	engine *Engine
	id     string
	stack  []*frame
}

func (m *Manager) Engine() *Engine { return m.engine }

func (m *Manager) Depth() int { return len(m.stack) }

func (m *Manager) IsActive() bool { return len(m.stack) > 0 }

// Current returns the innermost open transaction, or the database when no
// scope is open.
func (m *Manager) Current() bun.IDB {
	if top := m.top(); top != nil {
		return top.tx
	}
	return m.engine.db
}

func (m *Manager) top() *frame {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

func (m *Manager) owner(f *frame) lockOwner {
	return lockOwner{session: m.id, frame: f.id}
}

// Enter opens a frame. With nested set and a scope already open it is a
// savepoint under the current one; with an empty stack it is a root
// transaction whatever nested says.
func (m *Manager) Enter(ctx context.Context, nested bool) (*Scope, error) {
	top := m.top()
	if top != nil && !nested {
		return nil, fmt.Errorf("%w: session %s is at depth %d", ErrTransactionActive, m.id, len(m.stack))
	}

	f := &frame{id: uuid.NewString()}
	if top == nil {
		tx, err := m.engine.db.BeginTx(ctx, nil)
		if err != nil {
			database.ObserveTransaction(string(rootFrame), "error")
			return nil, database.Classify("begin", err)
		}
		f.kind, f.tx = rootFrame, tx
	} else {
		f.kind, f.tx, f.parent = savepointFrame, top.tx, top
		f.savepoint = "sp_" + strings.ReplaceAll(f.id, "-", "")
		if _, err := top.tx.ExecContext(ctx, "SAVEPOINT "+f.savepoint); err != nil {
			database.ObserveTransaction(string(savepointFrame), "error")
			return nil, database.Classify("savepoint", err)
		}
	}
	m.stack = append(m.stack, f)
	m.engine.logger.Debug("Transaction scope opened",
		"session", m.id, "kind", f.kind, "depth", len(m.stack), "savepoint", f.savepoint)
	return &Scope{m: m, f: f}, nil
}

// Exit closes s: a nil cause commits, anything else rolls back and is
// returned. Frames still open above s are rolled back first, s is rolled back
// too and the result matches ErrScopeOrder.
func (m *Manager) Exit(ctx context.Context, s *Scope, cause error) error {
	if s == nil || s.m != m || s.f.done {
		return fmt.Errorf("%w: scope is not open in this session", ErrScopeOrder)
	}
	idx := -1
	for i, f := range m.stack {
		if f == s.f {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: scope is not open in this session", ErrScopeOrder)
	}

	if open := len(m.stack) - 1 - idx; open > 0 {
		orderErr := fmt.Errorf("%w: %d nested scope(s) still open", ErrScopeOrder, open)
		m.engine.logger.Warn("Closing transaction scope with open children",
			"session", m.id, "open", open)
		for len(m.stack)-1 > idx {
			child := m.pop()
			if err := m.rollback(ctx, child); err != nil {
				orderErr = errors.Join(orderErr, err)
			}
		}
		cause = errors.Join(cause, orderErr)
	}

	f := m.pop()
	if cause != nil {
		if err := m.rollback(ctx, f); err != nil {
			return errors.Join(cause, err)
		}
		return cause
	}
	return m.commit(ctx, f)
}

// Do runs fn in a new scope and closes it on every exit path. A panic in fn
// rolls the scope back and is re-raised.
func (m *Manager) Do(ctx context.Context, nested bool, fn func(ctx context.Context, s *Scope) error) error {
	s, err := m.Enter(ctx, nested)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = m.Exit(ctx, s, fmt.Errorf("%w: panic: %v", database.ErrInternal, p))
			panic(p)
		}
	}()
	return m.Exit(ctx, s, fn(ctx, s))
}

// DoWithRetry runs fn in a root scope and retries it with r (the engine's
// retrier when nil) on transient failures. Every attempt gets a fresh scope;
// the failed one is rolled back and its locks released before the backoff.
func (m *Manager) DoWithRetry(ctx context.Context, r *Retrier, fn func(ctx context.Context, s *Scope) error) error {
	if m.IsActive() {
		return fmt.Errorf("%w: retried work must start its own root scope", ErrTransactionActive)
	}
	if r == nil {
		r = m.engine.retrier
	}
	_, err := Execute(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.Do(ctx, false, fn)
	})
	return err
}

func (m *Manager) pop() *frame {
	f := m.stack[len(m.stack)-1]
	m.stack[len(m.stack)-1] = nil
	m.stack = m.stack[:len(m.stack)-1]
	f.done = true
	return f
}

func (m *Manager) commit(ctx context.Context, f *frame) error {
	var err error
	if f.kind == rootFrame {
		err = f.tx.Commit()
		m.engine.locks.release(m.owner(f))
	} else {
		_, err = f.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+f.savepoint)
		if err != nil {
			_ = m.rollback(ctx, f)
		} else {
			m.engine.locks.transfer(m.owner(f), m.owner(f.parent))
		}
	}
	if err != nil {
		database.ObserveTransaction(string(f.kind), "error")
		return database.Classify("commit "+string(f.kind), err)
	}
	database.ObserveTransaction(string(f.kind), "commit")
	m.engine.logger.Debug("Transaction scope committed", "session", m.id, "kind", f.kind)
	return nil
}

// rollback keeps going when ctx is cancelled so that the frame is released.
func (m *Manager) rollback(ctx context.Context, f *frame) error {
	ctx = context.WithoutCancel(ctx)
	defer m.engine.locks.release(m.owner(f))

	var err error
	if f.kind == rootFrame {
		err = f.tx.Rollback()
	} else if _, err = f.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+f.savepoint); err == nil {
		_, err = f.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+f.savepoint)
	}
	// database/sql rolls a transaction back itself when its context ends.
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		database.ObserveTransaction(string(f.kind), "error")
		m.engine.logger.Error("Transaction rollback failed", "session", m.id, "kind", f.kind, "error", err)
		return database.Classify("rollback "+string(f.kind), err)
	}
	database.ObserveTransaction(string(f.kind), "rollback")
	m.engine.logger.Debug("Transaction scope rolled back", "session", m.id, "kind", f.kind)
	return nil
}
