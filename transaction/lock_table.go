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
	"fmt"
	"sync"

	"github.com/tomoncle/testspec/database"
)

type lockKey struct {
	table string
	id    string
}

// lockOwner is the frame holding a row lock. Any frame of the same session
// sees the lock as its own.
type lockOwner struct {
	session string
	frame   string
}

type lockOutcome int

const (
	lockHeld    lockOutcome = iota // already held by the session
	lockTaken                      // newly acquired
	lockSkipped                    // contended, skip_locked
)

// lockTable emulates row locks for engines that have none. Entries live until
// the owning frame is released; savepoint locks move to the parent frame on
// commit.
type lockTable struct {
	mu      sync.Mutex
	owners  map[lockKey]lockOwner
	held    map[lockOwner][]lockKey
	waiters map[lockKey]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{
		owners:  make(map[lockKey]lockOwner),
		held:    make(map[lockOwner][]lockKey),
		waiters: make(map[lockKey]chan struct{}),
	}
}

func (t *lockTable) acquire(ctx context.Context, key lockKey, owner lockOwner, mode LockMode) (lockOutcome, error) {
	for {
		t.mu.Lock()
		cur, locked := t.owners[key]
		switch {
		case !locked:
			t.owners[key] = owner
			t.held[owner] = append(t.held[owner], key)
			t.mu.Unlock()
			return lockTaken, nil
		case cur.session == owner.session:
			t.mu.Unlock()
			return lockHeld, nil
		case mode == SkipLocked:
			t.mu.Unlock()
			return lockSkipped, nil
		case mode == NoWait:
			t.mu.Unlock()
			return lockSkipped, fmt.Errorf("%w: %s %s is locked", database.ErrLockConflict, key.table, key.id)
		}
		wait, ok := t.waiters[key]
		if !ok {
			wait = make(chan struct{})
			t.waiters[key] = wait
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return lockSkipped, ctx.Err()
		case <-wait:
		}
	}
}

// drop releases one key taken by owner, used when the locked row turned out
// not to exist.
func (t *lockTable) drop(key lockKey, owner lockOwner) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.owners[key] != owner {
		return
	}
	keys := t.held[owner]
	for i, k := range keys {
		if k == key {
			t.held[owner] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(t.held[owner]) == 0 {
		delete(t.held, owner)
	}
	t.unlock(key)
}

func (t *lockTable) release(owner lockOwner) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range t.held[owner] {
		t.unlock(key)
	}
	delete(t.held, owner)
}

func (t *lockTable) transfer(from, to lockOwner) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys, ok := t.held[from]
	if !ok {
		return
	}
	for _, key := range keys {
		t.owners[key] = to
	}
	t.held[to] = append(t.held[to], keys...)
	delete(t.held, from)
}

// unlock must be called with mu held.
func (t *lockTable) unlock(key lockKey) {
	delete(t.owners, key)
	if wait, ok := t.waiters[key]; ok {
		close(wait)
		delete(t.waiters, key)
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.owners)
}
