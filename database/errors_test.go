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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

func TestClassifyDriverErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		kind   error
		detail SQLError
	}{
		{"pg unique", &pq.Error{Code: "23505"}, ErrConflict, DuplicateKeyErr},
		{"pg fk", &pq.Error{Code: "23503"}, ErrConflict, ForeignKeyViolationErr},
		{"pg serialization", &pq.Error{Code: "40001"}, ErrTransient, SerializationFailureErr},
		{"pg deadlock", &pq.Error{Code: "40P01"}, ErrTransient, DeadlockErr},
		{"pg nowait", &pq.Error{Code: "55P03"}, ErrLockConflict, LockNotAvailableErr},
		{"pg other", &pq.Error{Code: "XX000"}, ErrInternal, UnknownErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, ErrConflict, DuplicateKeyErr},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, ErrTransient, DeadlockErr},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, ErrTransient, LockTimeoutErr},
		{"mysql nowait", &mysql.MySQLError{Number: 3572}, ErrLockConflict, LockNotAvailableErr},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), ErrTransient, BusyErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: items.name (2067)"), ErrConflict, DuplicateKeyErr},
		{"no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), ErrNotFound, NoRowsErr},
		{"plain", errors.New("boom"), ErrInternal, UnknownErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify("op", tc.err)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected kind %v, got %v", tc.kind, err)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("classified error lost its cause: %v", err)
			}
			var classified *Error
			if !errors.As(err, &classified) || classified.Detail != tc.detail {
				t.Fatalf("expected detail %s, got %+v", tc.detail, classified)
			}
		})
	}
}

func TestClassifyKeepsDriverType(t *testing.T) {
	err := Classify("insert", &pq.Error{Code: "23505", Constraint: "uq_name"})
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Constraint != "uq_name" {
		t.Fatalf("driver error not reachable through errors.As: %v", err)
	}
}

func TestClassifyPassThrough(t *testing.T) {
	if Classify("op", nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	if err := Classify("op", context.Canceled); err != context.Canceled {
		t.Fatalf("context error wrapped: %v", err)
	}
	once := Classify("first", &pq.Error{Code: "40001"})
	if twice := Classify("second", once); twice != once {
		t.Fatalf("classified error wrapped twice: %v", twice)
	}
	sentinel := fmt.Errorf("lock row: %w", ErrLockConflict)
	if err := Classify("op", sentinel); err != sentinel {
		t.Fatalf("error already carrying a kind was rewrapped: %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(&mysql.MySQLError{Number: 1213}) {
		t.Fatalf("raw deadlock should be transient")
	}
	if !IsTransient(Classify("op", &pq.Error{Code: "40P01"})) {
		t.Fatalf("classified deadlock should be transient")
	}
	if IsTransient(Classify("op", &pq.Error{Code: "23505"})) {
		t.Fatalf("constraint violation must not be transient")
	}
	if IsTransient(errors.New("validation failed")) {
		t.Fatalf("plain error must not be transient")
	}
	if !IsConflict(Classify("op", &mysql.MySQLError{Number: 1062})) {
		t.Fatalf("duplicate should be a conflict")
	}
	if !IsLockConflict(Classify("op", &pq.Error{Code: "55P03"})) {
		t.Fatalf("55P03 should be a lock conflict")
	}
}
