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
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Error kinds. Every error returned by the persistence layer matches exactly
// one of them with errors.Is, except context cancellation which is passed
// through untouched.
var (
	ErrNotFound     = errors.New("record not found")
	ErrConflict     = errors.New("constraint violation")
	ErrLockConflict = errors.New("lock conflict")
	ErrTransient    = errors.New("transient persistence failure")
	ErrInternal     = errors.New("internal persistence error")
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	DeadlockErr
	SerializationFailureErr
	LockTimeoutErr
	LockNotAvailableErr
	BusyErr
)

var sqlErrorNames = [...]string{
	"unknown", "no rows", "no index", "no column", "index exists", "column exists",
	"no table", "table exists", "duplicate key", "not null violation",
	"foreign key violation", "check constraint violation", "data truncated",
	"invalid type cast", "deadlock", "serialization failure", "lock wait timeout",
	"lock not available", "database busy",
}

func (e SQLError) String() string {
	if int(e) < 0 || int(e) >= len(sqlErrorNames) {
		return sqlErrorNames[UnknownErr]
	}
	return sqlErrorNames[e]
}

// Kind maps a detailed SQLError onto one of the error kinds.
func (e SQLError) Kind() error {
	switch e {
	case NoRowsErr:
		return ErrNotFound
	case DuplicateKeyErr, NotNullViolationErr, ForeignKeyViolationErr, CheckConstraintViolationErr:
		return ErrConflict
	case LockNotAvailableErr:
		return ErrLockConflict
	case DeadlockErr, SerializationFailureErr, LockTimeoutErr, BusyErr:
		return ErrTransient
	default:
		return ErrInternal
	}
}

// IsSqlError reports whether err is a recognised driver error and which one.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1091:
			return true, NoIndexErr
		case 1054:
			return true, NoColumnErr
		case 1061:
			return true, ExistIndexErr
		case 1060:
			return true, ExistColumnErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265:
			return true, DataTruncatedErr
		case 1213:
			return true, DeadlockErr
		case 1205:
			return true, LockTimeoutErr
		case 3572:
			return true, LockNotAvailableErr
		default:
			return true, UnknownErr
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if e, ok := pqCodes[string(pqErr.Code)]; ok {
			return true, e
		}
		return true, UnknownErr
	}
	return classifyMessage(strings.ToLower(err.Error()))
}

var pqCodes = map[string]SQLError{
	"42703": NoColumnErr,
	"42704": NoIndexErr,
	"42P01": NoTableErr,
	"42P07": ExistTableErr,
	"23505": DuplicateKeyErr,
	"23502": NotNullViolationErr,
	"23503": ForeignKeyViolationErr,
	"23514": CheckConstraintViolationErr,
	"22001": DataTruncatedErr,
	"42804": InvalidTypeCastErr,
	"40001": SerializationFailureErr,
	"40P01": DeadlockErr,
	"55P03": LockNotAvailableErr,
}

// classifyMessage covers drivers without typed errors (sqlite) and errors that
// lost their type while being wrapped as text.
func classifyMessage(s string) (bool, SQLError) {
	switch {
	case strings.Contains(s, "database is locked"),
		strings.Contains(s, "database table is locked"),
		strings.Contains(s, "sqlite_busy"):
		return true, BusyErr
	case strings.Contains(s, "deadlock"):
		return true, DeadlockErr
	case strings.Contains(s, "could not serialize access"):
		return true, SerializationFailureErr
	case strings.Contains(s, "sqlstate 42703"),
		strings.Contains(s, "undefined column"),
		strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "no such index"):
		return true, NoIndexErr
	case strings.Contains(s, "undefined table"),
		strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "index"):
		return true, ExistIndexErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "table"):
		return true, ExistTableErr
	case strings.Contains(s, "duplicate key value"),
		strings.Contains(s, "unique constraint failed"),
		strings.Contains(s, "sqlstate 23505"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not-null constraint"),
		strings.Contains(s, "not null constraint failed"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key constraint failed"),
		strings.Contains(s, "foreign key violation"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint"):
		return true, CheckConstraintViolationErr
	case strings.Contains(s, "data truncated"),
		strings.Contains(s, "string data right truncation"):
		return true, DataTruncatedErr
	case strings.Contains(s, "datatype mismatch"):
		return true, InvalidTypeCastErr
	}
	return false, UnknownErr
}

// Error is a classified persistence failure. It matches its kind and its
// driver cause with errors.Is/errors.As.
type Error struct {
	Op     string
	Kind   error
	Detail SQLError
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != UnknownErr {
		return fmt.Sprintf("%s: %v (%s): %v", e.Op, e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// Classify wraps err with the kind of its driver error. Context errors,
// already classified errors and nil pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrLockConflict, ErrTransient, ErrInternal} {
		if errors.Is(err, kind) {
			return err
		}
	}
	_, detail := IsSqlError(err)
	return &Error{Op: op, Kind: detail.Kind(), Detail: detail, Err: err}
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

func IsLockConflict(err error) bool { return errors.Is(err, ErrLockConflict) }

// IsTransient reports whether retrying the failed operation may succeed.
func IsTransient(err error) bool {
	if errors.Is(err, ErrTransient) {
		return true
	}
	var classified *Error
	if errors.As(err, &classified) {
		return false
	}
	_, detail := IsSqlError(err)
	return detail.Kind() == ErrTransient
}
