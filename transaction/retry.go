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
	"errors"
	"fmt"
	"time"

	"github.com/tomoncle/testspec/database"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 100 * time.Millisecond
	DefaultMaxDelay   = 5 * time.Second
)

// ErrRetriesExhausted matches every *ExhaustedError.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError is returned when every attempt failed with a retryable
// error. It unwraps to the last cause.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Last} }

type (
	RetryOption func(*Retrier)

	// OnRetryFunc is called before sleeping ahead of a retry. attempt is the
	// 1-based number of the attempt that failed.
	OnRetryFunc func(attempt int, err error, delay time.Duration)
)

// Retrier re-runs operations that failed with a transient error, waiting
// base × 2^attempt (capped at the max delay) between attempts.
type Retrier struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleep      func(context.Context, time.Duration) error
	retryable  func(error) bool
	onRetry    OnRetryFunc
	logger     database.Logger
}

func NewRetrier(opts ...RetryOption) *Retrier {
	r := &Retrier{
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
		sleep:      defaultSleep,
		retryable:  database.IsTransient,
		onRetry:    func(int, error, time.Duration) {},
		logger:     database.LoggerOrNop(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRetrierFromConfig builds a retrier from the retry section of the
// configuration; opts are applied after it.
func NewRetrierFromConfig(cfg database.RetryConfig, opts ...RetryOption) *Retrier {
	base := []RetryOption{WithMaxRetries(cfg.MaxRetries), WithBaseDelay(cfg.BaseDelay)}
	if cfg.MaxDelay > 0 {
		base = append(base, WithMaxDelay(cfg.MaxDelay))
	}
	return NewRetrier(append(base, opts...)...)
}

// WithMaxRetries sets how many attempts may follow the first one.
func WithMaxRetries(n int) RetryOption {
	return func(r *Retrier) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

func WithBaseDelay(d time.Duration) RetryOption {
	return func(r *Retrier) {
		if d >= 0 {
			r.baseDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) RetryOption {
	return func(r *Retrier) {
		if d > 0 {
			r.maxDelay = d
		}
	}
}

// WithSleep replaces the function used to wait between attempts. It must
// return early with ctx's error when ctx is done.
func WithSleep(sleep func(context.Context, time.Duration) error) RetryOption {
	return func(r *Retrier) { r.sleep = sleep }
}

// WithClassifier replaces the retryable test, database.IsTransient by default.
func WithClassifier(retryable func(error) bool) RetryOption {
	return func(r *Retrier) { r.retryable = retryable }
}

func WithOnRetry(fn OnRetryFunc) RetryOption {
	return func(r *Retrier) { r.onRetry = fn }
}

func RetryWithLogger(logger database.Logger) RetryOption {
	return func(r *Retrier) { r.logger = database.LoggerOrNop(logger) }
}

func (r *Retrier) MaxRetries() int { return r.maxRetries }

// Delay returns the wait before the retry following the given 0-based
// attempt.
func (r *Retrier) Delay(attempt int) time.Duration {
	d := r.baseDelay
	for i := 0; i < attempt && d < r.maxDelay; i++ {
		d *= 2
	}
	return min(d, r.maxDelay)
}

// Do is Execute for operations without a result.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Execute runs op until it succeeds, fails with an error that is not
// retryable, or has failed 1 + MaxRetries times.
func Execute[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				database.ObserveRetry("recovered")
				r.logger.Info("Operation succeeded after retry", "attempts", attempt+1)
			}
			return v, nil
		}
		if !r.retryable(err) {
			return zero, err
		}
		if attempt >= r.maxRetries {
			database.ObserveRetry("exhausted")
			r.logger.Error("Retries exhausted", "attempts", attempt+1, "error", err)
			return zero, &ExhaustedError{Attempts: attempt + 1, Last: err}
		}

		delay := r.Delay(attempt)
		database.ObserveRetry("retried")
		r.logger.Warn("Transient failure, retrying",
			"attempt", attempt+1, "max_retries", r.maxRetries, "delay", delay, "error", err)
		r.onRetry(attempt+1, err, delay)
		if err := r.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
