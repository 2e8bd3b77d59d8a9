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
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

func colorizeQuery(event *bun.QueryEvent) string {
	if c, ok := operationColors[event.Operation()]; ok {
		return c.Sprint(event.Query)
	}
	return color.New(color.FgRed).Sprint(event.Query)
}

// queryHook reports failed statements with their error kind and statements
// slower than slowTime.
type queryHook struct {
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*queryHook)(nil)

func newQueryHook(slowTime time.Duration, logger Logger) *queryHook {
	return &queryHook{slowTime: slowTime, logger: LoggerOrNop(logger)}
}

func (h *queryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)
	if event.Err != nil {
		if errors.Is(event.Err, sql.ErrNoRows) || errors.Is(event.Err, sql.ErrTxDone) {
			return
		}
		_, detail := IsSqlError(event.Err)
		kind := detail.Kind()
		fields := []interface{}{"kind", kind, "detail", detail, "duration", duration, "query", colorizeQuery(event), "error", event.Err}
		if kind == ErrInternal {
			h.logger.Error(color.New(color.BgRed).Sprint(" query failed "), fields...)
		} else {
			h.logger.Debug("query failed", fields...)
		}
		return
	}
	if h.slowTime > 0 && duration > h.slowTime {
		h.logger.Warn(color.New(color.FgYellow, color.BlinkSlow).Sprint("Database slow query detected:"),
			"duration", duration,
			"slow_threshold", h.slowTime,
			"query", colorizeQuery(event),
		)
	}
}
