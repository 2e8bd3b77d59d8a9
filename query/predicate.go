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

package query

import (
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/tomoncle/testspec/types"
)

// column is qualified with the model alias so that joined relations cannot
// make it ambiguous.
const column = "?TableAlias.?"

// predicate is a resolved condition, rendered per dialect when applied.
type predicate struct {
	field  Field
	op     types.FilterOperator
	value  any
	values []any
}

func (p predicate) render(d dialect.Name) (string, []any) {
	ident := bun.Ident(p.field.Column)
	switch p.op {
	case types.OpEq:
		if p.value == nil {
			return column + " IS NULL", []any{ident}
		}
		return column + " = ?", []any{ident, p.value}
	case types.OpNe:
		if p.value == nil {
			return column + " IS NOT NULL", []any{ident}
		}
		return column + " <> ?", []any{ident, p.value}
	case types.OpGt:
		return column + " > ?", []any{ident, p.value}
	case types.OpGte:
		return column + " >= ?", []any{ident, p.value}
	case types.OpLt:
		return column + " < ?", []any{ident, p.value}
	case types.OpLte:
		return column + " <= ?", []any{ident, p.value}
	case types.OpLike:
		return likeSensitive(d, ident, fmt.Sprint(p.value))
	case types.OpILike:
		return likeInsensitive(d, ident, fmt.Sprint(p.value))
	case types.OpContains:
		return likeInsensitive(d, ident, "%"+fmt.Sprint(p.value)+"%")
	case types.OpStartsWith:
		return likeInsensitive(d, ident, fmt.Sprint(p.value)+"%")
	case types.OpEndsWith:
		return likeInsensitive(d, ident, "%"+fmt.Sprint(p.value))
	case types.OpIn:
		if len(p.values) == 0 {
			return "1 = 0", nil
		}
		return column + " IN (?)", []any{ident, bun.In(p.values)}
	case types.OpNotIn:
		return column + " NOT IN (?)", []any{ident, bun.In(p.values)}
	case types.OpIsNull:
		return column + " IS NULL", []any{ident}
	case types.OpIsNotNull:
		return column + " IS NOT NULL", []any{ident}
	case types.OpBetween:
		return column + " BETWEEN ? AND ?", []any{ident, p.values[0], p.values[1]}
	}
	// compile never produces other operators
	panic(fmt.Sprintf("query: unsupported operator %q", p.op))
}

// likeSensitive renders a case-sensitive pattern match. sqlite's LIKE ignores
// ASCII case, so it uses GLOB with the pattern translated.
func likeSensitive(d dialect.Name, ident bun.Ident, pattern string) (string, []any) {
	switch d {
	case dialect.SQLite:
		return column + " GLOB ?", []any{ident, likeToGlob(pattern)}
	case dialect.MySQL:
		return column + " LIKE BINARY ?", []any{ident, pattern}
	default:
		return column + " LIKE ?", []any{ident, pattern}
	}
}

func likeInsensitive(d dialect.Name, ident bun.Ident, pattern string) (string, []any) {
	if d == dialect.PG {
		return column + " ILIKE ?", []any{ident, pattern}
	}
	return "LOWER(" + column + ") LIKE LOWER(?)", []any{ident, pattern}
}

// likeToGlob rewrites % and _ wildcards and quotes GLOB metacharacters.
func likeToGlob(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteByte('*')
		case '_':
			b.WriteByte('?')
		case '*', '?', '[':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
