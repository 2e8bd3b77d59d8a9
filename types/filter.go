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

package types

import (
	"strings"
	"time"
)

// FilterOperator is a comparison applied to a single entity field.
type FilterOperator string

const (
	OpEq         FilterOperator = "eq"
	OpNe         FilterOperator = "ne"
	OpGt         FilterOperator = "gt"
	OpGte        FilterOperator = "gte"
	OpLt         FilterOperator = "lt"
	OpLte        FilterOperator = "lte"
	OpLike       FilterOperator = "like"
	OpILike      FilterOperator = "ilike"
	OpIn         FilterOperator = "in"
	OpNotIn      FilterOperator = "not_in"
	OpIsNull     FilterOperator = "is_null"
	OpIsNotNull  FilterOperator = "is_not_null"
	OpBetween    FilterOperator = "between"
	OpContains   FilterOperator = "contains"
	OpStartsWith FilterOperator = "starts_with"
	OpEndsWith   FilterOperator = "ends_with"
)

var operatorDesc = map[FilterOperator]string{
	OpEq:         "equal to",
	OpNe:         "not equal to",
	OpGt:         "greater than",
	OpGte:        "greater than or equal to",
	OpLt:         "less than",
	OpLte:        "less than or equal to",
	OpLike:       "case-sensitive pattern match",
	OpILike:      "case-insensitive pattern match",
	OpIn:         "member of",
	OpNotIn:      "not a member of",
	OpIsNull:     "is null",
	OpIsNotNull:  "is not null",
	OpBetween:    "inclusive range",
	OpContains:   "contains substring",
	OpStartsWith: "starts with",
	OpEndsWith:   "ends with",
}

var _ BaseEnum = OpEq

// ParseFilterOperator maps the wire name of an operator ("gte", "not_in", ...)
// to its FilterOperator.
func ParseFilterOperator(s string) (FilterOperator, bool) {
	op := FilterOperator(strings.ToLower(strings.TrimSpace(s)))
	return op, op.IsValid()
}

func (o FilterOperator) IsValid() bool {
	_, ok := operatorDesc[o]
	return ok
}

func (o FilterOperator) String() string {
	if !o.IsValid() {
		return IllegalName
	}
	return string(o)
}

func (o FilterOperator) Desc() string {
	if d, ok := operatorDesc[o]; ok {
		return d
	}
	return IllegalName
}

// FilterCondition is a predicate over one field. Set operators and BETWEEN
// read Values, every other operator reads Value.
type FilterCondition struct {
	Field    string
	Operator FilterOperator
	Value    any
	Values   []any
}

// WellFormed reports whether the condition carries the number of operands its
// operator needs: exactly two for BETWEEN. IN and NOT_IN accept an empty set.
func (c FilterCondition) WellFormed() bool {
	switch c.Operator {
	case OpBetween:
		return len(c.Values) == 2
	case OpIn, OpNotIn:
		return true
	default:
		return c.Operator.IsValid()
	}
}

// NewFilter builds a single-value condition.
func NewFilter(field string, op FilterOperator, value any) FilterCondition {
	return FilterCondition{Field: field, Operator: op, Value: value}
}

func Eq(field string, value any) FilterCondition { return NewFilter(field, OpEq, value) }

func Ne(field string, value any) FilterCondition { return NewFilter(field, OpNe, value) }

func Gte(field string, value any) FilterCondition { return NewFilter(field, OpGte, value) }

func Lte(field string, value any) FilterCondition { return NewFilter(field, OpLte, value) }

func Contains(field string, value string) FilterCondition {
	return NewFilter(field, OpContains, value)
}

func In(field string, values ...any) FilterCondition {
	return FilterCondition{Field: field, Operator: OpIn, Values: values}
}

func NotIn(field string, values ...any) FilterCondition {
	return FilterCondition{Field: field, Operator: OpNotIn, Values: values}
}

func Between(field string, lo, hi any) FilterCondition {
	return FilterCondition{Field: field, Operator: OpBetween, Values: []any{lo, hi}}
}

func IsNull(field string) FilterCondition {
	return FilterCondition{Field: field, Operator: OpIsNull}
}

func IsNotNull(field string) FilterCondition {
	return FilterCondition{Field: field, Operator: OpIsNotNull}
}

// TextSearch matches a substring of field. Case-sensitive searches use LIKE,
// the others ILIKE.
func TextSearch(field, text string, caseSensitive bool) FilterCondition {
	if caseSensitive {
		return NewFilter(field, OpLike, "%"+text+"%")
	}
	return NewFilter(field, OpILike, "%"+text+"%")
}

// DateRange returns the bounds present as GTE/LTE conditions. A nil bound is
// left open.
func DateRange(field string, from, to *time.Time) []FilterCondition {
	filters := make([]FilterCondition, 0, 2)
	if from != nil {
		filters = append(filters, Gte(field, *from))
	}
	if to != nil {
		filters = append(filters, Lte(field, *to))
	}
	return filters
}

// SortCondition orders results by one field. Conditions apply in the order
// they are given, later ones breaking ties of earlier ones.
type SortCondition struct {
	Field     string
	Direction SortDirection
}

func Asc(field string) SortCondition { return SortCondition{Field: field, Direction: Ascending} }

func Desc(field string) SortCondition { return SortCondition{Field: field, Direction: Descending} }
