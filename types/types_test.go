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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPaginationParams(t *testing.T) {
	cases := []struct {
		name               string
		page, size, max    int
		wantPage, wantSize int
		wantOffset         int
	}{
		{"second page", 2, 10, 1000, 2, 10, 10},
		{"third page", 3, 10, 1000, 3, 10, 20},
		{"page below one", 0, 10, 1000, 1, 10, 0},
		{"size above max", 1, 5000, 1000, 1, 1000, 0},
		{"size below one", 4, 0, 1000, 4, 1, 3},
		{"default max", 2, 2000, 0, 2, DefaultMaxPageSize, DefaultMaxPageSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPaginationParams(tc.page, tc.size, tc.max)
			if p.GetPage() != tc.wantPage || p.GetPageSize() != tc.wantSize || p.GetOffset() != tc.wantOffset {
				t.Fatalf("got page=%d size=%d offset=%d, want %d/%d/%d",
					p.GetPage(), p.GetPageSize(), p.GetOffset(), tc.wantPage, tc.wantSize, tc.wantOffset)
			}
		})
	}
}

func TestSearchParamsTrim(t *testing.T) {
	s := NewSearchParams("  brake  ", "title")
	if s.Query != "brake" {
		t.Fatalf("query not trimmed: %q", s.Query)
	}
	if s.IsEmpty() {
		t.Fatalf("search with text and fields reported empty")
	}
	if !NewSearchParams("   ", "title").IsEmpty() {
		t.Fatalf("blank search should be empty")
	}
	if !NewSearchParams("brake").IsEmpty() {
		t.Fatalf("search without fields should be empty")
	}
}

func TestParseFilterOperator(t *testing.T) {
	op, ok := ParseFilterOperator(" NOT_IN ")
	if !ok || op != OpNotIn {
		t.Fatalf("got %q ok=%v", op, ok)
	}
	if _, ok := ParseFilterOperator("approx"); ok {
		t.Fatalf("unknown operator accepted")
	}
	if FilterOperator("approx").String() != IllegalName {
		t.Fatalf("invalid operator should stringify as %q", IllegalName)
	}
	if OpBetween.Desc() != "inclusive range" {
		t.Fatalf("unexpected desc %q", OpBetween.Desc())
	}
}

func TestFilterConditionWellFormed(t *testing.T) {
	cases := []struct {
		cond FilterCondition
		want bool
	}{
		{Between("score", 1, 5), true},
		{FilterCondition{Field: "score", Operator: OpBetween, Values: []any{1}}, false},
		{FilterCondition{Field: "score", Operator: OpBetween, Values: []any{1, 2, 3}}, false},
		{In("name"), true},
		{NotIn("name"), true},
		{In("name", "a"), true},
		{NotIn("name", "a", "b"), true},
		{Eq("name", "a"), true},
		{IsNull("name"), true},
		{NewFilter("name", "approx", 1), false},
	}
	for i, tc := range cases {
		if got := tc.cond.WellFormed(); got != tc.want {
			t.Errorf("case %d (%s): got %v want %v", i, tc.cond.Operator, got, tc.want)
		}
	}
}

func TestDateRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	got := DateRange("created_at", &from, &to)
	want := []FilterCondition{Gte("created_at", from), Lte("created_at", to)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("date range mismatch (-want +got):\n%s", diff)
	}
	if open := DateRange("created_at", nil, &to); len(open) != 1 || open[0].Operator != OpLte {
		t.Fatalf("open lower bound: %+v", open)
	}
}

func TestQuerySpecIsImmutable(t *testing.T) {
	filters := []FilterCondition{In("name", "a", "b")}
	search := NewSearchParams("x", "name")
	spec := NewQuerySpec(filters, []SortCondition{Desc("score")}, &search, nil, []string{"Category"}, true)

	filters[0].Values[0] = "changed"
	search.Fields[0] = "changed"

	got := spec.Filters()
	if got[0].Values[0] != "a" {
		t.Fatalf("spec observed caller mutation: %v", got[0].Values)
	}
	got[0].Field = "mutated"
	if spec.Filters()[0].Field != "name" {
		t.Fatalf("spec observed accessor mutation")
	}
	s, ok := spec.Search()
	if !ok || s.Fields[0] != "name" {
		t.Fatalf("search copy not isolated: %+v", s)
	}
	if _, ok := spec.Pagination(); ok {
		t.Fatalf("pagination should be absent")
	}
	if !spec.Distinct() {
		t.Fatalf("distinct flag lost")
	}
}

func TestPaginationTotals(t *testing.T) {
	p := NewDefaultPagination[struct{}](2, 10)
	p.Total = 25
	if p.TotalPages() != 3 || !p.HasNext() {
		t.Fatalf("pages=%d hasNext=%v", p.TotalPages(), p.HasNext())
	}
}

func TestJsonColumnsScanTextAndBytes(t *testing.T) {
	var obj JsonObject
	if err := obj.Scan(`{"source":"ISO"}`); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if obj["source"] != "ISO" {
		t.Fatalf("got %v", obj)
	}
	var ids StringList
	if err := ids.Scan([]byte(`["a","b"]`)); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if diff := cmp.Diff(StringList{"a", "b"}, ids); diff != "" {
		t.Fatalf("ids mismatch:\n%s", diff)
	}
	if err := ids.Scan(42); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
