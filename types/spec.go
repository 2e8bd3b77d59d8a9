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

import "slices"

// QuerySpec is the frozen description of a query: AND-ed filters, ordered
// sorts, an optional search and page window, eager-loaded relations and the
// distinct flag. Accessors return copies, so a QuerySpec never changes after
// it has been built.
type QuerySpec struct {
	filters    []FilterCondition
	sorts      []SortCondition
	search     *SearchParams
	pagination *PaginationParams
	relations  []string
	distinct   bool
}

// NewQuerySpec copies its inputs.
func NewQuerySpec(filters []FilterCondition, sorts []SortCondition, search *SearchParams,
	pagination *PaginationParams, relations []string, distinct bool) QuerySpec {
	spec := QuerySpec{
		filters:   cloneFilters(filters),
		sorts:     slices.Clone(sorts),
		relations: slices.Clone(relations),
		distinct:  distinct,
	}
	if search != nil {
		s := *search
		s.Fields = slices.Clone(search.Fields)
		spec.search = &s
	}
	if pagination != nil {
		p := *pagination
		spec.pagination = &p
	}
	return spec
}

func (s QuerySpec) Filters() []FilterCondition { return cloneFilters(s.filters) }

func (s QuerySpec) Sorts() []SortCondition { return slices.Clone(s.sorts) }

func (s QuerySpec) Relations() []string { return slices.Clone(s.relations) }

func (s QuerySpec) Distinct() bool { return s.distinct }

func (s QuerySpec) Search() (SearchParams, bool) {
	if s.search == nil {
		return SearchParams{}, false
	}
	out := *s.search
	out.Fields = slices.Clone(s.search.Fields)
	return out, true
}

func (s QuerySpec) Pagination() (PaginationParams, bool) {
	if s.pagination == nil {
		return PaginationParams{}, false
	}
	return *s.pagination, true
}

func cloneFilters(in []FilterCondition) []FilterCondition {
	if in == nil {
		return nil
	}
	out := make([]FilterCondition, len(in))
	for i, f := range in {
		f.Values = slices.Clone(f.Values)
		out[i] = f
	}
	return out
}
