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

import "strings"

const (
	DefaultPageSize    = 100
	DefaultMaxPageSize = 1000
)

// PaginationParams is a validated page window. Out-of-range input is clamped
// rather than rejected.
type PaginationParams struct {
	page     int
	pageSize int
}

// NewPaginationParams clamps page to >= 1 and pageSize to [1, maxPageSize].
// A maxPageSize < 1 falls back to DefaultMaxPageSize.
func NewPaginationParams(page, pageSize, maxPageSize int) PaginationParams {
	if maxPageSize < 1 {
		maxPageSize = DefaultMaxPageSize
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return PaginationParams{page: page, pageSize: pageSize}
}

// NewDefaultPaginationParams returns the first page with the default size.
func NewDefaultPaginationParams() PaginationParams {
	return NewPaginationParams(1, DefaultPageSize, DefaultMaxPageSize)
}

func (p PaginationParams) GetPage() int { return p.page }

func (p PaginationParams) GetPageSize() int { return p.pageSize }

func (p PaginationParams) GetOffset() int { return (p.page - 1) * p.pageSize }

// SearchParams is a free-text query matched against several fields at once.
type SearchParams struct {
	Query         string
	Fields        []string
	CaseSensitive bool
	ExactMatch    bool
}

// NewSearchParams trims the query text.
func NewSearchParams(query string, fields ...string) SearchParams {
	return SearchParams{Query: strings.TrimSpace(query), Fields: fields}
}

// IsEmpty reports whether the search contributes no predicate.
func (s SearchParams) IsEmpty() bool {
	return strings.TrimSpace(s.Query) == "" || len(s.Fields) == 0
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int
	Items    []*T
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{page, pageSize, 0, make([]*T, 0)}
}

func (p *Pagination[T]) TotalPages() int {
	if p.PageSize < 1 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

func (p *Pagination[T]) HasNext() bool {
	return p.Page < p.TotalPages()
}
