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

// IllegalName is returned by String for values outside an enum's range.
const IllegalName = "unknown"

// BaseEnum is the contract shared by the string enums used in query specs.
type BaseEnum interface {
	IsValid() bool
	String() string
	Desc() string
}

// SortDirection orders a sort key ascending or descending.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

var _ BaseEnum = Ascending

// ParseSortDirection accepts "asc"/"desc" in any case. Anything else is
// reported as invalid.
func ParseSortDirection(s string) (SortDirection, bool) {
	d := SortDirection(strings.ToLower(strings.TrimSpace(s)))
	return d, d.IsValid()
}

func (d SortDirection) IsValid() bool {
	return d == Ascending || d == Descending
}

func (d SortDirection) String() string {
	if !d.IsValid() {
		return IllegalName
	}
	return string(d)
}

func (d SortDirection) Desc() string {
	switch d {
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	default:
		return IllegalName
	}
}

// SQL returns the keyword used in an ORDER BY clause.
func (d SortDirection) SQL() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// FunctionalArea classifies a test specification.
type FunctionalArea string

const (
	FunctionalAreaUDS           FunctionalArea = "UDS"
	FunctionalAreaCommunication FunctionalArea = "Communication"
	FunctionalAreaErrorHandler  FunctionalArea = "ErrorHandler"
	FunctionalAreaCyberSecurity FunctionalArea = "CyberSecurity"
)

var _ BaseEnum = FunctionalAreaUDS

func (a FunctionalArea) IsValid() bool {
	switch a {
	case FunctionalAreaUDS, FunctionalAreaCommunication, FunctionalAreaErrorHandler, FunctionalAreaCyberSecurity:
		return true
	}
	return false
}

func (a FunctionalArea) String() string {
	if !a.IsValid() {
		return IllegalName
	}
	return string(a)
}

func (a FunctionalArea) Desc() string {
	switch a {
	case FunctionalAreaUDS:
		return "unified diagnostic services"
	case FunctionalAreaCommunication:
		return "bus communication"
	case FunctionalAreaErrorHandler:
		return "error handling"
	case FunctionalAreaCyberSecurity:
		return "cyber security"
	default:
		return IllegalName
	}
}
