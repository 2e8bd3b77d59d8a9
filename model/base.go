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

package model

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultCreatedBy is recorded for rows created without an author.
const DefaultCreatedBy = "system"

// BaseEntity holds the columns every entity table carries.
type BaseEntity struct {
	ID        uuid.UUID `bun:"id,pk,type:varchar(36)" json:"id"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
	CreatedBy string    `bun:"created_by,notnull" json:"created_by"`
	IsActive  bool      `bun:"is_active,notnull" json:"is_active"`
}

var _ bun.BeforeAppendModelHook = (*BaseEntity)(nil)

// BeforeAppendModel stamps rows as they are written. An insert without an ID
// is a new entity: it gets an ID and is marked active. Missing timestamps and
// author are filled on every insert; updates refresh updated_at.
func (e *BaseEntity) BeforeAppendModel(_ context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
			e.IsActive = true
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = e.CreatedAt
		}
		if e.CreatedBy == "" {
			e.CreatedBy = DefaultCreatedBy
		}
	case *bun.UpdateQuery:
		e.UpdatedAt = now
	}
	return nil
}
