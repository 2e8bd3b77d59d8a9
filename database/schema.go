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
	"fmt"
	"reflect"

	"github.com/uptrace/bun"
)

// CreateTables registers the models of registry with db, then creates every
// model's table if it does not exist, in priority order, declaring the
// foreign keys of fks inline. Join models of m2m relations must be part of
// registry.
func CreateTables(ctx context.Context, db *bun.DB, registry ModelRegistry, fks []ForeignKeyConstraint, logger Logger) error {
	logger = LoggerOrNop(logger)
	if err := ValidateConstraints(fks); err != nil {
		return fmt.Errorf("invalid foreign key constraints: %w", err)
	}
	db.RegisterModel(registry.Instances()...)
	for _, model := range registry.Models() {
		instance := model.Instance()
		typ := reflect.TypeOf(instance)
		if typ.Kind() == reflect.Ptr {
			typ = typ.Elem()
		}
		table := db.Table(typ)

		query := db.NewCreateTable().Model(instance).IfNotExists()
		for _, fk := range ConstraintsForTable(fks, table.Name) {
			clause, args := fk.Clause()
			query = query.ForeignKey(clause, args...)
		}
		if _, err := query.Exec(ctx); err != nil {
			return Classify("create table "+table.Name, err)
		}
		logger.Debug("Table ensured", "table", table.Name, "priority", model.Priority())
	}
	return nil
}
