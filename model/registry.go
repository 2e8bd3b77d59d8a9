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

import "github.com/tomoncle/testspec/database"

// Creation priorities: referenced tables first.
const (
	priorityCategory = iota
	priorityEntity
	priorityDependent
	priorityLeaf
)

// Registry returns the models of the test-specification domain in creation
// order.
func Registry() database.ModelRegistry {
	return database.NewModelRegistry(
		database.NewModelAdapter((*RequirementCategory)(nil), priorityCategory),
		database.NewModelAdapter((*ParameterCategory)(nil), priorityCategory),
		database.NewModelAdapter((*CommandCategory)(nil), priorityCategory),
		database.NewModelAdapter((*Requirement)(nil), priorityEntity),
		database.NewModelAdapter((*Parameter)(nil), priorityEntity),
		database.NewModelAdapter((*GenericCommand)(nil), priorityEntity),
		database.NewModelAdapter((*TestSpecification)(nil), priorityEntity),
		database.NewModelAdapter((*ParameterVariant)(nil), priorityDependent),
		database.NewModelAdapter((*TestStep)(nil), priorityDependent),
		database.NewModelAdapter((*TestSpecificationRequirement)(nil), priorityLeaf),
	)
}

// ForeignKeys returns the default constraints between the domain tables.
// Categories cannot be deleted while referenced; children go with their
// parent.
func ForeignKeys() []database.ForeignKeyConstraint {
	fk := func(table, column, ref, onDelete string) database.ForeignKeyConstraint {
		return database.ForeignKeyConstraint{
			Table:           table,
			Column:          column,
			ReferenceTable:  ref,
			ReferenceColumn: "id",
			OnDelete:        onDelete,
		}
	}
	return []database.ForeignKeyConstraint{
		fk("requirements", "category_id", "requirement_categories", "RESTRICT"),
		fk("parameters", "category_id", "parameter_categories", "RESTRICT"),
		fk("generic_commands", "category_id", "command_categories", "RESTRICT"),
		fk("parameter_variants", "parameter_id", "parameters", "CASCADE"),
		fk("test_steps", "test_specification_id", "test_specifications", "CASCADE"),
		fk("test_specification_requirements", "test_specification_id", "test_specifications", "CASCADE"),
		fk("test_specification_requirements", "requirement_id", "requirements", "CASCADE"),
	}
}
