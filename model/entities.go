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
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tomoncle/testspec/types"
)

type RequirementCategory struct {
	bun.BaseModel `bun:"table:requirement_categories,alias:rc"`
	BaseEntity

	Name        string  `bun:"name,notnull,unique" json:"name"`
	Description *string `bun:"description" json:"description,omitempty"`

	Requirements []*Requirement `bun:"rel:has-many,join:id=category_id" json:"requirements,omitempty"`
}

type Requirement struct {
	bun.BaseModel `bun:"table:requirements,alias:r"`
	BaseEntity

	Title       string           `bun:"title,notnull" json:"title"`
	Description string           `bun:"description,notnull" json:"description"`
	CategoryID  uuid.UUID        `bun:"category_id,notnull,type:varchar(36)" json:"category_id"`
	Source      string           `bun:"source,notnull" json:"source"`
	Metadata    types.JsonObject `bun:"metadata,type:text" json:"metadata,omitempty"`

	Category           *RequirementCategory `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
	TestSpecifications []*TestSpecification `bun:"m2m:test_specification_requirements,join:Requirement=TestSpecification" json:"test_specifications,omitempty"`
}

type ParameterCategory struct {
	bun.BaseModel `bun:"table:parameter_categories,alias:pc"`
	BaseEntity

	Name        string  `bun:"name,notnull,unique" json:"name"`
	Description *string `bun:"description" json:"description,omitempty"`

	Parameters []*Parameter `bun:"rel:has-many,join:id=category_id" json:"parameters,omitempty"`
}

type Parameter struct {
	bun.BaseModel `bun:"table:parameters,alias:p"`
	BaseEntity

	Name         string    `bun:"name,notnull,unique" json:"name"`
	CategoryID   uuid.UUID `bun:"category_id,notnull,type:varchar(36)" json:"category_id"`
	HasVariants  bool      `bun:"has_variants,notnull" json:"has_variants"`
	DefaultValue *string   `bun:"default_value" json:"default_value,omitempty"`
	Description  *string   `bun:"description" json:"description,omitempty"`

	Category *ParameterCategory  `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
	Variants []*ParameterVariant `bun:"rel:has-many,join:id=parameter_id" json:"variants,omitempty"`
}

// ParameterVariant is the value a parameter takes for one manufacturer.
type ParameterVariant struct {
	bun.BaseModel `bun:"table:parameter_variants,alias:pv"`
	BaseEntity

	ParameterID  uuid.UUID `bun:"parameter_id,notnull,type:varchar(36)" json:"parameter_id"`
	Manufacturer string    `bun:"manufacturer,notnull" json:"manufacturer"`
	Value        string    `bun:"value,notnull" json:"value"`
	Description  *string   `bun:"description" json:"description,omitempty"`

	Parameter *Parameter `bun:"rel:belongs-to,join:parameter_id=id" json:"parameter,omitempty"`
}

type CommandCategory struct {
	bun.BaseModel `bun:"table:command_categories,alias:cc"`
	BaseEntity

	Name        string  `bun:"name,notnull,unique" json:"name"`
	Description *string `bun:"description" json:"description,omitempty"`

	Commands []*GenericCommand `bun:"rel:has-many,join:id=category_id" json:"commands,omitempty"`
}

// GenericCommand is a command template with {placeholders} filled from
// parameters.
type GenericCommand struct {
	bun.BaseModel `bun:"table:generic_commands,alias:gc"`
	BaseEntity

	Template             string           `bun:"template,notnull" json:"template"`
	CategoryID           uuid.UUID        `bun:"category_id,notnull,type:varchar(36)" json:"category_id"`
	Description          *string          `bun:"description" json:"description,omitempty"`
	RequiredParameterIDs types.StringList `bun:"required_parameter_ids,type:text" json:"required_parameter_ids"`

	Category *CommandCategory `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
}

type TestSpecification struct {
	bun.BaseModel `bun:"table:test_specifications,alias:ts"`
	BaseEntity

	Name                string               `bun:"name,notnull" json:"name"`
	Description         string               `bun:"description,notnull" json:"description"`
	Precondition        *string              `bun:"precondition" json:"precondition,omitempty"`
	Postcondition       *string              `bun:"postcondition" json:"postcondition,omitempty"`
	TestDataDescription types.JsonObject     `bun:"test_data_description,type:text" json:"test_data_description,omitempty"`
	FunctionalArea      types.FunctionalArea `bun:"functional_area,notnull,type:varchar(32)" json:"functional_area"`

	Requirements []*Requirement `bun:"m2m:test_specification_requirements,join:TestSpecification=Requirement" json:"requirements,omitempty"`
	TestSteps    []*TestStep    `bun:"rel:has-many,join:id=test_specification_id" json:"test_steps,omitempty"`
}

// TestStep is one ordered action of a test specification and its expected
// result, both references to generic commands.
type TestStep struct {
	bun.BaseModel `bun:"table:test_steps,alias:tst"`
	BaseEntity

	TestSpecificationID uuid.UUID        `bun:"test_specification_id,notnull,type:varchar(36)" json:"test_specification_id"`
	Action              types.JsonObject `bun:"action,type:text" json:"action"`
	ExpectedResult      types.JsonObject `bun:"expected_result,type:text" json:"expected_result"`
	Description         *string          `bun:"description" json:"description,omitempty"`
	SequenceNumber      int              `bun:"sequence_number,notnull" json:"sequence_number"`

	TestSpecification *TestSpecification `bun:"rel:belongs-to,join:test_specification_id=id" json:"test_specification,omitempty"`
}

// TestSpecificationRequirement links test specifications and requirements.
type TestSpecificationRequirement struct {
	bun.BaseModel `bun:"table:test_specification_requirements,alias:tsr"`

	TestSpecificationID uuid.UUID          `bun:"test_specification_id,pk,type:varchar(36)"`
	TestSpecification   *TestSpecification `bun:"rel:belongs-to,join:test_specification_id=id"`
	RequirementID       uuid.UUID          `bun:"requirement_id,pk,type:varchar(36)"`
	Requirement         *Requirement       `bun:"rel:belongs-to,join:requirement_id=id"`
}
