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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

// ForeignKeyConstraint declares Table.Column as a reference to
// ReferenceTable.ReferenceColumn. OnDelete is one of CASCADE, RESTRICT,
// SET NULL and NO ACTION in any case.
type ForeignKeyConstraint struct {
	Table           string `yaml:"table" validate:"required"`
	Column          string `yaml:"column" validate:"required"`
	ReferenceTable  string `yaml:"reference_table" validate:"required"`
	ReferenceColumn string `yaml:"reference_column" validate:"required"`
	OnDelete        string `yaml:"on_delete" validate:"omitempty,oneof=CASCADE RESTRICT SET_NULL NO_ACTION"`
	ConstraintName  string `yaml:"constraint_name"`
}

// Name returns ConstraintName, or fk_<table>_<column> when it is empty.
func (fk *ForeignKeyConstraint) Name() string {
	if fk.ConstraintName == "" {
		return "fk_" + fk.Table + "_" + fk.Column
	}
	return fk.ConstraintName
}

// Clause returns the arguments of bun's CreateTableQuery.ForeignKey, which
// prepends "FOREIGN KEY" itself.
func (fk *ForeignKeyConstraint) Clause() (string, []interface{}) {
	args := []interface{}{bun.Ident(fk.Column), bun.Ident(fk.ReferenceTable), bun.Ident(fk.ReferenceColumn)}
	if fk.OnDelete == "" {
		return "(?) REFERENCES ? (?)", args
	}
	return "(?) REFERENCES ? (?) ON DELETE " + strings.ToUpper(fk.OnDelete), args
}

// LoadForeignKeys reads a YAML document with a top-level foreign_keys list.
func LoadForeignKeys(path string) ([]ForeignKeyConstraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key file: %w", err)
	}
	var doc struct {
		ForeignKeys []ForeignKeyConstraint `yaml:"foreign_keys"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse foreign key file: %w", err)
	}
	if err := ValidateConstraints(doc.ForeignKeys); err != nil {
		return nil, fmt.Errorf("invalid foreign key file %s: %w", path, err)
	}
	return doc.ForeignKeys, nil
}

// ConstraintsForTable filters constraints by table name, ignoring case.
func ConstraintsForTable(constraints []ForeignKeyConstraint, table string) []ForeignKeyConstraint {
	var out []ForeignKeyConstraint
	for _, fk := range constraints {
		if strings.EqualFold(fk.Table, table) {
			out = append(out, fk)
		}
	}
	return out
}

// ValidateConstraints returns every problem found in constraints, joined.
func ValidateConstraints(constraints []ForeignKeyConstraint) error {
	var errs []error
	for _, fk := range constraints {
		normalized := fk
		normalized.OnDelete = strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(fk.OnDelete)), " ", "_")
		if err := validate.Struct(normalized); err != nil {
			errs = append(errs, fmt.Errorf("constraint %s: %w", fk.Name(), err))
		}
	}
	return errors.Join(errs...)
}
