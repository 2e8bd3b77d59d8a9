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

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tomoncle/testspec/database"
	"github.com/tomoncle/testspec/model"
	"github.com/tomoncle/testspec/transaction"
	"github.com/tomoncle/testspec/types"
)

// listWhere returns the active rows matching filters, unpaged.
func (r *Base[T]) listWhere(ctx context.Context, sess *Session, filters []types.FilterCondition, sorts ...types.SortCondition) ([]*T, error) {
	c, err := r.active().AddFilters(filters...).AddSorts(sorts...).Build()
	if err != nil {
		return nil, err
	}
	return r.Fetch(ctx, sess, c)
}

// getBy returns the single active row whose field equals value.
func (r *Base[T]) getBy(ctx context.Context, sess *Session, field string, value any) (*T, error) {
	items, err := r.listWhere(ctx, sess, []types.FilterCondition{types.Eq(field, value)})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s %s=%v", database.ErrNotFound, r.desc.Entity(), field, value)
	}
	return items[0], nil
}

// CategoryRepository serves the three category tables, which share a unique
// name column.
type CategoryRepository[T any] struct {
	*Base[T]
}

func NewCategoryRepository[T any](engine *transaction.Engine, opts ...Option) (*CategoryRepository[T], error) {
	base, err := NewBase[T](engine, opts...)
	if err != nil {
		return nil, err
	}
	return &CategoryRepository[T]{Base: base}, nil
}

func (r *CategoryRepository[T]) GetByName(ctx context.Context, sess *Session, name string) (*T, error) {
	return r.getBy(ctx, sess, "name", name)
}

func (r *CategoryRepository[T]) SearchByName(ctx context.Context, sess *Session, text string, page types.PaginationParams) (*types.Pagination[T], error) {
	return r.Search(ctx, sess, types.NewSearchParams(text, "name", "description"), page)
}

type RequirementRepository struct {
	*Base[model.Requirement]
}

func NewRequirementRepository(engine *transaction.Engine, opts ...Option) (*RequirementRepository, error) {
	base, err := NewBase[model.Requirement](engine, opts...)
	if err != nil {
		return nil, err
	}
	return &RequirementRepository{Base: base}, nil
}

func (r *RequirementRepository) ListByCategory(ctx context.Context, sess *Session, categoryID uuid.UUID) ([]*model.Requirement, error) {
	return r.listWhere(ctx, sess, []types.FilterCondition{types.Eq("category_id", categoryID)}, types.Asc("title"))
}

func (r *RequirementRepository) ListBySource(ctx context.Context, sess *Session, source string) ([]*model.Requirement, error) {
	return r.listWhere(ctx, sess, []types.FilterCondition{types.Eq("source", source)}, types.Asc("title"))
}

type ParameterRepository struct {
	*Base[model.Parameter]
}

func NewParameterRepository(engine *transaction.Engine, opts ...Option) (*ParameterRepository, error) {
	base, err := NewBase[model.Parameter](engine, opts...)
	if err != nil {
		return nil, err
	}
	return &ParameterRepository{Base: base}, nil
}

func (r *ParameterRepository) GetByName(ctx context.Context, sess *Session, name string) (*model.Parameter, error) {
	return r.getBy(ctx, sess, "name", name)
}

func (r *ParameterRepository) ListByCategory(ctx context.Context, sess *Session, categoryID uuid.UUID) ([]*model.Parameter, error) {
	return r.listWhere(ctx, sess, []types.FilterCondition{types.Eq("category_id", categoryID)}, types.Asc("name"))
}

// ListWithVariants returns the parameters flagged as having variants, with
// their variants loaded.
func (r *ParameterRepository) ListWithVariants(ctx context.Context, sess *Session) ([]*model.Parameter, error) {
	c, err := r.active().
		AddFilter(types.Eq("has_variants", true)).
		AddSort(types.Asc("name")).
		AddRelationship("Variants").
		Build()
	if err != nil {
		return nil, err
	}
	return r.Fetch(ctx, sess, c)
}

type ParameterVariantRepository struct {
	*Base[model.ParameterVariant]
}

func NewParameterVariantRepository(engine *transaction.Engine, opts ...Option) (*ParameterVariantRepository, error) {
	base, err := NewBase[model.ParameterVariant](engine, opts...)
	if err != nil {
		return nil, err
	}
	return &ParameterVariantRepository{Base: base}, nil
}

func (r *ParameterVariantRepository) ListByParameter(ctx context.Context, sess *Session, parameterID uuid.UUID) ([]*model.ParameterVariant, error) {
	return r.listWhere(ctx, sess, []types.FilterCondition{types.Eq("parameter_id", parameterID)}, types.Asc("manufacturer"))
}

func (r *ParameterVariantRepository) ListByManufacturer(ctx context.Context, sess *Session, manufacturer string) ([]*model.ParameterVariant, error) {
	return r.listWhere(ctx, sess, []types.FilterCondition{types.Eq("manufacturer", manufacturer)})
}

// Manufacturers returns the distinct manufacturers of the active variants in
// alphabetical order.
func (r *ParameterVariantRepository) Manufacturers(ctx context.Context, sess *Session) ([]string, error) {
	var names []string
	err := r.db(sess).NewSelect().
		Model((*model.ParameterVariant)(nil)).
		ColumnExpr("DISTINCT ?", bun.Ident("manufacturer")).
		Where("? = ?", bun.Ident("is_active"), true).
		OrderExpr("? ASC", bun.Ident("manufacturer")).
		Scan(ctx, &names)
	if err != nil {
		return nil, database.Classify(r.op("list manufacturers"), err)
	}
	return names, nil
}

type GenericCommandRepository struct {
	*Base[model.GenericCommand]
}

func NewGenericCommandRepository(engine *transaction.Engine, opts ...Option) (*GenericCommandRepository, error) {
	base, err := NewBase[model.GenericCommand](engine, opts...)
	if err != nil {
		return nil, err
	}
	return &GenericCommandRepository{Base: base}, nil
}

func (r *GenericCommandRepository) ListByCategory(ctx context.Context, sess *Session, categoryID uuid.UUID) ([]*model.GenericCommand, error) {
	return r.listWhere(ctx, sess, []types.FilterCondition{types.Eq("category_id", categoryID)}, types.Asc("template"))
}

func (r *GenericCommandRepository) SearchByTemplate(ctx context.Context, sess *Session, text string, page types.PaginationParams) (*types.Pagination[model.GenericCommand], error) {
	return r.Search(ctx, sess, types.NewSearchParams(text, "template", "description"), page)
}

type TestSpecificationRepository struct {
	*Base[model.TestSpecification]
}

func NewTestSpecificationRepository(engine *transaction.Engine, opts ...Option) (*TestSpecificationRepository, error) {
	base, err := NewBase[model.TestSpecification](engine, opts...)
	if err != nil {
		return nil, err
	}
	return &TestSpecificationRepository{Base: base}, nil
}

func (r *TestSpecificationRepository) ListByFunctionalArea(ctx context.Context, sess *Session, area types.FunctionalArea) ([]*model.TestSpecification, error) {
	if !area.IsValid() {
		return nil, fmt.Errorf("%w: functional area %q", database.ErrInternal, string(area))
	}
	return r.listWhere(ctx, sess, []types.FilterCondition{types.Eq("functional_area", area)}, types.Asc("name"))
}

// AddRequirement links a requirement to a test specification. Linking twice
// is a no-op.
func (r *TestSpecificationRepository) AddRequirement(ctx context.Context, sess *Session, specID, requirementID uuid.UUID) error {
	link := &model.TestSpecificationRequirement{TestSpecificationID: specID, RequirementID: requirementID}
	if _, err := r.db(sess).NewInsert().Model(link).Ignore().Exec(ctx); err != nil {
		return database.Classify(r.op("link requirement"), err)
	}
	return nil
}

func (r *TestSpecificationRepository) RemoveRequirement(ctx context.Context, sess *Session, specID, requirementID uuid.UUID) error {
	res, err := r.db(sess).NewDelete().
		Model((*model.TestSpecificationRequirement)(nil)).
		Where("? = ?", bun.Ident("test_specification_id"), specID).
		Where("? = ?", bun.Ident("requirement_id"), requirementID).
		Exec(ctx)
	if err != nil {
		return database.Classify(r.op("unlink requirement"), err)
	}
	return r.affected(res, "unlink requirement")
}

type TestStepRepository struct {
	*Base[model.TestStep]
}

func NewTestStepRepository(engine *transaction.Engine, opts ...Option) (*TestStepRepository, error) {
	base, err := NewBase[model.TestStep](engine, opts...)
	if err != nil {
		return nil, err
	}
	return &TestStepRepository{Base: base}, nil
}

// ListBySpecification returns the steps of a test specification in sequence
// order.
func (r *TestStepRepository) ListBySpecification(ctx context.Context, sess *Session, specID uuid.UUID) ([]*model.TestStep, error) {
	return r.listWhere(ctx, sess, []types.FilterCondition{types.Eq("test_specification_id", specID)}, types.Asc("sequence_number"))
}

// NextSequenceNumber returns the sequence number following the last step of
// the specification, 1 for a specification without steps. Run it under a
// lock of the specification row when steps are appended concurrently.
func (r *TestStepRepository) NextSequenceNumber(ctx context.Context, sess *Session, specID uuid.UUID) (int, error) {
	var last sql.NullInt64
	err := r.db(sess).NewSelect().
		Model((*model.TestStep)(nil)).
		ColumnExpr("MAX(?)", bun.Ident("sequence_number")).
		Where("? = ?", bun.Ident("test_specification_id"), specID).
		Scan(ctx, &last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, database.Classify(r.op("next sequence"), err)
	}
	return int(last.Int64) + 1, nil
}
