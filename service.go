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

// Package testspec opens the persistence layer of the test-specification
// domain and hands out its repositories and sessions.
package testspec

import (
	"context"
	"errors"

	"github.com/tomoncle/testspec/database"
	"github.com/tomoncle/testspec/model"
	"github.com/tomoncle/testspec/repository"
	"github.com/tomoncle/testspec/transaction"
)

// Store owns the database connection and one repository per entity. It is
// safe for concurrent use; sessions are not.
type Store struct {
	factory *database.BaseDatabaseFactory
	engine  *transaction.Engine
	logger  database.Logger

	RequirementCategories *repository.CategoryRepository[model.RequirementCategory]
	ParameterCategories   *repository.CategoryRepository[model.ParameterCategory]
	CommandCategories     *repository.CategoryRepository[model.CommandCategory]
	Requirements          *repository.RequirementRepository
	Parameters            *repository.ParameterRepository
	ParameterVariants     *repository.ParameterVariantRepository
	GenericCommands       *repository.GenericCommandRepository
	TestSpecifications    *repository.TestSpecificationRepository
	TestSteps             *repository.TestStepRepository
}

// Open connects with cfg, ensures the schema when cfg asks for it and builds
// the repositories. A nil logger is replaced by named utils loggers.
func Open(ctx context.Context, cfg *database.Config, logger database.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("database configuration cannot be empty")
	}
	if err := database.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	factory, err := database.Open(ctx, cfg, model.Registry(), model.ForeignKeys(), logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = database.NewLogger("TESTSPEC")
	}

	retrier := transaction.NewRetrierFromConfig(cfg.RetryConfig, transaction.RetryWithLogger(logger))
	engine := transaction.NewEngine(factory.GetDB(),
		transaction.WithLogger(logger),
		transaction.WithRetrier(retrier),
		transaction.WithBatchSize(cfg.BulkConfig.BatchSize),
	)
	s := &Store{factory: factory, engine: engine, logger: logger}
	if err := s.build(cfg.QueryConfig); err != nil {
		_ = factory.Close()
		return nil, err
	}
	logger.Info("Store opened", "type", cfg.ConnectionConfig.Type, "tables", len(model.Registry().Models()))
	return s, nil
}

func (s *Store) build(qc database.QueryConfig) (err error) {
	opts := []repository.Option{
		repository.WithLogger(s.logger),
		repository.WithPageSizes(qc.DefaultPageSize, qc.MaxPageSize),
	}
	if s.RequirementCategories, err = repository.NewCategoryRepository[model.RequirementCategory](s.engine, opts...); err != nil {
		return err
	}
	if s.ParameterCategories, err = repository.NewCategoryRepository[model.ParameterCategory](s.engine, opts...); err != nil {
		return err
	}
	if s.CommandCategories, err = repository.NewCategoryRepository[model.CommandCategory](s.engine, opts...); err != nil {
		return err
	}
	if s.Requirements, err = repository.NewRequirementRepository(s.engine, opts...); err != nil {
		return err
	}
	if s.Parameters, err = repository.NewParameterRepository(s.engine, opts...); err != nil {
		return err
	}
	if s.ParameterVariants, err = repository.NewParameterVariantRepository(s.engine, opts...); err != nil {
		return err
	}
	if s.GenericCommands, err = repository.NewGenericCommandRepository(s.engine, opts...); err != nil {
		return err
	}
	if s.TestSpecifications, err = repository.NewTestSpecificationRepository(s.engine, opts...); err != nil {
		return err
	}
	s.TestSteps, err = repository.NewTestStepRepository(s.engine, opts...)
	return err
}

// NewSession starts a transaction session. Hand it to repository calls that
// must share a transaction; a session is owned by one goroutine.
func (s *Store) NewSession() *repository.Session { return s.engine.NewManager() }

// InTransaction runs fn in a root transaction of a fresh session.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, sess *repository.Session) error) error {
	sess := s.NewSession()
	return sess.Do(ctx, false, func(ctx context.Context, _ *transaction.Scope) error {
		return fn(ctx, sess)
	})
}

// InTransactionWithRetry is InTransaction retried on transient failures.
// Each attempt runs in a new transaction.
func (s *Store) InTransactionWithRetry(ctx context.Context, fn func(ctx context.Context, sess *repository.Session) error) error {
	sess := s.NewSession()
	return sess.DoWithRetry(ctx, s.engine.Retrier(), func(ctx context.Context, _ *transaction.Scope) error {
		return fn(ctx, sess)
	})
}

func (s *Store) Engine() *transaction.Engine { return s.engine }

func (s *Store) Health(ctx context.Context) *database.HealthStatus {
	return s.factory.GetHealthStatus(ctx)
}

func (s *Store) Stats() *database.DBStats { return s.factory.GetStats() }

func (s *Store) Close() error {
	s.logger.Info("Store closed")
	return s.factory.Close()
}
