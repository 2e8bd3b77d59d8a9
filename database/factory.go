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
	"errors"
	"fmt"
	"time"

	"github.com/tomoncle/testspec/utils"
	"github.com/uptrace/bun"
)

// BaseDatabaseFactory ties a validated Config to the manager built from it.
type BaseDatabaseFactory struct {
	config  *Config
	manager AbstractDatabaseManager
	logger  Logger
}

// Open applies environment overrides to cfg, validates it, connects and
// bootstraps the schema of registry. Foreign keys come from the configured
// file, or from defaultFKs when no file is set. A nil logger configures the
// utils loggers from cfg.LogConfig and logs as "DATABASE".
// The caller owns the returned factory and must Close it.
func Open(ctx context.Context, cfg *Config, registry ModelRegistry, defaultFKs []ForeignKeyConstraint, logger Logger) (*BaseDatabaseFactory, error) {
	if cfg == nil {
		return nil, errors.New("database configuration cannot be empty")
	}
	OverrideFromEnv(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		utils.ConfigureLogLevel(cfg.LogConfig.Level)
		utils.ConfigureConsoleLogFormat(cfg.LogConfig.Format)
		logger = NewLogger("DATABASE")
	}

	manager := NewDatabaseManager(&cfg.ConnectionConfig)
	manager.SetLogger(logger)
	f := &BaseDatabaseFactory{config: cfg, manager: manager, logger: logger}
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := f.bootstrap(ctx, registry, defaultFKs); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database ready", "type", cfg.ConnectionConfig.Type)
	return f, nil
}

func (f *BaseDatabaseFactory) bootstrap(ctx context.Context, registry ModelRegistry, defaultFKs []ForeignKeyConstraint) error {
	if registry == nil {
		return nil
	}
	sc := f.config.SchemaConfig
	if !sc.CreateTables {
		// Relations still need the join models registered.
		f.manager.GetDB().RegisterModel(registry.Instances()...)
		return nil
	}
	var fks []ForeignKeyConstraint
	switch {
	case !sc.EnableForeignKey:
	case sc.ForeignKeyFile != "":
		loaded, err := LoadForeignKeys(sc.ForeignKeyFile)
		if err != nil {
			return err
		}
		fks = loaded
	default:
		fks = defaultFKs
	}
	return f.manager.EnsureSchema(ctx, registry, fks)
}

func (f *BaseDatabaseFactory) Manager() AbstractDatabaseManager { return f.manager }

// Config returns cfg as validated by Open, environment overrides included.
func (f *BaseDatabaseFactory) Config() *Config { return f.config }

func (f *BaseDatabaseFactory) GetDB() *bun.DB { return f.manager.GetDB() }

func (f *BaseDatabaseFactory) Close() error { return f.manager.Disconnect() }

func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f == nil || f.manager == nil {
		return &HealthStatus{LastError: errNotConnected.Error(), LastCheckTime: time.Now()}
	}
	return f.manager.HealthCheck(ctx)
}

func (f *BaseDatabaseFactory) GetStats() *DBStats { return f.manager.GetStats() }
