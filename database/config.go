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
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/testspec/utils"
)

var validate = validator.New()

// LoadConfig reads a YAML file over DefaultConfig, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	OverrideFromEnv(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig checks struct tags and the cross-field rules tags cannot
// express.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("database configuration cannot be empty")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !isSQLite(cfg.ConnectionConfig.Type) && cfg.ConnectionConfig.Host == "" {
		return fmt.Errorf("invalid configuration: host is required for %s", cfg.ConnectionConfig.Type)
	}
	if cfg.RetryConfig.MaxDelay > 0 && cfg.RetryConfig.MaxDelay < cfg.RetryConfig.BaseDelay {
		return errors.New("invalid configuration: retry max_delay is below base_delay")
	}
	return nil
}

func isSQLite(dbType string) bool {
	return dbType == "sqlite" || dbType == "sqlite3"
}

// OverrideFromEnv overrides configuration values from environment variables.
// Unset or unparsable variables leave the current value.
func OverrideFromEnv(cfg *Config) {
	overrideConnectionFromEnv(&cfg.ConnectionConfig)

	cfg.QueryConfig.DefaultPageSize = utils.EnvDefaultInt("DB_QUERY_DEFAULT_PAGE_SIZE", cfg.QueryConfig.DefaultPageSize)
	cfg.QueryConfig.MaxPageSize = utils.EnvDefaultInt("DB_QUERY_MAX_PAGE_SIZE", cfg.QueryConfig.MaxPageSize)
	cfg.RetryConfig.MaxRetries = utils.EnvDefaultInt("DB_RETRY_MAX_RETRIES", cfg.RetryConfig.MaxRetries)
	cfg.RetryConfig.BaseDelay = utils.EnvDefaultDuration("DB_RETRY_BASE_DELAY", cfg.RetryConfig.BaseDelay)
	cfg.RetryConfig.MaxDelay = utils.EnvDefaultDuration("DB_RETRY_MAX_DELAY", cfg.RetryConfig.MaxDelay)
	cfg.BulkConfig.BatchSize = utils.EnvDefaultInt("DB_BULK_BATCH_SIZE", cfg.BulkConfig.BatchSize)
	cfg.LogConfig.Level = strings.ToLower(utils.EnvDefaultString("LOG_LEVEL", cfg.LogConfig.Level))
}

func overrideConnectionFromEnv(cfg *ConnectionConfig) {
	// Database connection info
	cfg.Type = utils.EnvDefaultString("DB_TYPE", cfg.Type)
	cfg.Host = utils.EnvDefaultString("DB_HOST", cfg.Host)
	cfg.Port = utils.EnvDefaultInt("DB_PORT", cfg.Port)
	cfg.Username = utils.EnvDefaultString("DB_USERNAME", cfg.Username)
	cfg.Password = utils.EnvDefaultString("DB_PASSWORD", cfg.Password)
	cfg.DBName = utils.EnvDefaultString("DB_NAME", cfg.DBName)
	cfg.SSLMode = utils.EnvDefaultString("DB_SSLMODE", cfg.SSLMode)
	// Connection pool config, durations in seconds
	cfg.MaxIdleConns = utils.EnvDefaultInt("DB_MAX_IDLE_CONNS", cfg.MaxIdleConns)
	cfg.MaxOpenConns = utils.EnvDefaultInt("DB_MAX_OPEN_CONNS", cfg.MaxOpenConns)
	cfg.ConnMaxLifetime = envSeconds("DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime)
	// Reconnect config
	cfg.EnableReconnect = utils.EnvDefaultBool("DB_ENABLE_RECONNECT", cfg.EnableReconnect)
	cfg.ReconnectInterval = envSeconds("DB_RECONNECT_INTERVAL", cfg.ReconnectInterval)
	// Logging config
	cfg.EnableQueryLog = utils.EnvDefaultBool("DB_ENABLE_QUERY_LOG", cfg.EnableQueryLog)
}

func envSeconds(key string, def time.Duration) time.Duration {
	if n := utils.EnvDefaultInt(key, -1); n >= 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
