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
	"database/sql"
	"time"

	"github.com/uptrace/bun"
)

// AbstractDatabaseManager defines the operations for managing a database
// connection, bootstrapping the schema, and reporting health.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	EnsureSchema(ctx context.Context, registry ModelRegistry, fks []ForeignKeyConstraint) error
	GetStats() *DBStats
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes how to connect to a database and tune its pool.
// For sqlite, DBName is the database file path without the ".db" suffix.
type ConnectionConfig struct {
	Type                string        `yaml:"type" validate:"required,oneof=mysql postgres postgresql sqlite sqlite3"`
	Host                string        `yaml:"host"`
	Port                int           `yaml:"port" validate:"gte=0,lte=65535"`
	Username            string        `yaml:"username"`
	Password            string        `yaml:"password"`
	DBName              string        `yaml:"dbname" validate:"required"`
	SSLMode             string        `yaml:"sslmode"`
	MaxIdleConns        int           `yaml:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns        int           `yaml:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	BusyTimeout         time.Duration `yaml:"busy_timeout"`
	EnableReconnect     bool          `yaml:"enable_reconnect"`
	ReconnectInterval   time.Duration `yaml:"reconnect_interval"`
	MaxReconnectTries   int           `yaml:"max_reconnect_tries" validate:"gte=0"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	EnableQueryLog      bool          `yaml:"enable_query_log"`
	SlowQueryTime       time.Duration `yaml:"slow_query_time"`
}

// QueryConfig bounds the page windows accepted by the query compiler.
type QueryConfig struct {
	DefaultPageSize int `yaml:"default_page_size" validate:"gte=1"`
	MaxPageSize     int `yaml:"max_page_size" validate:"gte=1,gtefield=DefaultPageSize"`
}

// RetryConfig parameterises the backoff retry of transient failures.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	BaseDelay  time.Duration `yaml:"base_delay" validate:"gte=0"`
	MaxDelay   time.Duration `yaml:"max_delay" validate:"gte=0"`
}

type BulkConfig struct {
	BatchSize int `yaml:"batch_size" validate:"gte=1"`
}

// SchemaConfig controls table bootstrap on startup.
type SchemaConfig struct {
	CreateTables     bool   `yaml:"create_tables"`
	EnableForeignKey bool   `yaml:"enable_foreign_key"`
	ForeignKeyFile   string `yaml:"foreign_key_file"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Config aggregates every setting of the persistence layer.
type Config struct {
	ConnectionConfig ConnectionConfig `yaml:"connection"`
	QueryConfig      QueryConfig      `yaml:"query"`
	RetryConfig      RetryConfig      `yaml:"retry"`
	BulkConfig       BulkConfig       `yaml:"bulk"`
	SchemaConfig     SchemaConfig     `yaml:"schema"`
	LogConfig        LogConfig        `yaml:"log"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		BusyTimeout:         time.Second * 5,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: time.Minute * 5,
		EnableQueryLog:      false,
		SlowQueryTime:       time.Second * 2,
	}
}

// DefaultConfig returns the defaults LoadConfig starts from.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: *DefaultConnectionConfig(),
		QueryConfig:      QueryConfig{DefaultPageSize: 100, MaxPageSize: 1000},
		RetryConfig:      RetryConfig{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second},
		BulkConfig:       BulkConfig{BatchSize: 1000},
		SchemaConfig:     SchemaConfig{CreateTables: true, EnableForeignKey: true},
		LogConfig:        LogConfig{Level: "info", Format: "text"},
	}
}
