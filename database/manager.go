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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
)

const healthCheckTimeout = 5 * time.Second

var errNotConnected = errors.New("database not connected")

// bunManager owns one bun.DB and keeps it healthy: a background loop pings it
// every HealthCheckInterval and reconnects, up to MaxReconnectTries times in a
// row, when reconnects are enabled.
type bunManager struct {
	config *ConnectionConfig

	mu       sync.RWMutex
	db       *bun.DB
	logger   Logger
	stopLoop context.CancelFunc
	loopDone chan struct{}

	failures int // owned by healthLoop
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun.
// A nil config means DefaultConnectionConfig.
func NewDatabaseManager(config *ConnectionConfig) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	return &bunManager{config: config, logger: LoggerOrNop(nil)}
}

func (m *bunManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return nil
	}
	db, err := m.open(ctx)
	if err != nil {
		return err
	}
	m.db = db
	if m.config.HealthCheckInterval > 0 && m.stopLoop == nil {
		loopCtx, cancel := context.WithCancel(context.Background())
		m.stopLoop = cancel
		m.loopDone = make(chan struct{})
		go m.healthLoop(loopCtx, m.loopDone)
	}
	m.logger.Info("Database connected", "type", m.config.Type, "host", m.config.Host, "dbname", m.config.DBName)
	return nil
}

// open builds and pings a new bun.DB. The caller holds m.mu.
func (m *bunManager) open(ctx context.Context) (*bun.DB, error) {
	b, err := backendFor(m.config.Type)
	if err != nil {
		return nil, err
	}
	dsn, err := b.dsn(m.config)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(b.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(m.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(m.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)

	db := bun.NewDB(sqlDB, b.dialect())
	if m.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.FromEnv("BUNDEBUG")))
	}
	db.AddQueryHook(newQueryHook(m.config.SlowQueryTime, m.logger))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout(m.config))
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database connection test failed: %w", err)
	}
	return db, nil
}

// Disconnect stops the health loop and closes the connection pool.
func (m *bunManager) Disconnect() error {
	m.mu.Lock()
	stop, done := m.stopLoop, m.loopDone
	m.stopLoop, m.loopDone = nil, nil
	m.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *bunManager) closeLocked() error {
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	if err != nil {
		m.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	m.logger.Info("Database connection closed")
	return nil
}

// Reconnect replaces the connection pool, keeping the health loop.
func (m *bunManager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Info("Attempting to reconnect to the database")
	if err := m.closeLocked(); err != nil {
		m.logger.Warn("Error disconnecting existing connection", "error", err)
	}
	db, err := m.open(ctx)
	if err != nil {
		return err
	}
	m.db = db
	return nil
}

func (m *bunManager) Ping(ctx context.Context) error {
	db := m.GetDB()
	if db == nil {
		return errNotConnected
	}
	return db.PingContext(ctx)
}

func (m *bunManager) GetDB() *bun.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

func (m *bunManager) GetSQLDB() *sql.DB {
	if db := m.GetDB(); db != nil {
		return db.DB
	}
	return nil
}

// HealthCheck pings the database and records the outcome.
func (m *bunManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}
	db := m.GetDB()
	if db == nil {
		status.LastError = errNotConnected.Error()
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := db.PingContext(pingCtx)
		cancel()
		status.ResponseTime = time.Since(start)
		status.Healthy = err == nil
		status.Connected = err == nil
		if err != nil {
			status.LastError = err.Error()
		}
		stats := db.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}
	return status
}

func (m *bunManager) healthLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if m.HealthCheck(ctx).Healthy {
			m.failures = 0
			continue
		}
		if !m.config.EnableReconnect {
			continue
		}
		if m.failures >= m.config.MaxReconnectTries {
			m.log().Error("Max reconnect attempts reached", "tries", m.failures)
			continue
		}
		m.failures++
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.config.ReconnectInterval):
		}
		if err := m.Reconnect(ctx); err != nil {
			m.log().Error("Reconnect failed", "error", err, "try", m.failures)
			continue
		}
		m.failures = 0
		m.log().Info("Reconnect succeeded")
	}
}

func (m *bunManager) GetStats() *DBStats {
	db := m.GetDB()
	if db == nil {
		return &DBStats{}
	}
	stats := db.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// EnsureSchema creates the tables of registry that do not exist yet.
func (m *bunManager) EnsureSchema(ctx context.Context, registry ModelRegistry, fks []ForeignKeyConstraint) error {
	db := m.GetDB()
	if db == nil {
		return errNotConnected
	}
	logger := m.log()
	if err := CreateTables(ctx, db, registry, fks, logger); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	logger.Info("Database schema ensured", "tables", len(registry.Models()))
	return nil
}

func (m *bunManager) log() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

func (m *bunManager) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = LoggerOrNop(logger)
}
