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
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultBusyTimeout    = 5 * time.Second
)

// backend knows how to reach one database type.
type backend struct {
	driver  string
	dsn     func(cfg *ConnectionConfig) (string, error)
	dialect func() schema.Dialect
}

var backends = map[string]backend{
	"mysql":      {driver: "mysql", dsn: mysqlDSN, dialect: func() schema.Dialect { return mysqldialect.New() }},
	"postgres":   {driver: "postgres", dsn: postgresDSN, dialect: func() schema.Dialect { return pgdialect.New() }},
	"postgresql": {driver: "postgres", dsn: postgresDSN, dialect: func() schema.Dialect { return pgdialect.New() }},
	"sqlite":     {driver: sqliteshim.ShimName, dsn: sqliteDSN, dialect: func() schema.Dialect { return sqlitedialect.New() }},
	"sqlite3":    {driver: sqliteshim.ShimName, dsn: sqliteDSN, dialect: func() schema.Dialect { return sqlitedialect.New() }},
}

func backendFor(dbType string) (backend, error) {
	b, ok := backends[dbType]
	if !ok {
		return backend{}, fmt.Errorf("unsupported database type: %s", dbType)
	}
	return b, nil
}

func connectTimeout(cfg *ConnectionConfig) time.Duration {
	if cfg.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return cfg.ConnectTimeout
}

// mysqlDSN reads times as UTC, matching how entities stamp them.
func mysqlDSN(cfg *ConnectionConfig) (string, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = connectTimeout(cfg)
	mc.ReadTimeout = cfg.ReadTimeout
	mc.WriteTimeout = cfg.WriteTimeout
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN(), nil
}

func postgresDSN(cfg *ConnectionConfig) (string, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(int(connectTimeout(cfg).Seconds())))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.DBName,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// sqliteDSN enables foreign keys, WAL journaling and a busy timeout. Both
// pragma spellings are given because sqliteshim may pick either the cgo or the
// pure Go driver. The directory of the database file is created on demand.
func sqliteDSN(cfg *ConnectionConfig) (string, error) {
	if dir := filepath.Dir(cfg.DBName); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	ms := busy.Milliseconds()
	return fmt.Sprintf("file:%s.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)"+
		"&_foreign_keys=1&_journal_mode=WAL&_busy_timeout=%d", cfg.DBName, ms, ms), nil
}
