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

package testspec

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomoncle/testspec/database"
	"github.com/tomoncle/testspec/model"
	"github.com/tomoncle/testspec/repository"
	"github.com/tomoncle/testspec/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = filepath.Join(t.TempDir(), "store")
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.RetryConfig.BaseDelay = time.Millisecond
	cfg.RetryConfig.MaxDelay = time.Millisecond
	cfg.QueryConfig = database.QueryConfig{DefaultPageSize: 2, MaxPageSize: 5}
	s, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	if _, err := Open(context.Background(), nil, nil); err == nil {
		t.Fatal("nil config accepted")
	}
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "postgres"
	cfg.ConnectionConfig.DBName = "testspec"
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("postgres config without host accepted")
	}
}

func TestInTransactionCommitsAcrossRepositories(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var spec model.TestSpecification
	err := s.InTransaction(ctx, func(ctx context.Context, sess *repository.Session) error {
		cat := &model.RequirementCategory{Name: "uds"}
		if err := s.RequirementCategories.Create(ctx, sess, cat); err != nil {
			return err
		}
		req := &model.Requirement{Title: "REQ-1", Description: "read DTC", CategoryID: cat.ID, Source: "OEM"}
		if err := s.Requirements.Create(ctx, sess, req); err != nil {
			return err
		}
		spec = model.TestSpecification{Name: "read DTC", Description: "reads DTCs", FunctionalArea: types.FunctionalAreaUDS}
		if err := s.TestSpecifications.Create(ctx, sess, &spec); err != nil {
			return err
		}
		return s.TestSpecifications.AddRequirement(ctx, sess, spec.ID, req.ID)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	got, err := s.TestSpecifications.GetWithRelationships(ctx, nil, spec.ID, "Requirements")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Requirements) != 1 || got.Requirements[0].Title != "REQ-1" {
		t.Fatalf("requirements = %+v", got.Requirements)
	}
}

func TestInTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	boom := errors.New("boom")

	err := s.InTransaction(ctx, func(ctx context.Context, sess *repository.Session) error {
		if err := s.CommandCategories.Create(ctx, sess, &model.CommandCategory{Name: "io"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if n, err := s.CommandCategories.CountActive(ctx, nil); err != nil || n != 0 {
		t.Fatalf("active = %d, %v", n, err)
	}
}

func TestInTransactionWithRetry(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	attempts := 0
	err := s.InTransactionWithRetry(ctx, func(ctx context.Context, sess *repository.Session) error {
		attempts++
		if err := s.ParameterCategories.Create(ctx, sess, &model.ParameterCategory{Name: "timing"}); err != nil {
			return err
		}
		if attempts == 1 {
			return database.ErrTransient
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Fatalf("err = %v after %d attempts", err, attempts)
	}
	if _, err := s.ParameterCategories.GetByName(ctx, nil, "timing"); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestStoreAppliesQueryConfig(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for _, name := range []string{"a", "b", "c"} {
		if err := s.CommandCategories.Create(ctx, nil, &model.CommandCategory{Name: name}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	page, err := s.CommandCategories.Find(ctx, nil, s.CommandCategories.Query().AddSort(types.Asc("name")).Spec())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if page.Total != 3 || page.PageSize != 2 || len(page.Items) != 2 || page.Items[0].Name != "a" {
		t.Fatalf("page = total %d size %d items %d", page.Total, page.PageSize, len(page.Items))
	}
	if h := s.Health(ctx); !h.Healthy {
		t.Fatalf("health = %+v", h)
	}
}
