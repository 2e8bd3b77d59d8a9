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

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "testspec"

// Metrics are recorded whether or not they are registered; registration only
// exposes them.
var (
	transactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "persistence",
		Name:      "transaction_frames_total",
		Help:      "Closed transaction frames by kind (root, savepoint) and outcome (commit, rollback).",
	}, []string{"kind", "outcome"})

	retryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "persistence",
		Name:      "retry_attempts_total",
		Help:      "Retried operation attempts by outcome (success, retry, exhausted, permanent).",
	}, []string{"outcome"})

	lockRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "persistence",
		Name:      "lock_requests_total",
		Help:      "Row lock requests by mode and outcome (acquired, skipped, conflict, not_found).",
	}, []string{"mode", "outcome"})

	bulkRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "persistence",
		Name:      "bulk_rows_total",
		Help:      "Rows affected by bulk operations.",
	}, []string{"operation"})

	droppedConditionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "query",
		Name:      "dropped_conditions_total",
		Help:      "Query conditions dropped at compile time by kind and reason.",
	}, []string{"kind", "reason"})
)

// MustRegisterMetrics registers the persistence metrics on registry.
func MustRegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(
		transactionsTotal,
		retryAttemptsTotal,
		lockRequestsTotal,
		bulkRowsTotal,
		droppedConditionsTotal,
	)
}

func ObserveTransaction(kind, outcome string) {
	transactionsTotal.WithLabelValues(kind, outcome).Inc()
}

func ObserveRetry(outcome string) {
	retryAttemptsTotal.WithLabelValues(outcome).Inc()
}

func ObserveLock(mode, outcome string) {
	lockRequestsTotal.WithLabelValues(mode, outcome).Inc()
}

func ObserveBulkRows(operation string, rows int64) {
	if rows > 0 {
		bulkRowsTotal.WithLabelValues(operation).Add(float64(rows))
	}
}

func ObserveDroppedCondition(kind, reason string) {
	droppedConditionsTotal.WithLabelValues(kind, reason).Inc()
}
