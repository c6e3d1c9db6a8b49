/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Global metrics with consistent dimensions
	evaluationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_dimension_evaluations_total",
			Help: "Total number of dimension evaluations performed",
		},
		[]string{"agent_type", "dimension"},
	)

	failureCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_dimension_failures_total",
			Help: "Total number of dimension evaluations that could not produce a score",
		},
		[]string{"agent_type", "dimension"},
	)

	gradeGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_dimension_score",
			Help: "Most recent normalized dimension score (0.0-1.0)",
		},
		[]string{"agent_type", "dimension"},
	)
)

// MetricsObserver implements Observer interface with Prometheus metrics
type MetricsObserver struct {
	agentType string
	dimension string
	total     atomic.Int64

	evalCounter prometheus.Counter
	failCounter prometheus.Counter
	gradeGauge  prometheus.Gauge
}

// NewMetricsObserver creates a metrics observer for a namespace of the form
// "/{agent_type}/{dimension}". It is meant as the factory of a
// NamespacedObserver; shorter namespaces leave the missing labels empty.
func NewMetricsObserver(namespace string) *MetricsObserver {
	parts := strings.SplitN(strings.Trim(namespace, "/"), "/", 2)
	agentType, dimension := parts[0], ""
	if len(parts) > 1 {
		dimension = parts[1]
	}
	labels := prometheus.Labels{
		"agent_type": agentType,
		"dimension":  dimension,
	}
	return &MetricsObserver{
		agentType:   agentType,
		dimension:   dimension,
		evalCounter: evaluationCounter.With(labels),
		failCounter: failureCounter.With(labels),
		gradeGauge:  gradeGauge.With(labels),
	}
}

// Increment implements Observer.Increment
func (m *MetricsObserver) Increment() {
	m.total.Add(1)
	m.evalCounter.Inc()
}

// Fail implements Observer.Fail
func (m *MetricsObserver) Fail(string) {
	m.failCounter.Inc()
}

// Grade implements Observer.Grade
func (m *MetricsObserver) Grade(score float64, _ string) {
	m.gradeGauge.Set(score)
}

// Log implements Observer.Log (no-op for metrics observer)
func (m *MetricsObserver) Log(string) {}

// Total implements Observer.Total
func (m *MetricsObserver) Total() int64 {
	return m.total.Load()
}
