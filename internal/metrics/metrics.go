// Copyright (c) 2025-present deep.rent GmbH (https://www.deep.rent)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes gate counters in the Prometheus exposition format.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gate's collectors on a private registry.
type Metrics struct {
	registry       *prometheus.Registry
	decisions      *prometheus.CounterVec
	attempts       *prometheus.CounterVec
	settingsErrors prometheus.Counter
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitegate_decisions_total",
				Help: "Gate decisions by reason",
			},
			[]string{"reason"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitegate_password_attempts_total",
				Help: "Password submissions by result",
			},
			[]string{"result"},
		),
		settingsErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sitegate_settings_errors_total",
				Help: "Failed settings reads",
			},
		),
	}
	m.registry.MustRegister(
		m.decisions,
		m.attempts,
		m.settingsErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Decision counts a gate decision.
func (m *Metrics) Decision(reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(reason).Inc()
}

// Attempt counts a password submission with the given result.
func (m *Metrics) Attempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SettingsError counts a failed settings read.
func (m *Metrics) SettingsError() {
	if m == nil {
		return
	}
	m.settingsErrors.Inc()
}

// Handler serves the registry. A nil receiver serves 404.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
