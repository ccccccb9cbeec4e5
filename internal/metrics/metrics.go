// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

// Package metrics exposes validation and dispatch counters in Prometheus
// format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

type Metrics struct {
	registry    *prometheus.Registry
	validations *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	dispatches  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	loaded      prometheus.Gauge
}

// New registers the collectors on a private registry so that several
// instances can coexist in tests.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_validations_total",
				Help: "Policy validations by outcome",
			},
			[]string{"result"},
		),
		diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_diagnostics_total",
				Help: "Validation diagnostics by severity",
			},
			[]string{"severity"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "block_dispatch_total",
				Help: "Block data calls by block type and outcome",
			},
			[]string{"block_type", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "block_dispatch_duration_seconds",
				Help:    "Block data call duration including propagation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"block_type"},
		),
		loaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "policies_loaded",
				Help: "Policy instances currently loaded",
			},
		),
	}
	m.registry.MustRegister(m.validations, m.diagnostics, m.dispatches, m.duration, m.loaded)
	return m
}

func (m *Metrics) ObserveValidation(res *core.ValidationResult) {
	result := "valid"
	if !res.IsValid {
		result = "invalid"
	}
	m.validations.WithLabelValues(result).Inc()
	m.diagnostics.WithLabelValues(string(core.SeverityError)).Add(float64(len(res.Errors)))
	m.diagnostics.WithLabelValues(string(core.SeverityWarning)).Add(float64(len(res.Warnings)))
	m.diagnostics.WithLabelValues(string(core.SeverityInfo)).Add(float64(len(res.Infos)))
}

func (m *Metrics) DispatchObserved(blockType, result string, elapsed time.Duration) {
	m.dispatches.WithLabelValues(blockType, result).Inc()
	m.duration.WithLabelValues(blockType).Observe(elapsed.Seconds())
}

func (m *Metrics) PoliciesLoaded(n int) {
	m.loaded.Set(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
