/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package metrics

import (
	"net/http"

	"github.com/kentakayama/trust-anchor/internal/domain/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trust_anchor"

// Metrics owns a private registry so several engines can live in one
// process (tests do this).
type Metrics struct {
	registry *prometheus.Registry
	commands *prometheus.CounterVec
	receipts *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_commands_total",
			Help:      "Administrative commands by operation and result.",
		}, []string{"op", "result"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_total",
			Help:      "Verified receipts by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),
	}
	m.registry.MustRegister(
		m.commands,
		m.receipts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveCommand(op string, result string) {
	m.commands.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveReceipt(e model.Event) {
	reason := ""
	if !e.IsPassed() {
		reason = e.Reason.String()
	}
	m.receipts.WithLabelValues(e.Kind.String(), reason).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
