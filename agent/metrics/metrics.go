// Mgmt
// Copyright (C) 2013-2024+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package metrics exposes the node agent's running state to prometheus:
// active links, task-run outcomes, and reconcile errors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultListen matches the registered satctl agent metrics port.
const DefaultListen = "127.0.0.1:9234"

// Metrics holds the prometheus collectors for one node agent. Run Init()
// before use.
type Metrics struct {
	Listen string

	linksActive          *prometheus.GaugeVec
	taskRunsTotal        *prometheus.CounterVec
	reconcileErrorsTotal *prometheus.CounterVec
}

// Init registers the collectors. Safe to call once per process.
func (m *Metrics) Init() error {
	if len(m.Listen) == 0 {
		m.Listen = DefaultListen
	}

	m.linksActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "satctl_links_active",
			Help: "Number of VXLAN links currently up on this node.",
		},
		[]string{"node"},
	)
	prometheus.MustRegister(m.linksActive)

	m.taskRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satctl_task_runs_total",
			Help: "Number of run-task lists executed, by node and outcome.",
		},
		[]string{"node", "outcome"}, // outcome: ok, failed
	)
	prometheus.MustRegister(m.taskRunsTotal)

	m.reconcileErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satctl_reconcile_errors_total",
			Help: "Number of link-reconciliation errors, by node.",
		},
		[]string{"node"},
	)
	prometheus.MustRegister(m.reconcileErrorsTotal)

	return nil
}

// Start runs the /metrics http server in a goroutine.
func (m *Metrics) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(m.Listen, mux)
	return nil
}

// LinkUp records one more active link on node.
func (m *Metrics) LinkUp(node string) {
	m.linksActive.With(prometheus.Labels{"node": node}).Inc()
}

// LinkDown records one fewer active link on node.
func (m *Metrics) LinkDown(node string) {
	m.linksActive.With(prometheus.Labels{"node": node}).Dec()
}

// TaskRun records the outcome of one T3 task-list execution.
func (m *Metrics) TaskRun(node string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.taskRunsTotal.With(prometheus.Labels{"node": node, "outcome": outcome}).Inc()
}

// ReconcileError records one T2 link-reconciliation failure.
func (m *Metrics) ReconcileError(node string) {
	m.reconcileErrorsTotal.With(prometheus.Labels{"node": node}).Inc()
}
