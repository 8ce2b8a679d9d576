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

// Package metrics exposes the control plane's running state to prometheus:
// deploy outcomes, placement failures, and epoch releases. This is
// satctl's own process (init/deploy/run), distinct from the per-node
// agent's metrics package.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultListen matches the registered satctl control-plane metrics port.
const DefaultListen = "127.0.0.1:9235"

// Metrics holds the prometheus collectors for one control command
// invocation. Run Init() before use.
type Metrics struct {
	Listen string

	deployResultsTotal     *prometheus.CounterVec
	placementFailuresTotal *prometheus.CounterVec
	epochsReleasedTotal    prometheus.Counter
}

// Init registers the collectors. Safe to call once per process.
func (m *Metrics) Init() error {
	if len(m.Listen) == 0 {
		m.Listen = DefaultListen
	}

	m.deployResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satctl_deploy_results_total",
			Help: "Number of nodes reconciled by deploy, by outcome.",
		},
		[]string{"outcome"}, // ok, failed
	)
	prometheus.MustRegister(m.deployResultsTotal)

	m.placementFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satctl_placement_failures_total",
			Help: "Number of init placement failures, by reason.",
		},
		[]string{"reason"}, // validation, capacity, address-pool
	)
	prometheus.MustRegister(m.placementFailuresTotal)

	m.epochsReleasedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satctl_epochs_released_total",
			Help: "Number of epoch files released by the run scheduler.",
		},
	)
	prometheus.MustRegister(m.epochsReleasedTotal)

	return nil
}

// Start runs the /metrics http server in a goroutine. Callers that don't
// want a metrics endpoint (e.g. a one-shot init or deploy invocation with
// no --metrics-listen flag given) can skip calling this and use the
// counters purely as an in-process tally.
func (m *Metrics) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(m.Listen, mux)
	return nil
}

// DeployResult records one node's reconcile outcome.
func (m *Metrics) DeployResult(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.deployResultsTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// PlacementFailure records one init failure, by the §6 exit-code reason.
func (m *Metrics) PlacementFailure(reason string) {
	m.placementFailuresTotal.With(prometheus.Labels{"reason": reason}).Inc()
}

// EpochReleased records one epoch file handed to the store by run.
func (m *Metrics) EpochReleased() {
	m.epochsReleasedTotal.Inc()
}
