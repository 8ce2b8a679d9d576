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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gather(t *testing.T, name string) []*prometheus.Labels {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather failed: %s", err)
	}
	var out []*prometheus.Labels
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.Metric {
			labels := prometheus.Labels{}
			for _, lp := range m.Label {
				labels[lp.GetName()] = lp.GetValue()
			}
			out = append(out, &labels)
		}
	}
	return out
}

func TestInitRegistersCollectors(t *testing.T) {
	var m Metrics
	if err := m.Init(); err != nil {
		t.Fatalf("Init failed: %s", err)
	}
	if m.Listen != DefaultListen {
		t.Errorf("expected default listen %q, got %q", DefaultListen, m.Listen)
	}

	m.DeployResult(true)
	m.DeployResult(false)
	m.PlacementFailure("capacity")
	m.EpochReleased()
	m.EpochReleased()

	for _, name := range []string{
		"satctl_deploy_results_total",
		"satctl_placement_failures_total",
		"satctl_epochs_released_total",
	} {
		if labels := gather(t, name); len(labels) == 0 {
			t.Errorf("expected at least one series for %s, got none", name)
		}
	}
}
