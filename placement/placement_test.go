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

package placement

import (
	"testing"

	"github.com/satctl/satctl/config"
	"github.com/satctl/satctl/schema"
)

func schemaRule(matchType, superCIDR string) []schema.SuperCIDRRule {
	return []schema.SuperCIDRRule{{MatchType: matchType, SuperCIDR: superCIDR}}
}

// TestPlaceRoundRobin is scenario S1: four identically-sized nodes across
// two equal-capacity workers should alternate host-1, host-2, host-1,
// host-2.
func TestPlaceRoundRobin(t *testing.T) {
	cfg := &config.Static{
		Workers: []config.WorkerConfig{
			{Name: "host-1", CPU: 2, Mem: 2 << 30},
			{Name: "host-2", CPU: 2, Mem: 2 << 30},
		},
		Nodes: []config.NodeConfig{
			{Name: "node1", Type: "satellite", CPURequest: "100m", MemRequest: "200Mi"},
			{Name: "node2", Type: "satellite", CPURequest: "100m", MemRequest: "200Mi"},
			{Name: "node3", Type: "satellite", CPURequest: "100m", MemRequest: "200Mi"},
			{Name: "node4", Type: "satellite", CPURequest: "100m", MemRequest: "200Mi"},
		},
	}

	a, err := Place(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"node1": "host-1",
		"node2": "host-2",
		"node3": "host-1",
		"node4": "host-2",
	}
	for node, worker := range want {
		got := a.Nodes[node].Worker
		if got != worker {
			t.Errorf("node %s: got worker %q, want %q", node, got, worker)
		}
	}
}

func TestPlaceInsufficientCapacity(t *testing.T) {
	cfg := &config.Static{
		Workers: []config.WorkerConfig{
			{Name: "host-1", CPU: 0, Mem: 0},
		},
		Nodes: []config.NodeConfig{
			{Name: "node1", Type: "satellite", CPURequest: "100m", MemRequest: "200Mi"},
		},
	}
	_, err := Place(cfg)
	if err == nil {
		t.Fatalf("expected InsufficientCapacityError")
	}
	if _, ok := err.(*InsufficientCapacityError); !ok {
		t.Errorf("got error of type %T, want *InsufficientCapacityError", err)
	}
}

func TestPlaceRespectsExplicitWorker(t *testing.T) {
	cfg := &config.Static{
		Workers: []config.WorkerConfig{
			{Name: "host-1", CPU: 4, Mem: 4 << 30},
			{Name: "host-2", CPU: 4, Mem: 4 << 30},
		},
		Nodes: []config.NodeConfig{
			{Name: "node1", Type: "satellite", Worker: "host-2", CPURequest: "1", MemRequest: "1Gi"},
		},
	}
	a, err := Place(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := a.Nodes["node1"].Worker; got != "host-2" {
		t.Errorf("got worker %q, want host-2 (explicit pin)", got)
	}
}

func TestValidateDanglingWorkerRef(t *testing.T) {
	cfg := &config.Static{
		Workers: []config.WorkerConfig{{Name: "host-1"}},
		Nodes:   []config.NodeConfig{{Name: "node1", Worker: "nonexistent"}},
	}
	if err := Validate(cfg); err == nil {
		t.Errorf("expected validation error for dangling worker reference")
	}
}

func TestValidateDuplicateNodeName(t *testing.T) {
	cfg := &config.Static{
		Nodes: []config.NodeConfig{{Name: "dup"}, {Name: "dup"}},
	}
	if err := Validate(cfg); err == nil {
		t.Errorf("expected validation error for duplicate node name")
	}
}

func TestValidateOverlongNodeName(t *testing.T) {
	cfg := &config.Static{
		Nodes: []config.NodeConfig{{Name: "toolongname"}},
	}
	if err := Validate(cfg); err == nil {
		t.Errorf("expected validation error for a node name over 8 bytes")
	}
}

func TestPlaceAllocatesAddresses(t *testing.T) {
	cfg := &config.Static{
		Workers: []config.WorkerConfig{
			{Name: "host-1", CPU: 4, Mem: 4 << 30},
		},
		Nodes: []config.NodeConfig{
			{
				Name: "node1", Type: "satellite", CPURequest: "100m", MemRequest: "200Mi",
				AutoAssignIPs:       true,
				AutoAssignSuperCIDR: schemaRule("satellite", "10.20.0.0/24"),
			},
			{
				Name: "node2", Type: "satellite", CPURequest: "100m", MemRequest: "200Mi",
				AutoAssignIPs:       true,
				AutoAssignSuperCIDR: schemaRule("satellite", "10.20.0.0/24"),
			},
		},
	}
	a, err := Place(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c1 := a.Nodes["node1"].L3Config.CIDR
	c2 := a.Nodes["node2"].L3Config.CIDR
	if c1 == "" || c2 == "" || c1 == c2 {
		t.Errorf("expected two distinct non-empty overlay CIDRs, got %q and %q", c1, c2)
	}
}

func TestPlaceAddressPoolExhausted(t *testing.T) {
	cfg := &config.Static{
		Workers: []config.WorkerConfig{
			{Name: "host-1", CPU: 4, Mem: 4 << 30},
		},
		Nodes: []config.NodeConfig{
			{
				Name: "node1", Type: "satellite", CPURequest: "100m", MemRequest: "200Mi",
				AutoAssignIPs:       true,
				AutoAssignSuperCIDR: schemaRule("satellite", "10.20.0.0/30"),
			},
			{
				Name: "node2", Type: "satellite", CPURequest: "100m", MemRequest: "200Mi",
				AutoAssignIPs:       true,
				AutoAssignSuperCIDR: schemaRule("satellite", "10.20.0.0/30"),
			},
		},
	}
	_, err := Place(cfg)
	if _, ok := err.(*AddressPoolExhaustedError); !ok {
		t.Errorf("got error of type %T, want *AddressPoolExhaustedError", err)
	}
}
