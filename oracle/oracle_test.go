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

package oracle

import (
	"strings"
	"testing"
	"time"

	"github.com/satctl/satctl/epoch"
	"github.com/satctl/satctl/schema"
)

func node(typ, cidr string) *schema.NodeSpec {
	return &schema.NodeSpec{Type: typ, L3Config: schema.L3Config{CIDR: cidr}}
}

func threeNodePathNodes() map[string]*schema.NodeSpec {
	return map[string]*schema.NodeSpec{
		"a": node("satellite", "10.0.0.0/30"),
		"b": node("satellite", "10.0.0.4/30"),
		"c": node("satellite", "10.0.0.8/30"),
	}
}

func TestNodeTypeFilterZeroValueMatchesEverything(t *testing.T) {
	var f NodeTypeFilter
	if !f.Match("satellite") || !f.Match("gateway") {
		t.Fatal("expected the zero-value filter to match every type")
	}
}

func TestNodeTypeFilterNarrows(t *testing.T) {
	f := NewNodeTypeFilter("satellite")
	if !f.Match("satellite") {
		t.Error("expected satellite to match")
	}
	if f.Match("gateway") {
		t.Error("expected gateway not to match")
	}
}

func TestAdjacencyHopsFromBFS(t *testing.T) {
	g := newAdjacency()
	g.addEdge("a", "b")
	g.addEdge("b", "c")
	dist := g.hopsFrom("a")
	if dist["b"] != 1 || dist["c"] != 2 {
		t.Errorf("unexpected distances: %+v", dist)
	}
}

func TestNextHopsPrimaryAndSecondary(t *testing.T) {
	g := newAdjacency()
	g.addEdge("a", "b")
	g.addEdge("a", "d")
	g.addEdge("b", "c")
	g.addEdge("d", "c")

	primary, hasPrimary, secondary, hasSecondary := g.nextHops("a", "c")
	if !hasPrimary || !hasSecondary {
		t.Fatalf("expected both a primary and a secondary route, got primary=%v(%v) secondary=%v(%v)", primary, hasPrimary, secondary, hasSecondary)
	}
	if primary == secondary {
		t.Errorf("expected primary and secondary to differ, both were %s", primary)
	}
	// lexicographic tie-break: both b and d are 2 hops from c via a, so "b" wins.
	if primary != "b" {
		t.Errorf("expected lexicographic tie-break to pick b, got %s", primary)
	}
}

func TestNextHopsNoPathFound(t *testing.T) {
	g := newAdjacency()
	g.addEdge("a", "b")
	_, hasPrimary, _, hasSecondary := g.nextHops("a", "z")
	if hasPrimary || hasSecondary {
		t.Error("expected no route to an unreachable node")
	}
}

// TestPrecompileDrainOnLinkDeletion reproduces spec example S4: a 3-node
// path A-B-C where an epoch deletes A-B leaves A with no route to C, so the
// drain file falls back to an explicit route deletion.
func TestPrecompileDrainOnLinkDeletion(t *testing.T) {
	nodes := threeNodePathNodes()
	opts := Options{
		Nodes:          nodes,
		DrainOffset:    2 * time.Second,
		CreationOffset: 2 * time.Second,
	}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setup := &epoch.File{
		Time:     t0,
		LinksAdd: []epoch.LinkSpec{{Endpoint1: "a", Endpoint2: "b"}, {Endpoint1: "b", Endpoint2: "c"}},
	}
	teardown := &epoch.File{
		Time:     t0.Add(10 * time.Second),
		LinksDel: []epoch.LinkSpec{{Endpoint1: "a", Endpoint2: "b"}},
	}

	outputs, err := Precompile([]*epoch.File{setup, teardown}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var drainFound bool
	for _, o := range outputs {
		if !o.File.Time.Equal(teardown.Time.Add(-2 * time.Second)) {
			continue
		}
		drainFound = true
		cmds := o.File.Run["a"]
		var delToC bool
		for _, c := range cmds {
			if strings.Contains(c, "ip route del") && strings.Contains(c, "10.0.0.8/30") {
				delToC = true
			}
		}
		if !delToC {
			t.Errorf("expected a's drain commands to delete the route to c's cidr, got %v", cmds)
		}
	}
	if !drainFound {
		t.Fatal("expected a drain-before-break file at teardown.Time - DrainOffset")
	}
}

func TestPrecompilePostCreateHasPrimaryRoutes(t *testing.T) {
	nodes := threeNodePathNodes()
	opts := Options{Nodes: nodes, CreationOffset: time.Second}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setup := &epoch.File{
		Time:     t0,
		LinksAdd: []epoch.LinkSpec{{Endpoint1: "a", Endpoint2: "b"}, {Endpoint1: "b", Endpoint2: "c"}},
	}

	outputs, err := Precompile([]*epoch.File{setup}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var found bool
	for _, o := range outputs {
		if cmds, ok := o.File.Run["a"]; ok {
			found = true
			var toC bool
			for _, c := range cmds {
				if strings.Contains(c, "10.0.0.8/30") && strings.Contains(c, "replace") {
					toC = true
				}
			}
			if !toC {
				t.Errorf("expected a's post-create routes to include a replace to c's cidr, got %v", cmds)
			}
		}
	}
	if !found {
		t.Fatal("expected a post-create file with a's routes")
	}
}

func TestPrecompileOriginalFileCopiedUnchanged(t *testing.T) {
	nodes := threeNodePathNodes()
	opts := Options{Nodes: nodes}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setup := &epoch.File{
		Time:     t0,
		LinksAdd: []epoch.LinkSpec{{Endpoint1: "a", Endpoint2: "b"}},
	}

	outputs, err := Precompile([]*epoch.File{setup}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var found bool
	for _, o := range outputs {
		if len(o.File.LinksAdd) == 1 && o.File.LinksAdd[0].Endpoint1 == "a" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the original link mutation to survive unchanged in one output file")
	}
}

func TestPrecompileMergesCollidingTimestamps(t *testing.T) {
	nodes := threeNodePathNodes()
	// Zero creation offset collides the post-create file with the original.
	opts := Options{Nodes: nodes, CreationOffset: 0}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setup := &epoch.File{
		Time:     t0,
		LinksAdd: []epoch.LinkSpec{{Endpoint1: "a", Endpoint2: "b"}, {Endpoint1: "b", Endpoint2: "c"}},
	}

	outputs, err := Precompile([]*epoch.File{setup}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	for _, o := range outputs {
		if !o.File.Time.Equal(t0) {
			continue
		}
		if len(o.File.LinksAdd) != 2 {
			t.Errorf("expected the merged file to still carry the original link mutations, got %+v", o.File.LinksAdd)
		}
		if len(o.File.Run) == 0 {
			t.Errorf("expected the merged file to also carry injected routes")
		}
	}
}

func TestCheckIsIdempotentOverTheSameInput(t *testing.T) {
	nodes := threeNodePathNodes()
	opts := Options{Nodes: nodes, DrainOffset: time.Second, CreationOffset: time.Second}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setup := &epoch.File{
		Time:     t0,
		LinksAdd: []epoch.LinkSpec{{Endpoint1: "a", Endpoint2: "b"}, {Endpoint1: "b", Endpoint2: "c"}},
	}

	if err := Check([]*epoch.File{setup}, opts); err != nil {
		t.Errorf("expected idempotent output, got %s", err)
	}
}
