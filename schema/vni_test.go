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

package schema

import "testing"

func TestVNIDeterministic(t *testing.T) {
	a := VNI("sat1", 1, "sat2", 1)
	b := VNI("sat2", 1, "sat1", 1) // computed from the other endpoint
	if a != b {
		t.Errorf("VNI not symmetric: %d != %d", a, b)
	}
	if a < 1 || a > vniModulus {
		t.Errorf("VNI %d out of range [1, %d]", a, vniModulus)
	}
}

func TestVNIDistinctAntennas(t *testing.T) {
	a := VNI("sat1", 1, "sat2", 1)
	b := VNI("sat1", 2, "sat2", 1)
	if a == b {
		t.Errorf("expected different antennas to produce different VNIs")
	}
}

func TestVNIRange(t *testing.T) {
	pairs := []struct {
		ep1  string
		ant1 int
		ep2  string
		ant2 int
	}{
		{"a", 1, "b", 1},
		{"grd1", 1, "sat1", 3},
		{"z", 9, "a", 1},
		{"node1", 1, "node1", 2}, // same node, different antennas
	}
	for _, p := range pairs {
		v := VNI(p.ep1, p.ant1, p.ep2, p.ant2)
		if v < 1 || v > vniModulus {
			t.Errorf("VNI(%s,%d,%s,%d) = %d out of range", p.ep1, p.ant1, p.ep2, p.ant2, v)
		}
	}
}

func TestNewCanonicalLinkIDOrdering(t *testing.T) {
	c1 := NewCanonicalLinkID("sat2", 1, "sat1", 1)
	c2 := NewCanonicalLinkID("sat1", 1, "sat2", 1)
	if c1 != c2 {
		t.Errorf("canonical link id not order-independent: %+v != %+v", c1, c2)
	}
	if c1.Ep1 != "sat1" || c1.Ep2 != "sat2" {
		t.Errorf("expected lexicographically smaller endpoint first, got %+v", c1)
	}
}

func TestNewCanonicalLinkIDAntennaTieBreak(t *testing.T) {
	c1 := NewCanonicalLinkID("node1", 2, "node1", 1)
	if c1.Ant1 != 1 || c1.Ant2 != 2 {
		t.Errorf("expected antenna tie-break to sort ascending, got %+v", c1)
	}
}

func TestIfaceName(t *testing.T) {
	if got, want := IfaceName("sat2", 1), "vl_sat2_1"; got != want {
		t.Errorf("IfaceName: got %s, want %s", got, want)
	}
}
