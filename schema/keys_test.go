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

func TestLinkKeyRoundTrip(t *testing.T) {
	key := LinkKey("sat1", "vl_sat2_1")
	if want := "/config/links/sat1/vl_sat2_1"; key != want {
		t.Errorf("LinkKey: got %s, want %s", key, want)
	}

	node, iface, ok := ParseLinkKey(key)
	if !ok {
		t.Fatalf("ParseLinkKey(%s) failed to parse", key)
	}
	if node != "sat1" || iface != "vl_sat2_1" {
		t.Errorf("ParseLinkKey: got (%s, %s), want (sat1, vl_sat2_1)", node, iface)
	}
}

func TestParseLinkKeyRejectsGarbage(t *testing.T) {
	cases := []string{
		"/config/nodes/sat1",
		"/config/links/sat1",    // no iface component
		"/config/links/sat1/",   // empty iface component
		"",
	}
	for _, c := range cases {
		if _, _, ok := ParseLinkKey(c); ok {
			t.Errorf("ParseLinkKey(%q): expected failure, got success", c)
		}
	}
}

func TestRunKeyAndNodeNameFromRunKey(t *testing.T) {
	key := RunKey("grd1")
	if want := "/config/run/grd1"; key != want {
		t.Errorf("RunKey: got %s, want %s", key, want)
	}
	name, ok := NodeNameFromRunKey(key)
	if !ok || name != "grd1" {
		t.Errorf("NodeNameFromRunKey: got (%s, %v), want (grd1, true)", name, ok)
	}
}

func TestNodeLinksPrefix(t *testing.T) {
	if got, want := NodeLinksPrefix("sat1"), "/config/links/sat1/"; got != want {
		t.Errorf("NodeLinksPrefix: got %s, want %s", got, want)
	}
}
