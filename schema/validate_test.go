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

func TestValidateNodeNameBoundary(t *testing.T) {
	if err := ValidateNodeName("12345678"); err != nil { // exactly 8 bytes
		t.Errorf("expected 8-byte name to be accepted, got %v", err)
	}
	if err := ValidateNodeName("123456789"); err == nil { // 9 bytes
		t.Errorf("expected 9-byte name to be rejected")
	}
	if err := ValidateNodeName(""); err == nil {
		t.Errorf("expected empty name to be rejected")
	}
}

func TestValidateDisjointCIDRs(t *testing.T) {
	if err := ValidateDisjointCIDRs([]string{"10.0.0.0/24", "10.0.1.0/24"}); err != nil {
		t.Errorf("expected disjoint cidrs to pass, got %v", err)
	}
	if err := ValidateDisjointCIDRs([]string{"10.0.0.0/23", "10.0.1.0/24"}); err == nil {
		t.Errorf("expected overlapping cidrs to fail")
	}
}

func TestValidateContainedIn(t *testing.T) {
	outers := []string{"10.0.0.0/16", "192.168.0.0/16"}
	found, err := ValidateContainedIn("10.0.5.0/30", outers)
	if err != nil {
		t.Fatalf("expected containment, got error %v", err)
	}
	if found.String() != "10.0.0.0/16" {
		t.Errorf("expected match against 10.0.0.0/16, got %s", found)
	}

	if _, err := ValidateContainedIn("172.16.0.0/30", outers); err == nil {
		t.Errorf("expected no containment to fail")
	}
}

func TestValidateContainedInOverlappingOuters(t *testing.T) {
	// two outers that both contain the inner block is an input error,
	// not a silent pick of one.
	outers := []string{"10.0.0.0/8", "10.0.0.0/16"}
	if _, err := ValidateContainedIn("10.0.0.0/30", outers); err == nil {
		t.Errorf("expected ambiguous containment to fail")
	}
}

func TestValidatePrefixLen(t *testing.T) {
	if err := ValidatePrefixLen("10.0.0.0/30", OverlayPrefixLenV4); err != nil {
		t.Errorf("expected /30 to pass, got %v", err)
	}
	if err := ValidatePrefixLen("10.0.0.0/29", OverlayPrefixLenV4); err == nil {
		t.Errorf("expected /29 to fail v4 overlay prefix check")
	}
	if err := ValidatePrefixLen("fd00::/126", OverlayPrefixLenV6); err != nil {
		t.Errorf("expected /126 to pass, got %v", err)
	}
}
