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

import (
	"fmt"
	"net/netip"

	"go4.org/netipx"
)

// MaxNodeNameBytes is the longest a node name may be -- it doubles as a key
// path component and is embedded in interface names, so it's kept short.
const MaxNodeNameBytes = 8

// OverlayPrefixLenV4 and OverlayPrefixLenV6 are the hard-coded subnet sizes
// handed out per node by the address allocator. The source this spec was
// distilled from disagreed with itself about this (see SPEC_FULL.md); these
// constants pin the resolved values instead of making them configurable.
const (
	OverlayPrefixLenV4 = 30
	OverlayPrefixLenV6 = 126
)

// ValidateNodeName enforces the §3 node-name length invariant: names of
// exactly MaxNodeNameBytes are accepted, longer ones are rejected.
func ValidateNodeName(name string) error {
	if name == "" {
		return fmt.Errorf("node name is empty")
	}
	if len(name) > MaxNodeNameBytes {
		return fmt.Errorf("node name %q is %d bytes, max is %d", name, len(name), MaxNodeNameBytes)
	}
	return nil
}

// ValidateDisjointCIDRs checks that no two prefixes in the input list
// overlap. On the first overlap found, it returns an error naming both
// offending prefixes.
func ValidateDisjointCIDRs(cidrs []string) error {
	parsed := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return fmt.Errorf("invalid cidr %q: %w", c, err)
		}
		parsed = append(parsed, p)
	}

	for i := 0; i < len(parsed); i++ {
		for j := i + 1; j < len(parsed); j++ {
			if parsed[i].Overlaps(parsed[j]) {
				return fmt.Errorf("cidrs overlap: %s and %s", parsed[i], parsed[j])
			}
		}
	}
	return nil
}

// ValidateContainedIn checks that inner is fully contained within exactly
// one of the outers, returning the containing prefix. It errors if zero or
// more than one outer contains inner.
func ValidateContainedIn(inner string, outers []string) (netip.Prefix, error) {
	in, err := netip.ParsePrefix(inner)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid cidr %q: %w", inner, err)
	}

	var found netip.Prefix
	var count int
	for _, o := range outers {
		out, err := netip.ParsePrefix(o)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid cidr %q: %w", o, err)
		}
		if out.Overlaps(in) && out.Bits() <= in.Bits() {
			// confirm true containment, not just overlap
			set := &netipx.IPSetBuilder{}
			set.AddPrefix(out)
			s, err := set.IPSet()
			if err != nil {
				return netip.Prefix{}, err
			}
			if s.ContainsPrefix(in) {
				found = out
				count++
			}
		}
	}
	switch count {
	case 0:
		return netip.Prefix{}, fmt.Errorf("cidr %q is not contained in any of the given blocks", inner)
	case 1:
		return found, nil
	default:
		return netip.Prefix{}, fmt.Errorf("cidr %q is contained in %d overlapping blocks, expected exactly one", inner, count)
	}
}

// ValidatePrefixLen checks that a CIDR string has exactly the expected
// prefix length, e.g. a node's overlay /30.
func ValidatePrefixLen(cidr string, bits int) error {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("invalid cidr %q: %w", cidr, err)
	}
	if p.Bits() != bits {
		return fmt.Errorf("cidr %q has prefix length %d, expected /%d", cidr, p.Bits(), bits)
	}
	return nil
}
