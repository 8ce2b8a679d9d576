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
	"hash/crc32"
)

// vniModulus is 2^24 - 1. VNI() reduces the hash into [0, vniModulus) and
// then adds one, so the result is always in [1, 2^24-1].
const vniModulus = 1<<24 - 1

// CanonicalLinkID is the identity tuple shared by both halves of a link,
// regardless of which endpoint's perspective produced it. Two LinkRecords
// describe the same physical link iff their CanonicalLinkID is equal.
type CanonicalLinkID struct {
	Ep1    string
	Ant1   int
	Ep2    string
	Ant2   int
}

// NewCanonicalLinkID orders the two endpoints deterministically (by node
// name, antenna as the tie-break) so that the tuple is independent of which
// side calls it.
func NewCanonicalLinkID(ep1 string, ant1 int, ep2 string, ant2 int) CanonicalLinkID {
	if ep1 > ep2 || (ep1 == ep2 && ant1 > ant2) {
		ep1, ant1, ep2, ant2 = ep2, ant2, ep1, ant1
	}
	return CanonicalLinkID{Ep1: ep1, Ant1: ant1, Ep2: ep2, Ant2: ant2}
}

// key renders the canonical tuple into the exact string VNI() hashes, e.g.
// "sat1_1_sat2_1".
func (c CanonicalLinkID) key() string {
	return fmt.Sprintf("%s_%d_%s_%d", c.Ep1, c.Ant1, c.Ep2, c.Ant2)
}

// VNI computes the 24-bit VXLAN network identifier for the link between
// (ep1, ant1) and (ep2, ant2). It canonicalizes the endpoint order first, so
// both endpoints of a link independently compute the same value regardless
// of which side they call it from. The result is always in [1, 2^24-1].
func VNI(ep1 string, ant1 int, ep2 string, ant2 int) uint32 {
	id := NewCanonicalLinkID(ep1, ant1, ep2, ant2)
	sum := crc32.ChecksumIEEE([]byte(id.key()))
	return sum%vniModulus + 1
}
