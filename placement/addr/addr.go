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

// Package addr allocates non-overlapping /30 (IPv4) or /126 (IPv6) overlay
// subnets out of a supernet, skipping any subnets already claimed by
// explicit overrides.
package addr

import (
	"fmt"
	"net/netip"

	"go4.org/netipx"
)

// ErrExhausted is returned by Next when the pool has no more subnets of the
// requested size left to hand out.
var ErrExhausted = fmt.Errorf("address pool exhausted")

// Pool allocates sequential /30 or /126 subnets out of one super-cidr,
// skipping subnets already reserved (by an explicit cidr/cidr-v6 override
// elsewhere in the same document).
type Pool struct {
	super    netip.Prefix
	bits     int // 30 for v4, 126 for v6
	reserved *netipx.IPSet

	next netip.Prefix
	done bool
}

// NewPool builds a Pool over superCIDR, handing out subnets of length bits
// (30 or 126) in order, skipping any prefix contained in reserved.
func NewPool(superCIDR string, bits int, reserved []string) (*Pool, error) {
	super, err := netip.ParsePrefix(superCIDR)
	if err != nil {
		return nil, fmt.Errorf("invalid super-cidr %q: %w", superCIDR, err)
	}

	var b netipx.IPSetBuilder
	for _, r := range reserved {
		p, err := netip.ParsePrefix(r)
		if err != nil {
			return nil, fmt.Errorf("invalid reserved cidr %q: %w", r, err)
		}
		b.AddPrefix(p)
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, fmt.Errorf("could not build reserved set: %w", err)
	}

	first, ok := firstSubnet(super, bits)
	if !ok {
		return nil, fmt.Errorf("super-cidr %s too small for /%d subnets", superCIDR, bits)
	}

	return &Pool{
		super:    super.Masked(),
		bits:     bits,
		reserved: set,
		next:     first,
	}, nil
}

// firstSubnet returns the first bits-length prefix contained in super.
func firstSubnet(super netip.Prefix, bits int) (netip.Prefix, bool) {
	if bits < super.Bits() {
		return netip.Prefix{}, false
	}
	base := super.Masked().Addr()
	p, err := base.Prefix(bits)
	if err != nil {
		return netip.Prefix{}, false
	}
	return p, true
}

// nextSubnet advances p by one subnet of its own size, within super. The
// second return is false once advancing would leave super's range.
func nextSubnet(super, p netip.Prefix) (netip.Prefix, bool) {
	size := 1 << uint(p.Addr().BitLen()-p.Bits())
	addrBytes := p.Addr().As16()
	carry := size
	for i := 15; i >= 0 && carry > 0; i-- {
		sum := int(addrBytes[i]) + (carry & 0xff)
		addrBytes[i] = byte(sum & 0xff)
		carry = (carry >> 8) + (sum >> 8)
	}
	var next netip.Addr
	if p.Addr().Is4() {
		var a4 [4]byte
		copy(a4[:], addrBytes[12:16])
		next = netip.AddrFrom4(a4)
	} else {
		next = netip.AddrFrom16(addrBytes)
	}
	np, err := next.Prefix(p.Bits())
	if err != nil {
		return netip.Prefix{}, false
	}
	if !super.Contains(np.Addr()) {
		return netip.Prefix{}, false
	}
	return np, true
}

// Next returns the next unreserved subnet from the pool, advancing internal
// state. It returns ErrExhausted once the supernet is fully consumed.
func (p *Pool) Next() (netip.Prefix, error) {
	for {
		if p.done {
			return netip.Prefix{}, ErrExhausted
		}
		candidate := p.next
		after, ok := nextSubnet(p.super, candidate)
		if !ok {
			p.done = true
		} else {
			p.next = after
		}

		if p.reserved.ContainsPrefix(candidate) {
			continue
		}
		return candidate, nil
	}
}
