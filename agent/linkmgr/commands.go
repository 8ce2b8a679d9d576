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

// Package linkmgr maintains the node agent's local VXLAN and bridge state:
// read-side introspection via netlink, and an `ip`/`bridge`/`tc` command
// builder for the write side, executed locally via os/exec (unlike the
// deployer, the agent runs in its own container and never needs SSH).
package linkmgr

import (
	"fmt"

	"github.com/satctl/satctl/schema"
)

// VxlanDstPort is the UDP port VXLAN encapsulation uses on this overlay.
const VxlanDstPort = 4789

// VxlanMTU accounts for the VXLAN header overhead on a standard 1500 byte
// underlay.
const VxlanMTU = 1350

// BridgeName returns the bridge a link's local antenna attaches to:
// br1..brN.
func BridgeName(antenna int) string {
	return fmt.Sprintf("br%d", antenna)
}

// VxlanCreate returns the command sequence that brings up one VXLAN
// interface and attaches it to its antenna bridge, per §4.3: `vxlan
// id={vni} remote={peer.eth0_ip} local={self.eth0_ip} dev=eth0
// dstport=4789 mtu=1350`.
func VxlanCreate(iface string, vni uint32, localEth0IP, remoteEth0IP string, bridge string) []string {
	return []string{
		fmt.Sprintf("ip link add %s type vxlan id %d remote %s local %s dev eth0 dstport %d",
			iface, vni, remoteEth0IP, localEth0IP, VxlanDstPort),
		fmt.Sprintf("ip link set %s mtu %d", iface, VxlanMTU),
		fmt.Sprintf("ip link set %s master %s", iface, bridge),
		fmt.Sprintf("ip link set %s up", iface),
	}
}

// VxlanDelete tears down a VXLAN interface.
func VxlanDelete(iface string) []string {
	return []string{
		fmt.Sprintf("ip link del %s", iface),
	}
}

// NetemReplace returns the `tc qdisc replace` command that applies (or
// clears) the netem shaping parameters of a LinkRecord. A link with no
// shaping parameters set gets the root qdisc removed instead.
func NetemReplace(iface string, link schema.LinkRecord) []string {
	if !link.HasShaping() {
		return []string{
			fmt.Sprintf("tc qdisc del dev %s root", iface),
		}
	}

	args := "netem"
	if link.Delay != "" {
		args += " delay " + link.Delay
	}
	if link.Loss != 0 {
		args += fmt.Sprintf(" loss %.4f%%", link.Loss*100)
	}
	if link.Rate != "" {
		args += " rate " + link.Rate
	}
	if link.Limit != 0 {
		args += fmt.Sprintf(" limit %d", link.Limit)
	}

	return []string{
		fmt.Sprintf("tc qdisc replace dev %s root %s", iface, args),
	}
}

// BridgeCreate returns the command that creates an antenna bridge if it
// does not already exist. The agent calls this once per antenna during T1.
func BridgeCreate(bridge string) []string {
	return []string{
		fmt.Sprintf("ip link add %s type bridge", bridge),
		fmt.Sprintf("ip link set %s up", bridge),
	}
}
