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

// Package schema contains the shared types, store key layout, and the pure
// helper functions (VNI, interface naming, validation) that every other
// package in this module builds on. Nothing in here talks to the store or
// the kernel.
package schema

import "time"

// WorkerSpec describes one physical or virtual machine that hosts emulated
// nodes. It lives at /config/workers/{worker-name}.
type WorkerSpec struct {
	// IP is the management address used to reach this worker.
	IP string `json:"ip"`

	// SSHUser and SSHKey are the credentials the deployer and the worker
	// executor use to reach IP.
	SSHUser string `json:"ssh-user"`
	SSHKey  string `json:"ssh-key"`

	// SatVnet is the name of the local container bridge on the worker
	// that every emulated node's veth pair attaches to.
	SatVnet string `json:"sat-vnet"`

	// SatVnetCIDR is the worker-local container subnet. It must be
	// disjoint from every other worker's SatVnetCIDR.
	SatVnetCIDR string `json:"sat-vnet-cidr"`

	// SatVnetSuperCIDR is the global underlay supernet that covers every
	// worker's SatVnetCIDR. It must not overlap any physical management
	// network.
	SatVnetSuperCIDR string `json:"sat-vnet-super-cidr"`

	// CPU is the worker's schedulable CPU capacity, in cores.
	CPU float64 `json:"cpu"`

	// Mem is the worker's schedulable memory capacity, in bytes.
	Mem int64 `json:"mem"`
}

// SuperCIDRRule describes one auto-assign-super-cidr rule from the static
// config: nodes whose type matches MatchType draw their overlay address
// from SuperCIDR, in the order the rule list was declared.
type SuperCIDRRule struct {
	// MatchType selects which nodes this rule applies to. The special
	// value "any" is a fallback, applied last, regardless of position.
	MatchType string `json:"match-type"`

	// SuperCIDR is the block this rule allocates /30 (v4) or /126 (v6)
	// subnets from.
	SuperCIDR string `json:"super-cidr"`
}

// L3Config is the node's overlay addressing and routing configuration,
// embedded in NodeSpec.
type L3Config struct {
	// EnableNetem turns on tc netem shaping for this node's links.
	EnableNetem bool `json:"enable-netem"`

	// EnableRouting turns on the routing module callbacks for this node.
	EnableRouting bool `json:"enable-routing"`

	// RoutingModule names the compiled-in routing module (as registered
	// with agent/routing.Register) to invoke. Ignored if EnableRouting is
	// false.
	RoutingModule string `json:"routing-module"`

	// RoutingMetadata is opaque, module-specific configuration, e.g. a
	// precomputed static route table.
	RoutingMetadata map[string]interface{} `json:"routing-metadata,omitempty"`

	// AutoAssignIPs turns on automatic /30 or /126 allocation for this
	// node via AutoAssignSuperCIDR. If false, CIDR/CIDRv6 must be set
	// explicitly.
	AutoAssignIPs bool `json:"auto-assign-ips"`

	// AutoAssignSuperCIDR lists the rules, in priority order, that
	// placement consults to find this node's overlay super-cidr.
	AutoAssignSuperCIDR []SuperCIDRRule `json:"auto-assign-super-cidr,omitempty"`

	// CIDR is the overlay /30 assigned to this node, either explicit or
	// placement-assigned.
	CIDR string `json:"cidr,omitempty"`

	// CIDRv6 is the overlay /126 assigned to this node, either explicit
	// or placement-assigned.
	CIDRv6 string `json:"cidr-v6,omitempty"`
}

// NodeSpec describes one emulated node (satellite, ground station, user
// terminal). It lives at /config/nodes/{node-name}; the key name must be at
// most 8 bytes.
type NodeSpec struct {
	// Type is a free-form tag. Routing rules and the oracle's
	// --node-type-to-route filter key off of it; by convention it is one
	// of "satellite", "gateway", or "user".
	Type string `json:"type"`

	// NAntennas is the number of local bridges (br1..brN) T1 creates on
	// this node.
	NAntennas int `json:"n_antennas"`

	// Metadata is opaque, operator-supplied annotation data.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Image is the container image this node runs.
	Image string `json:"image"`

	// Sidecars lists additional container images co-scheduled with this
	// node.
	Sidecars []string `json:"sidecars,omitempty"`

	CPURequest string `json:"cpu-request"`
	MemRequest string `json:"mem-request"`
	CPULimit   string `json:"cpu-limit,omitempty"`
	MemLimit   string `json:"mem-limit,omitempty"`

	// L3Config is the node's overlay addressing and routing config.
	L3Config L3Config `json:"L3-config"`

	// Worker is the name of the WorkerSpec this node is scheduled onto.
	Worker string `json:"worker"`

	// Eth0IP is the underlay address this node was assigned inside its
	// worker's bridge. It is empty until the agent's T1 fills it in.
	Eth0IP string `json:"eth0_ip,omitempty"`
}

// EpochConfig is purely informational operator-facing metadata about where
// epoch files live. It lives at /config/epoch-config.
type EpochConfig struct {
	EpochDir    string `json:"epoch-dir"`
	FilePattern string `json:"file-pattern"`
}

// HostEntry is one node's primary overlay address, written by the node
// agent after address assignment and consumed by other agents to build
// /etc/hosts. It lives at /config/etchosts/{node-name}.
type HostEntry struct {
	Addr string `json:"addr"`
}

// LinkRecord describes one half-link from the perspective of the node it is
// keyed under: /config/links/{node-name}/{iface-name}. Both endpoints'
// copies of a link must agree on VNI and shaping.
type LinkRecord struct {
	Endpoint1       string `json:"endpoint1"`
	Endpoint2       string `json:"endpoint2"`
	Endpoint1Antenna int   `json:"endpoint1_antenna"`
	Endpoint2Antenna int   `json:"endpoint2_antenna"`

	// Rate, Loss, Delay, and Limit are optional tc netem shaping
	// parameters. A zero value means "unset", not "zero shaping" -- use
	// the Has* helpers below before applying.
	Rate  string  `json:"rate,omitempty"`
	Loss  float64 `json:"loss,omitempty"`
	Delay string  `json:"delay,omitempty"`
	Limit int     `json:"limit,omitempty"`

	// VNI is the 24-bit VXLAN network identifier, the same on both
	// halves of the link. See VNI() below for how it's derived.
	VNI uint32 `json:"vni"`
}

// HasShaping reports whether any netem parameter is set on this link.
func (l *LinkRecord) HasShaping() bool {
	return l.Rate != "" || l.Loss != 0 || l.Delay != "" || l.Limit != 0
}

// TaskList is the ordered set of shell commands to run on a node for the
// current epoch. It lives at /config/run/{node-name}; a new revision of the
// key, even with identical content, triggers re-execution.
type TaskList []string

// RunResult is what the agent's task runner reports back after executing a
// TaskList. It lives at /state/run/{node-name}.
type RunResult struct {
	ExitCode int       `json:"exit-code"`
	Ran      time.Time `json:"ran"`
	Output   string    `json:"output,omitempty"`
}

// EpochState is the supplemented observability key the scheduler maintains
// at /state/epoch/current so operators can read scheduling progress without
// inferring it from link/task key churn.
type EpochState struct {
	Index     int       `json:"index"`
	File      string    `json:"file"`
	Released  time.Time `json:"released"`
}

// LastError is what any component writes to /state/last-error when it hits
// a non-fatal, user-visible failure (e.g. a malformed epoch file dropped
// into the interactive queue directory).
type LastError struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
