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

// Package config parses the static configuration document that drives
// placement: the list of workers and nodes, plus optional common defaults
// for nodes that don't specify every field.
package config

import (
	"os"

	"github.com/satctl/satctl/schema"
	"github.com/satctl/satctl/util/errwrap"

	"gopkg.in/yaml.v2"
)

// WorkerConfig is one worker entry in the static config.
type WorkerConfig struct {
	Name             string `yaml:"name"`
	IP               string `yaml:"ip"`
	SSHUser          string `yaml:"ssh-user"`
	SSHKey           string `yaml:"ssh-key"`
	SatVnet          string `yaml:"sat-vnet"`
	SatVnetCIDR      string `yaml:"sat-vnet-cidr"`
	SatVnetSuperCIDR string `yaml:"sat-vnet-super-cidr"`
	CPU              float64 `yaml:"cpu"`
	Mem              int64  `yaml:"mem"`
}

// Spec converts this config entry into the schema.WorkerSpec that placement
// publishes.
func (w *WorkerConfig) Spec() schema.WorkerSpec {
	return schema.WorkerSpec{
		IP:               w.IP,
		SSHUser:          w.SSHUser,
		SSHKey:           w.SSHKey,
		SatVnet:          w.SatVnet,
		SatVnetCIDR:      w.SatVnetCIDR,
		SatVnetSuperCIDR: w.SatVnetSuperCIDR,
		CPU:              w.CPU,
		Mem:              w.Mem,
	}
}

// NodeConfig is one node entry in the static config. Worker is optional --
// if empty, placement chooses one. CIDR/CIDRv6 are optional explicit
// overrides -- if empty and AutoAssignIPs is true, placement allocates one.
type NodeConfig struct {
	Name       string                 `yaml:"name"`
	Type       string                 `yaml:"type"`
	NAntennas  int                    `yaml:"n_antennas"`
	Metadata   map[string]interface{} `yaml:"metadata,omitempty"`
	Image      string                 `yaml:"image"`
	Sidecars   []string               `yaml:"sidecars,omitempty"`
	CPURequest string                 `yaml:"cpu-request"`
	MemRequest string                 `yaml:"mem-request"`
	CPULimit   string                 `yaml:"cpu-limit,omitempty"`
	MemLimit   string                 `yaml:"mem-limit,omitempty"`

	EnableNetem         bool                    `yaml:"enable-netem"`
	EnableRouting       bool                    `yaml:"enable-routing"`
	RoutingModule       string                  `yaml:"routing-module,omitempty"`
	RoutingMetadata     map[string]interface{}  `yaml:"routing-metadata,omitempty"`
	AutoAssignIPs       bool                    `yaml:"auto-assign-ips"`
	AutoAssignSuperCIDR []schema.SuperCIDRRule `yaml:"auto-assign-super-cidr,omitempty"`
	CIDR                string                  `yaml:"cidr,omitempty"`
	CIDRv6              string                  `yaml:"cidr-v6,omitempty"`

	// Worker is the explicit worker assignment, if the operator wants to
	// pin this node instead of letting placement choose.
	Worker string `yaml:"worker,omitempty"`
}

// applyDefaults fills in any zero-valued field from d. Explicit values in n
// always win.
func (n *NodeConfig) applyDefaults(d *NodeDefaults) {
	if d == nil {
		return
	}
	if n.Image == "" {
		n.Image = d.Image
	}
	if n.CPURequest == "" {
		n.CPURequest = d.CPURequest
	}
	if n.MemRequest == "" {
		n.MemRequest = d.MemRequest
	}
	if n.CPULimit == "" {
		n.CPULimit = d.CPULimit
	}
	if n.MemLimit == "" {
		n.MemLimit = d.MemLimit
	}
	if len(n.AutoAssignSuperCIDR) == 0 {
		n.AutoAssignSuperCIDR = d.AutoAssignSuperCIDR
	}
	if !n.EnableNetem {
		n.EnableNetem = d.EnableNetem
	}
	if !n.EnableRouting {
		n.EnableRouting = d.EnableRouting
	}
	if n.RoutingModule == "" {
		n.RoutingModule = d.RoutingModule
	}
	if !n.AutoAssignIPs {
		n.AutoAssignIPs = d.AutoAssignIPs
	}
}

// NodeDefaults are common field values applied to every NodeConfig that
// doesn't set them explicitly.
type NodeDefaults struct {
	Image               string                  `yaml:"image,omitempty"`
	CPURequest          string                  `yaml:"cpu-request,omitempty"`
	MemRequest          string                  `yaml:"mem-request,omitempty"`
	CPULimit            string                  `yaml:"cpu-limit,omitempty"`
	MemLimit            string                  `yaml:"mem-limit,omitempty"`
	EnableNetem         bool                    `yaml:"enable-netem,omitempty"`
	EnableRouting       bool                    `yaml:"enable-routing,omitempty"`
	RoutingModule       string                  `yaml:"routing-module,omitempty"`
	AutoAssignIPs       bool                    `yaml:"auto-assign-ips,omitempty"`
	AutoAssignSuperCIDR []schema.SuperCIDRRule `yaml:"auto-assign-super-cidr,omitempty"`
}

// Static is the top-level static configuration document that `satctl init`
// reads: the full list of workers and nodes, plus optional defaults.
type Static struct {
	Defaults    *NodeDefaults  `yaml:"defaults,omitempty"`
	Workers     []WorkerConfig `yaml:"workers"`
	Nodes       []NodeConfig   `yaml:"nodes"`
	EpochDir    string         `yaml:"epoch-dir"`
	FilePattern string         `yaml:"file-pattern"`
}

// Parse reads and unmarshals a static config document from data.
func Parse(data []byte) (*Static, error) {
	cfg := &Static{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errwrap.Wrapf(err, "could not parse static config")
	}
	for i := range cfg.Nodes {
		cfg.Nodes[i].applyDefaults(cfg.Defaults)
	}
	return cfg, nil
}

// Load reads a static config document from a file path.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errwrap.Wrapf(err, "could not read config file")
	}
	return Parse(data)
}

// EpochConfig converts the document's epoch-related fields into the
// schema.EpochConfig that placement publishes.
func (s *Static) EpochConfig() schema.EpochConfig {
	return schema.EpochConfig{
		EpochDir:    s.EpochDir,
		FilePattern: s.FilePattern,
	}
}
