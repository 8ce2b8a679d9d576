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

// Package placement schedules configured nodes onto workers subject to
// CPU/RAM budgets, allocates overlay addresses, and publishes the resulting
// WorkerSpec/NodeSpec/EpochConfig records to the store.
package placement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"

	"github.com/satctl/satctl/config"
	"github.com/satctl/satctl/placement/addr"
	"github.com/satctl/satctl/schema"
	"github.com/satctl/satctl/store"

	etcd "go.etcd.io/etcd/client/v3"
	multierror "github.com/hashicorp/go-multierror"
)

// Assignment is the deterministic result of Place/Plan: fully resolved
// worker and node specs, ready for Publish.
type Assignment struct {
	Workers map[string]schema.WorkerSpec
	Nodes   map[string]schema.NodeSpec
	Epoch   schema.EpochConfig
}

// Validate rejects duplicate names, oversized names, non-disjoint worker
// subnets, and node worker references that don't exist. Errors accumulate
// via multierror so a single run reports everything wrong at once, rather
// than stopping at the first problem.
func Validate(cfg *config.Static) error {
	var result error

	seenWorkers := make(map[string]bool)
	var workerCIDRs []string
	for _, w := range cfg.Workers {
		if seenWorkers[w.Name] {
			result = multierror.Append(result, &ValidationError{Msg: fmt.Sprintf("duplicate worker name %q", w.Name)})
		}
		seenWorkers[w.Name] = true
		if w.SatVnetCIDR != "" {
			workerCIDRs = append(workerCIDRs, w.SatVnetCIDR)
		}
	}
	if err := schema.ValidateDisjointCIDRs(workerCIDRs); err != nil {
		result = multierror.Append(result, &ValidationError{Msg: err.Error()})
	}

	seenNodes := make(map[string]bool)
	var nodeCIDRs []string
	for _, n := range cfg.Nodes {
		if seenNodes[n.Name] {
			result = multierror.Append(result, &ValidationError{Msg: fmt.Sprintf("duplicate node name %q", n.Name)})
		}
		seenNodes[n.Name] = true

		if err := schema.ValidateNodeName(n.Name); err != nil {
			result = multierror.Append(result, &ValidationError{Msg: err.Error()})
		}

		if n.Worker != "" && !seenWorkers[n.Worker] {
			result = multierror.Append(result, &ValidationError{Msg: fmt.Sprintf("node %q references unknown worker %q", n.Name, n.Worker)})
		}

		if n.CIDR != "" {
			nodeCIDRs = append(nodeCIDRs, n.CIDR)
		}
		if n.CIDRv6 != "" {
			nodeCIDRs = append(nodeCIDRs, n.CIDRv6)
		}
	}
	if err := schema.ValidateDisjointCIDRs(nodeCIDRs); err != nil {
		result = multierror.Append(result, &ValidationError{Msg: err.Error()})
	}

	return result
}

// residual tracks a worker's remaining schedulable capacity during Place.
type residual struct {
	name string
	cpu  float64
	mem  int64
}

// admits reports whether residual capacity covers the request on both axes
// independently.
func (r *residual) admits(cpu float64, mem int64) bool {
	return r.cpu >= cpu && r.mem >= mem
}

// bestFit picks, among admissible workers, the one that keeps load most
// balanced: the one with the most residual capacity remaining, ties broken
// by worker name. This is what keeps a decreasing run of identically-sized
// requests spread round-robin across equal-capacity workers instead of
// piling onto one.
func bestFit(residuals []*residual, cpu float64, mem int64) *residual {
	var best *residual
	for _, r := range residuals {
		if !r.admits(cpu, mem) {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		if r.cpu > best.cpu || (r.cpu == best.cpu && r.mem > best.mem) ||
			(r.cpu == best.cpu && r.mem == best.mem && r.name < best.name) {
			best = r
		}
	}
	return best
}

// Place runs placement and address allocation, returning the full
// assignment without any side effects -- this is also what Plan calls for
// its dry-run preview.
func Place(cfg *config.Static) (*Assignment, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	workerSpecs := make(map[string]schema.WorkerSpec, len(cfg.Workers))
	residuals := make([]*residual, 0, len(cfg.Workers))
	residualByName := make(map[string]*residual, len(cfg.Workers))
	for _, w := range cfg.Workers {
		workerSpecs[w.Name] = w.Spec()
		r := &residual{name: w.Name, cpu: w.CPU, mem: w.Mem}
		residuals = append(residuals, r)
		residualByName[w.Name] = r
	}

	assigned := make(map[string]string, len(cfg.Nodes)) // node name -> worker name
	var toPlace []config.NodeConfig
	for _, n := range cfg.Nodes {
		if n.Worker != "" {
			assigned[n.Name] = n.Worker
			if r, ok := residualByName[n.Worker]; ok {
				cpu, mem, err := requestOf(n)
				if err != nil {
					return nil, &ValidationError{Msg: err.Error()}
				}
				r.cpu -= cpu
				r.mem -= mem
			}
			continue
		}
		toPlace = append(toPlace, n)
	}

	sizes := make(map[string]float64, len(toPlace))
	for _, n := range toPlace {
		cpu, mem, err := requestOf(n)
		if err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}
		sizes[n.Name] = cpu + float64(mem)
	}
	sort.SliceStable(toPlace, func(i, j int) bool {
		return sizes[toPlace[i].Name] > sizes[toPlace[j].Name]
	})

	for _, n := range toPlace {
		cpu, mem, _ := requestOf(n)
		r := bestFit(residuals, cpu, mem)
		if r == nil {
			return nil, &InsufficientCapacityError{Node: n.Name}
		}
		r.cpu -= cpu
		r.mem -= mem
		assigned[n.Name] = r.name
	}

	nodeSpecs, err := allocateAddresses(cfg, assigned)
	if err != nil {
		return nil, err
	}

	return &Assignment{
		Workers: workerSpecs,
		Nodes:   nodeSpecs,
		Epoch:   cfg.EpochConfig(),
	}, nil
}

// requestOf parses a node's cpu-request/mem-request strings into numeric
// form for the bin-packer.
func requestOf(n config.NodeConfig) (float64, int64, error) {
	cpu, err := parseCPU(n.CPURequest)
	if err != nil {
		return 0, 0, fmt.Errorf("node %q: %w", n.Name, err)
	}
	mem, err := parseMem(n.MemRequest)
	if err != nil {
		return 0, 0, fmt.Errorf("node %q: %w", n.Name, err)
	}
	return cpu, mem, nil
}

// allocateAddresses runs the auto-assign-super-cidr rules in document
// order, with "any" rules deferred to last as a catch-all, then builds the
// final NodeSpec for every node.
func allocateAddresses(cfg *config.Static, assigned map[string]string) (map[string]schema.NodeSpec, error) {
	specs := make(map[string]schema.NodeSpec, len(cfg.Nodes))
	byName := make(map[string]*config.NodeConfig, len(cfg.Nodes))
	cidrV4 := make(map[string]string)
	cidrV6 := make(map[string]string)

	for i := range cfg.Nodes {
		n := &cfg.Nodes[i]
		byName[n.Name] = n
		if n.CIDR != "" {
			cidrV4[n.Name] = n.CIDR
		}
		if n.CIDRv6 != "" {
			cidrV6[n.Name] = n.CIDRv6
		}
	}

	rules := orderedRules(cfg.Nodes)
	for _, rr := range rules {
		family := 4
		if p, err := netip.ParsePrefix(rr.rule.SuperCIDR); err == nil && !p.Addr().Is4() {
			family = 6
		}
		bits := schema.OverlayPrefixLenV4
		reserved := collectReserved(cidrV4)
		target := cidrV4
		if family == 6 {
			bits = schema.OverlayPrefixLenV6
			reserved = collectReserved(cidrV6)
			target = cidrV6
		}

		pool, err := addr.NewPool(rr.rule.SuperCIDR, bits, reserved)
		if err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}

		for _, name := range rr.nodes {
			if _, have := target[name]; have {
				continue // explicit override already set
			}
			n := byName[name]
			if !n.AutoAssignIPs {
				continue
			}
			if !matchesRule(n, rr.rule) {
				continue
			}
			p, err := pool.Next()
			if err != nil {
				return nil, &AddressPoolExhaustedError{Rule: rr.rule.SuperCIDR}
			}
			target[name] = p.String()
		}
	}

	for i := range cfg.Nodes {
		n := cfg.Nodes[i]
		specs[n.Name] = schema.NodeSpec{
			Type:      n.Type,
			NAntennas: n.NAntennas,
			Metadata:  n.Metadata,
			Image:     n.Image,
			Sidecars:  n.Sidecars,
			CPURequest: n.CPURequest,
			MemRequest: n.MemRequest,
			CPULimit:   n.CPULimit,
			MemLimit:   n.MemLimit,
			L3Config: schema.L3Config{
				EnableNetem:         n.EnableNetem,
				EnableRouting:       n.EnableRouting,
				RoutingModule:       n.RoutingModule,
				RoutingMetadata:     n.RoutingMetadata,
				AutoAssignIPs:       n.AutoAssignIPs,
				AutoAssignSuperCIDR: n.AutoAssignSuperCIDR,
				CIDR:                cidrV4[n.Name],
				CIDRv6:              cidrV6[n.Name],
			},
			Worker: assigned[n.Name],
		}
	}
	return specs, nil
}

type ruleNodes struct {
	rule  schema.SuperCIDRRule
	nodes []string
}

// orderedRules groups the rules that appear on any node's
// auto-assign-super-cidr list, deduplicated by (match-type, super-cidr),
// preserving document order, with "any" rules moved after every specific
// one so they act as a trailing catch-all.
func orderedRules(nodes []config.NodeConfig) []ruleNodes {
	var specific, anyRules []schema.SuperCIDRRule
	seen := make(map[schema.SuperCIDRRule]bool)
	for _, n := range nodes {
		for _, r := range n.AutoAssignSuperCIDR {
			if seen[r] {
				continue
			}
			seen[r] = true
			if r.MatchType == "any" {
				anyRules = append(anyRules, r)
			} else {
				specific = append(specific, r)
			}
		}
	}
	ordered := append(specific, anyRules...)

	out := make([]ruleNodes, 0, len(ordered))
	for _, r := range ordered {
		var names []string
		for _, n := range nodes {
			if hasRule(n, r) {
				names = append(names, n.Name)
			}
		}
		out = append(out, ruleNodes{rule: r, nodes: names})
	}
	return out
}

func hasRule(n config.NodeConfig, r schema.SuperCIDRRule) bool {
	for _, x := range n.AutoAssignSuperCIDR {
		if x == r {
			return true
		}
	}
	return false
}

func matchesRule(n *config.NodeConfig, r schema.SuperCIDRRule) bool {
	return r.MatchType == "any" || r.MatchType == n.Type
}

func collectReserved(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// Plan computes the same assignment Place would, without writing anything
// to the store. `satctl init --dry-run` calls Place directly and stops
// before Publish.
func Plan(cfg *config.Static) (*Assignment, error) {
	return Place(cfg)
}

// Publish writes the assignment to the store in a single transaction,
// put-if-different for the batch as a whole: if every key already holds its
// value nothing is written; otherwise every key in the batch is written.
func Publish(ctx context.Context, client store.Client, a *Assignment) error {
	type kv struct {
		key   string
		value string
	}
	var kvs []kv

	for name, w := range a.Workers {
		data, err := json.Marshal(w)
		if err != nil {
			return &StoreError{Op: "marshal worker " + name, Err: err}
		}
		kvs = append(kvs, kv{key: schema.WorkerKey(name), value: string(data)})
	}
	for name, n := range a.Nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return &StoreError{Op: "marshal node " + name, Err: err}
		}
		kvs = append(kvs, kv{key: schema.NodeKey(name), value: string(data)})
	}
	epochData, err := json.Marshal(a.Epoch)
	if err != nil {
		return &StoreError{Op: "marshal epoch config", Err: err}
	}
	kvs = append(kvs, kv{key: schema.EpochConfigKey, value: string(epochData)})

	var cmps []etcd.Cmp
	var elseOps []etcd.Op
	for _, x := range kvs {
		cmps = append(cmps, etcd.Compare(etcd.Value(x.key), "=", x.value))
		elseOps = append(elseOps, etcd.OpPut(x.key, x.value))
	}

	if _, err := client.Txn(ctx, cmps, nil, elseOps); err != nil {
		return &StoreError{Op: "publish txn", Err: err}
	}
	return nil
}
