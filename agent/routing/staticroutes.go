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

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/satctl/satctl/schema"
	"github.com/satctl/satctl/store"
)

// StaticRoutes applies `ip route` commands found in NodeSpec.L3Config.
// RoutingMetadata. This is the module the oracle precompiler's injected
// routes are designed to drive: a top-level "routes" list applied once at
// Init, and a per-iface "routes-by-iface" map applied as each link comes
// up.
type StaticRoutes struct{}

type staticRoute struct {
	Dest string `json:"dest"`
	Via  string `json:"via"`
}

func (s *StaticRoutes) fetchMetadata(ctx context.Context, client store.Client, node string) (map[string]interface{}, error) {
	raw, err := client.Get(ctx, schema.NodeKey(node))
	if err != nil {
		return nil, err
	}
	data, ok := raw[schema.NodeKey(node)]
	if !ok {
		return nil, fmt.Errorf("no node spec found for %q", node)
	}
	var spec schema.NodeSpec
	if err := json.Unmarshal([]byte(data), &spec); err != nil {
		return nil, err
	}
	return spec.L3Config.RoutingMetadata, nil
}

func applyRoutes(ctx context.Context, routes []staticRoute) (string, bool) {
	var lastErr error
	for _, r := range routes {
		cmd := exec.CommandContext(ctx, "ip", "route", "replace", r.Dest, "via", r.Via)
		if out, err := cmd.CombinedOutput(); err != nil {
			lastErr = fmt.Errorf("ip route replace %s via %s: %w: %s", r.Dest, r.Via, err, out)
		}
	}
	if lastErr != nil {
		return lastErr.Error(), false
	}
	return fmt.Sprintf("applied %d routes", len(routes)), true
}

func decodeRoutes(v interface{}) []staticRoute {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []staticRoute
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		dest, _ := m["dest"].(string)
		via, _ := m["via"].(string)
		if dest == "" || via == "" {
			continue
		}
		out = append(out, staticRoute{Dest: dest, Via: via})
	}
	return out
}

func (s *StaticRoutes) Init(ctx context.Context, client store.Client, node string) (string, bool) {
	metadata, err := s.fetchMetadata(ctx, client, node)
	if err != nil {
		return err.Error(), false
	}
	routes := decodeRoutes(metadata["routes"])
	if len(routes) == 0 {
		return "no static routes configured", true
	}
	return applyRoutes(ctx, routes)
}

func (s *StaticRoutes) LinkAdd(ctx context.Context, client store.Client, node, iface string) (string, bool) {
	metadata, err := s.fetchMetadata(ctx, client, node)
	if err != nil {
		return err.Error(), false
	}
	byIface, ok := metadata["routes-by-iface"].(map[string]interface{})
	if !ok {
		return "no per-iface routes configured", true
	}
	routes := decodeRoutes(byIface[iface])
	if len(routes) == 0 {
		return fmt.Sprintf("no routes for iface %s", iface), true
	}
	return applyRoutes(ctx, routes)
}

func (s *StaticRoutes) LinkDel(ctx context.Context, client store.Client, node, iface string) (string, bool) {
	return fmt.Sprintf("no teardown action for iface %s", iface), true
}
