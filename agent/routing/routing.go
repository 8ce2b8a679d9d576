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

// Package routing hosts the pluggable routing callback the node agent
// invokes on startup and on every link change: a registry of compiled-in
// modules, looked up by name. Only modules registered in this binary can be
// selected; there is no adapter for out-of-process modules. All three
// operations are idempotent and must never throw; failure is reported via
// the returned bool, per §6.
package routing

import (
	"context"

	"github.com/satctl/satctl/store"
)

// Module is the routing-module interface every node's L3Config.RoutingModule
// resolves to.
type Module interface {
	// Init is called once, before T2's watch is established.
	Init(ctx context.Context, client store.Client, node string) (message string, ok bool)

	// LinkAdd is called after a VXLAN interface and bridge attachment are
	// up.
	LinkAdd(ctx context.Context, client store.Client, node, iface string) (message string, ok bool)

	// LinkDel is called before physical teardown.
	LinkDel(ctx context.Context, client store.Client, node, iface string) (message string, ok bool)
}

var registry = make(map[string]Module)

// Register adds a compiled-in module under name, for NodeSpec.L3Config.
// RoutingModule to reference. Call from an init() in the module's own
// file, the way the teacher's compiled-in resource kinds register
// themselves.
func Register(name string, module Module) {
	registry[name] = module
}

// Lookup returns the module registered under name.
func Lookup(name string) (Module, bool) {
	m, ok := registry[name]
	return m, ok
}

func init() {
	Register("noop", &Noop{})
	Register("static-routes", &StaticRoutes{})
}
