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

	"github.com/satctl/satctl/store"
)

// Noop is the default routing module for nodes with enable-routing false
// or no routing needs of their own.
type Noop struct{}

func (n *Noop) Init(ctx context.Context, client store.Client, node string) (string, bool) {
	return "noop: nothing to initialize", true
}

func (n *Noop) LinkAdd(ctx context.Context, client store.Client, node, iface string) (string, bool) {
	return "noop: ignoring link add", true
}

func (n *Noop) LinkDel(ctx context.Context, client store.Client, node, iface string) (string, bool) {
	return "noop: ignoring link del", true
}
