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

// Package oracle implements the offline routing precompiler from §4.5: a
// pure function over an ordered sequence of epoch files that computes
// shortest paths and emits new epoch files with injected ip route commands.
// It never touches the store.
package oracle

// NodeTypeFilter selects which nodes the precompiler treats as routed, per
// §4.5's --node-type-to-route flag. The zero value matches every type, so
// a caller only needs to construct one to narrow the routed set. No satctl
// subcommand builds one.
type NodeTypeFilter struct {
	types map[string]bool
}

// NewNodeTypeFilter builds a filter matching exactly the given types.
func NewNodeTypeFilter(types ...string) NodeTypeFilter {
	f := NodeTypeFilter{types: make(map[string]bool, len(types))}
	for _, t := range types {
		f.types[t] = true
	}
	return f
}

// Match reports whether nodeType should be treated as routed.
func (f NodeTypeFilter) Match(nodeType string) bool {
	if len(f.types) == 0 {
		return true
	}
	return f.types[nodeType]
}
