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

package placement

import "fmt"

// ValidationError wraps one or more config document problems found during
// Validate: duplicate names, oversized names, overlapping CIDRs, or
// dangling worker references.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation error: " + e.Msg }

// InsufficientCapacityError is returned by Place when no worker admits a
// node's (cpu-request, mem-request).
type InsufficientCapacityError struct {
	Node string
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity: no worker admits node %q", e.Node)
}

// AddressPoolExhaustedError is returned when an auto-assign-super-cidr rule
// runs out of subnets before every matching node is addressed.
type AddressPoolExhaustedError struct {
	Rule string
}

func (e *AddressPoolExhaustedError) Error() string {
	return fmt.Sprintf("address pool exhausted: rule %q ran out of subnets", e.Rule)
}

// StoreError wraps a failure talking to the backing store during Publish.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store error during %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }
