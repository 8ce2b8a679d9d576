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

package schema

import (
	"fmt"
	"strings"
)

// Key prefixes. Every builder below formats a full key from one of these;
// every parser strips one of these back off.
const (
	// ConfigPrefix covers every key under /config/, the full set `rm`
	// deletes in one batch.
	ConfigPrefix     = "/config/"
	WorkersPrefix    = "/config/workers/"
	NodesPrefix      = "/config/nodes/"
	EpochConfigKey   = "/config/epoch-config"
	EtcHostsPrefix   = "/config/etchosts/"
	LinksPrefix      = "/config/links/"
	RunPrefix        = "/config/run/"
	StateRunPrefix   = "/state/run/"
	LastErrorKey     = "/state/last-error"
	EpochCurrentKey  = "/state/epoch/current"
)

// WorkerKey returns the store key for a worker's WorkerSpec.
func WorkerKey(worker string) string {
	return WorkersPrefix + worker
}

// NodeKey returns the store key for a node's NodeSpec.
func NodeKey(node string) string {
	return NodesPrefix + node
}

// EtcHostsKey returns the store key for a node's HostEntry.
func EtcHostsKey(node string) string {
	return EtcHostsPrefix + node
}

// NodeLinksPrefix returns the prefix a node agent watches for its own
// LinkRecords: /config/links/{node}/.
func NodeLinksPrefix(node string) string {
	return LinksPrefix + node + "/"
}

// LinkKey returns the store key for one half-link, as seen from node, over
// the interface named iface.
func LinkKey(node, iface string) string {
	return NodeLinksPrefix(node) + iface
}

// ParseLinkKey splits a link key back into its node and iface components.
// It returns ok=false if key doesn't have the expected shape.
func ParseLinkKey(key string) (node, iface string, ok bool) {
	if !strings.HasPrefix(key, LinksPrefix) {
		return "", "", false
	}
	rest := key[len(LinksPrefix):]
	i := strings.Index(rest, "/")
	if i < 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// RunKey returns the store key for a node's TaskList.
func RunKey(node string) string {
	return RunPrefix + node
}

// StateRunKey returns the store key for a node's last RunResult.
func StateRunKey(node string) string {
	return StateRunPrefix + node
}

// NodeNameFromRunKey strips the RunPrefix off of a /config/run/{node} key.
func NodeNameFromRunKey(key string) (string, bool) {
	if !strings.HasPrefix(key, RunPrefix) {
		return "", false
	}
	return key[len(RunPrefix):], true
}

// NodeNameFromNodeKey strips the NodesPrefix off of a /config/nodes/{node}
// key.
func NodeNameFromNodeKey(key string) (string, bool) {
	if !strings.HasPrefix(key, NodesPrefix) {
		return "", false
	}
	return key[len(NodesPrefix):], true
}

// IfaceName returns the deterministic interface name used for the VXLAN
// link to peer over the given antenna: vl_{peer}_{antenna}.
func IfaceName(peer string, antenna int) string {
	return fmt.Sprintf("vl_%s_%d", peer, antenna)
}
