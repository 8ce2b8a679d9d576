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

package linkmgr

import (
	"context"
	"fmt"
	"os/exec"

	errwrap "github.com/pkg/errors"
	"github.com/vishvananda/netlink"

	"github.com/satctl/satctl/schema"
)

// Reconciler drives local kernel VXLAN/bridge state towards a LinkRecord,
// diffing against netlink's live view before touching anything.
type Reconciler struct {
	Debug bool
	Logf  func(format string, v ...interface{})
}

func (obj *Reconciler) logf(format string, v ...interface{}) {
	if !obj.Debug || obj.Logf == nil {
		return
	}
	obj.Logf(format, v...)
}

// run executes one shell command line locally via sh -c, the way the
// worker executor does it remotely over SSH.
func (obj *Reconciler) run(ctx context.Context, line string) error {
	obj.logf("linkmgr: running: %s", line)
	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errwrap.Wrapf(err, "command %q failed: %s", line, out)
	}
	return nil
}

func (obj *Reconciler) runAll(ctx context.Context, lines []string) error {
	for _, line := range lines {
		if err := obj.run(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether a VXLAN interface by this name is currently
// present.
func (obj *Reconciler) Exists(iface string) (bool, error) {
	_, err := netlink.LinkByName(iface)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Differs reports whether the live VXLAN interface's id or endpoints
// disagree with link, requiring a delete-then-create instead of an
// in-place update.
func (obj *Reconciler) Differs(iface string, link schema.LinkRecord, localEth0IP, remoteEth0IP string) (bool, error) {
	existing, err := netlink.LinkByName(iface)
	if err != nil {
		return false, err
	}
	vxlan, ok := existing.(*netlink.Vxlan)
	if !ok {
		return true, nil // something else owns this name; treat as a mismatch
	}
	if uint32(vxlan.VxlanId) != link.VNI {
		return true, nil
	}
	if vxlan.Group != nil && vxlan.Group.String() != remoteEth0IP {
		return true, nil
	}
	if vxlan.Local != nil && vxlan.Local.String() != localEth0IP {
		return true, nil
	}
	return false, nil
}

// ApplyLink reconciles one half-link towards link's state: create if
// absent, delete-then-create if structurally different, then (re)apply
// netem shaping. iface is already the deterministic schema.IfaceName for
// this link. Returns nil once the VXLAN interface and its shaping are in
// the desired state, ready for the caller to invoke the routing module's
// LinkAdd.
func (obj *Reconciler) ApplyLink(ctx context.Context, iface string, link schema.LinkRecord, localEth0IP, remoteEth0IP string, bridge string) error {
	exists, err := obj.Exists(iface)
	if err != nil {
		return errwrap.Wrapf(err, "checking for existing iface %s", iface)
	}

	if exists {
		differs, err := obj.Differs(iface, link, localEth0IP, remoteEth0IP)
		if err != nil {
			return errwrap.Wrapf(err, "diffing iface %s", iface)
		}
		if differs {
			if err := obj.runAll(ctx, VxlanDelete(iface)); err != nil {
				return errwrap.Wrapf(err, "deleting stale iface %s", iface)
			}
			exists = false
		}
	}

	if !exists {
		if err := obj.runAll(ctx, VxlanCreate(iface, link.VNI, localEth0IP, remoteEth0IP, bridge)); err != nil {
			return errwrap.Wrapf(err, "creating iface %s", iface)
		}
	}

	if err := obj.runAll(ctx, NetemReplace(iface, link)); err != nil {
		return errwrap.Wrapf(err, "shaping iface %s", iface)
	}

	return nil
}

// RemoveLink tears an iface down entirely, for a delete event.
func (obj *Reconciler) RemoveLink(ctx context.Context, iface string) error {
	exists, err := obj.Exists(iface)
	if err != nil {
		return errwrap.Wrapf(err, "checking for existing iface %s", iface)
	}
	if !exists {
		return nil
	}
	return obj.runAll(ctx, VxlanDelete(iface))
}

// EnsureBridges creates br1..brN if they don't already exist, for T1.
func (obj *Reconciler) EnsureBridges(ctx context.Context, n int) error {
	for i := 1; i <= n; i++ {
		bridge := BridgeName(i)
		exists, err := obj.Exists(bridge)
		if err != nil {
			return errwrap.Wrapf(err, "checking for existing bridge %s", bridge)
		}
		if exists {
			continue
		}
		if err := obj.runAll(ctx, BridgeCreate(bridge)); err != nil {
			return errwrap.Wrapf(err, "creating bridge %s", bridge)
		}
	}
	return nil
}

// Eth0Addr returns the first IPv4 address configured on eth0, the
// underlay address T1 writes back to the store.
func (obj *Reconciler) Eth0Addr() (string, error) {
	link, err := netlink.LinkByName("eth0")
	if err != nil {
		return "", errwrap.Wrapf(err, "looking up eth0")
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return "", errwrap.Wrapf(err, "listing addresses on eth0")
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("eth0 has no IPv4 address")
	}
	return addrs[0].IP.String(), nil
}
