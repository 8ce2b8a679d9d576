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

// Package agent implements the long-lived per-node process: a single
// cooperative event loop running three logical tasks (init, link
// reconciler, task runner) that never interleave kernel changes, per §4.3.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	errwrap "github.com/pkg/errors"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/satctl/satctl/agent/linkmgr"
	"github.com/satctl/satctl/agent/metrics"
	"github.com/satctl/satctl/agent/routing"
	"github.com/satctl/satctl/schema"
	"github.com/satctl/satctl/store"
)

// Agent is the per-node process. Run() blocks until ctx is canceled
// (SIGTERM), draining in-flight reconciliation before returning.
type Agent struct {
	Node   string
	Client store.Client

	Reconciler *linkmgr.Reconciler
	Metrics    *metrics.Metrics

	Debug bool
	Logf  func(format string, v ...interface{})

	links map[string]schema.LinkRecord // iface -> last-applied record
}

func (obj *Agent) logf(format string, v ...interface{}) {
	if !obj.Debug || obj.Logf == nil {
		return
	}
	obj.Logf(format, v...)
}

func (obj *Agent) routingModule(ctx context.Context) (routing.Module, error) {
	spec, err := obj.nodeSpec(ctx)
	if err != nil {
		return nil, err
	}
	if !spec.L3Config.EnableRouting {
		return &routing.Noop{}, nil
	}
	name := spec.L3Config.RoutingModule
	if name == "" {
		name = "noop"
	}
	module, ok := routing.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("no routing module registered under %q", name)
	}
	return module, nil
}

func (obj *Agent) nodeSpec(ctx context.Context) (*schema.NodeSpec, error) {
	data, err := obj.Client.Get(ctx, schema.NodeKey(obj.Node))
	if err != nil {
		return nil, errwrap.Wrapf(err, "fetching own node spec")
	}
	raw, ok := data[schema.NodeKey(obj.Node)]
	if !ok {
		return nil, fmt.Errorf("no node spec found for %q", obj.Node)
	}
	var spec schema.NodeSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, errwrap.Wrapf(err, "decoding node spec for %q", obj.Node)
	}
	return &spec, nil
}

// Run starts T1 synchronously, then drives T2 and T3 off one event loop
// until ctx is canceled.
func (obj *Agent) Run(ctx context.Context) error {
	if obj.links == nil {
		obj.links = make(map[string]schema.LinkRecord)
	}

	if err := obj.init(ctx); err != nil {
		return errwrap.Wrapf(err, "T1 init failed")
	}

	linkWatch, err := obj.Client.ComplexWatcher(ctx, schema.NodeLinksPrefix(obj.Node), etcd.WithPrefix())
	if err != nil {
		return errwrap.Wrapf(err, "starting link watch")
	}
	defer linkWatch.Cancel()

	runWatch, err := obj.Client.ComplexWatcher(ctx, schema.RunKey(obj.Node))
	if err != nil {
		return errwrap.Wrapf(err, "starting run watch")
	}
	defer runWatch.Cancel()

	for {
		select {
		case <-ctx.Done():
			obj.logf("agent: draining on shutdown")
			return nil

		case data, ok := <-linkWatch.Events:
			if !ok {
				return fmt.Errorf("link watch closed unexpectedly")
			}
			if data.Err != nil {
				obj.logf("agent: link watch error, resyncing: %s", data.Err)
				if err := obj.resyncLinks(ctx); err != nil {
					obj.logf("agent: resync failed: %s", err)
				}
				continue
			}
			if data.Created {
				if err := obj.resyncLinks(ctx); err != nil {
					obj.logf("agent: initial link resync failed: %s", err)
				}
				continue
			}
			for _, ev := range data.Events {
				if err := obj.handleLinkEvent(ctx, ev); err != nil {
					obj.logf("agent: link event failed: %s", err)
					if obj.Metrics != nil {
						obj.Metrics.ReconcileError(obj.Node)
					}
				}
			}

		case data, ok := <-runWatch.Events:
			if !ok {
				return fmt.Errorf("run watch closed unexpectedly")
			}
			if data.Err != nil || data.Created {
				continue // nothing to execute on startup/transient errors
			}
			for _, ev := range data.Events {
				if err := obj.handleRunEvent(ctx, ev); err != nil {
					obj.logf("agent: run event failed: %s", err)
				}
			}
		}
	}
}

// init performs T1: bridges, underlay address discovery, routing module
// init.
func (obj *Agent) init(ctx context.Context) error {
	spec, err := obj.nodeSpec(ctx)
	if err != nil {
		return err
	}

	if err := obj.Reconciler.EnsureBridges(ctx, spec.NAntennas); err != nil {
		return errwrap.Wrapf(err, "creating antenna bridges")
	}

	addr, err := obj.Reconciler.Eth0Addr()
	if err != nil {
		return errwrap.Wrapf(err, "discovering eth0 address")
	}
	spec.Eth0IP = addr
	data, err := json.Marshal(spec)
	if err != nil {
		return errwrap.Wrapf(err, "encoding updated node spec")
	}
	if err := obj.Client.Set(ctx, schema.NodeKey(obj.Node), string(data)); err != nil {
		return errwrap.Wrapf(err, "writing back eth0_ip")
	}

	hostEntry := schema.HostEntry{Addr: addr}
	hdata, err := json.Marshal(hostEntry)
	if err != nil {
		return errwrap.Wrapf(err, "encoding host entry")
	}
	if err := obj.Client.Set(ctx, schema.EtcHostsKey(obj.Node), string(hdata)); err != nil {
		return errwrap.Wrapf(err, "publishing host entry")
	}

	module, err := obj.routingModule(ctx)
	if err != nil {
		return err
	}
	if msg, ok := module.Init(ctx, obj.Client, obj.Node); !ok {
		return fmt.Errorf("routing module init failed: %s", msg)
	}

	return nil
}

// resyncLinks performs a full list-then-diff against kernel state, used on
// initial watch startup and after a transient store disconnect.
func (obj *Agent) resyncLinks(ctx context.Context) error {
	data, err := obj.Client.Get(ctx, schema.NodeLinksPrefix(obj.Node), etcd.WithPrefix())
	if err != nil {
		return errwrap.Wrapf(err, "listing links")
	}

	seen := make(map[string]bool)
	for key, raw := range data {
		_, iface, ok := schema.ParseLinkKey(key)
		if !ok {
			continue
		}
		var link schema.LinkRecord
		if err := json.Unmarshal([]byte(raw), &link); err != nil {
			obj.logf("agent: skipping malformed link record %s: %s", key, err)
			continue
		}
		seen[iface] = true
		if err := obj.applyLink(ctx, iface, link); err != nil {
			obj.logf("agent: resync apply %s failed: %s", iface, err)
		}
	}

	for iface := range obj.links {
		if !seen[iface] {
			if err := obj.removeLink(ctx, iface); err != nil {
				obj.logf("agent: resync remove %s failed: %s", iface, err)
			}
		}
	}

	return nil
}

// handleLinkEvent applies one T2 put/delete event.
func (obj *Agent) handleLinkEvent(ctx context.Context, ev *etcd.Event) error {
	_, iface, ok := schema.ParseLinkKey(string(ev.Kv.Key))
	if !ok {
		return fmt.Errorf("malformed link key %q", ev.Kv.Key)
	}

	if ev.Type == etcd.EventTypeDelete {
		return obj.removeLink(ctx, iface)
	}

	var link schema.LinkRecord
	if err := json.Unmarshal(ev.Kv.Value, &link); err != nil {
		return errwrap.Wrapf(err, "decoding link record for %s", iface)
	}

	if existing, ok := obj.links[iface]; ok && existing == link {
		return nil // identical redelivery, no-op per the idempotency contract
	}

	return obj.applyLink(ctx, iface, link)
}

func (obj *Agent) peerAndAntenna(link schema.LinkRecord) (peer string, selfAntenna int) {
	if link.Endpoint1 == obj.Node {
		return link.Endpoint2, link.Endpoint1Antenna
	}
	return link.Endpoint1, link.Endpoint2Antenna
}

func (obj *Agent) applyLink(ctx context.Context, iface string, link schema.LinkRecord) error {
	peer, antenna := obj.peerAndAntenna(link)

	peerData, err := obj.Client.Get(ctx, schema.NodeKey(peer))
	if err != nil {
		return errwrap.Wrapf(err, "fetching peer spec for %s", peer)
	}
	raw, ok := peerData[schema.NodeKey(peer)]
	if !ok {
		return fmt.Errorf("no node spec found for peer %q", peer)
	}
	var peerSpec schema.NodeSpec
	if err := json.Unmarshal([]byte(raw), &peerSpec); err != nil {
		return errwrap.Wrapf(err, "decoding peer spec for %s", peer)
	}
	if peerSpec.Eth0IP == "" {
		return fmt.Errorf("peer %q has no eth0_ip yet", peer)
	}

	self, err := obj.nodeSpec(ctx)
	if err != nil {
		return err
	}

	bridge := linkmgr.BridgeName(antenna)
	if err := obj.Reconciler.ApplyLink(ctx, iface, link, self.Eth0IP, peerSpec.Eth0IP, bridge); err != nil {
		return errwrap.Wrapf(err, "applying link %s", iface)
	}

	module, err := obj.routingModule(ctx)
	if err != nil {
		return err
	}
	if msg, ok := module.LinkAdd(ctx, obj.Client, obj.Node, iface); !ok {
		return fmt.Errorf("routing module link_add failed for %s: %s", iface, msg)
	}

	wasNew := func() bool { _, existed := obj.links[iface]; return !existed }()
	obj.links[iface] = link
	if obj.Metrics != nil && wasNew {
		obj.Metrics.LinkUp(obj.Node)
	}
	return nil
}

func (obj *Agent) removeLink(ctx context.Context, iface string) error {
	module, err := obj.routingModule(ctx)
	if err != nil {
		return err
	}
	if msg, ok := module.LinkDel(ctx, obj.Client, obj.Node, iface); !ok {
		return fmt.Errorf("routing module link_del failed for %s: %s", iface, msg)
	}

	if err := obj.Reconciler.RemoveLink(ctx, iface); err != nil {
		return errwrap.Wrapf(err, "removing link %s", iface)
	}

	if _, existed := obj.links[iface]; existed {
		delete(obj.links, iface)
		if obj.Metrics != nil {
			obj.Metrics.LinkDown(obj.Node)
		}
	}
	return nil
}

// handleRunEvent executes T3: a new revision of the node's TaskList, even
// with identical content, is run again and reported to /state/run/{node}.
func (obj *Agent) handleRunEvent(ctx context.Context, ev *etcd.Event) error {
	var tasks schema.TaskList
	if err := json.Unmarshal(ev.Kv.Value, &tasks); err != nil {
		return errwrap.Wrapf(err, "decoding task list")
	}

	result := obj.runTasks(ctx, tasks)

	data, err := json.Marshal(result)
	if err != nil {
		return errwrap.Wrapf(err, "encoding run result")
	}
	if err := obj.Client.Set(ctx, schema.StateRunKey(obj.Node), string(data)); err != nil {
		return errwrap.Wrapf(err, "publishing run result")
	}

	if obj.Metrics != nil {
		obj.Metrics.TaskRun(obj.Node, result.ExitCode == 0)
	}
	return nil
}

func (obj *Agent) runTasks(ctx context.Context, tasks schema.TaskList) schema.RunResult {
	var output []byte
	for _, task := range tasks {
		cmd := exec.CommandContext(ctx, "sh", "-c", task)
		out, err := cmd.CombinedOutput()
		output = append(output, out...)
		if err != nil {
			code := 1
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			}
			return schema.RunResult{ExitCode: code, Ran: time.Now(), Output: string(output)}
		}
	}
	return schema.RunResult{ExitCode: 0, Ran: time.Now(), Output: string(output)}
}
