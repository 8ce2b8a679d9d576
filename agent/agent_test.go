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

package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/satctl/satctl/schema"
	"github.com/satctl/satctl/store"

	etcd "go.etcd.io/etcd/client/v3"
)

// fakeStore is a minimal in-memory store.Client for testing.
type fakeStore struct {
	data map[string]string
}

func (f *fakeStore) GetClient() *etcd.Client { return nil }
func (f *fakeStore) Set(ctx context.Context, key, value string, opts ...etcd.OpOption) error {
	f.data[key] = value
	return nil
}
func (f *fakeStore) Get(ctx context.Context, path string, opts ...etcd.OpOption) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range f.data {
		if strings.HasPrefix(k, path) {
			out[k] = v
		}
	}
	return out, nil
}
func (f *fakeStore) Del(ctx context.Context, path string, opts ...etcd.OpOption) (int64, error) {
	return 0, nil
}
func (f *fakeStore) Txn(ctx context.Context, ifCmps []etcd.Cmp, thenOps, elseOps []etcd.Op) (*etcd.TxnResponse, error) {
	return nil, nil
}
func (f *fakeStore) Watcher(ctx context.Context, path string, opts ...etcd.OpOption) (chan error, error) {
	return nil, nil
}
func (f *fakeStore) ComplexWatcher(ctx context.Context, path string, opts ...etcd.OpOption) (*store.WatcherInfo, error) {
	return nil, nil
}

var _ store.Client = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func putNode(t *testing.T, fs *fakeStore, name string, spec schema.NodeSpec) {
	t.Helper()
	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}
	fs.data[schema.NodeKey(name)] = string(data)
}

func TestPeerAndAntennaEndpoint1IsSelf(t *testing.T) {
	a := &Agent{Node: "sat1"}
	link := schema.LinkRecord{Endpoint1: "sat1", Endpoint2: "sat2", Endpoint1Antenna: 1, Endpoint2Antenna: 2}
	peer, antenna := a.peerAndAntenna(link)
	if peer != "sat2" {
		t.Errorf("expected peer sat2, got %s", peer)
	}
	if antenna != 1 {
		t.Errorf("expected self antenna 1, got %d", antenna)
	}
}

func TestPeerAndAntennaEndpoint2IsSelf(t *testing.T) {
	a := &Agent{Node: "sat2"}
	link := schema.LinkRecord{Endpoint1: "sat1", Endpoint2: "sat2", Endpoint1Antenna: 1, Endpoint2Antenna: 2}
	peer, antenna := a.peerAndAntenna(link)
	if peer != "sat1" {
		t.Errorf("expected peer sat1, got %s", peer)
	}
	if antenna != 2 {
		t.Errorf("expected self antenna 2, got %d", antenna)
	}
}

func TestRunTasksStopsOnFirstFailure(t *testing.T) {
	a := &Agent{Node: "sat1"}
	result := a.runTasks(context.Background(), schema.TaskList{
		"echo one",
		"exit 7",
		"echo two", // must not run
	})
	if result.ExitCode != 7 {
		t.Errorf("expected exit code 7, got %d", result.ExitCode)
	}
	if strings.Contains(result.Output, "two") {
		t.Errorf("expected execution to stop after failure, got output %q", result.Output)
	}
	if !strings.Contains(result.Output, "one") {
		t.Errorf("expected first command's output to be captured, got %q", result.Output)
	}
}

func TestRunTasksAllSucceed(t *testing.T) {
	a := &Agent{Node: "sat1"}
	result := a.runTasks(context.Background(), schema.TaskList{"echo a", "echo b"})
	if result.ExitCode != 0 {
		t.Errorf("expected success, got exit code %d", result.ExitCode)
	}
}

func TestRoutingModuleDefaultsToNoopWhenDisabled(t *testing.T) {
	fs := newFakeStore()
	putNode(t, fs, "sat1", schema.NodeSpec{L3Config: schema.L3Config{EnableRouting: false}})

	a := &Agent{Node: "sat1", Client: fs}
	module, err := a.routingModule(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, ok := module.(interface {
		Init(ctx context.Context, client store.Client, node string) (string, bool)
	}); !ok {
		t.Fatalf("expected a Module implementation")
	}
	if msg, ok := module.Init(context.Background(), fs, "sat1"); !ok {
		t.Errorf("expected noop init to succeed, got %q", msg)
	}
}

func TestRoutingModuleUnknownNameErrors(t *testing.T) {
	fs := newFakeStore()
	putNode(t, fs, "sat1", schema.NodeSpec{L3Config: schema.L3Config{EnableRouting: true, RoutingModule: "does-not-exist"}})

	a := &Agent{Node: "sat1", Client: fs}
	if _, err := a.routingModule(context.Background()); err == nil {
		t.Fatal("expected an error for an unregistered routing module name")
	}
}
