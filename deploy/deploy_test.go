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

package deploy

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/satctl/satctl/deploy/workerexec"
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
	var n int64
	for k := range f.data {
		if strings.HasPrefix(k, path) {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
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

// fakeExecutor records invocations and answers `docker ps` with a canned
// container list.
type fakeExecutor struct {
	mu        sync.Mutex
	existing  map[string]string // worker ip -> "name|image\n..."
	runCalls  []string
	rmCalls   []string
}

func (f *fakeExecutor) Run(ctx context.Context, worker schema.WorkerSpec, cmd workerexec.Command) (*workerexec.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch cmd.Tool {
	case "docker":
		if len(cmd.Args) > 0 && cmd.Args[0] == "ps" {
			return &workerexec.Result{Stdout: []byte(f.existing[worker.IP])}, nil
		}
		if len(cmd.Args) > 0 && cmd.Args[0] == "rm" {
			f.rmCalls = append(f.rmCalls, cmd.Args[len(cmd.Args)-1])
			return &workerexec.Result{}, nil
		}
		if len(cmd.Args) > 0 && cmd.Args[0] == "run" {
			f.runCalls = append(f.runCalls, cmd.Args[3]) // run -d --name <name>
			return &workerexec.Result{}, nil
		}
	}
	return &workerexec.Result{}, nil
}

func setupStore(t *testing.T) *fakeStore {
	t.Helper()
	fs := &fakeStore{data: make(map[string]string)}

	worker := schema.WorkerSpec{IP: "10.0.0.1", SatVnet: "sat0"}
	wdata, _ := json.Marshal(worker)
	fs.data[schema.WorkerKey("host-1")] = string(wdata)

	node1 := schema.NodeSpec{Image: "sat-image", Worker: "host-1"}
	n1data, _ := json.Marshal(node1)
	fs.data[schema.NodeKey("node1")] = string(n1data)

	return fs
}

func TestReconcileLaunchesMissingNode(t *testing.T) {
	fs := setupStore(t)
	exec := &fakeExecutor{existing: map[string]string{"10.0.0.1": ""}}

	results, err := Reconcile(context.Background(), fs, exec, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Node != "node1" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if len(exec.runCalls) != 1 || exec.runCalls[0] != "node1" {
		t.Errorf("expected docker run for node1, got %+v", exec.runCalls)
	}
}

func TestReconcileRemovesOrphan(t *testing.T) {
	fs := setupStore(t)
	exec := &fakeExecutor{existing: map[string]string{"10.0.0.1": "node1|sat-image\norphan1|old-image"}}

	_, err := Reconcile(context.Background(), fs, exec, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exec.rmCalls) != 1 || exec.rmCalls[0] != "orphan1" {
		t.Errorf("expected orphan1 removed, got %+v", exec.rmCalls)
	}
	if len(exec.runCalls) != 0 {
		t.Errorf("expected no launches, node1 already running, got %+v", exec.runCalls)
	}
}

func TestStatusReportsAbsent(t *testing.T) {
	fs := setupStore(t)
	exec := &fakeExecutor{existing: map[string]string{"10.0.0.1": ""}}

	results, err := Status(context.Background(), fs, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].State != StateAbsent {
		t.Fatalf("expected node1 absent, got %+v", results)
	}
}
