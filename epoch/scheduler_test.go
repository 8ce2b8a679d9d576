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

package epoch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/satctl/satctl/schema"
	"github.com/satctl/satctl/store"

	etcd "go.etcd.io/etcd/client/v3"
)

// fakeStore is a minimal in-memory store.Client that applies Txn ops in
// order, the way etcd would within a single revision.
type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string]string)} }

func (f *fakeStore) GetClient() *etcd.Client { return nil }
func (f *fakeStore) Set(ctx context.Context, key, value string, opts ...etcd.OpOption) error {
	f.data[key] = value
	return nil
}
func (f *fakeStore) Get(ctx context.Context, path string, opts ...etcd.OpOption) (map[string]string, error) {
	out := make(map[string]string)
	if v, ok := f.data[path]; ok {
		out[path] = v
		return out, nil
	}
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
	for _, op := range thenOps {
		if op.IsDelete() {
			delete(f.data, string(op.KeyBytes()))
			continue
		}
		f.data[string(op.KeyBytes())] = string(op.ValueBytes())
	}
	return &etcd.TxnResponse{Succeeded: true}, nil
}
func (f *fakeStore) Watcher(ctx context.Context, path string, opts ...etcd.OpOption) (chan error, error) {
	return nil, nil
}
func (f *fakeStore) ComplexWatcher(ctx context.Context, path string, opts ...etcd.OpOption) (*store.WatcherInfo, error) {
	return nil, nil
}

var _ store.Client = (*fakeStore)(nil)

func TestReleaseFileAddsLinkBothHalves(t *testing.T) {
	fs := newFakeStore()
	s := &Scheduler{Client: fs}

	file := &File{
		Time: time.Now(),
		LinksAdd: []LinkSpec{
			{Endpoint1: "sat1", Endpoint2: "sat2", Endpoint1Antenna: 1, Endpoint2Antenna: 1, Delay: "20ms"},
		},
	}
	if err := s.releaseFile(context.Background(), 0, "epoch-1.json", file); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	key1 := schema.LinkKey("sat1", schema.IfaceName("sat2", 1))
	key2 := schema.LinkKey("sat2", schema.IfaceName("sat1", 1))
	for _, key := range []string{key1, key2} {
		raw, ok := fs.data[key]
		if !ok {
			t.Fatalf("expected key %s to be written", key)
		}
		var record schema.LinkRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			t.Fatalf("decoding %s: %s", key, err)
		}
		if record.Delay != "20ms" {
			t.Errorf("expected delay 20ms on %s, got %q", key, record.Delay)
		}
		if record.VNI == 0 {
			t.Errorf("expected a nonzero VNI on %s", key)
		}
	}
}

func TestReleaseFileUpdateMergesShaping(t *testing.T) {
	fs := newFakeStore()
	s := &Scheduler{Client: fs}

	add := &File{
		LinksAdd: []LinkSpec{
			{Endpoint1: "sat1", Endpoint2: "sat2", Endpoint1Antenna: 1, Endpoint2Antenna: 1, Delay: "20ms", Rate: "10mbit"},
		},
	}
	if err := s.releaseFile(context.Background(), 0, "epoch-1.json", add); err != nil {
		t.Fatalf("unexpected error on add: %s", err)
	}

	update := &File{
		LinksUpdate: []LinkSpec{
			{Endpoint1: "sat1", Endpoint2: "sat2", Endpoint1Antenna: 1, Endpoint2Antenna: 1, Loss: 0.05},
		},
	}
	if err := s.releaseFile(context.Background(), 1, "epoch-2.json", update); err != nil {
		t.Fatalf("unexpected error on update: %s", err)
	}

	key1 := schema.LinkKey("sat1", schema.IfaceName("sat2", 1))
	var record schema.LinkRecord
	if err := json.Unmarshal([]byte(fs.data[key1]), &record); err != nil {
		t.Fatalf("decoding: %s", err)
	}
	if record.Delay != "20ms" || record.Rate != "10mbit" {
		t.Errorf("expected prior shaping preserved, got %+v", record)
	}
	if record.Loss != 0.05 {
		t.Errorf("expected new loss applied, got %v", record.Loss)
	}
}

func TestReleaseFileUpdateOnMissingLinkIsIgnored(t *testing.T) {
	fs := newFakeStore()
	s := &Scheduler{Client: fs}

	file := &File{
		LinksUpdate: []LinkSpec{
			{Endpoint1: "sat1", Endpoint2: "sat2", Endpoint1Antenna: 1, Endpoint2Antenna: 1, Loss: 0.05},
		},
	}
	if err := s.releaseFile(context.Background(), 0, "epoch-1.json", file); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	key1 := schema.LinkKey("sat1", schema.IfaceName("sat2", 1))
	if _, ok := fs.data[key1]; ok {
		t.Errorf("expected no link written for an update of a missing link")
	}
}

func TestReleaseFileDeleteIsNoopOnMissingLink(t *testing.T) {
	fs := newFakeStore()
	s := &Scheduler{Client: fs}

	file := &File{
		LinksDel: []LinkSpec{
			{Endpoint1: "sat1", Endpoint2: "sat2", Endpoint1Antenna: 1, Endpoint2Antenna: 1},
		},
	}
	if err := s.releaseFile(context.Background(), 0, "epoch-1.json", file); err != nil {
		t.Fatalf("expected deleting a missing link to be a no-op, got %s", err)
	}
}

func TestReleaseFileWritesRunAndEpochState(t *testing.T) {
	fs := newFakeStore()
	s := &Scheduler{Client: fs}

	file := &File{Run: map[string][]string{"sat1": {"echo hi"}}}
	if err := s.releaseFile(context.Background(), 3, "epoch-4.json", file); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var tasks schema.TaskList
	if err := json.Unmarshal([]byte(fs.data[schema.RunKey("sat1")]), &tasks); err != nil {
		t.Fatalf("decoding run key: %s", err)
	}
	if len(tasks) != 1 || tasks[0] != "echo hi" {
		t.Errorf("unexpected task list: %v", tasks)
	}

	var state schema.EpochState
	if err := json.Unmarshal([]byte(fs.data[schema.EpochCurrentKey]), &state); err != nil {
		t.Fatalf("decoding epoch state: %s", err)
	}
	if state.Index != 3 || state.File != "epoch-4.json" {
		t.Errorf("unexpected epoch state: %+v", state)
	}
}

func TestWaitForReleaseFixedWaitIgnoresTime(t *testing.T) {
	s := &Scheduler{Mode: ModeFixedWait, FixedWait: 10 * time.Millisecond}
	wall0 := time.Now()
	file := &File{Time: wall0.Add(10 * time.Hour)} // would be a very long wait under default mode
	start := time.Now()
	if err := s.waitForRelease(context.Background(), 1, file, wall0, wall0); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("expected fixed-wait cadence to ignore file time, took %s", elapsed)
	}
}

func TestWaitForReleaseDefaultReleasesImmediatelyWhenBehind(t *testing.T) {
	s := &Scheduler{Mode: ModeDefault}
	wall0 := time.Now().Add(-time.Hour)
	t0 := wall0
	file := &File{Time: t0.Add(time.Second)} // already in the past relative to wall clock
	start := time.Now()
	if err := s.waitForRelease(context.Background(), 0, file, t0, wall0); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("expected immediate release when behind schedule, took %s", elapsed)
	}
}
