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
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	errwrap "github.com/pkg/errors"
	"github.com/spf13/afero"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/satctl/satctl/recwatch"
	"github.com/satctl/satctl/schema"
	"github.com/satctl/satctl/store"
)

// Mode selects one of the four release strategies from §4.4.
type Mode int

const (
	// ModeDefault sleeps until each file's virtual-clock release time,
	// releasing immediately (and logging skew) if it has already passed.
	ModeDefault Mode = iota
	// ModeFixedWait ignores each file's time field and releases on a
	// fixed cadence.
	ModeFixedWait
	// ModeInteractive does not pre-read the directory; it watches a
	// queue directory and releases files the instant they appear.
	ModeInteractive
	// ModeLoop restarts from the first file after a delay once the list
	// is exhausted.
	ModeLoop
)

// Scheduler drives the store's link and run keys off an ordered sequence
// of epoch files.
type Scheduler struct {
	Client store.Client
	Reader *Reader

	Mode      Mode
	FixedWait time.Duration // ModeFixedWait
	LoopDelay time.Duration // ModeLoop
	QueueDir  string        // ModeInteractive

	Debug bool
	Logf  func(format string, v ...interface{})

	// OnRelease, if set, is called once per successfully committed
	// epoch file, after releaseFile's transaction lands.
	OnRelease func()
}

func (obj *Scheduler) logf(format string, v ...interface{}) {
	if !obj.Debug || obj.Logf == nil {
		return
	}
	obj.Logf(format, v...)
}

// Run drives the scheduler until ctx is canceled or the batch modes run
// to completion. SIGTERM (ctx cancellation) only interrupts the current
// sleep; an in-flight release transaction always finishes.
func (obj *Scheduler) Run(ctx context.Context) error {
	if obj.Mode == ModeInteractive {
		return obj.runInteractive(ctx)
	}
	return obj.runBatch(ctx)
}

func (obj *Scheduler) runBatch(ctx context.Context) error {
	for {
		names, err := obj.Reader.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return fmt.Errorf("no epoch files found matching %s in %s", obj.Reader.Pattern, obj.Reader.Dir)
		}

		wall0 := time.Now()
		var t0 time.Time
		for i, name := range names {
			file, err := obj.Reader.ReadFile(name)
			if err != nil {
				return err
			}
			if i == 0 {
				t0 = file.Time
			}

			if err := obj.waitForRelease(ctx, i, file, t0, wall0); err != nil {
				return err
			}
			if err := obj.releaseFile(ctx, i, name, file); err != nil {
				return err
			}
		}

		if obj.Mode != ModeLoop {
			return nil
		}

		obj.logf("epoch: list exhausted, looping after %s", obj.LoopDelay)
		if err := obj.sleep(ctx, obj.LoopDelay); err != nil {
			return nil // canceled during the loop delay
		}
	}
}

func (obj *Scheduler) waitForRelease(ctx context.Context, i int, file *File, t0, wall0 time.Time) error {
	var target time.Time
	if obj.Mode == ModeFixedWait {
		target = wall0.Add(obj.FixedWait * time.Duration(i))
	} else {
		target = wall0.Add(file.Time.Sub(t0))
	}

	d := time.Until(target)
	if d <= 0 {
		if obj.Mode != ModeFixedWait {
			obj.logf("epoch: file %d (%s) released behind schedule by %s", i, file.Time, -d)
		}
		return nil
	}
	return obj.sleep(ctx, d)
}

func (obj *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// runInteractive watches QueueDir and releases files the instant they
// appear, in arrival order.
func (obj *Scheduler) runInteractive(ctx context.Context) error {
	watcher, err := recwatch.NewRecWatcher(obj.QueueDir, false)
	if err != nil {
		return errwrap.Wrapf(err, "watching queue dir %s", obj.QueueDir)
	}
	defer watcher.Close()

	queueReader := &Reader{Fs: afero.NewOsFs()}

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if ev.Error != nil {
				return errwrap.Wrapf(ev.Error, "queue watch")
			}
			if ev.Body == nil || ev.Body.Op&fsnotify.Create == 0 {
				continue
			}

			file, err := queueReader.ReadFile(ev.Body.Name)
			if err != nil {
				obj.logf("epoch: skipping malformed queued file %s: %s", ev.Body.Name, err)
				obj.reportError(ctx, err)
				continue
			}
			if err := obj.releaseFile(ctx, idx, ev.Body.Name, file); err != nil {
				return err
			}
			idx++
		}
	}
}

func (obj *Scheduler) reportError(ctx context.Context, err error) {
	lastErr := schema.LastError{Message: err.Error(), At: time.Now()}
	data, merr := json.Marshal(lastErr)
	if merr != nil {
		return
	}
	if serr := obj.Client.Set(ctx, schema.LastErrorKey, string(data)); serr != nil {
		obj.logf("epoch: failed to publish last-error: %s", serr)
	}
}

// releaseFile commits one file's link and run mutations as a single
// transaction, ordered del -> add -> update -> run per §4.4/§5.
func (obj *Scheduler) releaseFile(ctx context.Context, idx int, name string, file *File) error {
	var ops []etcd.Op

	for _, l := range file.LinksDel {
		ops = append(ops, deleteLinkOps(l)...)
	}

	for _, l := range file.LinksAdd {
		putOps, err := obj.buildLinkPutOps(ctx, l)
		if err != nil {
			obj.logf("epoch: add %s<->%s failed: %s", l.Endpoint1, l.Endpoint2, err)
			continue
		}
		ops = append(ops, putOps...)
	}

	for _, l := range file.LinksUpdate {
		putOps, err := obj.buildLinkUpdateOps(ctx, l)
		if err != nil {
			obj.logf("epoch: update for missing link %s<->%s ignored: %s", l.Endpoint1, l.Endpoint2, err)
			continue
		}
		ops = append(ops, putOps...)
	}

	for node, tasks := range file.Run {
		data, err := json.Marshal(schema.TaskList(tasks))
		if err != nil {
			return errwrap.Wrapf(err, "encoding task list for %s", node)
		}
		ops = append(ops, etcd.OpPut(schema.RunKey(node), string(data)))
	}

	state := schema.EpochState{Index: idx, File: name, Released: time.Now()}
	stateData, err := json.Marshal(state)
	if err != nil {
		return errwrap.Wrapf(err, "encoding epoch state")
	}
	ops = append(ops, etcd.OpPut(schema.EpochCurrentKey, string(stateData)))

	if _, err := obj.Client.Txn(ctx, nil, ops, nil); err != nil {
		return errwrap.Wrapf(err, "committing epoch release %d (%s)", idx, name)
	}
	if obj.OnRelease != nil {
		obj.OnRelease()
	}
	return nil
}

func deleteLinkOps(l LinkSpec) []etcd.Op {
	key1 := schema.LinkKey(l.Endpoint1, schema.IfaceName(l.Endpoint2, l.Endpoint1Antenna))
	key2 := schema.LinkKey(l.Endpoint2, schema.IfaceName(l.Endpoint1, l.Endpoint2Antenna))
	return []etcd.Op{etcd.OpDelete(key1), etcd.OpDelete(key2)}
}

// buildLinkPutOps builds the put ops for a links-add entry. If the link
// already exists it is treated as an update (its shaping is merged rather
// than overwritten), per the §4.4 conflict rule.
func (obj *Scheduler) buildLinkPutOps(ctx context.Context, l LinkSpec) ([]etcd.Op, error) {
	key1 := schema.LinkKey(l.Endpoint1, schema.IfaceName(l.Endpoint2, l.Endpoint1Antenna))
	key2 := schema.LinkKey(l.Endpoint2, schema.IfaceName(l.Endpoint1, l.Endpoint2Antenna))

	record := newLinkRecord(l)
	if existing, err := obj.fetchLink(ctx, key1); err == nil {
		mergeShaping(&record, existing)
	}

	return obj.marshalLinkOps(key1, key2, record)
}

// buildLinkUpdateOps builds the put ops for a links-update entry. Updating
// a missing link is logged and ignored, per the §4.4 conflict rule --
// signaled here by returning an error the caller skips.
func (obj *Scheduler) buildLinkUpdateOps(ctx context.Context, l LinkSpec) ([]etcd.Op, error) {
	key1 := schema.LinkKey(l.Endpoint1, schema.IfaceName(l.Endpoint2, l.Endpoint1Antenna))
	key2 := schema.LinkKey(l.Endpoint2, schema.IfaceName(l.Endpoint1, l.Endpoint2Antenna))

	existing, err := obj.fetchLink(ctx, key1)
	if err != nil {
		return nil, err
	}

	record := newLinkRecord(l)
	mergeShaping(&record, existing)

	return obj.marshalLinkOps(key1, key2, record)
}

func (obj *Scheduler) marshalLinkOps(key1, key2 string, record schema.LinkRecord) ([]etcd.Op, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, errwrap.Wrapf(err, "encoding link record")
	}
	return []etcd.Op{etcd.OpPut(key1, string(data)), etcd.OpPut(key2, string(data))}, nil
}

func newLinkRecord(l LinkSpec) schema.LinkRecord {
	return schema.LinkRecord{
		Endpoint1:        l.Endpoint1,
		Endpoint2:        l.Endpoint2,
		Endpoint1Antenna: l.Endpoint1Antenna,
		Endpoint2Antenna: l.Endpoint2Antenna,
		Rate:             l.Rate,
		Loss:             l.Loss,
		Delay:            l.Delay,
		Limit:            l.Limit,
		VNI:              schema.VNI(l.Endpoint1, l.Endpoint1Antenna, l.Endpoint2, l.Endpoint2Antenna),
	}
}

// mergeShaping fills any unset shaping field on record from existing, per
// the §4.4 rule that missing fields on an update preserve prior values.
func mergeShaping(record *schema.LinkRecord, existing *schema.LinkRecord) {
	if record.Rate == "" {
		record.Rate = existing.Rate
	}
	if record.Loss == 0 {
		record.Loss = existing.Loss
	}
	if record.Delay == "" {
		record.Delay = existing.Delay
	}
	if record.Limit == 0 {
		record.Limit = existing.Limit
	}
}

func (obj *Scheduler) fetchLink(ctx context.Context, key string) (*schema.LinkRecord, error) {
	data, err := obj.Client.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	raw, ok := data[key]
	if !ok {
		return nil, store.ErrNotExist
	}
	var record schema.LinkRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, errwrap.Wrapf(err, "decoding existing link record %s", key)
	}
	return &record, nil
}
