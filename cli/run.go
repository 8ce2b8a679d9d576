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

package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	cliUtil "github.com/satctl/satctl/cli/util"
	"github.com/satctl/satctl/epoch"
	"github.com/satctl/satctl/metrics"

	"github.com/spf13/afero"
)

// RunArgs is the CLI parsing structure for `satctl run`: drive the epoch
// scheduler, per §4.4.
type RunArgs struct {
	Dir           string        `arg:"--dir" default:"/var/lib/satctl/epochs" help:"directory of epoch files"`
	Pattern       string        `arg:"--pattern" default:"epoch-*.json" help:"glob pattern for epoch files within dir"`
	LoopDelay     time.Duration `arg:"--loop-delay" help:"restart from the first file after this delay once the sequence is exhausted"`
	FixedWait     time.Duration `arg:"--fixed-wait" help:"release files on a fixed cadence, ignoring their time field"`
	Interactive   bool          `arg:"--interactive" help:"watch dir for newly dropped files and release them immediately"`
	MetricsListen string        `arg:"--metrics-listen" help:"expose epoch release counters on this address, e.g. 127.0.0.1:9235"`
}

// Run builds and drives an epoch.Scheduler until ctx is canceled.
func (obj *RunArgs) Run(ctx context.Context, data *cliUtil.Data) (bool, error) {
	cliUtil.Hello(data.Program, data.Version, data.Flags)

	client, err := newStoreClient(data, "run")
	if err != nil {
		return true, err
	}
	defer client.Close()

	mode := epoch.ModeDefault
	switch {
	case obj.Interactive:
		mode = epoch.ModeInteractive
	case obj.FixedWait > 0:
		mode = epoch.ModeFixedWait
	case obj.LoopDelay > 0:
		mode = epoch.ModeLoop
	}

	var m *metrics.Metrics
	if obj.MetricsListen != "" {
		m = &metrics.Metrics{Listen: obj.MetricsListen}
		if err := m.Init(); err != nil {
			return true, err
		}
		if err := m.Start(); err != nil {
			return true, err
		}
	}

	scheduler := &epoch.Scheduler{
		Client: client,
		Reader: &epoch.Reader{
			Fs:      afero.NewOsFs(),
			Dir:     obj.Dir,
			Pattern: obj.Pattern,
		},
		Mode:      mode,
		FixedWait: obj.FixedWait,
		LoopDelay: obj.LoopDelay,
		QueueDir:  obj.Dir,
		Debug:     data.Flags.Debug,
		Logf: func(format string, v ...interface{}) {
			log.Printf("run: "+format, v...)
		},
	}
	if m != nil {
		scheduler.OnRelease = m.EpochReleased
	}

	if err := scheduler.Run(ctx); err != nil {
		return true, err
	}
	fmt.Println("epoch sequence complete")
	return true, nil
}
