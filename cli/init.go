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
	"errors"
	"fmt"
	"log"

	cliUtil "github.com/satctl/satctl/cli/util"
	"github.com/satctl/satctl/config"
	"github.com/satctl/satctl/metrics"
	"github.com/satctl/satctl/placement"
)

// InitArgs is the CLI parsing structure for `satctl init`: place nodes onto
// workers, allocate overlay addresses, and publish the result, per §4.1.
type InitArgs struct {
	Config        string `arg:"--config,required" help:"path to the static config document"`
	DryRun        bool   `arg:"--dry-run" help:"compute and print the placement without writing to the store"`
	MetricsListen string `arg:"--metrics-listen" help:"expose placement failure counters on this address, e.g. 127.0.0.1:9235"`
}

// Run loads the static config, validates and places it, and publishes the
// result to the store, exiting 2 on validation failure, 3 on insufficient
// capacity, 4 on address pool exhaustion, per §6.
func (obj *InitArgs) Run(ctx context.Context, data *cliUtil.Data) (bool, error) {
	cliUtil.Hello(data.Program, data.Version, data.Flags)

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

	cfg, err := config.Load(obj.Config)
	if err != nil {
		if m != nil {
			m.PlacementFailure("validation")
		}
		return true, &cliUtil.ExitError{Code: 2, Err: err}
	}

	assignment, err := placement.Place(cfg)
	if err != nil {
		code := exitCodeForPlacement(err)
		if m != nil {
			m.PlacementFailure(placementFailureReason(code))
		}
		return true, &cliUtil.ExitError{Code: code, Err: err}
	}

	if obj.DryRun {
		for name, n := range assignment.Nodes {
			log.Printf("init: %s -> worker %s, cidr %s/%s", name, n.Worker, n.L3Config.CIDR, n.L3Config.CIDRv6)
		}
		return true, nil
	}

	client, err := newStoreClient(data, "init")
	if err != nil {
		return true, err
	}
	defer client.Close()

	if err := placement.Publish(ctx, client, assignment); err != nil {
		return true, err
	}

	fmt.Printf("placed %d node(s) across %d worker(s)\n", len(assignment.Nodes), len(assignment.Workers))
	return true, nil
}

// exitCodeForPlacement maps a placement error to the §6 exit code table.
func exitCodeForPlacement(err error) int {
	var insufficient *placement.InsufficientCapacityError
	if errors.As(err, &insufficient) {
		return 3
	}
	var exhausted *placement.AddressPoolExhaustedError
	if errors.As(err, &exhausted) {
		return 4
	}
	return 2 // ValidationError and anything else from Validate/Place
}

// placementFailureReason maps an exit code back to a metric label.
func placementFailureReason(code int) string {
	switch code {
	case 3:
		return "capacity"
	case 4:
		return "address-pool"
	default:
		return "validation"
	}
}
