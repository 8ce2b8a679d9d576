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
	"os"

	cliUtil "github.com/satctl/satctl/cli/util"
	"github.com/satctl/satctl/deploy"
	"github.com/satctl/satctl/deploy/workerexec"
	"github.com/satctl/satctl/metrics"
)

// DeployArgs is the CLI parsing structure for `satctl deploy`: reconcile
// running containers against /config/nodes/*, per §4.2.
type DeployArgs struct {
	MetricsListen string `arg:"--metrics-listen" help:"expose deploy outcome counters on this address, e.g. 127.0.0.1:9235"`
}

// storeEnvVars are forwarded into every launched container's environment
// so its node agent can reach the same store this command does.
var storeEnvVars = []string{"ETCD_HOST", "ETCD_PORT", "ETCD_USER", "ETCD_PASSWORD", "ETCD_CA_CERT"}

// Run reconciles containers across every worker, printing each node's
// result and exiting 5 if any container failed to start, per §6.
func (obj *DeployArgs) Run(ctx context.Context, data *cliUtil.Data) (bool, error) {
	cliUtil.Hello(data.Program, data.Version, data.Flags)

	client, err := newStoreClient(data, "deploy")
	if err != nil {
		return true, err
	}
	defer client.Close()

	exec := &workerexec.SSHExecutor{
		Debug: data.Flags.Debug,
		Logf: func(format string, v ...interface{}) {
			log.Printf("deploy: "+format, v...)
		},
	}

	storeEnv := make(map[string]string)
	for _, name := range storeEnvVars {
		if v := os.Getenv(name); v != "" {
			storeEnv[name] = v
		}
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

	results, err := deploy.Reconcile(ctx, client, exec, storeEnv)
	var failed int
	for _, r := range results {
		ok := r.Err == nil
		if m != nil {
			m.DeployResult(ok)
		}
		if !ok {
			failed++
			fmt.Printf("%s: %s: %v\n", r.Node, r.State, r.Err)
			continue
		}
		fmt.Printf("%s: %s\n", r.Node, r.State)
	}
	if err != nil {
		return true, err
	}
	if failed > 0 {
		return true, &cliUtil.ExitError{Code: 5, Err: fmt.Errorf("%d node(s) failed to deploy", failed)}
	}
	return true, nil
}
