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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	cliUtil "github.com/satctl/satctl/cli/util"
	"github.com/satctl/satctl/deploy/workerexec"
	"github.com/satctl/satctl/schema"
	"github.com/satctl/satctl/store"
)

// ExecArgs is the CLI parsing structure for `satctl exec`: resolve node ->
// worker via the store and delegate to the worker executor, per §6.
type ExecArgs struct {
	Node        string   `arg:"positional,required" help:"node name"`
	Cmd         []string `arg:"positional" help:"command and arguments to run on the node's container"`
	Interactive bool     `arg:"--it" help:"run interactively, with a pty attached"`
	Detach      bool     `arg:"-d,--detach" help:"run detached, not waiting for output"`
}

// nodeWorker resolves a node name to its assigned WorkerSpec via the store.
func nodeWorker(ctx context.Context, client store.Client, node string) (schema.WorkerSpec, error) {
	raw, err := client.Get(ctx, schema.NodeKey(node))
	if err != nil {
		return schema.WorkerSpec{}, err
	}
	data, ok := raw[schema.NodeKey(node)]
	if !ok {
		return schema.WorkerSpec{}, fmt.Errorf("no such node %q", node)
	}
	var spec schema.NodeSpec
	if err := json.Unmarshal([]byte(data), &spec); err != nil {
		return schema.WorkerSpec{}, err
	}

	rawWorker, err := client.Get(ctx, schema.WorkerKey(spec.Worker))
	if err != nil {
		return schema.WorkerSpec{}, err
	}
	workerData, ok := rawWorker[schema.WorkerKey(spec.Worker)]
	if !ok {
		return schema.WorkerSpec{}, fmt.Errorf("node %q references unknown worker %q", node, spec.Worker)
	}
	var worker schema.WorkerSpec
	if err := json.Unmarshal([]byte(workerData), &worker); err != nil {
		return schema.WorkerSpec{}, err
	}
	return worker, nil
}

// Run resolves Node's worker and execs Cmd on it, either via a docker exec
// attached to the node's own container, interactively or detached.
func (obj *ExecArgs) Run(ctx context.Context, data *cliUtil.Data) (bool, error) {
	cliUtil.Hello(data.Program, data.Version, data.Flags)

	client, err := newStoreClient(data, "exec")
	if err != nil {
		return true, err
	}
	defer client.Close()

	worker, err := nodeWorker(ctx, client, obj.Node)
	if err != nil {
		return true, err
	}

	executor := &workerexec.SSHExecutor{
		Debug: data.Flags.Debug,
		Logf: func(format string, v ...interface{}) {
			log.Printf("exec: "+format, v...)
		},
	}

	if obj.Interactive {
		cmdLine := "docker exec -it " + shellJoin(append([]string{obj.Node}, obj.Cmd...))
		return true, executor.Interactive(ctx, worker, cmdLine, os.Stdin, os.Stdout, os.Stderr)
	}

	var dockerArgs []string
	if obj.Detach {
		dockerArgs = append([]string{"exec", "-d", obj.Node}, obj.Cmd...)
	} else {
		dockerArgs = append([]string{"exec", obj.Node}, obj.Cmd...)
	}
	cmd := workerexec.Command{Tool: "docker", Args: dockerArgs}
	res, err := executor.Run(ctx, worker, cmd)
	if res != nil {
		os.Stdout.Write(res.Stdout)
		os.Stderr.Write(res.Stderr)
	}
	return true, err
}

func shellJoin(args []string) string {
	return strings.Join(args, " ")
}
