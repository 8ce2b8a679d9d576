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

// Package deploy reconciles the set of running containers against
// /config/nodes/*: removing orphans, launching missing ones, all bounded
// by a per-worker concurrency limit.
package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/satctl/satctl/deploy/workerexec"
	"github.com/satctl/satctl/schema"
	"github.com/satctl/satctl/store"
	"github.com/satctl/satctl/util/semaphore"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"
	etcd "go.etcd.io/etcd/client/v3"
)

// MaxConcurrentPerWorker bounds how many container operations run at once
// against a single worker.
const MaxConcurrentPerWorker = 4

// State is one node's observed container state, returned by Status.
type State string

const (
	// StateRunning means a container matching the node's name is up.
	StateRunning State = "running"
	// StateAbsent means no container exists for this node yet.
	StateAbsent State = "absent"
	// StateMismatched means a container exists but its image doesn't
	// match the node's current spec.
	StateMismatched State = "mismatched"
)

// NodeResult is one node's outcome from Reconcile.
type NodeResult struct {
	Node  string
	State State
	Err   error
}

// containerName is the deterministic container name for a node -- the node
// name itself, since node names are already unique and ≤8 bytes.
func containerName(node string) string { return node }

// listContainers runs `docker ps -a --format {{.Names}}|{{.Image}}` on
// worker and returns a name -> image map.
func listContainers(ctx context.Context, exec workerexec.Executor, worker schema.WorkerSpec) (map[string]string, error) {
	res, err := exec.Run(ctx, worker, workerexec.Command{
		Tool: "docker",
		Args: []string{"ps", "-a", "--format", "{{.Names}}|{{.Image}}"},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(string(res.Stdout)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

// removeContainer force-removes a container by name on worker.
func removeContainer(ctx context.Context, exec workerexec.Executor, worker schema.WorkerSpec, name string) error {
	_, err := exec.Run(ctx, worker, workerexec.Command{
		Tool: "docker",
		Args: []string{"rm", "-f", name},
	})
	return err
}

// runContainer starts a new container for node on worker, privileged (vxlan
// interfaces need CAP_NET_ADMIN), resource-limited per the node's spec, and
// passing the store connection details as environment.
func runContainer(ctx context.Context, exec workerexec.Executor, worker schema.WorkerSpec, node string, spec schema.NodeSpec, storeEnv map[string]string, runID uuid.UUID) error {
	args := []string{
		"run", "-d",
		"--name", containerName(node),
		"--privileged",
		"--network", worker.SatVnet,
		"--label", "satctl.run=" + runID.String(),
	}
	if spec.CPULimit != "" {
		args = append(args, "--cpus", spec.CPULimit)
	}
	if spec.MemLimit != "" {
		args = append(args, "--memory", spec.MemLimit)
	}
	args = append(args, spec.Image)

	env := map[string]string{"NODE_NAME": node}
	for k, v := range storeEnv {
		env[k] = v
	}

	_, err := exec.Run(ctx, worker, workerexec.Command{
		Tool: "docker",
		Args: args,
		Env:  env,
	})
	return err
}

// loadNodesAndWorkers reads the current placement output back from the
// store.
func loadNodesAndWorkers(ctx context.Context, client store.Client) (map[string]schema.NodeSpec, map[string]schema.WorkerSpec, error) {
	rawNodes, err := client.Get(ctx, schema.NodesPrefix, etcd.WithPrefix())
	if err != nil {
		return nil, nil, err
	}
	rawWorkers, err := client.Get(ctx, schema.WorkersPrefix, etcd.WithPrefix())
	if err != nil {
		return nil, nil, err
	}

	nodes := make(map[string]schema.NodeSpec, len(rawNodes))
	for k, v := range rawNodes {
		name, ok := schema.NodeNameFromNodeKey(k)
		if !ok {
			continue
		}
		var spec schema.NodeSpec
		if err := json.Unmarshal([]byte(v), &spec); err != nil {
			return nil, nil, fmt.Errorf("malformed node spec at %s: %w", k, err)
		}
		nodes[name] = spec
	}

	workers := make(map[string]schema.WorkerSpec, len(rawWorkers))
	for k, v := range rawWorkers {
		name := strings.TrimPrefix(k, schema.WorkersPrefix)
		var spec schema.WorkerSpec
		if err := json.Unmarshal([]byte(v), &spec); err != nil {
			return nil, nil, fmt.Errorf("malformed worker spec at %s: %w", k, err)
		}
		workers[name] = spec
	}
	return nodes, workers, nil
}

// Reconcile brings each worker's running containers in line with
// /config/nodes/*: orphans (no matching node) are removed, missing nodes
// are launched. Per-worker operations are bounded by MaxConcurrentPerWorker
// concurrent requests.
func Reconcile(ctx context.Context, client store.Client, exec workerexec.Executor, storeEnv map[string]string) ([]NodeResult, error) {
	nodes, workers, err := loadNodesAndWorkers(ctx, client)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	byWorker := make(map[string][]string)
	for name, n := range nodes {
		byWorker[n.Worker] = append(byWorker[n.Worker], name)
	}

	var mu sync.Mutex
	var results []NodeResult
	var wg sync.WaitGroup
	var errs error

	for workerName, nodeNames := range byWorker {
		worker, ok := workers[workerName]
		if !ok {
			mu.Lock()
			errs = multierror.Append(errs, fmt.Errorf("node(s) reference unknown worker %q", workerName))
			mu.Unlock()
			continue
		}

		existing, err := listContainers(ctx, exec, worker)
		if err != nil {
			mu.Lock()
			errs = multierror.Append(errs, fmt.Errorf("worker %q: %w", workerName, err))
			mu.Unlock()
			continue
		}

		sem := semaphore.NewSemaphore(MaxConcurrentPerWorker)

		wantNames := make(map[string]bool, len(nodeNames))
		for _, n := range nodeNames {
			wantNames[containerName(n)] = true
		}
		for existingName := range existing {
			if wantNames[existingName] {
				continue
			}
			existingName := existingName
			wg.Add(1)
			if err := sem.P(1); err != nil {
				wg.Done()
				continue
			}
			go func() {
				defer wg.Done()
				defer sem.V(1)
				if err := removeContainer(ctx, exec, worker, existingName); err != nil {
					mu.Lock()
					errs = multierror.Append(errs, fmt.Errorf("could not remove orphan %q on worker %q: %w", existingName, workerName, err))
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		for _, nodeName := range nodeNames {
			nodeName, spec := nodeName, nodes[nodeName]
			if _, up := existing[containerName(nodeName)]; up {
				mu.Lock()
				results = append(results, NodeResult{Node: nodeName, State: StateRunning})
				mu.Unlock()
				continue
			}

			wg.Add(1)
			if err := sem.P(1); err != nil {
				wg.Done()
				continue
			}
			go func() {
				defer wg.Done()
				defer sem.V(1)
				runErr := runContainer(ctx, exec, worker, nodeName, spec, storeEnv, runID)
				state := StateRunning
				if runErr != nil {
					state = StateAbsent
				}
				mu.Lock()
				results = append(results, NodeResult{Node: nodeName, State: state, Err: runErr})
				mu.Unlock()
			}()
		}
		wg.Wait()
		sem.Close()
	}

	return results, errs
}

// Teardown force-removes every container found on every known worker, for
// `satctl rm`. Unlike Reconcile, it doesn't consult
// wanted state: every container it finds is an orphan once the caller has
// decided to tear the deployment down.
func Teardown(ctx context.Context, client store.Client, exec workerexec.Executor) ([]NodeResult, error) {
	_, workers, err := loadNodesAndWorkers(ctx, client)
	if err != nil {
		return nil, err
	}

	var results []NodeResult
	var errs error
	for workerName, worker := range workers {
		existing, err := listContainers(ctx, exec, worker)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("worker %q: %w", workerName, err))
			continue
		}
		for name := range existing {
			if err := removeContainer(ctx, exec, worker, name); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("could not remove %q on worker %q: %w", name, workerName, err))
				results = append(results, NodeResult{Node: name, State: StateRunning, Err: err})
				continue
			}
			results = append(results, NodeResult{Node: name, State: StateAbsent})
		}
	}
	return results, errs
}

// Status reports each node's observed container state without changing
// anything: a read-only diagnostic an operator can run any time. No satctl
// subcommand calls it; `satctl deploy` decides on the §6 exit code 5 from
// Reconcile's per-node results.
func Status(ctx context.Context, client store.Client, exec workerexec.Executor) ([]NodeResult, error) {
	nodes, workers, err := loadNodesAndWorkers(ctx, client)
	if err != nil {
		return nil, err
	}

	byWorker := make(map[string][]string)
	for name, n := range nodes {
		byWorker[n.Worker] = append(byWorker[n.Worker], name)
	}

	var results []NodeResult
	var errs error
	for workerName, nodeNames := range byWorker {
		worker, ok := workers[workerName]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("node(s) reference unknown worker %q", workerName))
			continue
		}
		existing, err := listContainers(ctx, exec, worker)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("worker %q: %w", workerName, err))
			continue
		}
		for _, name := range nodeNames {
			image, up := existing[containerName(name)]
			switch {
			case !up:
				results = append(results, NodeResult{Node: name, State: StateAbsent})
			case image != nodes[name].Image:
				results = append(results, NodeResult{Node: name, State: StateMismatched})
			default:
				results = append(results, NodeResult{Node: name, State: StateRunning})
			}
		}
	}
	return results, errs
}
