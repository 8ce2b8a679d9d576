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
	"strings"

	cliUtil "github.com/satctl/satctl/cli/util"
	"github.com/satctl/satctl/deploy/workerexec"
)

// CpArgs is the CLI parsing structure for `satctl cp`: docker-cp semantics,
// per §6. At least one of Src or Dst names a node with a "node:path"
// prefix, and if both do they must name the same node; that node is
// resolved to its worker and the copy runs there.
type CpArgs struct {
	Src string `arg:"positional,required" help:"source, as a local path or node:path"`
	Dst string `arg:"positional,required" help:"destination, as a local path or node:path"`
}

// splitNodePath splits a "node:path" argument. ok is false for a plain local
// path with no colon.
func splitNodePath(arg string) (node, path string, ok bool) {
	i := strings.Index(arg, ":")
	if i < 0 {
		return "", arg, false
	}
	return arg[:i], arg[i+1:], true
}

// Run resolves whichever of Src/Dst names a node and runs `docker cp` on
// that node's worker, rewriting the node reference to its container name.
func (obj *CpArgs) Run(ctx context.Context, data *cliUtil.Data) (bool, error) {
	cliUtil.Hello(data.Program, data.Version, data.Flags)

	srcNode, srcPath, srcHasNode := splitNodePath(obj.Src)
	dstNode, dstPath, dstHasNode := splitNodePath(obj.Dst)
	if !srcHasNode && !dstHasNode {
		return true, fmt.Errorf("neither %q nor %q names a node", obj.Src, obj.Dst)
	}
	if srcHasNode && dstHasNode && srcNode != dstNode {
		return true, fmt.Errorf("cp between two different nodes (%q, %q) is not supported", srcNode, dstNode)
	}
	node := srcNode
	if dstHasNode {
		node = dstNode
	}

	client, err := newStoreClient(data, "cp")
	if err != nil {
		return true, err
	}
	defer client.Close()

	worker, err := nodeWorker(ctx, client, node)
	if err != nil {
		return true, err
	}

	src := obj.Src
	if srcHasNode {
		src = srcNode + ":" + srcPath
	}
	dst := obj.Dst
	if dstHasNode {
		dst = dstNode + ":" + dstPath
	}

	executor := &workerexec.SSHExecutor{
		Debug: data.Flags.Debug,
		Logf: func(format string, v ...interface{}) {
			log.Printf("cp: "+format, v...)
		},
	}

	res, err := executor.Run(ctx, worker, workerexec.Command{Tool: "docker", Args: []string{"cp", src, dst}})
	if res != nil {
		os.Stdout.Write(res.Stdout)
		os.Stderr.Write(res.Stderr)
	}
	return true, err
}
