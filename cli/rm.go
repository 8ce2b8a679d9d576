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

	cliUtil "github.com/satctl/satctl/cli/util"
	"github.com/satctl/satctl/deploy"
	"github.com/satctl/satctl/deploy/workerexec"
	"github.com/satctl/satctl/schema"

	etcd "go.etcd.io/etcd/client/v3"
)

// RmArgs is the CLI parsing structure for `satctl rm`: teardown, deleting
// every /config/* entry and container, per §6.
type RmArgs struct{}

// Run removes every container this deployment launched, then deletes every
// /config/* key.
func (obj *RmArgs) Run(ctx context.Context, data *cliUtil.Data) (bool, error) {
	cliUtil.Hello(data.Program, data.Version, data.Flags)

	client, err := newStoreClient(data, "rm")
	if err != nil {
		return true, err
	}
	defer client.Close()

	exec := &workerexec.SSHExecutor{
		Debug: data.Flags.Debug,
		Logf: func(format string, v ...interface{}) {
			log.Printf("rm: "+format, v...)
		},
	}

	results, err := deploy.Teardown(ctx, client, exec)
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("%s: could not remove: %v\n", r.Node, r.Err)
			continue
		}
		fmt.Printf("%s: removed\n", r.Node)
	}
	if err != nil {
		return true, err
	}

	n, err := client.Del(ctx, schema.ConfigPrefix, etcd.WithPrefix())
	if err != nil {
		return true, err
	}
	fmt.Printf("deleted %d config key(s)\n", n)
	return true, nil
}
