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

	cliUtil "github.com/satctl/satctl/cli/util"
	"github.com/satctl/satctl/schema"

	etcd "go.etcd.io/etcd/client/v3"
)

// UnlinkArgs is the CLI parsing structure for `satctl unlink`: delete every
// /config/links/* key in one batch, per §6.
type UnlinkArgs struct{}

// Run deletes every link key the store holds.
func (obj *UnlinkArgs) Run(ctx context.Context, data *cliUtil.Data) (bool, error) {
	cliUtil.Hello(data.Program, data.Version, data.Flags)

	client, err := newStoreClient(data, "unlink")
	if err != nil {
		return true, err
	}
	defer client.Close()

	n, err := client.Del(ctx, schema.LinksPrefix, etcd.WithPrefix())
	if err != nil {
		return true, err
	}
	fmt.Printf("deleted %d link key(s)\n", n)
	return true, nil
}
