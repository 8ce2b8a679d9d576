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
	"log"

	cliUtil "github.com/satctl/satctl/cli/util"
	"github.com/satctl/satctl/store"
	"github.com/satctl/satctl/util/errwrap"
)

// newStoreClient builds and initializes a store client from the
// ETCD_HOST/ETCD_PORT/ETCD_USER/ETCD_PASSWORD/ETCD_CA_CERT environment
// variables, per §6. prefix is used to tag this command's log lines.
func newStoreClient(data *cliUtil.Data, prefix string) (*store.Simple, error) {
	client, err := store.NewClientFromEnv()
	if err != nil {
		return nil, errwrap.Wrapf(err, "could not build store client")
	}
	client.Debug = data.Flags.Debug
	client.Logf = func(format string, v ...interface{}) {
		log.Printf(prefix+": "+format, v...)
	}
	if err := client.Init(); err != nil {
		return nil, errwrap.Wrapf(err, "could not connect to store")
	}
	return client, nil
}
