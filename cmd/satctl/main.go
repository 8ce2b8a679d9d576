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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/satctl/satctl/cli"
	cliUtil "github.com/satctl/satctl/cli/util"
)

// set at compile time, via -ldflags
var (
	version = "unknown"
	program = "satctl"
)

const copying = `Mgmt
Copyright (C) 2013-2024+ James Shubin and the project contributors
Written by James Shubin <james@shubin.ca> and the project contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
`

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()

	data := &cliUtil.Data{
		Program: cliUtil.SafeProgram(program),
		Version: version,
		Copying: copying,
		Tagline: "satctl manages a satellite-network emulation deployment",
		Flags: cliUtil.Flags{
			Debug:   os.Getenv("SATCTL_DEBUG") != "",
			Verbose: os.Getenv("SATCTL_VERBOSE") != "",
		},
		Args: os.Args,
	}

	if err := cli.CLI(ctx, data); err != nil {
		fmt.Fprintf(os.Stderr, "%s: error: %v\n", data.Program, err)
		os.Exit(cliUtil.ExitCode(err))
		return
	}
}
