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

package workerexec

import (
	"strings"
	"testing"
)

func TestCommandLineQuoting(t *testing.T) {
	cmd := Command{
		Tool: "docker",
		Args: []string{"run", "--name", "sat's-box"},
		Env:  map[string]string{"NODE": "sat-01"},
	}
	line := cmd.line()
	if !strings.Contains(line, "NODE='sat-01'") {
		t.Errorf("expected env assignment in line, got %q", line)
	}
	if !strings.Contains(line, `'sat'\''s-box'`) {
		t.Errorf("expected escaped single quote in line, got %q", line)
	}
	if !strings.HasPrefix(strings.TrimPrefix(line, "NODE='sat-01' "), "'docker'") {
		t.Errorf("expected tool to be quoted, got %q", line)
	}
}

func TestWorkerExecErrorMessage(t *testing.T) {
	err := &WorkerExecError{ExitCode: 1, Stderr: "boom"}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), "1") {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}
