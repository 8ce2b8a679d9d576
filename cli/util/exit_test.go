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

package util

import (
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	if code := ExitCode(nil); code != 0 {
		t.Errorf("nil error: got exit code %d, want 0", code)
	}

	plain := fmt.Errorf("boom")
	if code := ExitCode(plain); code != 1 {
		t.Errorf("plain error: got exit code %d, want 1", code)
	}

	wrapped := fmt.Errorf("wrapping: %w", &ExitError{Code: 3, Err: plain})
	if code := ExitCode(wrapped); code != 3 {
		t.Errorf("wrapped ExitError: got exit code %d, want 3", code)
	}

	ee := &ExitError{Code: 5, Err: plain}
	if ee.Error() != plain.Error() {
		t.Errorf("Error() = %q, want %q", ee.Error(), plain.Error())
	}
	if ee.Unwrap() != plain {
		t.Errorf("Unwrap() did not return the wrapped error")
	}
}
