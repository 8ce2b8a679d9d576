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

// Package epoch implements the scheduler that drives the store's link and
// run keys off a sequence of epoch files, per §4.4.
package epoch

import "time"

// LinkSpec is one link mutation entry in an epoch file's links-add,
// links-update, or links-del array.
type LinkSpec struct {
	Endpoint1        string `json:"endpoint1"`
	Endpoint2        string `json:"endpoint2"`
	Endpoint1Antenna int    `json:"endpoint1_antenna,omitempty"`
	Endpoint2Antenna int    `json:"endpoint2_antenna,omitempty"`

	Rate  string  `json:"rate,omitempty"`
	Loss  float64 `json:"loss,omitempty"`
	Delay string  `json:"delay,omitempty"`
	Limit int     `json:"limit,omitempty"`
}

// File is the parsed JSON contents of one epoch file.
type File struct {
	Time time.Time `json:"time"`

	LinksAdd    []LinkSpec `json:"links-add,omitempty"`
	LinksUpdate []LinkSpec `json:"links-update,omitempty"`
	LinksDel    []LinkSpec `json:"links-del,omitempty"`

	// Run maps node name to the ordered list of shell commands to run
	// for that node this epoch.
	Run map[string][]string `json:"run,omitempty"`
}
