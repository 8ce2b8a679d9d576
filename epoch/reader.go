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

package epoch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	errwrap "github.com/pkg/errors"
	"github.com/spf13/afero"
)

// numericSuffix pulls the trailing run of digits out of a filename's base
// (before its extension), e.g. "epoch-12.json" -> 12.
var numericSuffix = regexp.MustCompile(`(\d+)[^\d]*$`)

// Reader lists and parses epoch files from a directory, ordered by the
// numeric suffix in their filename rather than by their time field. Fs is
// afero.NewOsFs() in production and afero.NewMemMapFs() in tests.
type Reader struct {
	Fs      afero.Fs
	Dir     string
	Pattern string // glob, e.g. "epoch-*.json"
}

// suffixOf extracts the numeric ordering key from a filename, per §4.4:
// "Files are ordered by the numeric suffix in the filename, not by time."
func suffixOf(name string) (int, error) {
	base := filepath.Base(name)
	m := numericSuffix.FindStringSubmatch(base)
	if m == nil {
		return 0, fmt.Errorf("filename %q has no numeric suffix to order by", base)
	}
	return strconv.Atoi(m[1])
}

// List returns every file matching Pattern under Dir, ordered by numeric
// filename suffix ascending.
func (r *Reader) List() ([]string, error) {
	pattern := filepath.Join(r.Dir, r.Pattern)
	matches, err := afero.Glob(r.Fs, pattern)
	if err != nil {
		return nil, errwrap.Wrapf(err, "globbing %s", pattern)
	}

	type ordered struct {
		name   string
		suffix int
	}
	entries := make([]ordered, 0, len(matches))
	for _, m := range matches {
		suffix, err := suffixOf(m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ordered{name: m, suffix: suffix})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].suffix < entries[j].suffix })

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names, nil
}

// ReadFile parses one epoch file at path.
func (r *Reader) ReadFile(path string) (*File, error) {
	data, err := afero.ReadFile(r.Fs, path)
	if err != nil {
		return nil, errwrap.Wrapf(err, "reading %s", path)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errwrap.Wrapf(err, "decoding %s", path)
	}
	return &f, nil
}
