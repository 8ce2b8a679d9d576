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

package placement

import (
	"fmt"
	"strconv"
	"strings"
)

// memSuffixes maps the resource-quantity suffixes this module accepts to
// their byte multiplier. Binary (Ki/Mi/Gi/Ti) and decimal (K/M/G/T)
// suffixes are both accepted since static configs come from different
// authors.
var memSuffixes = map[string]int64{
	"Ki": 1 << 10, "Mi": 1 << 20, "Gi": 1 << 30, "Ti": 1 << 40,
	"K": 1000, "M": 1000 * 1000, "G": 1000 * 1000 * 1000, "T": 1000 * 1000 * 1000 * 1000,
}

// parseCPU parses a cpu-request/cpu-limit string into fractional cores.
// "100m" means 100 millicores (0.1 cores); a bare number is whole cores.
func parseCPU(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasSuffix(s, "m") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "m"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid cpu quantity %q: %w", s, err)
		}
		return v / 1000.0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cpu quantity %q: %w", s, err)
	}
	return v, nil
}

// parseMem parses a mem-request/mem-limit string into a byte count. A bare
// number is taken as bytes; one of the suffixes Ki, Mi, Gi, Ti, K, M, G or
// T scales it.
func parseMem(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for suffix, mult := range memSuffixes {
		if strings.HasSuffix(s, suffix) {
			numPart := strings.TrimSuffix(s, suffix)
			v, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid mem quantity %q: %w", s, err)
			}
			return int64(v * float64(mult)), nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid mem quantity %q: %w", s, err)
	}
	return v, nil
}
