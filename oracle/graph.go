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

package oracle

import (
	"sort"

	"github.com/satctl/satctl/epoch"
)

// adjacency is a sparse, undirected graph keyed by node name, maintained
// across the epoch sequence per §4.5 step 1-2.
type adjacency map[string]map[string]bool

func newAdjacency() adjacency { return make(adjacency) }

func (a adjacency) addEdge(n1, n2 string) {
	if _, ok := a[n1]; !ok {
		a[n1] = make(map[string]bool)
	}
	if _, ok := a[n2]; !ok {
		a[n2] = make(map[string]bool)
	}
	a[n1][n2] = true
	a[n2][n1] = true
}

func (a adjacency) delEdge(n1, n2 string) {
	if nbrs, ok := a[n1]; ok {
		delete(nbrs, n2)
	}
	if nbrs, ok := a[n2]; ok {
		delete(nbrs, n1)
	}
}

// neighbors returns n's neighbor names sorted lexicographically, so callers
// that iterate them get the deterministic tie-break order §4.5 requires.
func (a adjacency) neighbors(n string) []string {
	nbrs := a[n]
	out := make([]string, 0, len(nbrs))
	for nbr := range nbrs {
		out = append(out, nbr)
	}
	sort.Strings(out)
	return out
}

// applyLinks mutates a in place per one epoch file's link mutations, in
// del -> add/update order, matching the release ordering used elsewhere in
// this module.
func (a adjacency) applyLinks(del, add, update []epoch.LinkSpec) {
	for _, l := range del {
		a.delEdge(l.Endpoint1, l.Endpoint2)
	}
	for _, l := range add {
		a.addEdge(l.Endpoint1, l.Endpoint2)
	}
	for _, l := range update {
		a.addEdge(l.Endpoint1, l.Endpoint2)
	}
}

// hopsFrom returns the shortest hop count from src to every reachable node,
// via a plain unweighted BFS (hop count == unit-weight Dijkstra).
func (a adjacency) hopsFrom(src string) map[string]int {
	dist := map[string]int{src: 0}
	queue := []string{src}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, nbr := range a.neighbors(n) {
			if _, seen := dist[nbr]; seen {
				continue
			}
			dist[nbr] = dist[n] + 1
			queue = append(queue, nbr)
		}
	}
	return dist
}

// nextHops returns the primary and secondary next-hop neighbor for a route
// from src to dst, per §4.5 step 3: the best next hop by hop count
// (lexicographic tie-break), and the best next hop whose identity differs
// from the primary. Either return is "", false if no path exists.
func (a adjacency) nextHops(src, dst string) (primary string, hasPrimary bool, secondary string, hasSecondary bool) {
	if src == dst {
		return "", false, "", false
	}

	type candidate struct {
		neighbor string
		dist     int
	}
	var candidates []candidate
	for _, nbr := range a.neighbors(src) {
		d := a.hopsFrom(nbr)
		total, reachable := d[dst]
		if nbr == dst {
			total, reachable = 0, true
		}
		if !reachable {
			continue
		}
		candidates = append(candidates, candidate{neighbor: nbr, dist: total + 1})
	}
	if len(candidates) == 0 {
		return "", false, "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].neighbor < candidates[j].neighbor
	})

	primary = candidates[0].neighbor
	hasPrimary = true
	for _, c := range candidates[1:] {
		if c.neighbor != primary {
			return primary, hasPrimary, c.neighbor, true
		}
	}
	return primary, hasPrimary, "", false
}
