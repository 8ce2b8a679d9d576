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
	"encoding/json"
	"fmt"
	"net/netip"
	"path/filepath"
	"reflect"
	"sort"
	"time"

	errwrap "github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/satctl/satctl/epoch"
	"github.com/satctl/satctl/schema"
)

// DefaultDrainMetric is the metric applied to drain-before-break route
// replacements, per the `metric 100` literal in §4.5.
const DefaultDrainMetric = 100

// Options configures one Precompile run.
type Options struct {
	// Nodes is every node's spec, used to resolve each routed node's type
	// (for RouteFilter) and overlay CIDR (for route destinations and
	// next-hop addresses).
	Nodes map[string]*schema.NodeSpec

	// RouteFilter selects which nodes are treated as routed sources and
	// destinations. The zero value routes every node.
	RouteFilter NodeTypeFilter

	// DrainOffset is how long before a file's timestamp the
	// drain-before-break file is emitted. Zero suppresses drain files.
	DrainOffset time.Duration

	// CreationOffset is how long after a file's timestamp the post-create
	// file is emitted.
	CreationOffset time.Duration

	// DrainMetric overrides DefaultDrainMetric if nonzero.
	DrainMetric int
}

func (o Options) drainMetric() int {
	if o.DrainMetric != 0 {
		return o.DrainMetric
	}
	return DefaultDrainMetric
}

// Output is one file the precompiler emits, carrying the synthetic ordering
// suffix it should be written with, since epoch.Reader orders by filename
// suffix, not timestamp.
type Output struct {
	Suffix int
	File   *epoch.File
}

// Name formats the filename this output should be written as.
func (o Output) Name() string {
	return fmt.Sprintf("epoch-%d.json", o.Suffix)
}

// Precompile implements §4.5: for each input file (already ordered, e.g. via
// epoch.Reader.List), it updates a running adjacency, computes primary and
// secondary next hops for every routed node pair, and emits up to three
// output files per input: a drain-before-break file, the original file
// copied unchanged, and a post-create file. Outputs whose timestamps
// collide (including a zero CreationOffset colliding with the original, or
// consecutive files' drain/post offsets landing on the same instant) are
// merged rather than duplicated.
func Precompile(files []*epoch.File, opts Options) ([]Output, error) {
	graph := newAdjacency()
	routed := routedNodeNames(opts.Nodes, opts.RouteFilter)

	var events []eventT

	for _, file := range files {
		graph.applyLinks(file.LinksDel, file.LinksAdd, file.LinksUpdate)

		primaryRun, secondaryRun := buildRunSections(graph, routed, opts.Nodes, opts.drainMetric())

		if opts.DrainOffset > 0 && len(secondaryRun) > 0 {
			events = append(events, eventT{
				when: file.Time.Add(-opts.DrainOffset),
				file: &epoch.File{Run: secondaryRun},
			})
		}

		events = append(events, eventT{when: file.Time, file: copyFile(file)})

		if len(primaryRun) > 0 {
			events = append(events, eventT{
				when: file.Time.Add(opts.CreationOffset),
				file: &epoch.File{Run: primaryRun},
			})
		}
	}

	merged := mergeEvents(events)
	sort.Slice(merged, func(i, j int) bool { return merged[i].when.Before(merged[j].when) })

	outputs := make([]Output, 0, len(merged))
	for i, e := range merged {
		e.file.Time = e.when
		outputs = append(outputs, Output{Suffix: i + 1, File: e.file})
	}
	return outputs, nil
}

// Check re-runs Precompile over the same input and reports an error if the
// two results differ. No satctl subcommand calls it.
func Check(files []*epoch.File, opts Options) error {
	a, err := Precompile(files, opts)
	if err != nil {
		return err
	}
	b, err := Precompile(files, opts)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(a, b) {
		return fmt.Errorf("oracle precompiler is not idempotent over this input")
	}
	return nil
}

// WriteOutputs writes every output file into dir on fs, named per Name().
func WriteOutputs(fs afero.Fs, dir string, outputs []Output) error {
	for _, o := range outputs {
		data, err := json.MarshalIndent(o.File, "", "  ")
		if err != nil {
			return errwrap.Wrapf(err, "encoding %s", o.Name())
		}
		path := filepath.Join(dir, o.Name())
		if err := afero.WriteFile(fs, path, data, 0644); err != nil {
			return errwrap.Wrapf(err, "writing %s", path)
		}
	}
	return nil
}

type eventT struct {
	when time.Time
	file *epoch.File
}

// mergeEvents merges entries with an identical timestamp into one file, per
// §4.5's "merges the generated run sections when timestamps collide."
func mergeEvents(events []eventT) []eventT {
	var merged []eventT
	for _, e := range events {
		found := false
		for i := range merged {
			if merged[i].when.Equal(e.when) {
				mergeFileInto(merged[i].file, e.file)
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, eventT{when: e.when, file: e.file})
		}
	}
	return merged
}

func copyFile(f *epoch.File) *epoch.File {
	cp := *f
	if len(f.Run) > 0 {
		cp.Run = make(map[string][]string, len(f.Run))
		for node, cmds := range f.Run {
			cp.Run[node] = append([]string(nil), cmds...)
		}
	}
	return &cp
}

func mergeFileInto(dst, src *epoch.File) {
	dst.LinksDel = append(dst.LinksDel, src.LinksDel...)
	dst.LinksAdd = append(dst.LinksAdd, src.LinksAdd...)
	dst.LinksUpdate = append(dst.LinksUpdate, src.LinksUpdate...)
	if len(src.Run) == 0 {
		return
	}
	if dst.Run == nil {
		dst.Run = make(map[string][]string, len(src.Run))
	}
	for node, cmds := range src.Run {
		dst.Run[node] = mergeCommands(dst.Run[node], cmds)
	}
}

// mergeCommands appends add to existing, dropping anything already present.
// This de-duplication is what keeps Precompile idempotent when re-run over
// a sequence that already carries injected route commands.
func mergeCommands(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c] = true
	}
	out := existing
	for _, c := range add {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func routedNodeNames(nodes map[string]*schema.NodeSpec, filter NodeTypeFilter) []string {
	var out []string
	for name, spec := range nodes {
		if filter.Match(spec.Type) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// buildRunSections computes, for every ordered pair of routed nodes, the
// primary route command (post-create file) and the secondary or fallback
// delete command (drain-before-break file), per §4.5 step 3-4.
func buildRunSections(graph adjacency, routed []string, nodes map[string]*schema.NodeSpec, drainMetric int) (primary, secondary map[string][]string) {
	primary = make(map[string][]string)
	secondary = make(map[string][]string)

	for _, src := range routed {
		for _, dst := range routed {
			if src == dst {
				continue
			}
			dstSpec, ok := nodes[dst]
			if !ok {
				continue
			}
			dstCIDR := overlayCIDR(dstSpec)
			if dstCIDR == "" {
				continue
			}

			primaryHop, hasPrimary, secondaryHop, hasSecondary := graph.nextHops(src, dst)

			if hasPrimary {
				if via, err := overlayHostAddr(overlayCIDR(nodes[primaryHop])); err == nil {
					primary[src] = append(primary[src], routeReplaceCmd(dstCIDR, via, 0))
				}
			}

			if hasSecondary {
				if via, err := overlayHostAddr(overlayCIDR(nodes[secondaryHop])); err == nil {
					secondary[src] = append(secondary[src], routeReplaceCmd(dstCIDR, via, drainMetric))
				}
			} else {
				secondary[src] = append(secondary[src], routeDelCmd(dstCIDR))
			}
		}
	}
	return primary, secondary
}

func overlayCIDR(spec *schema.NodeSpec) string {
	if spec == nil {
		return ""
	}
	if spec.L3Config.CIDR != "" {
		return spec.L3Config.CIDR
	}
	return spec.L3Config.CIDRv6
}

// overlayHostAddr returns the representative host address of an overlay
// /30 or /126, used as the next-hop address of the node that owns it: the
// first usable address in the block.
func overlayHostAddr(cidr string) (string, error) {
	if cidr == "" {
		return "", fmt.Errorf("empty overlay cidr")
	}
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return "", errwrap.Wrapf(err, "invalid overlay cidr %q", cidr)
	}
	return p.Masked().Addr().Next().String(), nil
}

func routeReplaceCmd(dstCIDR, via string, metric int) string {
	if metric > 0 {
		return fmt.Sprintf("ip route replace %s via %s metric %d", dstCIDR, via, metric)
	}
	return fmt.Sprintf("ip route replace %s via %s", dstCIDR, via)
}

func routeDelCmd(dstCIDR string) string {
	return fmt.Sprintf("ip route del %s", dstCIDR)
}
