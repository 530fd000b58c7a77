package config

import (
	"fmt"
	"strings"

	"github.com/marfs-core/marfs/internal/distributor"
)

// refDistributor hashes a streamid onto one of a namespace's B^D
// zero-padded hex reference-dir leaves (spec.md §4.6), backed by
// internal/distributor's weighted consistent-hash table with every leaf
// given equal weight.
type refDistributor struct {
	breadth, depth, digits int
	table                  *distributor.Table
	leaves                 []string // index i corresponds to table node i
}

// newRefDistributor builds the B^D leaf set and its distributor table.
// Every leaf path looks like depth-many zero-padded hex components, each
// drawn from [0, breadth), rendered with `digits` hex digits per
// component (spec.md §4.6: "B^D leaf dirs named by zero-padded hex paths
// of depth D").
func newRefDistributor(breadth, depth, digits int) (*refDistributor, error) {
	if breadth <= 0 || depth <= 0 || digits <= 0 {
		return nil, fmt.Errorf("refdir: breadth/depth/digits must be positive, got (%d,%d,%d)", breadth, depth, digits)
	}
	leaves := make([]string, 0, pow(breadth, depth))
	var build func(prefix []int)
	build = func(prefix []int) {
		if len(prefix) == depth {
			parts := make([]string, depth)
			for i, v := range prefix {
				parts[i] = fmt.Sprintf("%0*x", digits, v)
			}
			leaves = append(leaves, strings.Join(parts, "/"))
			return
		}
		for b := 0; b < breadth; b++ {
			build(append(prefix, b))
		}
	}
	build(nil)

	nodes := make([]distributor.Node, len(leaves))
	for i, leaf := range leaves {
		nodes[i] = distributor.Node{Name: leaf, Weight: 1, Payload: i}
	}
	table, err := distributor.Init(nodes, false)
	if err != nil {
		return nil, fmt.Errorf("refdir: building distributor table: %w", err)
	}
	return &refDistributor{breadth: breadth, depth: depth, digits: digits, table: table, leaves: leaves}, nil
}

func pow(b, e int) int {
	n := 1
	for i := 0; i < e; i++ {
		n *= b
	}
	return n
}

// LeafFor deterministically hashes streamID to one of the namespace's
// reference-dir leaves (spec.md §4.6: "Each streamid deterministically
// hashes to one leaf").
func (ns *Namespace) LeafFor(streamID string) (string, error) {
	if ns.dist == nil {
		return "", fmt.Errorf("config: namespace %q has no ref-dir table (Validate not run?)", ns.Name)
	}
	node, _, err := ns.dist.table.Lookup(streamID)
	if err != nil {
		return "", fmt.Errorf("config: ref-dir lookup for stream %q: %w", streamID, err)
	}
	return node.Name, nil
}

// RefDirCount returns B^D, the total number of reference-dir leaves.
func (ns *Namespace) RefDirCount() int {
	if ns.dist == nil {
		return 0
	}
	return len(ns.dist.leaves)
}
