// Package distributor implements MarFS's weighted consistent-hash table:
// a deterministic mapping from a string key (object-ID, streamid, or
// request fingerprint) onto a weighted node (pod, cap, scatter, or
// ref-dir leaf), with uniform load proportional to node weight.
//
// Grounded on the original MarFS src/hash/hash.c: virtual-node IDs are
// MurmurHash3-128 of "<name>-<i>", the ring targets TargetNodeCount
// virtual nodes distributed proportionally to weight, and a zero-weight
// node in direct-lookup mode gets exactly one virtual node named after
// itself so a lookup of its own name maps back to it exactly.
package distributor

import (
	"fmt"
	"sort"
)

// TargetNodeCount is the approximate total number of virtual nodes the
// ring aims for, matching the reference TARGET_NODE_COUNT.
const TargetNodeCount = 50000

// Node is one real placement target (a pod, cap, scatter, or ref-dir leaf)
// with an associated weight. A weight of zero is only valid when the
// table is constructed with DirectLookup.
type Node struct {
	Name    string
	Weight  int
	Payload interface{}
}

type vnode struct {
	id1, id2 uint64
	nodeIdx  int
}

// Table is a weighted consistent-hash ring over a fixed Node list.
// Table is safe for concurrent Lookup calls, and for concurrent Iterate
// calls as long as each caller uses its own Cursor (iteration state lives
// in the caller-supplied Cursor, never on the Table itself — see Cursor).
type Table struct {
	nodes        []Node
	ring         []vnode
	directLookup bool
}

// Init builds a Table from nodes. Any node with negative weight is
// rejected. If no node carries a positive weight, directLookup must be
// true (an all-zero-weight, non-direct-lookup table can never resolve a
// lookup to a uniform distribution).
func Init(nodes []Node, directLookup bool) (*Table, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("distributor: at least one node required")
	}

	var totalWeight, zeroCount int
	maxNameLen := 0
	for _, n := range nodes {
		if n.Weight < 0 {
			return nil, fmt.Errorf("distributor: node %q has negative weight %d", n.Name, n.Weight)
		}
		if n.Weight == 0 {
			zeroCount++
		} else {
			totalWeight += n.Weight
		}
		if len(n.Name) > maxNameLen {
			maxNameLen = len(n.Name)
		}
	}
	if totalWeight == 0 && !directLookup {
		return nil, fmt.Errorf("distributor: all-zero weight requires direct_lookup")
	}

	t := &Table{nodes: append([]Node(nil), nodes...), directLookup: directLookup}

	if totalWeight > 0 {
		weightRatio := TargetNodeCount / totalWeight
		if TargetNodeCount%totalWeight != 0 {
			weightRatio++
		}
		for idx, n := range nodes {
			if n.Weight == 0 {
				continue
			}
			count := n.Weight * weightRatio
			for i := 0; i < count; i++ {
				name := fmt.Sprintf("%s-%d", n.Name, i)
				id1, id2 := murmur3_128([]byte(name), keySeed)
				t.ring = append(t.ring, vnode{id1: id1, id2: id2, nodeIdx: idx})
			}
		}
	}

	if directLookup {
		for idx, n := range nodes {
			if n.Weight != 0 {
				continue
			}
			id1, id2 := murmur3_128([]byte(n.Name), keySeed)
			t.ring = append(t.ring, vnode{id1: id1, id2: id2, nodeIdx: idx})
		}
	}

	sort.Slice(t.ring, func(i, j int) bool {
		if t.ring[i].id1 != t.ring[j].id1 {
			return t.ring[i].id1 < t.ring[j].id1
		}
		if t.ring[i].id2 != t.ring[j].id2 {
			return t.ring[i].id2 < t.ring[j].id2
		}
		return t.ring[i].nodeIdx < t.ring[j].nodeIdx
	})

	return t, nil
}

const keySeed = 17 // matches the reference implementation's KEY_SEED (src/hash/hash.c)

// Nodes returns the node list the table was built from, in construction
// order.
func (t *Table) Nodes() []Node { return t.nodes }

func vnodeLess(a, b vnode) bool {
	if a.id1 != b.id1 {
		return a.id1 < b.id1
	}
	return a.id2 < b.id2
}

// Lookup hashes key and walks the ring to the smallest virtual-node ID
// greater than or equal to the hash, wrapping to index 0 on overflow. It
// returns the owning Node and whether the match was exact (the vnode's
// name equals key exactly — only meaningful for direct-lookup tables) or
// approximate.
func (t *Table) Lookup(key string) (node Node, exact bool, err error) {
	if len(t.ring) == 0 {
		return Node{}, false, fmt.Errorf("distributor: empty ring")
	}
	h1, h2 := murmur3_128([]byte(key), keySeed)
	target := vnode{id1: h1, id2: h2}

	i := sort.Search(len(t.ring), func(i int) bool {
		return !vnodeLess(t.ring[i], target)
	})
	if i == len(t.ring) {
		i = 0
	}

	match := t.ring[i]
	if match.id1 == target.id1 && match.id2 == target.id2 {
		// ID collision: disambiguate by walking both directions for a
		// true name match before falling back to an approximate one.
		if exactIdx, ok := t.resolveCollision(i, key); ok {
			return t.nodes[t.ring[exactIdx].nodeIdx], true, nil
		}
		return t.nodes[match.nodeIdx], false, nil
	}
	return t.nodes[match.nodeIdx], false, nil
}

// resolveCollision walks outward from i (which matches target's ID) in
// both directions across any other vnodes sharing the same ID, looking
// for one whose underlying node name exactly equals key.
func (t *Table) resolveCollision(i int, key string) (int, bool) {
	id1, id2 := t.ring[i].id1, t.ring[i].id2
	sameID := func(j int) bool {
		return j >= 0 && j < len(t.ring) && t.ring[j].id1 == id1 && t.ring[j].id2 == id2
	}
	for lo, hi := i, i; sameID(lo) || sameID(hi); lo, hi = lo-1, hi+1 {
		if sameID(lo) && t.nodes[t.ring[lo].nodeIdx].Name == key {
			return lo, true
		}
		if hi != lo && sameID(hi) && t.nodes[t.ring[hi].nodeIdx].Name == key {
			return hi, true
		}
	}
	return 0, false
}

// Cursor tracks iteration state for Table.Iterate. Cursors are never
// shared mutable state on Table itself, so concurrent iterations over the
// same Table are independent and safe.
type Cursor struct {
	nextNodeIdx int
	remaining   int
}

// NewCursor returns a Cursor that will iterate starting from the node
// immediately after `from` (typically the node returned by a prior
// Lookup) in node-construction order, wrapping past the last node back to
// the first.
func NewCursor(from Node, t *Table) *Cursor {
	idx := 0
	for i, n := range t.nodes {
		if n.Name == from.Name {
			idx = i
			break
		}
	}
	return &Cursor{nextNodeIdx: idx + 1, remaining: len(t.nodes) - 1}
}

// Iterate advances the cursor to the next node in node-construction order
// (not ring order), never revisiting a node. It returns false once every
// node other than the cursor's starting node has been produced.
func (t *Table) Iterate(c *Cursor) (Node, bool) {
	if c.remaining <= 0 || len(t.nodes) == 0 {
		return Node{}, false
	}
	n := t.nodes[c.nextNodeIdx%len(t.nodes)]
	c.nextNodeIdx++
	c.remaining--
	return n, true
}
