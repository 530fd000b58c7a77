package config

import (
	"fmt"
	"strings"
)

// Position is the cursor handed between MarFS operations: which
// namespace a path resolved into, how many namespace-crossings deep the
// walk went, and an opaque per-MDAL-handle context (spec.md §4.5:
// "Position (ns, depth, ctxt): a cursor handed between operations").
// A depth-0 Position may carry a nil Ctxt — ops targeting a namespace
// root don't always need an open MDAL handle.
type Position struct {
	NS    *Namespace
	Depth int
	Ctxt  interface{}
}

// Traverse walks path's '/'-separated components starting from the
// namespace whose MntPath is the longest matching prefix, optionally
// crossing into ghost namespaces, and returns the resolved Position plus
// whatever of path remains below the namespace root (spec.md §4.5:
// "config_traverse(path, linkchk) walks '/' components ... producing
// (ns, depth, residual-subpath)").
//
// linkchk is accepted for interface parity with the original's symlink-
// resolution flag; this package does not itself resolve symlinks (that
// is an MDAL-layer operation once a Position is in hand), so it is
// currently unused beyond being threaded through for future wiring.
func (c *Configuration) Traverse(path string, linkchk bool) (Position, string, error) {
	clean := strings.Trim(path, "/")

	var best *Namespace
	bestLen := -1
	for i := range c.Namespaces {
		ns := &c.Namespaces[i]
		mnt := strings.Trim(ns.MntPath, "/")
		if mnt != "" && !strings.HasPrefix(clean, mnt) {
			continue
		}
		if mnt == clean || strings.HasPrefix(clean, mnt+"/") || mnt == "" {
			if len(mnt) > bestLen {
				best = ns
				bestLen = len(mnt)
			}
		}
	}
	if best == nil {
		return Position{}, "", fmt.Errorf("config: traverse %q: no namespace mount matches", path)
	}

	residual := strings.TrimPrefix(clean, strings.Trim(best.MntPath, "/"))
	residual = strings.TrimPrefix(residual, "/")

	depth := 0
	ns := best
	for ns.Ghost != nil {
		target, ok := c.nsByName[ns.Ghost.TargetNamespace]
		if !ok {
			return Position{}, "", fmt.Errorf("config: traverse %q: ghost of %q targets unknown namespace %q", path, ns.Name, ns.Ghost.TargetNamespace)
		}
		ns = target
		depth++
		if depth > len(c.Namespaces) {
			return Position{}, "", fmt.Errorf("config: traverse %q: ghost namespace cycle detected at %q", path, ns.Name)
		}
	}

	return Position{NS: ns, Depth: depth}, residual, nil
}

// CheckPerm verifies that both the namespace's batch permissions and,
// when interactive is true, its interactive-permission overlay admit
// want (spec.md §4.5: "both the bperms ... and the iperms ... must admit
// the op").
func (p Position) CheckPerm(want PermFlags, interactive bool) error {
	if p.NS == nil {
		return fmt.Errorf("config: permission check on empty position")
	}
	if !p.NS.BPerms.Admits(want) {
		return fmt.Errorf("config: namespace %q bperms deny requested operation", p.NS.Name)
	}
	if interactive && !p.NS.IPerms.Admits(want) {
		return fmt.Errorf("config: namespace %q iperms deny requested operation", p.NS.Name)
	}
	return nil
}
