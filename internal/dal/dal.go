// Package dal implements the pluggable block-storage layer that backs
// internal/ne (spec.md §4.3). Each repo owns one Backend value; the
// backend variant (POSIX, S3, NOOP, MC, ...) is chosen at config load
// time from a name->constructor map, replacing the original's
// function-pointer vtable with shared global state (spec.md §9 design
// note on DAL/MDAL vtables).
//
// The teacher's split between a storage.Engine-like interface and a
// concrete S3 client (internal/storage/s3/backend.go) is the model: a
// Backend opens per-object BlockStores, and internal/ne drives those
// without knowing which concrete backend produced them.
package dal

import (
	"context"
	"fmt"

	"github.com/marfs-core/marfs/internal/ne"
	"github.com/marfs-core/marfs/pkg/merrors"
)

// Variant names a DAL backend kind (spec.md §4.3).
type Variant string

const (
	VariantPOSIX Variant = "posix"
	VariantS3    Variant = "s3"
	VariantNOOP  Variant = "noop"
	VariantMC    Variant = "mc"
	VariantDIRECT Variant = "direct"
	VariantSEMI  Variant = "semi"
)

// Location identifies one object's physical placement: which repo,
// which pod/cap/scatter triple (original_source's ne_location), and the
// object ID string it was written under.
type Location struct {
	Repo    string
	Pod     int
	Cap     int
	Scatter int
	ObjID   string
}

// Backend opens and deletes the N+E blocks backing one object, and
// recomputes an object's physical target before each new open
// (spec.md §4.3: update_object_location "must be called before each
// new open").
type Backend interface {
	// OpenObject returns a BlockStore scoped to one object's blocks.
	OpenObject(ctx context.Context, loc Location) (ne.BlockStore, error)
	// DeleteObject removes an object and all of its blocks.
	DeleteObject(ctx context.Context, loc Location) error
	// UpdateObjectLocation recomputes loc's physical target, returning
	// the (possibly unchanged) resolved location.
	UpdateObjectLocation(ctx context.Context, loc Location) (Location, error)
	// Close releases backend-wide resources (connection pools, etc).
	Close() error
}

// Constructor builds a Backend from its YAML-sourced config node. The
// registry is populated once at process start and consulted only
// during config load, per spec.md §9's "no process-wide registry ...
// beyond a name->constructor map used only during config load".
type Constructor func(cfg map[string]interface{}) (Backend, error)

var registry = map[Variant]Constructor{}

// Register adds a backend constructor under name. Called from each
// backend file's init().
func Register(name Variant, ctor Constructor) {
	registry[name] = ctor
}

// New builds a Backend for the named variant using cfg, the backend's
// raw YAML config map as parsed by internal/config.
func New(name Variant, cfg map[string]interface{}) (Backend, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, merrors.New(merrors.CodeConfigBadDAL, fmt.Sprintf("unknown DAL variant %q", name)).
			WithComponent("dal")
	}
	return ctor(cfg)
}

// blockKey renders the storage key/path segment for one block of an
// object, shared by every backend so on-disk/on-bucket layouts are
// consistent across variants.
func blockKey(loc Location, blockIdx int) string {
	return fmt.Sprintf("%s/p%d/c%d/s%d/%s/block%d", loc.Repo, loc.Pod, loc.Cap, loc.Scatter, loc.ObjID, blockIdx)
}

func metaKey(loc Location, blockIdx int) string {
	return blockKey(loc, blockIdx) + ".meta"
}
