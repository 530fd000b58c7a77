// Package ne implements the erasure-coded block engine: it reads, writes,
// and rebuilds a logical byte stream spread across N data and E parity
// blocks (spec.md §4.2), grounded on the block/shard split in the
// VaultS3 erasure engine (other_examples/…VaultS3__internal-erasure-engine)
// and the block-layout and mode semantics of original_source/src/ne/ne.h.
//
// The engine is storage-agnostic: it drives a BlockStore, the interface
// that internal/dal backends (POSIX, S3, NOOP, …) implement. This mirrors
// the teacher's storage.Engine split between the erasure layer and the
// concrete filesystem/S3 backend.
package ne

import (
	"context"
	"io"
)

// BlockMeta is the trailing meta-file record for one NE object, written
// once per block on close (spec.md §4.2: "a trailing meta file holds
// (versz, blocksz, totsz, crcsum, N, E, O, partsz)").
type BlockMeta struct {
	VerSz   int64
	BlockSz int64
	TotSz   int64
	CRCSum  uint64
	N       int
	E       int
	O       int
	PartSz  int64
}

// Consensus reports whether two metas agree on (N, E) — the condition
// ne_stat uses to decide it knows the stripe shape (MIN_MD_CONSENSUS).
func (m BlockMeta) Consensus(other BlockMeta) bool {
	return m.N == other.N && m.E == other.E
}

// BlockHandle is per-block stream state, opened once per NE handle
// lifetime. It plays the role of the DAL's open/put/get/sync/abort/close
// context (spec.md §4.3), narrowed to what the erasure engine needs.
type BlockHandle interface {
	// Write appends p to the block's data stream.
	io.Writer
	// Read fills p from the block's data stream, returning (0, io.EOF)
	// once the block's data is exhausted.
	io.Reader
	// Seek repositions the block's data stream for a read-handle reopen.
	io.Seeker
	// WriteMeta finalizes the block's trailing meta file.
	WriteMeta(m BlockMeta) error
	// ReadMeta reads the block's trailing meta file (STAT / open-for-read).
	ReadMeta() (BlockMeta, error)
	// Sync is the last point at which write errors may surface before Close.
	Sync() error
	// Abort cancels an open stream, leaving no persistent object behind.
	Abort() error
	// Close finalizes the block; further ops on this handle fail.
	Close() error
}

// BlockStore opens and deletes the physical blocks backing one NE object.
// blockIdx ranges over [0, N+E), already rotated by the object's O offset
// — the store sees logical block numbers, not physical pod/cap/scatter
// coordinates (that mapping belongs to the DAL, not to this package).
type BlockStore interface {
	OpenBlock(ctx context.Context, blockIdx int, isPut bool) (BlockHandle, error)
	DeleteBlock(ctx context.Context, blockIdx int) error
}
