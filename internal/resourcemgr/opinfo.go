// Package resourcemgr implements the MarFS resource manager (spec.md
// §4.7): the batch/interactive process that walks namespaces deleting
// garbage objects and references, rebuilding degraded stripes, and
// repacking small files, coordinated across a master rank and N worker
// ranks via RESOURCELOG/RESOURCEINPUT state and a bounded work-request
// protocol.
//
// Grounded on original_source/src/rsrc_mgr/{resourcelog,resourceinput,
// logline}.h for the opinfo/RESOURCELOG/RESOURCEINPUT contracts, and on
// the teacher's internal/batch.Processor (mutex + condition-driven flush
// loop) and internal/distributed (config-with-defaults, rank/node stats)
// for the Go-idiomatic shape of the coordination layer.
package resourcemgr

import (
	"github.com/marfs-core/marfs/internal/ftag"
)

// OperationType is the class of work one OpInfo entry describes
// (original_source logline.h's operation_type).
type OperationType int

const (
	OpDeleteObject OperationType = iota
	OpDeleteRef
	OpRebuild
	OpRepack
)

func (t OperationType) String() string {
	switch t {
	case OpDeleteObject:
		return "DELETE_OBJ"
	case OpDeleteRef:
		return "DELETE_REF"
	case OpRebuild:
		return "REBUILD"
	case OpRepack:
		return "REPACK"
	default:
		return "UNKNOWN"
	}
}

// DeleteObjInfo is the extended info for an OpDeleteObject entry
// (original_source delobj_info): the offset within a stream's object
// sequence at which deletion should begin, letting threads split a
// delete range between them.
type DeleteObjInfo struct {
	Offset int64
}

// DeleteRefInfo is the extended info for an OpDeleteRef entry
// (original_source delref_info).
type DeleteRefInfo struct {
	PrevActiveIndex int64
	DelZero         bool // fileno-zero's data object(s) have been deleted
	EOS             bool // this delete makes PrevActiveIndex the new end of stream
}

// RebuildInfo is the extended info for an OpRebuild entry
// (original_source rebuild_info).
type RebuildInfo struct {
	MarkerPath string
	RTag       *ftag.FTAG // rebuild tag, when a marker was present
}

// RepackInfo is the extended info for an OpRepack entry
// (original_source repack_info).
type RepackInfo struct {
	TotalBytes int64
}

// OpInfo is one entry (or the head of a chain of entries) in a
// resourcelog: a typed operation against a specific FTAG target, plus
// whether this entry records the op's start or its completion
// (original_source logline.h's opinfo).
type OpInfo struct {
	Type         OperationType
	ExtendedInfo interface{} // one of *DeleteObjInfo / *DeleteRefInfo / *RebuildInfo / *RepackInfo
	Start        bool        // true: op starting; false: op completion
	Count        int64       // number of targets this entry covers
	ErrVal       error       // non-nil only on a completion entry
	FTAG         ftag.FTAG
	Next         *OpInfo
}

// Duplicate returns a deep copy of the chain starting at op (original_source
// resourcelog_dupopinfo). A nil op duplicates to nil.
func (op *OpInfo) Duplicate() *OpInfo {
	if op == nil {
		return nil
	}
	dup := &OpInfo{
		Type:         op.Type,
		ExtendedInfo: duplicateExtendedInfo(op.ExtendedInfo),
		Start:        op.Start,
		Count:        op.Count,
		ErrVal:       op.ErrVal,
		FTAG:         op.FTAG,
	}
	dup.Next = op.Next.Duplicate()
	return dup
}

func duplicateExtendedInfo(info interface{}) interface{} {
	switch v := info.(type) {
	case *DeleteObjInfo:
		cp := *v
		return &cp
	case *DeleteRefInfo:
		cp := *v
		return &cp
	case *RebuildInfo:
		cp := *v
		return &cp
	case *RepackInfo:
		cp := *v
		return &cp
	default:
		return nil
	}
}

// Len returns the number of entries in the chain starting at op.
func (op *OpInfo) Len() int {
	n := 0
	for cur := op; cur != nil; cur = cur.Next {
		n++
	}
	return n
}
