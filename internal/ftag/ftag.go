// Package ftag implements the per-file stream descriptor persisted as an
// xattr on every MarFS reference file (spec.md §3 FTAG, §6 FTAG xattr),
// plus the two binary wire formats that travel alongside object data: the
// per-object recovery-info trailer and the per-chunk MultiChunkInfo
// record written into MULTI metadata files.
//
// Serialization follows the teacher's explicit-field, no-struct-padding
// style (see internal/storage/s3 wire handling) rather than the original
// C implementation's snprintf/sscanf macros (spec.md §9: "define the wire
// format with explicit accessors ... fail parse on short buffers").
package ftag

import (
	"fmt"
	"strconv"
	"strings"
)

// State is the FTAG completion-state bitmask.
type State uint8

const (
	StateInitialized State = 1 << iota
	StateSized
	StateFinalized
	StateComplete
	StateReadable
	StateWritable
)

// FTAG is the per-file stream descriptor. Field names follow spec.md §3.
type FTAG struct {
	VersMajor uint32
	VersMinor uint32

	Ctag     string // client tag
	StreamID string

	ObjFiles int64 // files per object, shared across the stream
	ObjSize  int64 // bytes per object, shared across the stream

	RefBreadth int
	RefDepth   int
	RefDigits  int

	FileNo        int64
	ObjNo         int64
	OffsetInObj   int64
	EndOfStream   bool

	// Erasure parameters for the object(s) backing this file.
	N      int
	E      int
	O      int // starting data-block offset for this object
	PartSz int64

	Bytes          int64 // logical bytes
	AvailableBytes int64
	RecoveryBytes  int64

	State State
}

// HasState reports whether all bits of want are set.
func (f FTAG) HasState(want State) bool { return f.State&want == want }

const fieldSep = "|"

// String serializes f into the FTAG xattr text form. Fields are
// pipe-separated in a fixed order; Parse is the exact inverse.
func (f FTAG) String() string {
	fields := []string{
		fmt.Sprintf("%d.%d", f.VersMajor, f.VersMinor),
		f.Ctag,
		f.StreamID,
		strconv.FormatInt(f.ObjFiles, 10),
		strconv.FormatInt(f.ObjSize, 10),
		strconv.Itoa(f.RefBreadth),
		strconv.Itoa(f.RefDepth),
		strconv.Itoa(f.RefDigits),
		strconv.FormatInt(f.FileNo, 10),
		strconv.FormatInt(f.ObjNo, 10),
		strconv.FormatInt(f.OffsetInObj, 10),
		boolStr(f.EndOfStream),
		strconv.Itoa(f.N),
		strconv.Itoa(f.E),
		strconv.Itoa(f.O),
		strconv.FormatInt(f.PartSz, 10),
		strconv.FormatInt(f.Bytes, 10),
		strconv.FormatInt(f.AvailableBytes, 10),
		strconv.FormatInt(f.RecoveryBytes, 10),
		strconv.FormatUint(uint64(f.State), 10),
	}
	return strings.Join(fields, fieldSep)
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

const ftagFieldCount = 20

// Parse parses the FTAG xattr text form produced by String.
func Parse(s string) (FTAG, error) {
	parts := strings.Split(s, fieldSep)
	if len(parts) != ftagFieldCount {
		return FTAG{}, fmt.Errorf("ftag: expected %d fields, got %d", ftagFieldCount, len(parts))
	}

	var f FTAG
	verParts := strings.SplitN(parts[0], ".", 2)
	if len(verParts) != 2 {
		return FTAG{}, fmt.Errorf("ftag: malformed version %q", parts[0])
	}
	var err error
	if f.VersMajor, err = parseU32(verParts[0]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: major version: %w", err)
	}
	if f.VersMinor, err = parseU32(verParts[1]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: minor version: %w", err)
	}

	f.Ctag = parts[1]
	f.StreamID = parts[2]

	if f.ObjFiles, err = parseI64(parts[3]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: objfiles: %w", err)
	}
	if f.ObjSize, err = parseI64(parts[4]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: objsize: %w", err)
	}
	if f.RefBreadth, err = strconv.Atoi(parts[5]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: refbreadth: %w", err)
	}
	if f.RefDepth, err = strconv.Atoi(parts[6]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: refdepth: %w", err)
	}
	if f.RefDigits, err = strconv.Atoi(parts[7]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: refdigits: %w", err)
	}
	if f.FileNo, err = parseI64(parts[8]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: fileno: %w", err)
	}
	if f.ObjNo, err = parseI64(parts[9]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: objno: %w", err)
	}
	if f.OffsetInObj, err = parseI64(parts[10]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: offset: %w", err)
	}
	f.EndOfStream = parts[11] == "1"
	if f.N, err = strconv.Atoi(parts[12]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: N: %w", err)
	}
	if f.E, err = strconv.Atoi(parts[13]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: E: %w", err)
	}
	if f.O, err = strconv.Atoi(parts[14]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: O: %w", err)
	}
	if f.PartSz, err = parseI64(parts[15]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: partsz: %w", err)
	}
	if f.Bytes, err = parseI64(parts[16]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: bytes: %w", err)
	}
	if f.AvailableBytes, err = parseI64(parts[17]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: available: %w", err)
	}
	if f.RecoveryBytes, err = parseI64(parts[18]); err != nil {
		return FTAG{}, fmt.Errorf("ftag: recovery: %w", err)
	}
	stateVal, err := strconv.ParseUint(parts[19], 10, 8)
	if err != nil {
		return FTAG{}, fmt.Errorf("ftag: state: %w", err)
	}
	f.State = State(stateVal)
	return f, nil
}

func parseI64(s string) (int64, error)  { return strconv.ParseInt(s, 10, 64) }
func parseU32(s string) (uint32, error) { v, err := strconv.ParseUint(s, 10, 32); return uint32(v), err }
