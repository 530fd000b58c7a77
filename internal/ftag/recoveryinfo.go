package ftag

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// RecoveryInfo is the fixed binary trailer appended to each object (spec.md
// §3, §6). Network byte order, fixed fields followed by NUL-terminated
// strings, with a trailing big-endian u64 total length for reverse
// parsing during recovery.
type RecoveryInfo struct {
	VersMajor uint16
	VersMinor uint16
	Inode     uint64
	Mode      uint32
	UID       uint32
	GID       uint32
	Mtime     uint64
	Ctime     uint64

	MDFSPath  string
	PreXattr  string
	PostXattr string
}

// Marshal encodes r into its wire form, appending the trailing length field.
func (r RecoveryInfo) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	fixed := []interface{}{r.VersMajor, r.VersMinor, r.Inode, r.Mode, r.UID, r.GID, r.Mtime, r.Ctime}
	for _, f := range fixed {
		if err := binary.Write(&buf, binary.BigEndian, f); err != nil {
			return nil, fmt.Errorf("recoveryinfo: encode fixed fields: %w", err)
		}
	}
	for _, s := range []string{r.MDFSPath, r.PreXattr, r.PostXattr} {
		buf.WriteString(s)
		buf.WriteByte(0)
	}

	total := uint64(buf.Len()) + 8
	if err := binary.Write(&buf, binary.BigEndian, total); err != nil {
		return nil, fmt.Errorf("recoveryinfo: encode trailing length: %w", err)
	}
	return buf.Bytes(), nil
}

const recoveryInfoFixedLen = 2 + 2 + 8 + 4 + 4 + 4 + 8 + 8 // 40 bytes

// MinRecoveryInfoSize is the smallest a marshaled RecoveryInfo trailer
// can ever be: the fixed fields, three empty NUL-terminated strings, and
// the trailing 8-byte length (original_source's MARFS_REC_UNI_SIZE — the
// floor a repo's chunk_size must clear so a uni-object write always has
// room for its own trailer).
const MinRecoveryInfoSize = recoveryInfoFixedLen + 3 + 8

// UnmarshalRecoveryInfo decodes a RecoveryInfo trailer from data, which
// must contain (at minimum) the fixed fields, three NUL-terminated
// strings, and the trailing 8-byte length. ParseFromTail should be
// preferred when scanning backward from an object's end; this function
// assumes data begins exactly at the trailer's start.
func UnmarshalRecoveryInfo(data []byte) (RecoveryInfo, error) {
	if len(data) < recoveryInfoFixedLen+8 {
		return RecoveryInfo{}, fmt.Errorf("recoveryinfo: buffer too short (%d bytes)", len(data))
	}
	r := RecoveryInfo{}
	rdr := bytes.NewReader(data[:recoveryInfoFixedLen])
	for _, dst := range []interface{}{&r.VersMajor, &r.VersMinor, &r.Inode, &r.Mode, &r.UID, &r.GID, &r.Mtime, &r.Ctime} {
		if err := binary.Read(rdr, binary.BigEndian, dst); err != nil {
			return RecoveryInfo{}, fmt.Errorf("recoveryinfo: decode fixed fields: %w", err)
		}
	}

	rest := data[recoveryInfoFixedLen:]
	strs, consumed, err := readNulStrings(rest, 3)
	if err != nil {
		return RecoveryInfo{}, err
	}
	r.MDFSPath, r.PreXattr, r.PostXattr = strs[0], strs[1], strs[2]

	tailStart := recoveryInfoFixedLen + consumed
	if len(data) < tailStart+8 {
		return RecoveryInfo{}, fmt.Errorf("recoveryinfo: missing trailing length field")
	}
	total := binary.BigEndian.Uint64(data[tailStart : tailStart+8])
	if total != uint64(tailStart+8) {
		return RecoveryInfo{}, fmt.Errorf("recoveryinfo: corrupt trailer: length field %d != actual %d", total, tailStart+8)
	}
	return r, nil
}

// ParseFromTail locates and decodes a RecoveryInfo trailer at the very end
// of objectData, using the trailing length field to find the trailer's
// start without needing to know its size in advance.
func ParseFromTail(objectData []byte) (RecoveryInfo, error) {
	if len(objectData) < 8 {
		return RecoveryInfo{}, fmt.Errorf("recoveryinfo: object too short to contain a trailer")
	}
	total := binary.BigEndian.Uint64(objectData[len(objectData)-8:])
	if total < 8 || int(total) > len(objectData) {
		return RecoveryInfo{}, fmt.Errorf("recoveryinfo: corrupt trailing length %d for object of %d bytes", total, len(objectData))
	}
	start := len(objectData) - int(total)
	return UnmarshalRecoveryInfo(objectData[start:])
}

func readNulStrings(data []byte, n int) ([]string, int, error) {
	out := make([]string, 0, n)
	offset := 0
	for i := 0; i < n; i++ {
		idx := bytes.IndexByte(data[offset:], 0)
		if idx < 0 {
			return nil, 0, fmt.Errorf("recoveryinfo: missing NUL terminator for string %d", i)
		}
		out = append(out, string(data[offset:offset+idx]))
		offset += idx + 1
	}
	return out, offset, nil
}
