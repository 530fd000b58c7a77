package ftag

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MultiChunkInfoSize is the fixed on-disk size of a MultiChunkInfo record,
// per spec.md §6: 2+2+8+8+8+8+8 = 44 bytes, with no struct padding.
const MultiChunkInfoSize = 44

// MultiChunkInfo describes one chunk of a MULTI (striped-across-objects)
// file, written into that file's MULTI metadata record.
type MultiChunkInfo struct {
	VersMajor      uint16
	VersMinor      uint16
	ChunkNo        uint64
	LogicalOffset  uint64
	ChunkDataBytes uint64
	CorrectInfo    uint64
	EncryptInfo    uint64
}

// Marshal encodes m into exactly MultiChunkInfoSize bytes, big-endian.
func (m MultiChunkInfo) Marshal() []byte {
	buf := make([]byte, MultiChunkInfoSize)
	binary.BigEndian.PutUint16(buf[0:2], m.VersMajor)
	binary.BigEndian.PutUint16(buf[2:4], m.VersMinor)
	binary.BigEndian.PutUint64(buf[4:12], m.ChunkNo)
	binary.BigEndian.PutUint64(buf[12:20], m.LogicalOffset)
	binary.BigEndian.PutUint64(buf[20:28], m.ChunkDataBytes)
	binary.BigEndian.PutUint64(buf[28:36], m.CorrectInfo)
	binary.BigEndian.PutUint64(buf[36:44], m.EncryptInfo)
	return buf
}

// UnmarshalMultiChunkInfo decodes a MultiChunkInfo record. Per spec.md §9
// Open Questions, readers on some platforms may see alignment-padded
// reads return more than MultiChunkInfoSize bytes; only the first
// MultiChunkInfoSize bytes are consumed here, and a short buffer is an
// error rather than silently zero-filled.
func UnmarshalMultiChunkInfo(data []byte) (MultiChunkInfo, error) {
	if len(data) < MultiChunkInfoSize {
		return MultiChunkInfo{}, fmt.Errorf("multichunkinfo: buffer too short: %d < %d", len(data), MultiChunkInfoSize)
	}
	r := bytes.NewReader(data[:MultiChunkInfoSize])
	var m MultiChunkInfo
	for _, dst := range []interface{}{
		&m.VersMajor, &m.VersMinor, &m.ChunkNo, &m.LogicalOffset,
		&m.ChunkDataBytes, &m.CorrectInfo, &m.EncryptInfo,
	} {
		if err := binary.Read(r, binary.BigEndian, dst); err != nil {
			return MultiChunkInfo{}, fmt.Errorf("multichunkinfo: decode: %w", err)
		}
	}
	return m, nil
}
