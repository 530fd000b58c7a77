package ftag

import "testing"

func sampleFTAG() FTAG {
	return FTAG{
		VersMajor: 1, VersMinor: 2,
		Ctag: "client-9", StreamID: "stream-abc123",
		ObjFiles: 4096, ObjSize: 1 << 30,
		RefBreadth: 16, RefDepth: 3, RefDigits: 4,
		FileNo: 7, ObjNo: 1, OffsetInObj: 4096,
		EndOfStream: true,
		N: 10, E: 2, O: 0, PartSz: 1024,
		Bytes: 123456, AvailableBytes: 123456, RecoveryBytes: 256,
		State: StateInitialized | StateSized | StateComplete,
	}
}

func TestFTAGRoundTrip(t *testing.T) {
	f := sampleFTAG()
	s := f.String()
	got, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != f {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, f)
	}
}

func TestFTAGParseRejectsWrongFieldCount(t *testing.T) {
	if _, err := Parse("1.0|a|b"); err == nil {
		t.Fatal("expected error for truncated FTAG string")
	}
}

func TestFTAGHasState(t *testing.T) {
	f := sampleFTAG()
	if !f.HasState(StateInitialized | StateSized) {
		t.Error("expected HasState to report both set bits present")
	}
	if f.HasState(StateWritable) {
		t.Error("StateWritable should not be set")
	}
}

func TestObjectIDRoundTrip(t *testing.T) {
	cases := []ObjectID{
		{
			Bucket: "ns-alias", Repo: "repo1", VersMajor: 1, VersMinor: 0,
			NS: "ns1", Type: ObjTypeUni, Compression: "0", Correction: "0", Encryption: "0",
			Inode: 0xdeadbeef, MDCtime: 1700000000, ObjCtime: 1700000005,
			Unique: 42, ChunkSize: 1 << 20, ChunkNo: 0,
		},
		{
			Bucket: "other", Repo: "repo2", VersMajor: 1, VersMinor: 3,
			NS: "deep-ns", Type: ObjTypePacked, Compression: "z", Correction: "c", Encryption: "e",
			Inode: 1, MDCtime: 0, ObjCtime: 0, Unique: 0, ChunkSize: 4096, ChunkNo: 9,
		},
	}
	for _, id := range cases {
		s := id.String()
		got, err := ParseObjectID(s)
		if err != nil {
			t.Fatalf("ParseObjectID(%q): %v", s, err)
		}
		if got != id {
			t.Fatalf("round trip mismatch for %q:\n got  %+v\n want %+v", s, got, id)
		}
		if got.String() != s {
			t.Fatalf("construct(parse(id)) != id: %q vs %q", got.String(), s)
		}
	}
}

func TestObjectIDValidVersion(t *testing.T) {
	id := ObjectID{VersMajor: 1, VersMinor: 2}
	if !id.ValidVersion(1, 5) {
		t.Error("expected version 1.2 to be valid against config 1.5")
	}
	if id.ValidVersion(1, 1) {
		t.Error("expected version 1.2 to be invalid against config 1.1")
	}
	if id.ValidVersion(2, 2) {
		t.Error("expected major-version mismatch to be invalid")
	}
}

func TestRecoveryInfoRoundTrip(t *testing.T) {
	r := RecoveryInfo{
		VersMajor: 1, VersMinor: 0,
		Inode: 123456, Mode: 0o100644, UID: 1000, GID: 1000,
		Mtime: 1700000000, Ctime: 1700000001,
		MDFSPath:  "/marfs/ns1/path/to/file",
		PreXattr:  "pre-xattr-blob",
		PostXattr: "post-xattr-blob",
	}
	data, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := UnmarshalRecoveryInfo(data)
	if err != nil {
		t.Fatalf("UnmarshalRecoveryInfo: %v", err)
	}
	if got != r {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, r)
	}

	// Simulate reverse-parsing from the tail of an object.
	object := append([]byte("fake erasure-coded object payload..."), data...)
	got2, err := ParseFromTail(object)
	if err != nil {
		t.Fatalf("ParseFromTail: %v", err)
	}
	if got2 != r {
		t.Fatalf("ParseFromTail mismatch:\n got  %+v\n want %+v", got2, r)
	}
}

func TestMultiChunkInfoRoundTrip(t *testing.T) {
	m := MultiChunkInfo{
		VersMajor: 1, VersMinor: 0,
		ChunkNo: 3, LogicalOffset: 1 << 20, ChunkDataBytes: 4096,
		CorrectInfo: 0, EncryptInfo: 0,
	}
	data := m.Marshal()
	if len(data) != MultiChunkInfoSize {
		t.Fatalf("Marshal produced %d bytes, want %d", len(data), MultiChunkInfoSize)
	}
	got, err := UnmarshalMultiChunkInfo(data)
	if err != nil {
		t.Fatalf("UnmarshalMultiChunkInfo: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, m)
	}
}

func TestMultiChunkInfoTruncatedBuffer(t *testing.T) {
	if _, err := UnmarshalMultiChunkInfo(make([]byte, MultiChunkInfoSize-1)); err == nil {
		t.Fatal("expected error for truncated buffer")
	}
}
