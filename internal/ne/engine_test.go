package ne

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func deterministicPattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

// TestErasureRoundTrip is scenario 1: N=10 E=2 O=1 partsz=1024, write
// 8196*10 bytes, close, read all back, then seek(0) and read all back
// again; both reads must equal the written bytes, and close must report
// zero errored blocks.
func TestErasureRoundTrip(t *testing.T) {
	es := Erasure{N: 10, E: 2, O: 1, PartSz: 1024}
	store := newMemBlockStore()
	ctx := context.Background()

	data := deterministicPattern(8196 * 10)

	wh, err := OpenWrite(ctx, store, es, nil)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if _, err := wh.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := wh.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if info.ErroredBlocks != 0 {
		t.Fatalf("expected 0 errored blocks, got %d", info.ErroredBlocks)
	}

	rh, err := OpenRead(ctx, store, ModeRDONLY, es, nil)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	first, err := io.ReadAll(rh)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if !bytes.Equal(first, data) {
		t.Fatalf("first read mismatch: got %d bytes, want %d", len(first), len(data))
	}

	if _, err := rh.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seek(0): %v", err)
	}
	second, err := io.ReadAll(rh)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if !bytes.Equal(second, data) {
		t.Fatal("second read after seek(0) does not match first read")
	}
}

// TestRebuildAfterSingleBlockLoss is scenario 2: N=4 E=2, delete the
// file backing block 3, open RDALL returns the original data, rebuild
// rewrites block 3, and a post-rebuild GetInfo reports zero errors.
func TestRebuildAfterSingleBlockLoss(t *testing.T) {
	es := Erasure{N: 4, E: 2, O: 0, PartSz: 512}
	store := newMemBlockStore()
	ctx := context.Background()

	data := deterministicPattern(4 * 512 * 3) // three full stripes

	wh, err := OpenWrite(ctx, store, es, nil)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if _, err := wh.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := wh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := store.DeleteBlock(ctx, 3); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}

	rh, err := OpenRead(ctx, store, ModeRDALL, es, nil)
	if err != nil {
		t.Fatalf("OpenRead(RDALL): %v", err)
	}
	got, err := io.ReadAll(rh)
	if err != nil {
		t.Fatalf("read with block 3 missing: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("reconstructed read does not match original data")
	}
	if info := rh.GetInfo(); len(info.ErroredBlocks) != 1 || info.ErroredBlocks[0] != 3 {
		t.Fatalf("expected block 3 reported errored, got %v", info.ErroredBlocks)
	}

	reb, err := OpenRebuild(ctx, store, es, nil)
	if err != nil {
		t.Fatalf("OpenRebuild: %v", err)
	}
	remaining, err := reb.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 remaining errors after rebuild, got %d", remaining)
	}

	rh2, err := OpenRead(ctx, store, ModeRDALL, es, nil)
	if err != nil {
		t.Fatalf("post-rebuild OpenRead: %v", err)
	}
	if info := rh2.GetInfo(); len(info.ErroredBlocks) != 0 {
		t.Fatalf("post-rebuild GetInfo: expected no errors, got %v", info.ErroredBlocks)
	}
	got2, err := io.ReadAll(rh2)
	if err != nil {
		t.Fatalf("post-rebuild read: %v", err)
	}
	if !bytes.Equal(got2, data) {
		t.Fatal("post-rebuild read does not match original data")
	}
}

// TestNEIdempotenceAfterFault exercises the "NE idempotence" universal
// property across a fault that does not exceed E.
func TestNEIdempotenceAfterFault(t *testing.T) {
	es := Erasure{N: 6, E: 2, O: 0, PartSz: 256}
	store := newMemBlockStore()
	ctx := context.Background()
	data := deterministicPattern(6 * 256 * 5)

	wh, err := OpenWrite(ctx, store, es, nil)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if _, err := wh.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := wh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Fault two blocks, exactly E: still recoverable.
	if err := store.DeleteBlock(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteBlock(ctx, 5); err != nil {
		t.Fatal(err)
	}

	rh, err := OpenRead(ctx, store, ModeRDONLY, es, nil)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	got, err := io.ReadAll(rh)
	if err != nil {
		t.Fatalf("read after double fault: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read after double fault (== E) does not match original")
	}
}

// TestRebuildConvergence exercises "NE rebuild convergence": repeated
// rebuild calls strictly decrease the error count until zero.
func TestRebuildConvergence(t *testing.T) {
	es := Erasure{N: 4, E: 3, O: 0, PartSz: 128}
	store := newMemBlockStore()
	ctx := context.Background()
	data := deterministicPattern(4 * 128 * 2)

	wh, err := OpenWrite(ctx, store, es, nil)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if _, err := wh.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := wh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, b := range []int{0, 2} {
		if err := store.DeleteBlock(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	reb, err := OpenRebuild(ctx, store, es, nil)
	if err != nil {
		t.Fatalf("OpenRebuild: %v", err)
	}
	before := len(reb.GetInfo().ErroredBlocks)
	remaining, err := reb.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if remaining >= before {
		t.Fatalf("rebuild did not decrease error count: before=%d after=%d", before, remaining)
	}
	if remaining != 0 {
		t.Fatalf("expected full convergence to 0, got %d", remaining)
	}
}

// TestWriteFailsWhenTooManyBlocksFault verifies the MIN_PROTECTION
// boundary: close fails once faulted blocks exceed E-MinProtection.
func TestWriteFailsWhenTooManyBlocksFault(t *testing.T) {
	es := Erasure{N: 3, E: 1, O: 0, PartSz: 64}
	store := newMemBlockStore()
	ctx := context.Background()

	wh, err := OpenWrite(ctx, store, es, nil)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	// Simulate two dead blocks out of N+E=4 by forcibly marking them
	// failed, as if their opens had errored.
	wh.failed[0] = true
	wh.failed[1] = true

	// Keep the write short of a full stripe so the fault threshold is
	// only hit when Close() flushes the final partial stripe.
	if _, err := wh.Write(deterministicPattern(100)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := wh.Close(); err == nil {
		t.Fatal("expected Close to fail when faulted blocks exceed E-MinProtection")
	}
}
