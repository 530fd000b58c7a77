package ne

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/marfs-core/marfs/pkg/merrors"
)

// Mode selects how a Handle drives its blocks (spec.md §4.2, mirroring
// ne_mode in original_source/src/ne/ne.h).
type Mode int

const (
	ModeRDONLY  Mode = iota + 1 // read data, reconstruct only on fault
	ModeRDALL                   // read + verify every block regardless of state
	ModeWRALL                   // write a new stripe
	ModeREBUILD                 // repair an existing object in place
)

// MinProtection is the number of blocks of parity protection a write must
// keep: a write fails once more than E-MinProtection blocks have faulted.
const MinProtection = 1

// MinMDConsensus is the number of blocks' meta files that must agree on
// (N, E) before the shape of an object is trusted.
const MinMDConsensus = 2

// Erasure describes one object's stripe shape.
type Erasure struct {
	N      int
	E      int
	O      int // rotation offset: logical block i maps to physical (i+O) mod (N+E)
	PartSz int64
}

func (es Erasure) total() int { return es.N + es.E }

func (es Erasure) physical(logical int) int {
	t := es.total()
	return ((logical+es.O)%t + t) % t
}

// CloseInfo reports the outcome of closing a write handle.
type CloseInfo struct {
	ErroredBlocks int
	TotalWritten  int64
}

// Info reports the discoverable state of an object, per ne_status / STAT
// mode.
type Info struct {
	Erasure
	TotSz         int64
	ErroredBlocks []int
}

// Handle drives one NE object through its whole open/read-or-write/close
// lifecycle. A single Handle is not safe for concurrent use; the shared
// mutex mu only serializes the erasure-math routines across Handles in
// the same process (spec.md §4.2 concurrency note).
type Handle struct {
	store BlockStore
	mode  Mode
	mu    *sync.Mutex
	es    Erasure
	enc   *encoder

	blocks []BlockHandle // len N+E, logical index; nil if never opened
	failed []bool        // len N+E, logical index

	// write state
	stripeData [][]byte // len N, each PartSz bytes
	stripeFill int64    // bytes filled into the not-yet-flushed stripe
	written    int64
	stripeIdx  int64

	// read state
	totsz        int64
	blockSz      int64
	curStripe    [][]byte // decoded [0:N) shards of the cached stripe
	curStripeIdx int64
	curValid     bool
	offset       int64

	closed bool
}

func sharedMutex(mu *sync.Mutex) *sync.Mutex {
	if mu != nil {
		return mu
	}
	return &sync.Mutex{}
}

// OpenWrite allocates per-block contexts and begins a new WRALL stream.
func OpenWrite(ctx context.Context, store BlockStore, es Erasure, mu *sync.Mutex) (*Handle, error) {
	if es.N <= 0 || es.E < 0 || es.PartSz <= 0 {
		return nil, fmt.Errorf("ne: invalid erasure shape %+v", es)
	}
	enc, err := newEncoder(es.N, es.E)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		store:  store,
		mode:   ModeWRALL,
		mu:     sharedMutex(mu),
		es:     es,
		enc:    enc,
		blocks: make([]BlockHandle, es.total()),
		failed: make([]bool, es.total()),
	}
	for i := 0; i < es.total(); i++ {
		bh, err := store.OpenBlock(ctx, es.physical(i), true)
		if err != nil {
			h.failed[i] = true
			continue
		}
		h.blocks[i] = bh
	}
	if faultCount(h.failed) > es.E-MinProtection {
		return nil, merrors.New(merrors.CodeStripeUnrecoverable, "too many blocks failed to open for write").
			WithComponent("ne").WithOperation("open_write")
	}
	h.resetStripeBuffers()
	return h, nil
}

func (h *Handle) resetStripeBuffers() {
	h.stripeData = make([][]byte, h.es.N)
	for i := range h.stripeData {
		h.stripeData[i] = make([]byte, h.es.PartSz)
	}
	h.stripeFill = 0
}

func faultCount(failed []bool) int {
	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	return n
}

// Write implements io.Writer, filling the current stripe and flushing
// full stripes through the erasure encoder as they complete.
func (h *Handle) Write(p []byte) (int, error) {
	if h.mode != ModeWRALL {
		return 0, fmt.Errorf("ne: write called on non-WRALL handle")
	}
	if h.closed {
		return 0, merrors.New(merrors.CodeHandleClosed, "write on closed handle").WithComponent("ne")
	}
	total := 0
	stripeBytes := int64(h.es.N) * h.es.PartSz
	for len(p) > 0 {
		capLeft := stripeBytes - h.stripeFill
		take := int64(len(p))
		if take > capLeft {
			take = capLeft
		}
		h.copyIntoStripe(h.stripeFill, p[:take])
		h.stripeFill += take
		h.written += take
		p = p[take:]
		total += int(take)
		if h.stripeFill == stripeBytes {
			if err := h.flushStripe(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (h *Handle) copyIntoStripe(stripeOffset int64, p []byte) {
	for len(p) > 0 {
		shardIdx := stripeOffset / h.es.PartSz
		shardOff := stripeOffset % h.es.PartSz
		n := copy(h.stripeData[shardIdx][shardOff:], p)
		p = p[n:]
		stripeOffset += int64(n)
	}
}

// flushStripe encodes the current data shards and writes all N+E shards
// to their (still-live) blocks, isolating any per-block write failure.
func (h *Handle) flushStripe() error {
	shards := make([][]byte, h.es.total())
	copy(shards, h.stripeData)
	for i := h.es.N; i < h.es.total(); i++ {
		shards[i] = make([]byte, h.es.PartSz)
	}

	h.mu.Lock()
	err := h.enc.encode(shards)
	h.mu.Unlock()
	if err != nil {
		return err
	}

	for i := 0; i < h.es.total(); i++ {
		if h.failed[i] || h.blocks[i] == nil {
			h.failed[i] = true
			continue
		}
		if _, err := h.blocks[i].Write(shards[i]); err != nil {
			h.failed[i] = true
		}
	}
	if faultCount(h.failed) > h.es.E-MinProtection {
		return merrors.New(merrors.CodeStripeUnrecoverable, "too many blocks faulted during write").
			WithComponent("ne").WithOperation("flush_stripe")
	}
	h.stripeIdx++
	h.resetStripeBuffers()
	return nil
}

// WriteRecoveryInfo appends the marshaled trailer as ordinary stream
// bytes, so it is protected by parity exactly like the rest of the
// object's data (spec.md §4.2: "Close appends recovery-info").
func (h *Handle) WriteRecoveryInfo(data []byte) error {
	_, err := h.Write(data)
	return err
}

// Close finalizes a write handle: pads and flushes any partial final
// stripe, writes the meta file to every surviving block, and closes
// them. Fails if more than E-MinProtection blocks faulted.
func (h *Handle) Close() (CloseInfo, error) {
	if h.mode != ModeWRALL {
		return CloseInfo{}, fmt.Errorf("ne: close(write) called on non-WRALL handle")
	}
	if h.closed {
		return CloseInfo{}, merrors.New(merrors.CodeHandleClosed, "double close").WithComponent("ne")
	}
	if h.stripeFill > 0 {
		if err := h.flushStripe(); err != nil {
			return CloseInfo{}, err
		}
	}
	faulted := faultCount(h.failed)
	if faulted > h.es.E-MinProtection {
		return CloseInfo{ErroredBlocks: faulted, TotalWritten: h.written},
			merrors.New(merrors.CodeStripeUnrecoverable, "write close: insufficient surviving blocks").
				WithComponent("ne").WithOperation("close")
	}
	meta := BlockMeta{
		VerSz:   h.written,
		BlockSz: h.stripeIdx * h.es.PartSz,
		TotSz:   h.written,
		N:       h.es.N,
		E:       h.es.E,
		O:       h.es.O,
		PartSz:  h.es.PartSz,
	}
	for i := 0; i < h.es.total(); i++ {
		if h.failed[i] || h.blocks[i] == nil {
			continue
		}
		if err := h.blocks[i].WriteMeta(meta); err != nil {
			h.failed[i] = true
			continue
		}
		if err := h.blocks[i].Sync(); err != nil {
			h.failed[i] = true
			continue
		}
		_ = h.blocks[i].Close()
	}
	h.closed = true
	return CloseInfo{ErroredBlocks: faultCount(h.failed), TotalWritten: h.written}, nil
}

// Abort cancels a write in progress, leaving no persistent object.
func (h *Handle) Abort() error {
	if h.mode != ModeWRALL || h.closed {
		return fmt.Errorf("ne: abort called on non-open write handle")
	}
	for i, bh := range h.blocks {
		if bh == nil {
			continue
		}
		if err := bh.Abort(); err != nil {
			h.failed[i] = true
		}
	}
	h.closed = true
	return nil
}

// OpenRead opens an existing object for reading under RDONLY or RDALL.
// The caller supplies the erasure shape (from namespace config or a
// prior Stat), matching spec.md's "open all N+E blocks' meta" protocol.
func OpenRead(ctx context.Context, store BlockStore, mode Mode, es Erasure, mu *sync.Mutex) (*Handle, error) {
	if mode != ModeRDONLY && mode != ModeRDALL {
		return nil, fmt.Errorf("ne: OpenRead requires RDONLY or RDALL, got %v", mode)
	}
	enc, err := newEncoder(es.N, es.E)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		store:  store,
		mode:   mode,
		mu:     sharedMutex(mu),
		es:     es,
		enc:    enc,
		blocks: make([]BlockHandle, es.total()),
		failed: make([]bool, es.total()),
	}
	var agreeing int
	var consensusMeta BlockMeta
	haveConsensus := false
	for i := 0; i < es.total(); i++ {
		bh, err := store.OpenBlock(ctx, es.physical(i), false)
		if err != nil {
			h.failed[i] = true
			continue
		}
		h.blocks[i] = bh
		meta, err := bh.ReadMeta()
		if err != nil {
			h.failed[i] = true
			continue
		}
		if meta.N != es.N || meta.E != es.E {
			h.failed[i] = true
			continue
		}
		if !haveConsensus {
			consensusMeta = meta
			haveConsensus = true
			agreeing = 1
		} else if meta.Consensus(consensusMeta) {
			agreeing++
		}
	}
	if agreeing < MinMDConsensus {
		return nil, merrors.New(merrors.CodeCorruptRecoveryInfo, "fewer than MinMDConsensus blocks agree on stripe shape").
			WithComponent("ne").WithOperation("open_read")
	}
	h.totsz = consensusMeta.TotSz
	h.blockSz = consensusMeta.BlockSz
	return h, nil
}

func (h *Handle) numStripes() int64 {
	if h.es.PartSz == 0 {
		return 0
	}
	n := h.blockSz / h.es.PartSz
	if h.blockSz%h.es.PartSz != 0 {
		n++
	}
	return n
}

// readFullStripeShards returns all N+E shards for stripe idx, reconstructing
// any that failed to read, in memory only (no writeback — see Rebuild).
func (h *Handle) readFullStripeShards(idx int64) ([][]byte, error) {
	shards := make([][]byte, h.es.total())
	byteOff := idx * h.es.PartSz
	for i := 0; i < h.es.total(); i++ {
		if h.failed[i] || h.blocks[i] == nil {
			shards[i] = nil
			continue
		}
		if h.mode == ModeRDONLY && i >= h.es.N {
			// RDONLY leaves parity blocks unread unless needed;
			// they are filled in below only if a data shard is missing.
			shards[i] = nil
			continue
		}
		if _, err := h.blocks[i].Seek(byteOff, io.SeekStart); err != nil {
			h.failed[i] = true
			shards[i] = nil
			continue
		}
		buf := make([]byte, h.es.PartSz)
		if _, err := io.ReadFull(h.blocks[i], buf); err != nil {
			h.failed[i] = true
			shards[i] = nil
			continue
		}
		shards[i] = buf
	}

	missingData := false
	for i := 0; i < h.es.N; i++ {
		if shards[i] == nil {
			missingData = true
			break
		}
	}
	if missingData && h.mode == ModeRDONLY {
		// lazily bring in parity shards to attempt reconstruction
		for i := h.es.N; i < h.es.total(); i++ {
			if h.failed[i] || h.blocks[i] == nil || shards[i] != nil {
				continue
			}
			if _, err := h.blocks[i].Seek(byteOff, io.SeekStart); err != nil {
				h.failed[i] = true
				continue
			}
			buf := make([]byte, h.es.PartSz)
			if _, err := io.ReadFull(h.blocks[i], buf); err != nil {
				h.failed[i] = true
				continue
			}
			shards[i] = buf
		}
	}

	h.mu.Lock()
	err := h.enc.reconstruct(shards)
	h.mu.Unlock()
	if err != nil {
		return nil, merrors.Wrap(merrors.CodeStripeUnrecoverable, err, "stripe unrecoverable").
			WithComponent("ne").WithOperation("read_stripe")
	}

	if h.mode == ModeRDALL {
		allPresent := true
		for _, s := range shards {
			if s == nil {
				allPresent = false
				break
			}
		}
		if allPresent {
			ok, verr := h.enc.verify(shards)
			if verr != nil {
				return nil, verr
			}
			if !ok {
				return nil, merrors.New(merrors.CodeBlockCRCMismatch, "stripe failed RDALL verification").
					WithComponent("ne").WithOperation("read_stripe")
			}
		}
	}
	return shards, nil
}

func (h *Handle) loadStripe(idx int64) error {
	shards, err := h.readFullStripeShards(idx)
	if err != nil {
		return err
	}
	h.curStripe = shards[:h.es.N]
	h.curStripeIdx = idx
	h.curValid = true
	return nil
}

// Read implements io.Reader over the logical (pre-padding) byte stream.
func (h *Handle) Read(p []byte) (int, error) {
	if h.mode != ModeRDONLY && h.mode != ModeRDALL {
		return 0, fmt.Errorf("ne: read called on non-read handle")
	}
	if h.offset >= h.totsz {
		return 0, io.EOF
	}
	stripeBytes := int64(h.es.N) * h.es.PartSz
	idx := h.offset / stripeBytes
	if !h.curValid || h.curStripeIdx != idx {
		if err := h.loadStripe(idx); err != nil {
			return 0, err
		}
	}
	withinStripe := h.offset % stripeBytes
	shardIdx := withinStripe / h.es.PartSz
	shardOff := withinStripe % h.es.PartSz

	total := 0
	for total < len(p) && h.offset < h.totsz {
		if shardIdx >= int64(h.es.N) {
			idx++
			if err := h.loadStripe(idx); err != nil {
				return total, err
			}
			shardIdx = 0
			shardOff = 0
		}
		avail := h.es.PartSz - shardOff
		remaining := h.totsz - h.offset
		if avail > remaining {
			avail = remaining
		}
		want := int64(len(p) - total)
		if avail > want {
			avail = want
		}
		n := copy(p[total:], h.curStripe[shardIdx][shardOff:shardOff+avail])
		total += n
		h.offset += int64(n)
		shardOff += int64(n)
		if shardOff == h.es.PartSz {
			shardIdx++
			shardOff = 0
		}
	}
	return total, nil
}

// Seek repositions the logical read offset. Unaligned seeks simply
// invalidate the cached stripe; the next Read re-reads the containing
// stripe from its blocks.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = h.offset + offset
	case io.SeekEnd:
		target = h.totsz + offset
	default:
		return 0, fmt.Errorf("ne: invalid whence %d", whence)
	}
	if target < 0 || target > h.totsz {
		return 0, fmt.Errorf("ne: seek out of range: %d", target)
	}
	h.offset = target
	return h.offset, nil
}

// GetInfo reports the current block-failure state of the handle.
func (h *Handle) GetInfo() Info {
	var errored []int
	for i, f := range h.failed {
		if f {
			errored = append(errored, i)
		}
	}
	return Info{Erasure: h.es, TotSz: h.totsz, ErroredBlocks: errored}
}

// CloseRead closes all open read blocks.
func (h *Handle) CloseRead() error {
	for _, bh := range h.blocks {
		if bh != nil {
			_ = bh.Close()
		}
	}
	h.closed = true
	return nil
}

// OpenRebuild opens an object whose shape is already known for repair:
// every stripe is decoded (reconstructing as needed) and any block that
// failed to open or read is rewritten from scratch.
func OpenRebuild(ctx context.Context, store BlockStore, es Erasure, mu *sync.Mutex) (*Handle, error) {
	h, err := OpenRead(ctx, store, ModeRDALL, es, mu)
	if err != nil {
		return nil, err
	}
	h.mode = ModeREBUILD
	return h, nil
}

// Rebuild decodes every stripe and rewrites blocks that were marked
// failed at open time. It returns the count of blocks that remain
// uncorrected: zero on full success, or a positive count (with an
// unrecoverable error) when more than E blocks faulted.
func (h *Handle) Rebuild(ctx context.Context) (int, error) {
	if h.mode != ModeREBUILD {
		return 0, fmt.Errorf("ne: rebuild called on non-REBUILD handle")
	}
	var targets []int
	for i, f := range h.failed {
		if f {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}
	if len(targets) > h.es.E {
		return len(targets), merrors.New(merrors.CodeStripeUnrecoverable, "more than E blocks faulted, object unrecoverable").
			WithComponent("ne").WithOperation("rebuild")
	}

	writers := make(map[int]BlockHandle, len(targets))
	for _, i := range targets {
		bh, err := h.store.OpenBlock(ctx, h.es.physical(i), true)
		if err != nil {
			return len(targets), fmt.Errorf("ne: rebuild: reopen block %d for write: %w", i, err)
		}
		writers[i] = bh
	}

	numStripes := h.numStripes()
	for idx := int64(0); idx < numStripes; idx++ {
		shards, err := h.readFullStripeShards(idx)
		if err != nil {
			for _, w := range writers {
				_ = w.Abort()
			}
			return len(targets), err
		}
		for _, i := range targets {
			if _, err := writers[i].Write(shards[i]); err != nil {
				for _, w := range writers {
					_ = w.Abort()
				}
				return len(targets), fmt.Errorf("ne: rebuild: write block %d: %w", i, err)
			}
		}
	}

	meta := BlockMeta{
		VerSz: h.totsz, BlockSz: h.blockSz, TotSz: h.totsz,
		N: h.es.N, E: h.es.E, O: h.es.O, PartSz: h.es.PartSz,
	}
	for _, i := range targets {
		if err := writers[i].WriteMeta(meta); err != nil {
			return len(targets), fmt.Errorf("ne: rebuild: write meta for block %d: %w", i, err)
		}
		_ = writers[i].Sync()
		_ = writers[i].Close()
		h.failed[i] = false
	}
	return 0, nil
}
