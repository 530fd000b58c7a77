package ne

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// memBlockStore is an in-memory BlockStore used only by this package's
// tests, standing in for a posix/s3 DAL backend.
type memBlockStore struct {
	mu      sync.Mutex
	data    map[int][]byte
	meta    map[int]BlockMeta
	deleted map[int]bool
}

func newMemBlockStore() *memBlockStore {
	return &memBlockStore{
		data:    make(map[int][]byte),
		meta:    make(map[int]BlockMeta),
		deleted: make(map[int]bool),
	}
}

func (s *memBlockStore) OpenBlock(ctx context.Context, blockIdx int, isPut bool) (BlockHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isPut {
		return &memBlockHandle{store: s, idx: blockIdx, isPut: true}, nil
	}
	if s.deleted[blockIdx] {
		return nil, fmt.Errorf("memstore: block %d does not exist", blockIdx)
	}
	content, ok := s.data[blockIdx]
	if !ok {
		return nil, fmt.Errorf("memstore: block %d has no data", blockIdx)
	}
	cp := make([]byte, len(content))
	copy(cp, content)
	return &memBlockHandle{store: s, idx: blockIdx, content: cp}, nil
}

func (s *memBlockStore) DeleteBlock(ctx context.Context, blockIdx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, blockIdx)
	delete(s.meta, blockIdx)
	s.deleted[blockIdx] = true
	return nil
}

type memBlockHandle struct {
	store   *memBlockStore
	idx     int
	isPut   bool
	content []byte
	pos     int
}

func (h *memBlockHandle) Write(p []byte) (int, error) {
	h.content = append(h.content, p...)
	return len(p), nil
}

func (h *memBlockHandle) Read(p []byte) (int, error) {
	if h.pos >= len(h.content) {
		return 0, io.EOF
	}
	n := copy(p, h.content[h.pos:])
	h.pos += n
	return n, nil
}

func (h *memBlockHandle) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = int64(h.pos) + offset
	case io.SeekEnd:
		target = int64(len(h.content)) + offset
	}
	if target < 0 {
		return 0, fmt.Errorf("memstore: negative seek")
	}
	h.pos = int(target)
	return target, nil
}

func (h *memBlockHandle) WriteMeta(m BlockMeta) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.meta[h.idx] = m
	return nil
}

func (h *memBlockHandle) ReadMeta() (BlockMeta, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	m, ok := h.store.meta[h.idx]
	if !ok {
		return BlockMeta{}, fmt.Errorf("memstore: block %d has no meta", h.idx)
	}
	return m, nil
}

func (h *memBlockHandle) Sync() error { return nil }

func (h *memBlockHandle) Abort() error {
	h.content = nil
	return nil
}

func (h *memBlockHandle) Close() error {
	if h.isPut {
		h.store.mu.Lock()
		h.store.data[h.idx] = h.content
		delete(h.store.deleted, h.idx)
		h.store.mu.Unlock()
	}
	return nil
}
