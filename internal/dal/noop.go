package dal

import (
	"context"
	"io"

	"github.com/marfs-core/marfs/internal/ne"
)

func init() {
	Register(VariantNOOP, func(cfg map[string]interface{}) (Backend, error) {
		return &NoopBackend{}, nil
	})
}

// NoopBackend discards writes and returns EOF on reads. It exists for
// throughput benchmarking and dry-run config validation (spec.md §4.3
// lists NOOP alongside the other DAL variants), matching the teacher's
// pattern of a null backend used by cmd/verifyconf-style tooling to
// exercise the write path without touching real storage.
type NoopBackend struct{}

func (b *NoopBackend) OpenObject(ctx context.Context, loc Location) (ne.BlockStore, error) {
	return &noopBlockStore{}, nil
}

func (b *NoopBackend) DeleteObject(ctx context.Context, loc Location) error { return nil }

func (b *NoopBackend) UpdateObjectLocation(ctx context.Context, loc Location) (Location, error) {
	return loc, nil
}

func (b *NoopBackend) Close() error { return nil }

type noopBlockStore struct{}

func (s *noopBlockStore) OpenBlock(ctx context.Context, blockIdx int, isPut bool) (ne.BlockHandle, error) {
	return &noopBlockHandle{}, nil
}

func (s *noopBlockStore) DeleteBlock(ctx context.Context, blockIdx int) error { return nil }

type noopBlockHandle struct {
	meta ne.BlockMeta
}

func (h *noopBlockHandle) Write(p []byte) (int, error) { return len(p), nil }
func (h *noopBlockHandle) Read(p []byte) (int, error)  { return 0, io.EOF }
func (h *noopBlockHandle) Seek(offset int64, whence int) (int64, error) {
	return offset, nil
}
func (h *noopBlockHandle) WriteMeta(m ne.BlockMeta) error { h.meta = m; return nil }
func (h *noopBlockHandle) ReadMeta() (ne.BlockMeta, error) { return h.meta, nil }
func (h *noopBlockHandle) Sync() error                     { return nil }
func (h *noopBlockHandle) Abort() error                    { return nil }
func (h *noopBlockHandle) Close() error                    { return nil }
