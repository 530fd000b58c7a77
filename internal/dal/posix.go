package dal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marfs-core/marfs/internal/ne"
)

func init() {
	Register(VariantPOSIX, func(cfg map[string]interface{}) (Backend, error) {
		root, _ := cfg["root"].(string)
		if root == "" {
			return nil, fmt.Errorf("dal/posix: config missing \"root\"")
		}
		return NewPosixBackend(root), nil
	})
}

// PosixBackend stores each block as a plain file under root, laid out
// by blockKey (repo/pod/cap/scatter/objid/blockN). This is the direct
// Go analogue of the original's default posix DAL (ne_path_init), and
// mirrors the teacher's local-filesystem storage.Engine variant
// referenced by internal/storage (the S3 backend's non-network sibling).
type PosixBackend struct {
	root string
}

func NewPosixBackend(root string) *PosixBackend {
	return &PosixBackend{root: root}
}

func (b *PosixBackend) path(key string) string { return filepath.Join(b.root, key) }

func (b *PosixBackend) OpenObject(ctx context.Context, loc Location) (ne.BlockStore, error) {
	return &posixBlockStore{backend: b, loc: loc}, nil
}

func (b *PosixBackend) DeleteObject(ctx context.Context, loc Location) error {
	dir := filepath.Dir(b.path(blockKey(loc, 0)))
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dal/posix: delete object %s: %w", loc.ObjID, err)
	}
	return nil
}

// UpdateObjectLocation for POSIX is the identity function: the path
// template is fully determined by loc's fields already.
func (b *PosixBackend) UpdateObjectLocation(ctx context.Context, loc Location) (Location, error) {
	return loc, nil
}

func (b *PosixBackend) Close() error { return nil }

type posixBlockStore struct {
	backend *PosixBackend
	loc     Location
}

func (s *posixBlockStore) OpenBlock(ctx context.Context, blockIdx int, isPut bool) (ne.BlockHandle, error) {
	dataPath := s.backend.path(blockKey(s.loc, blockIdx))
	metaPath := s.backend.path(metaKey(s.loc, blockIdx))

	if isPut {
		if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
			return nil, fmt.Errorf("dal/posix: mkdir for block %d: %w", blockIdx, err)
		}
		f, err := os.Create(dataPath)
		if err != nil {
			return nil, fmt.Errorf("dal/posix: create block %d: %w", blockIdx, err)
		}
		return &posixBlockHandle{file: f, metaPath: metaPath, isPut: true}, nil
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("dal/posix: open block %d: %w", blockIdx, err)
	}
	return &posixBlockHandle{file: f, metaPath: metaPath}, nil
}

func (s *posixBlockStore) DeleteBlock(ctx context.Context, blockIdx int) error {
	dataPath := s.backend.path(blockKey(s.loc, blockIdx))
	metaPath := s.backend.path(metaKey(s.loc, blockIdx))
	if err := os.Remove(dataPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dal/posix: delete block %d: %w", blockIdx, err)
	}
	_ = os.Remove(metaPath)
	return nil
}

type posixBlockHandle struct {
	file     *os.File
	metaPath string
	isPut    bool
	aborted  bool
}

func (h *posixBlockHandle) Write(p []byte) (int, error) { return h.file.Write(p) }
func (h *posixBlockHandle) Read(p []byte) (int, error)  { return h.file.Read(p) }

func (h *posixBlockHandle) Seek(offset int64, whence int) (int64, error) {
	return h.file.Seek(offset, whence)
}

func (h *posixBlockHandle) WriteMeta(m ne.BlockMeta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("dal/posix: marshal meta: %w", err)
	}
	return os.WriteFile(h.metaPath, data, 0o644)
}

func (h *posixBlockHandle) ReadMeta() (ne.BlockMeta, error) {
	data, err := os.ReadFile(h.metaPath)
	if err != nil {
		return ne.BlockMeta{}, fmt.Errorf("dal/posix: read meta: %w", err)
	}
	var m ne.BlockMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return ne.BlockMeta{}, fmt.Errorf("dal/posix: unmarshal meta: %w", err)
	}
	return m, nil
}

func (h *posixBlockHandle) Sync() error {
	if !h.isPut {
		return nil
	}
	return h.file.Sync()
}

func (h *posixBlockHandle) Abort() error {
	h.aborted = true
	name := h.file.Name()
	if err := h.file.Close(); err != nil {
		return err
	}
	if h.isPut {
		return os.Remove(name)
	}
	return nil
}

func (h *posixBlockHandle) Close() error {
	if h.aborted {
		return nil
	}
	return h.file.Close()
}

var _ io.ReadWriteSeeker = (*posixBlockHandle)(nil)
