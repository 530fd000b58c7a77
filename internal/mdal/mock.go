package mdal

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockMDAL is an in-memory MDAL for unit tests that don't need a real
// filesystem, grounded on the teacher's in-memory test doubles for
// FilesystemInterface (internal/filesystem tests use a similar map-backed
// fake). Not safe for concurrent use beyond the coarse mutex below, which
// is all package tests require.
type MockMDAL struct {
	mu      sync.Mutex
	files   map[string]*mockFile
	xattrs  map[string]map[string][]byte
	symlink map[string]string
}

type mockFile struct {
	data []byte
	mode os.FileMode
	dir  bool
}

func NewMockMDAL() *MockMDAL {
	return &MockMDAL{
		files:   map[string]*mockFile{"/": {dir: true, mode: os.ModeDir | 0755}},
		xattrs:  map[string]map[string][]byte{},
		symlink: map[string]string{},
	}
}

func (m *MockMDAL) Open(ctx context.Context, path string, flags int, mode os.FileMode) (FileHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		if flags&os.O_CREATE == 0 {
			return nil, fmt.Errorf("mdal/mock: open %s: %w", path, os.ErrNotExist)
		}
		f = &mockFile{mode: mode}
		m.files[path] = f
	}
	if flags&os.O_TRUNC != 0 {
		f.data = nil
	}
	return &mockFileHandle{owner: m, path: path}, nil
}

func (m *MockMDAL) Close(ctx context.Context, fh FileHandle) error { return fh.Close() }

func (m *MockMDAL) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("mdal/mock: stat %s: %w", path, os.ErrNotExist)
	}
	return mockFileInfo{name: path, size: int64(len(f.data)), mode: f.mode}, nil
}

func (m *MockMDAL) Lstat(ctx context.Context, path string) (os.FileInfo, error) {
	return m.Stat(ctx, path)
}

func (m *MockMDAL) Chmod(ctx context.Context, path string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return fmt.Errorf("mdal/mock: chmod %s: %w", path, os.ErrNotExist)
	}
	f.mode = mode
	return nil
}

func (m *MockMDAL) Rename(ctx context.Context, oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[oldpath]
	if !ok {
		return fmt.Errorf("mdal/mock: rename %s: %w", oldpath, os.ErrNotExist)
	}
	m.files[newpath] = f
	delete(m.files, oldpath)
	if x, ok := m.xattrs[oldpath]; ok {
		m.xattrs[newpath] = x
		delete(m.xattrs, oldpath)
	}
	return nil
}

func (m *MockMDAL) Unlink(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("mdal/mock: unlink %s: %w", path, os.ErrNotExist)
	}
	delete(m.files, path)
	delete(m.xattrs, path)
	return nil
}

func (m *MockMDAL) Symlink(ctx context.Context, target, linkpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symlink[linkpath] = target
	m.files[linkpath] = &mockFile{mode: os.ModeSymlink | 0777}
	return nil
}

func (m *MockMDAL) Readlink(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.symlink[path]
	if !ok {
		return "", fmt.Errorf("mdal/mock: readlink %s: %w", path, os.ErrNotExist)
	}
	return target, nil
}

func (m *MockMDAL) Utimens(ctx context.Context, path string, atime, mtime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("mdal/mock: utimens %s: %w", path, os.ErrNotExist)
	}
	return nil
}

func (m *MockMDAL) Mkdir(ctx context.Context, path string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		return fmt.Errorf("mdal/mock: mkdir %s: %w", path, os.ErrExist)
	}
	m.files[path] = &mockFile{dir: true, mode: mode | os.ModeDir}
	return nil
}

func (m *MockMDAL) Rmdir(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok || !f.dir {
		return fmt.Errorf("mdal/mock: rmdir %s: %w", path, os.ErrNotExist)
	}
	delete(m.files, path)
	return nil
}

func (m *MockMDAL) Opendir(ctx context.Context, path string) (DirHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(path, "/") + "/"
	var names []string
	for p := range m.files {
		if p == path || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	entries := make([]DirEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, DirEntry{Name: n, Mode: m.files[prefix+n].mode})
	}
	return &mockDirHandle{entries: entries}, nil
}

func (m *MockMDAL) Statvfs(ctx context.Context, path string) (StatvfsInfo, error) {
	return StatvfsInfo{BlockSize: 4096, TotalBlocks: 1 << 20, FreeBlocks: 1 << 19, TotalInodes: 1 << 16, FreeInodes: 1 << 15}, nil
}

func (m *MockMDAL) GetXattr(ctx context.Context, path, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.xattrs[path][name]
	if !ok {
		return nil, fmt.Errorf("mdal/mock: getxattr %s/%s: %w", path, name, os.ErrNotExist)
	}
	return append([]byte(nil), v...), nil
}

func (m *MockMDAL) SetXattr(ctx context.Context, path, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.xattrs[path] == nil {
		m.xattrs[path] = map[string][]byte{}
	}
	m.xattrs[path][name] = append([]byte(nil), value...)
	return nil
}

func (m *MockMDAL) ListXattr(ctx context.Context, path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for n := range m.xattrs[path] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockMDAL) RemoveXattr(ctx context.Context, path, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.xattrs[path][name]; !ok {
		return fmt.Errorf("mdal/mock: removexattr %s/%s: %w", path, name, os.ErrNotExist)
	}
	delete(m.xattrs[path], name)
	return nil
}

func (m *MockMDAL) LGetXattr(ctx context.Context, path, name string) ([]byte, error) {
	return m.GetXattr(ctx, path, name)
}
func (m *MockMDAL) LSetXattr(ctx context.Context, path, name string, value []byte) error {
	return m.SetXattr(ctx, path, name, value)
}
func (m *MockMDAL) LListXattr(ctx context.Context, path string) ([]string, error) {
	return m.ListXattr(ctx, path)
}
func (m *MockMDAL) LRemoveXattr(ctx context.Context, path, name string) error {
	return m.RemoveXattr(ctx, path, name)
}

type mockFileHandle struct {
	owner *MockMDAL
	path  string
	pos   int64
}

func (h *mockFileHandle) Read(p []byte) (int, error) {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	f := h.owner.files[h.path]
	if h.pos >= int64(len(f.data)) {
		return 0, fmt.Errorf("mdal/mock: read %s: EOF", h.path)
	}
	n := copy(p, f.data[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *mockFileHandle) Write(p []byte) (int, error) {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	f := h.owner.files[h.path]
	end := h.pos + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[h.pos:end], p)
	h.pos = end
	return len(p), nil
}

func (h *mockFileHandle) Seek(offset int64, whence int) (int64, error) {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	f := h.owner.files[h.path]
	switch whence {
	case 0:
		h.pos = offset
	case 1:
		h.pos += offset
	case 2:
		h.pos = int64(len(f.data)) + offset
	}
	return h.pos, nil
}

func (h *mockFileHandle) Close() error { return nil }

func (h *mockFileHandle) Truncate(size int64) error {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	f := h.owner.files[h.path]
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
	return nil
}

func (h *mockFileHandle) Sync() error { return nil }

type mockDirHandle struct {
	entries []DirEntry
	pos     int
}

func (h *mockDirHandle) Readdir(n int) ([]DirEntry, error) {
	if n <= 0 {
		out := h.entries[h.pos:]
		h.pos = len(h.entries)
		return out, nil
	}
	end := h.pos + n
	if end > len(h.entries) {
		end = len(h.entries)
	}
	out := h.entries[h.pos:end]
	h.pos = end
	return out, nil
}

func (h *mockDirHandle) Close() error { return nil }

type mockFileInfo struct {
	name string
	size int64
	mode os.FileMode
}

func (fi mockFileInfo) Name() string       { return fi.name }
func (fi mockFileInfo) Size() int64        { return fi.size }
func (fi mockFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi mockFileInfo) ModTime() time.Time { return time.Time{} }
func (fi mockFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi mockFileInfo) Sys() interface{}   { return nil }
