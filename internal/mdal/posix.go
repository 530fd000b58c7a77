package mdal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// PosixMDAL implements MDAL directly against a rooted local filesystem
// tree, the default backend for both dir_MDAL and file_MDAL (spec.md
// §4.4). Grounded on the teacher's FilesystemInterface method set
// (internal/filesystem/interface.go), narrowed to the POSIX calls MarFS
// actually names and backed by real syscalls instead of an S3 shim.
type PosixMDAL struct {
	root string
}

func NewPosixMDAL(root string) *PosixMDAL {
	return &PosixMDAL{root: root}
}

func (m *PosixMDAL) resolve(path string) string {
	return filepath.Join(m.root, path)
}

func (m *PosixMDAL) Open(ctx context.Context, path string, flags int, mode os.FileMode) (FileHandle, error) {
	f, err := os.OpenFile(m.resolve(path), flags, mode)
	if err != nil {
		return nil, fmt.Errorf("mdal/posix: open %s: %w", path, err)
	}
	return &posixFileHandle{file: f}, nil
}

func (m *PosixMDAL) Close(ctx context.Context, fh FileHandle) error {
	return fh.Close()
}

func (m *PosixMDAL) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	fi, err := os.Stat(m.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("mdal/posix: stat %s: %w", path, err)
	}
	return fi, nil
}

func (m *PosixMDAL) Lstat(ctx context.Context, path string) (os.FileInfo, error) {
	fi, err := os.Lstat(m.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("mdal/posix: lstat %s: %w", path, err)
	}
	return fi, nil
}

func (m *PosixMDAL) Chmod(ctx context.Context, path string, mode os.FileMode) error {
	if err := os.Chmod(m.resolve(path), mode); err != nil {
		return fmt.Errorf("mdal/posix: chmod %s: %w", path, err)
	}
	return nil
}

func (m *PosixMDAL) Rename(ctx context.Context, oldpath, newpath string) error {
	if err := os.Rename(m.resolve(oldpath), m.resolve(newpath)); err != nil {
		return fmt.Errorf("mdal/posix: rename %s -> %s: %w", oldpath, newpath, err)
	}
	return nil
}

func (m *PosixMDAL) Unlink(ctx context.Context, path string) error {
	if err := os.Remove(m.resolve(path)); err != nil {
		return fmt.Errorf("mdal/posix: unlink %s: %w", path, err)
	}
	return nil
}

func (m *PosixMDAL) Symlink(ctx context.Context, target, linkpath string) error {
	if err := os.Symlink(target, m.resolve(linkpath)); err != nil {
		return fmt.Errorf("mdal/posix: symlink %s -> %s: %w", linkpath, target, err)
	}
	return nil
}

func (m *PosixMDAL) Readlink(ctx context.Context, path string) (string, error) {
	target, err := os.Readlink(m.resolve(path))
	if err != nil {
		return "", fmt.Errorf("mdal/posix: readlink %s: %w", path, err)
	}
	return target, nil
}

func (m *PosixMDAL) Utimens(ctx context.Context, path string, atime, mtime time.Time) error {
	if err := os.Chtimes(m.resolve(path), atime, mtime); err != nil {
		return fmt.Errorf("mdal/posix: utimens %s: %w", path, err)
	}
	return nil
}

func (m *PosixMDAL) Mkdir(ctx context.Context, path string, mode os.FileMode) error {
	if err := os.Mkdir(m.resolve(path), mode); err != nil {
		return fmt.Errorf("mdal/posix: mkdir %s: %w", path, err)
	}
	return nil
}

func (m *PosixMDAL) Rmdir(ctx context.Context, path string) error {
	if err := os.Remove(m.resolve(path)); err != nil {
		return fmt.Errorf("mdal/posix: rmdir %s: %w", path, err)
	}
	return nil
}

func (m *PosixMDAL) Opendir(ctx context.Context, path string) (DirHandle, error) {
	f, err := os.Open(m.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("mdal/posix: opendir %s: %w", path, err)
	}
	return &posixDirHandle{file: f}, nil
}

func (m *PosixMDAL) Statvfs(ctx context.Context, path string) (StatvfsInfo, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(m.resolve(path), &st); err != nil {
		return StatvfsInfo{}, fmt.Errorf("mdal/posix: statvfs %s: %w", path, err)
	}
	return StatvfsInfo{
		BlockSize:   uint64(st.Bsize),
		TotalBlocks: st.Blocks,
		FreeBlocks:  st.Bfree,
		TotalInodes: st.Files,
		FreeInodes:  st.Ffree,
	}, nil
}

func (m *PosixMDAL) GetXattr(ctx context.Context, path, name string) ([]byte, error) {
	return getxattr(m.resolve(path), name, false)
}
func (m *PosixMDAL) SetXattr(ctx context.Context, path, name string, value []byte) error {
	return setxattr(m.resolve(path), name, value, false)
}
func (m *PosixMDAL) ListXattr(ctx context.Context, path string) ([]string, error) {
	return listxattr(m.resolve(path), false)
}
func (m *PosixMDAL) RemoveXattr(ctx context.Context, path, name string) error {
	return removexattr(m.resolve(path), name, false)
}
func (m *PosixMDAL) LGetXattr(ctx context.Context, path, name string) ([]byte, error) {
	return getxattr(m.resolve(path), name, true)
}
func (m *PosixMDAL) LSetXattr(ctx context.Context, path, name string, value []byte) error {
	return setxattr(m.resolve(path), name, value, true)
}
func (m *PosixMDAL) LListXattr(ctx context.Context, path string) ([]string, error) {
	return listxattr(m.resolve(path), true)
}
func (m *PosixMDAL) LRemoveXattr(ctx context.Context, path, name string) error {
	return removexattr(m.resolve(path), name, true)
}

func getxattr(path, name string, noFollow bool) ([]byte, error) {
	size := 4096
	for {
		buf := make([]byte, size)
		var n int
		var err error
		if noFollow {
			n, err = unix.Lgetxattr(path, name, buf)
		} else {
			n, err = unix.Getxattr(path, name, buf)
		}
		if err == unix.ERANGE {
			size *= 2
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("mdal/posix: getxattr %s/%s: %w", path, name, err)
		}
		return buf[:n], nil
	}
}

func setxattr(path, name string, value []byte, noFollow bool) error {
	var err error
	if noFollow {
		err = unix.Lsetxattr(path, name, value, 0)
	} else {
		err = unix.Setxattr(path, name, value, 0)
	}
	if err != nil {
		return fmt.Errorf("mdal/posix: setxattr %s/%s: %w", path, name, err)
	}
	return nil
}

func listxattr(path string, noFollow bool) ([]string, error) {
	size := 4096
	for {
		buf := make([]byte, size)
		var n int
		var err error
		if noFollow {
			n, err = unix.Llistxattr(path, buf)
		} else {
			n, err = unix.Listxattr(path, buf)
		}
		if err == unix.ERANGE {
			size *= 2
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("mdal/posix: listxattr %s: %w", path, err)
		}
		return splitNulTerminated(buf[:n]), nil
	}
}

func removexattr(path, name string, noFollow bool) error {
	var err error
	if noFollow {
		err = unix.Lremovexattr(path, name)
	} else {
		err = unix.Removexattr(path, name)
	}
	if err != nil {
		return fmt.Errorf("mdal/posix: removexattr %s/%s: %w", path, name, err)
	}
	return nil
}

func splitNulTerminated(buf []byte) []string {
	var out []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				out = append(out, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

type posixFileHandle struct {
	file *os.File
}

func (h *posixFileHandle) Read(p []byte) (int, error)  { return h.file.Read(p) }
func (h *posixFileHandle) Write(p []byte) (int, error) { return h.file.Write(p) }
func (h *posixFileHandle) Seek(offset int64, whence int) (int64, error) {
	return h.file.Seek(offset, whence)
}
func (h *posixFileHandle) Close() error             { return h.file.Close() }
func (h *posixFileHandle) Truncate(size int64) error { return h.file.Truncate(size) }
func (h *posixFileHandle) Sync() error               { return h.file.Sync() }

type posixDirHandle struct {
	file *os.File
}

func (h *posixDirHandle) Readdir(n int) ([]DirEntry, error) {
	entries, err := h.file.ReadDir(n)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		mode := os.FileMode(0)
		if err == nil {
			mode = info.Mode()
		}
		out = append(out, DirEntry{Name: e.Name(), Mode: mode})
	}
	return out, nil
}

func (h *posixDirHandle) Close() error { return h.file.Close() }
