// Package mdal implements the per-namespace metadata interface
// (spec.md §4.4): POSIX-semantic operations over reference files and
// directories, plus the xattr access through which the FTAG descriptor
// travels. Grounded on the teacher's FilesystemInterface
// (internal/filesystem/interface.go), narrowed from ObjectFS's broader
// protocol-handler surface (cost/tiering/access-pattern calls dropped —
// see DESIGN.md) down to the POSIX subset MarFS actually names.
package mdal

import (
	"context"
	"io"
	"os"
	"time"
)

// FileHandle is opaque per-handle state shared across calls within one
// open file (spec.md §4.4: "Contexts are opaque state shared across
// calls within one file/dir handle").
type FileHandle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	Truncate(size int64) error
	Sync() error
}

// DirEntry is one entry returned while iterating a directory, the
// readdir_r-style filler callback's payload (spec.md §4.4).
type DirEntry struct {
	Name string
	Mode os.FileMode
}

// DirHandle iterates a directory's entries.
type DirHandle interface {
	// Readdir returns the next n entries, or fewer at end of directory.
	// n <= 0 means "all remaining entries".
	Readdir(n int) ([]DirEntry, error)
	Close() error
}

// StatvfsInfo mirrors the POSIX statvfs(2) fields the namespace layer
// needs for quota and fsinfo reporting (spec.md §4.5 fsinfo path).
type StatvfsInfo struct {
	BlockSize   uint64
	TotalBlocks uint64
	FreeBlocks  uint64
	TotalInodes uint64
	FreeInodes  uint64
}

// MDAL is the per-namespace metadata backend. Every path argument is
// relative to the backend's own root; the namespace/config layer is
// responsible for resolving a logical MarFS path down to this rooted
// form before calling in.
type MDAL interface {
	Open(ctx context.Context, path string, flags int, mode os.FileMode) (FileHandle, error)
	Close(ctx context.Context, fh FileHandle) error

	Stat(ctx context.Context, path string) (os.FileInfo, error)
	Lstat(ctx context.Context, path string) (os.FileInfo, error)
	Chmod(ctx context.Context, path string, mode os.FileMode) error
	Rename(ctx context.Context, oldpath, newpath string) error
	Unlink(ctx context.Context, path string) error
	Symlink(ctx context.Context, target, linkpath string) error
	Readlink(ctx context.Context, path string) (string, error)
	Utimens(ctx context.Context, path string, atime, mtime time.Time) error

	Mkdir(ctx context.Context, path string, mode os.FileMode) error
	Rmdir(ctx context.Context, path string) error
	Opendir(ctx context.Context, path string) (DirHandle, error)

	Statvfs(ctx context.Context, path string) (StatvfsInfo, error)

	// Xattr operations. The L-prefixed variants act on a symlink itself
	// rather than following it, matching lgetxattr/lsetxattr/... .
	GetXattr(ctx context.Context, path, name string) ([]byte, error)
	SetXattr(ctx context.Context, path, name string, value []byte) error
	ListXattr(ctx context.Context, path string) ([]string, error)
	RemoveXattr(ctx context.Context, path, name string) error
	LGetXattr(ctx context.Context, path, name string) ([]byte, error)
	LSetXattr(ctx context.Context, path, name string, value []byte) error
	LListXattr(ctx context.Context, path string) ([]string, error)
	LRemoveXattr(ctx context.Context, path, name string) error
}

// FTAGXattrName is the xattr key the MDAL reads/writes FTAG under. The
// MDAL is the sole author of this xattr (spec.md §4.4).
const FTAGXattrName = "user.marfs_ftag"
