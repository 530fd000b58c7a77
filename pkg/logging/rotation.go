package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// RotationConfig configures size-based rotation for a file-backed Logger
// output, in the teacher's log-rotation style.
type RotationConfig struct {
	Filename   string // target file path
	MaxSizeMB  int64  // rotate once the current file exceeds this size
	MaxBackups int    // oldest rotated files beyond this count are removed
}

// Rotator is an io.Writer that rotates its backing file once MaxSizeMB is
// exceeded, keeping at most MaxBackups timestamped backups.
type Rotator struct {
	mu   sync.Mutex
	cfg  RotationConfig
	file *os.File
	size int64
}

// NewRotator opens (creating if needed) the rotation target file.
func NewRotator(cfg RotationConfig) (*Rotator, error) {
	if cfg.Filename == "" {
		return nil, fmt.Errorf("logging: rotation filename required")
	}
	r := &Rotator{cfg: cfg}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rotator) open() error {
	f, err := os.OpenFile(r.cfg.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", r.cfg.Filename, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("logging: stat %s: %w", r.cfg.Filename, err)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

// Write implements io.Writer, rotating the file first if this write would
// push it past MaxSizeMB.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.MaxSizeMB > 0 && r.size+int64(len(p)) > r.cfg.MaxSizeMB*1024*1024 {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *Rotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("logging: close before rotate: %w", err)
	}
	backup := fmt.Sprintf("%s.%s", r.cfg.Filename, time.Now().Format("20060102T150405"))
	if err := os.Rename(r.cfg.Filename, backup); err != nil {
		return fmt.Errorf("logging: rotate rename: %w", err)
	}
	if err := r.open(); err != nil {
		return err
	}
	return r.pruneBackups()
}

func (r *Rotator) pruneBackups() error {
	if r.cfg.MaxBackups <= 0 {
		return nil
	}
	matches, err := filepath.Glob(r.cfg.Filename + ".*")
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	excess := len(matches) - r.cfg.MaxBackups
	for i := 0; i < excess; i++ {
		os.Remove(matches[i])
	}
	return nil
}

// Close closes the underlying file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
