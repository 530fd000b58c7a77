package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/marfs-core/marfs/internal/config"
	"github.com/marfs-core/marfs/internal/metrics"
	"github.com/marfs-core/marfs/pkg/logging"
)

func noopLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.New(logging.Config{Level: logging.Error, Output: io.Discard}).WithComponent("test")
}

func writeTestConfig(t *testing.T, mdRoot, dataRoot string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "marfs-config.yaml")
	contents := `
version: "1.9"
repos:
  - name: repo1
    hosts: ["` + dataRoot + `"]
    dal: posix
    chunk_size: 1048576
    max_get_size: 0
    min_pack_file_size: -1
    max_pack_file_size: -1
    min_pack_file_count: -1
    max_pack_file_count: -1
namespaces:
  - name: root
    mnt_path: /
    md_path: "` + mdRoot + `"
    dir_mdal: posix
    file_mdal: posix
    bperms: "RM,WM,RD,WD,TD,UD"
    iperms: "RM,WM,RD,WD,TD,UD"
    ref_breadth: 4
    ref_depth: 3
    ref_digits: 4
    repo_ranges:
      - min_size: 0
        max_size: -1
        repo: repo1
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestRunSucceedsOnHealthyConfig(t *testing.T) {
	mdRoot := t.TempDir()
	dataRoot := t.TempDir()
	cfgPath := writeTestConfig(t, mdRoot, dataRoot)

	code := run([]string{"-c", cfgPath, "-a", "-m", "-d"}, os.Stdout, os.Stderr)
	if code != 0 {
		t.Fatalf("run() = %d, want 0", code)
	}
}

func TestRunReportsFatalOnMissingConfig(t *testing.T) {
	code := run([]string{"-c", "/nonexistent/marfs-config.yaml", "-a"}, os.Stdout, os.Stderr)
	if code != 255 {
		t.Fatalf("run() = %d, want 255", code)
	}
}

func TestRunRequiresNamespaceSelector(t *testing.T) {
	mdRoot := t.TempDir()
	dataRoot := t.TempDir()
	cfgPath := writeTestConfig(t, mdRoot, dataRoot)

	code := run([]string{"-c", cfgPath}, os.Stdout, os.Stderr)
	if code != 255 {
		t.Fatalf("run() = %d, want 255 (neither -a nor -n given)", code)
	}
}

func TestRunHelpExitsZero(t *testing.T) {
	if code := run([]string{"-h"}, os.Stdout, os.Stderr); code != 0 {
		t.Fatalf("run(-h) = %d, want 0", code)
	}
}

func TestSelectNamespacesByPath(t *testing.T) {
	cfg := config.NewDefault()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	targets, err := selectNamespaces(cfg, options{nsPath: "/"})
	if err != nil {
		t.Fatalf("selectNamespaces: %v", err)
	}
	if len(targets) != 1 || targets[0].Name != "root" {
		t.Fatalf("targets = %+v, want [root]", targets)
	}
}

func TestCheckNamespaceAcceptsMissingMDPath(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Namespaces[0].MDPath = filepath.Join(t.TempDir(), "does-not-exist-yet")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ns := &cfg.Namespaces[0]

	issues := checkNamespace(context.Background(), noopLogger(t), ns, options{checkMDAL: true}, metrics.NewCollector("test"))
	if issues != 0 {
		t.Fatalf("issues = %d, want 0 (PosixMDAL construction does not require the dir to preexist)", issues)
	}
}
