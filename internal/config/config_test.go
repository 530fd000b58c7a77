package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaultValidates(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsUnknownRepoReference(t *testing.T) {
	cfg := NewDefault()
	cfg.Namespaces[0].RepoRanges[0].RepoName = "nonexistent"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for repo range referencing unknown repo")
	}
}

func TestValidateRejectsNonPositiveChunkSize(t *testing.T) {
	cfg := NewDefault()
	cfg.Repos[0].ChunkSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero chunk_size")
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	cfg := NewDefault()
	cfg.Repos = append(cfg.Repos, cfg.Repos[0])
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate repo name")
	}
}

func TestValidateRejectsZeroRefBreadth(t *testing.T) {
	cfg := NewDefault()
	cfg.Namespaces[0].RefBreadth = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero ref_breadth")
	}
}

func TestValidateRejectsBadPermCode(t *testing.T) {
	cfg := NewDefault()
	cfg.Namespaces[0].BPermsStr = "RM,BOGUS"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown permission code")
	}
}

func TestValidateResolvesGhostTargets(t *testing.T) {
	cfg := NewDefault()
	cfg.Namespaces = append(cfg.Namespaces, Namespace{
		Name:       "alias",
		MntPath:    "/alias",
		RefBreadth: 4, RefDepth: 3, RefDigits: 4,
		BPermsStr: "RM,RD", IPermsStr: "RM,RD",
		RepoRanges: []RepoRange{{MinSize: 0, MaxSize: -1, RepoName: "repo1"}},
		Ghost:      &GhostNS{TargetNamespace: "root"},
	})
	if err := cfg.Validate(); err != nil {
		t.Fatalf("ghost targeting an existing namespace should validate: %v", err)
	}
}

func TestValidateRejectsGhostToUnknownNamespace(t *testing.T) {
	cfg := NewDefault()
	cfg.Namespaces = append(cfg.Namespaces, Namespace{
		Name:       "alias",
		MntPath:    "/alias",
		RefBreadth: 4, RefDepth: 3, RefDigits: 4,
		BPermsStr: "RM,RD", IPermsStr: "RM,RD",
		RepoRanges: []RepoRange{{MinSize: 0, MaxSize: -1, RepoName: "repo1"}},
		Ghost:      &GhostNS{TargetNamespace: "nosuch"},
	})
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for ghost targeting unknown namespace")
	}
}

func TestRepoSelectHostRoundRobins(t *testing.T) {
	r := &Repo{Name: "r", Hosts: []string{"a", "b", "c"}}
	seen := make([]string, 6)
	for i := range seen {
		h, err := r.SelectHost()
		if err != nil {
			t.Fatalf("SelectHost: %v", err)
		}
		seen[i] = h
	}
	want := []string{"a", "b", "c", "a", "b", "c"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("host %d: got %s want %s", i, seen[i], want[i])
		}
	}
}

func TestRepoSelectHostEmptyFails(t *testing.T) {
	r := &Repo{Name: "r"}
	if _, err := r.SelectHost(); err == nil {
		t.Fatal("expected error selecting host from repo with no hosts")
	}
}

func TestRepoSelectHostSkipsOpenBreaker(t *testing.T) {
	r := &Repo{Name: "r", Hosts: []string{"a", "b"}}

	failing := errors.New("simulated TransientIO failure")
	for i := 0; i < 25; i++ {
		r.RecordHostResult("a", failing)
	}

	for i := 0; i < 6; i++ {
		h, err := r.SelectHost()
		if err != nil {
			t.Fatalf("SelectHost: %v", err)
		}
		if h != "b" {
			t.Fatalf("SelectHost returned %q, want b (a's breaker should be open)", h)
		}
	}
}

func TestLoadFromFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marfsconfigrc")
	doc := `
version: "1.9"
repos:
  - name: repo1
    hosts: ["h1", "h2"]
    dal: posix
    chunk_size: 1048576
    max_get_size: 0
    min_pack_file_size: -1
    max_pack_file_size: -1
    min_pack_file_count: -1
    max_pack_file_count: -1
namespaces:
  - name: root
    mnt_path: "/"
    md_path: "/marfs-md"
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
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Repos) != 1 || cfg.Repos[0].Name != "repo1" {
		t.Fatalf("unexpected repos: %+v", cfg.Repos)
	}
	ns, ok := cfg.Namespace("root")
	if !ok {
		t.Fatal("expected namespace 'root'")
	}
	if ns.RefDirCount() != 4*4*4 {
		t.Fatalf("expected 4^3 ref-dir leaves, got %d", ns.RefDirCount())
	}
}

// Scenario: a repo's chunk_size equal to MARFS_REC_UNI_SIZE (the minimum
// recovery-info trailer size) must be rejected at validation time
// rather than accepted as an ordinary chunk size.
func TestValidateRejectsChunkSizeEqualToRecUniSize(t *testing.T) {
	cfg := NewDefault()
	cfg.Repos[0].DAL = AccessMethodS3
	cfg.Repos[0].ChunkSize = MarfsRecUniSize
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when chunk_size equals MARFS_REC_UNI_SIZE")
	}
}

func TestValidateAllowsSmallChunkSizeForDirectDAL(t *testing.T) {
	cfg := NewDefault()
	cfg.Repos[0].DAL = AccessMethodPOSIX
	cfg.Repos[0].ChunkSize = 1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("direct-style DAL should be exempt from the recovery-info chunk_size floor: %v", err)
	}
}

func TestLocateChecksEnvFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.rc")
	if err := os.WriteFile(path, []byte("version: \"1.9\"\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MARFSCONFIGRC", path)
	got, err := Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if got != path {
		t.Fatalf("expected Locate to prefer MARFSCONFIGRC, got %s", got)
	}
}

func TestTraverseResolvesNamespaceAndResidual(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	pos, residual, err := cfg.Traverse("/some/deep/path.bin", true)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if pos.NS.Name != "root" {
		t.Fatalf("expected root namespace, got %s", pos.NS.Name)
	}
	if residual != "some/deep/path.bin" {
		t.Fatalf("unexpected residual: %q", residual)
	}
}

func TestCheckPermDeniesWhenBpermsLack(t *testing.T) {
	cfg := NewDefault()
	cfg.Namespaces[0].BPermsStr = "RM,RD"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	pos, _, err := cfg.Traverse("/x", false)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if err := pos.CheckPerm(PermWriteData, false); err == nil {
		t.Fatal("expected bperms to deny write when bperms lacks WD")
	}
}
