package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/marfs-core/marfs/internal/circuit"
	"github.com/marfs-core/marfs/internal/ftag"
)

// MarfsRecUniSize is the minimum recovery-info trailer size a repo's
// chunk_size must exceed, so that even a zero-byte uni-object write
// still has room for its own recovery-info trailer (original_source
// marfs_base.c's validate_configuration: "chunk_size must be greater
// than the size of the recovery-info that is written into the tail of
// objects"). Repos using the direct-style access methods (posix and
// semi_direct) don't write recovery-info and are exempt (see Validate).
const MarfsRecUniSize = ftag.MinRecoveryInfoSize

// AccessMethod mirrors original_source's MarFS_AccessMethod enum,
// narrowed to the variants internal/dal actually registers.
type AccessMethod string

const (
	AccessMethodPOSIX AccessMethod = "posix"
	AccessMethodSemi  AccessMethod = "semi_direct"
	AccessMethodS3    AccessMethod = "s3"
	AccessMethodNoop  AccessMethod = "noop"
	AccessMethodMC    AccessMethod = "multi_component"
)

// PermFlags is the R/W/T/U x data/meta permission bitmask
// (original_source MarFSPermFlags).
type PermFlags uint8

const (
	PermReadMeta PermFlags = 1 << iota
	PermWriteMeta
	_ // original_source reserves bits between meta and data flags
	_
	PermReadData
	PermWriteData
	PermTruncateData
	PermUnlinkData
)

// Admits reports whether all bits of want are set in p.
func (p PermFlags) Admits(want PermFlags) bool { return p&want == want }

// Repo is one MarFS repository: a DAL variant, chunking/packing
// constraints, and a round-robin host pool (spec.md §4.5).
type Repo struct {
	Name     string       `yaml:"name"`
	Hosts    []string     `yaml:"hosts"`
	hostNext int          // round-robin cursor, not serialized
	DAL      AccessMethod `yaml:"dal"`

	ChunkSize  int64 `yaml:"chunk_size"`
	MaxGetSize int64 `yaml:"max_get_size"` // 0 = unconstrained

	MinPackFileSize  int64 `yaml:"min_pack_file_size"`
	MaxPackFileSize  int64 `yaml:"max_pack_file_size"`
	MinPackFileCount int   `yaml:"min_pack_file_count"`
	MaxPackFileCount int   `yaml:"max_pack_file_count"`

	breakers *circuit.Manager // lazily built; nil until first SelectHost
}

// SelectHost returns the next host in round-robin order, skipping any
// host whose circuit breaker is currently open (spec.md §4.5: "host
// template, round-robin offset+count"). If every host is open, it
// falls back to plain round-robin rather than failing the caller
// outright — a host that recovers needs a request to notice.
func (r *Repo) SelectHost() (string, error) {
	if len(r.Hosts) == 0 {
		return "", fmt.Errorf("config: repo %q has no hosts configured", r.Name)
	}
	if r.breakers == nil {
		r.breakers = circuit.NewManager(circuit.Config{})
	}
	for i := 0; i < len(r.Hosts); i++ {
		h := r.Hosts[r.hostNext%len(r.Hosts)]
		r.hostNext++
		if r.breakers.GetBreaker(h).GetState() != circuit.StateOpen {
			return h, nil
		}
	}
	h := r.Hosts[r.hostNext%len(r.Hosts)]
	r.hostNext++
	return h, nil
}

// RecordHostResult reports a DAL call's outcome against host back to
// its circuit breaker, so a host that keeps failing TransientIO drops
// out of SelectHost's rotation until its breaker's timeout elapses.
func (r *Repo) RecordHostResult(host string, err error) {
	if r.breakers == nil {
		r.breakers = circuit.NewManager(circuit.Config{})
	}
	breaker := r.breakers.GetBreaker(host)
	if err == nil {
		_ = breaker.Execute(func() error { return nil })
		return
	}
	_ = breaker.Execute(func() error { return err })
}

// RepoRange binds a file-size range to the repo that should hold files
// of that size (original_source MarFS_Repo_Range).
type RepoRange struct {
	MinSize int   `yaml:"min_size"`
	MaxSize int   `yaml:"max_size"`
	Repo    *Repo `yaml:"-"`
	// RepoName resolves to Repo during Validate; kept so the YAML form
	// stays a plain string instead of an inline repo definition.
	RepoName string `yaml:"repo"`
}

// Quota caps a namespace's usage (spec.md §4.5: "quotas").
type Quota struct {
	TotalBytes int64 `yaml:"total_bytes"` // 0 = unconstrained
	TotalFiles int64 `yaml:"total_files"` // 0 = unconstrained
}

// GhostNS is an alternate namespace reachable through this one without
// duplicating its repo/perm configuration — a symlink between namespace
// trees (spec.md §4.5 "optional ghost target").
type GhostNS struct {
	TargetNamespace string `yaml:"target_namespace"`
	TargetRepoRange string `yaml:"target_repo_range"`
}

// Namespace is one MarFS namespace: its metadata backend pairing,
// permission masks, quotas, and repo range list (spec.md §4.5).
type Namespace struct {
	Name    string `yaml:"name"`
	MntPath string `yaml:"mnt_path"`
	MDPath  string `yaml:"md_path"`

	DirMDAL  string `yaml:"dir_mdal"`
	FileMDAL string `yaml:"file_mdal"`

	BPerms PermFlags `yaml:"-"` // batch permissions
	IPerms PermFlags `yaml:"-"` // interactive permissions (MARFS_INTERACTIVE overlay)

	BPermsStr string `yaml:"bperms"`
	IPermsStr string `yaml:"iperms"`

	Quota Quota `yaml:"quota"`

	TrashDir   string `yaml:"trash_dir"`
	FSInfoPath string `yaml:"fsinfo_path"`

	RepoRanges []RepoRange `yaml:"repo_ranges"`

	RefBreadth int `yaml:"ref_breadth"`
	RefDepth   int `yaml:"ref_depth"`
	RefDigits  int `yaml:"ref_digits"`

	Ghost *GhostNS `yaml:"ghost,omitempty"`

	dist *refDistributor // baked-in ref-dir table, built at Validate time
}

// RepoForSize returns the namespace's repo handling files of the given
// size, or an error if no range covers it.
func (ns *Namespace) RepoForSize(size int) (*Repo, error) {
	for i := range ns.RepoRanges {
		rr := &ns.RepoRanges[i]
		if size >= rr.MinSize && (rr.MaxSize < 0 || size <= rr.MaxSize) {
			if rr.Repo == nil {
				return nil, fmt.Errorf("config: repo range [%d,%d] in namespace %q has unresolved repo %q", rr.MinSize, rr.MaxSize, ns.Name, rr.RepoName)
			}
			return rr.Repo, nil
		}
	}
	return nil, fmt.Errorf("config: no repo range in namespace %q covers size %d", ns.Name, size)
}

// Configuration is the full parsed config-file tree (spec.md §4.5).
type Configuration struct {
	Version    string      `yaml:"version"`
	Repos      []Repo      `yaml:"repos"`
	Namespaces []Namespace `yaml:"namespaces"`

	reposByName map[string]*Repo
	nsByName    map[string]*Namespace
}

// NewDefault returns a minimal single-repo, single-namespace
// configuration suitable as a validation/test baseline.
func NewDefault() *Configuration {
	return &Configuration{
		Version: "1.9",
		Repos: []Repo{
			{
				Name:             "repo1",
				Hosts:            []string{"localhost"},
				DAL:              AccessMethodPOSIX,
				ChunkSize:        1 << 20,
				MaxGetSize:       0,
				MinPackFileSize:  -1,
				MaxPackFileSize:  -1,
				MinPackFileCount: -1,
				MaxPackFileCount: -1,
			},
		},
		Namespaces: []Namespace{
			{
				Name:       "root",
				MntPath:    "/",
				MDPath:     "/marfs-md",
				DirMDAL:    "posix",
				FileMDAL:   "posix",
				BPermsStr:  "RM,WM,RD,WD,TD,UD",
				IPermsStr:  "RM,WM,RD,WD,TD,UD",
				RefBreadth: 4,
				RefDepth:   3,
				RefDigits:  4,
				RepoRanges: []RepoRange{{MinSize: 0, MaxSize: -1, RepoName: "repo1"}},
			},
		},
	}
}

// LoadFromFile loads and parses a YAML config file but does not validate
// it — callers must call Validate separately so partially-invalid configs
// can still be inspected for diagnostics (cmd/verifyconf relies on this).
func LoadFromFile(filename string) (*Configuration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}
	c := &Configuration{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}
	return c, nil
}

// Locate searches the standard MarFS config-file locations, in order:
// $MARFSCONFIGRC, $HOME/.marfsconfigrc, /etc/marfsconfigrc. It returns
// the first path that exists.
func Locate() (string, error) {
	if p := os.Getenv("MARFSCONFIGRC"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".marfsconfigrc")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	const systemPath = "/etc/marfsconfigrc"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath, nil
	}
	return "", fmt.Errorf("config: no config file found in MARFSCONFIGRC, $HOME/.marfsconfigrc, or %s", systemPath)
}

var permCodes = map[string]PermFlags{
	"RM": PermReadMeta,
	"WM": PermWriteMeta,
	"RD": PermReadData,
	"WD": PermWriteData,
	"TD": PermTruncateData,
	"UD": PermUnlinkData,
}

func parsePerms(s string) (PermFlags, error) {
	var out PermFlags
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		code, ok := permCodes[tok]
		if !ok {
			return 0, fmt.Errorf("config: unknown permission code %q", tok)
		}
		out |= code
	}
	return out, nil
}

// Validate checks repo/namespace cross-references and permission/quota
// fields, resolving RepoRange.Repo and each Namespace's ref-dir
// distributor as a side effect (mirroring the teacher's single-pass
// Validate()).
func (c *Configuration) Validate() error {
	c.reposByName = make(map[string]*Repo, len(c.Repos))
	for i := range c.Repos {
		r := &c.Repos[i]
		if r.Name == "" {
			return fmt.Errorf("config: repo at index %d has no name", i)
		}
		if _, dup := c.reposByName[r.Name]; dup {
			return fmt.Errorf("config: duplicate repo name %q", r.Name)
		}
		if r.ChunkSize <= 0 {
			return fmt.Errorf("config: repo %q has non-positive chunk_size %d", r.Name, r.ChunkSize)
		}
		if r.DAL != AccessMethodPOSIX && r.DAL != AccessMethodSemi && r.ChunkSize <= MarfsRecUniSize {
			return fmt.Errorf("config: repo %q chunk_size %d must exceed MARFS_REC_UNI_SIZE (%d)", r.Name, r.ChunkSize, MarfsRecUniSize)
		}
		if len(r.Hosts) == 0 {
			return fmt.Errorf("config: repo %q has no hosts", r.Name)
		}
		c.reposByName[r.Name] = r
	}

	c.nsByName = make(map[string]*Namespace, len(c.Namespaces))
	for i := range c.Namespaces {
		ns := &c.Namespaces[i]
		if ns.Name == "" {
			return fmt.Errorf("config: namespace at index %d has no name", i)
		}
		if _, dup := c.nsByName[ns.Name]; dup {
			return fmt.Errorf("config: duplicate namespace name %q", ns.Name)
		}
		if ns.RefBreadth <= 0 || ns.RefDepth <= 0 || ns.RefDigits <= 0 {
			return fmt.Errorf("config: namespace %q has non-positive ref_breadth/ref_depth/ref_digits", ns.Name)
		}
		bp, err := parsePerms(ns.BPermsStr)
		if err != nil {
			return fmt.Errorf("config: namespace %q bperms: %w", ns.Name, err)
		}
		ip, err := parsePerms(ns.IPermsStr)
		if err != nil {
			return fmt.Errorf("config: namespace %q iperms: %w", ns.Name, err)
		}
		ns.BPerms, ns.IPerms = bp, ip

		if len(ns.RepoRanges) == 0 {
			return fmt.Errorf("config: namespace %q has no repo ranges", ns.Name)
		}
		for j := range ns.RepoRanges {
			rr := &ns.RepoRanges[j]
			repo, ok := c.reposByName[rr.RepoName]
			if !ok {
				return fmt.Errorf("config: namespace %q repo range %d references unknown repo %q", ns.Name, j, rr.RepoName)
			}
			rr.Repo = repo
		}

		dist, err := newRefDistributor(ns.RefBreadth, ns.RefDepth, ns.RefDigits)
		if err != nil {
			return fmt.Errorf("config: namespace %q ref-dir table: %w", ns.Name, err)
		}
		ns.dist = dist

		c.nsByName[ns.Name] = ns
	}

	for i := range c.Namespaces {
		ns := &c.Namespaces[i]
		if ns.Ghost == nil {
			continue
		}
		if _, ok := c.nsByName[ns.Ghost.TargetNamespace]; !ok {
			return fmt.Errorf("config: namespace %q ghost targets unknown namespace %q", ns.Name, ns.Ghost.TargetNamespace)
		}
	}

	return nil
}

// Repo looks up a repo by name. Validate must have run first.
func (c *Configuration) Repo(name string) (*Repo, bool) {
	r, ok := c.reposByName[name]
	return r, ok
}

// Namespace looks up a namespace by name. Validate must have run first.
func (c *Configuration) Namespace(name string) (*Namespace, bool) {
	ns, ok := c.nsByName[name]
	return ns, ok
}
