package dal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marfs-core/marfs/internal/ne"
)

// DegradedLogScatterWidth is the number of buckets the degraded-object
// log is spread across (spec.md §4.3: "log-scatter-width = 400"),
// matching the original's MC DAL asynchronous-rebuild bookkeeping.
const DegradedLogScatterWidth = 400

// DegradedEntry records one object whose erasure protection has been
// reduced, queued for the resource manager's rebuild pass.
type DegradedEntry struct {
	PathTemplate string
	Erasure      ne.Erasure
	ErrorPattern []int // logical block indices observed faulted
	Repo         string
	Pod          int
	Cap          int
	RecordedAt   time.Time
}

func degradedLogBucket(loc Location) int {
	h := 0
	for _, c := range loc.ObjID {
		h = h*31 + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h % DegradedLogScatterWidth
}

// MCBackend wraps an inner Backend (typically POSIX or S3) with a
// degraded-object log, the spec.md §4.3 "MC (multi-component)" variant.
// Every BlockStore it opens is instrumented to append a DegradedEntry
// whenever a block's open fails, instead of silently losing that
// information once the NE handle closes. Read/write errors on a block
// that opened successfully are not recorded.
type MCBackend struct {
	inner Backend

	mu  sync.Mutex
	log map[int][]DegradedEntry
}

func init() {
	Register(VariantMC, func(cfg map[string]interface{}) (Backend, error) {
		innerName, _ := cfg["inner"].(string)
		if innerName == "" {
			return nil, fmt.Errorf("dal/mc: config missing \"inner\" backend variant")
		}
		innerCfg, _ := cfg["inner_config"].(map[string]interface{})
		inner, err := New(Variant(innerName), innerCfg)
		if err != nil {
			return nil, fmt.Errorf("dal/mc: construct inner backend %q: %w", innerName, err)
		}
		return NewMCBackend(inner), nil
	})
}

func NewMCBackend(inner Backend) *MCBackend {
	return &MCBackend{inner: inner, log: make(map[int][]DegradedEntry)}
}

func (b *MCBackend) OpenObject(ctx context.Context, loc Location) (ne.BlockStore, error) {
	inner, err := b.inner.OpenObject(ctx, loc)
	if err != nil {
		return nil, err
	}
	return &mcBlockStore{mc: b, loc: loc, inner: inner}, nil
}

func (b *MCBackend) DeleteObject(ctx context.Context, loc Location) error {
	return b.inner.DeleteObject(ctx, loc)
}

func (b *MCBackend) UpdateObjectLocation(ctx context.Context, loc Location) (Location, error) {
	return b.inner.UpdateObjectLocation(ctx, loc)
}

func (b *MCBackend) Close() error { return b.inner.Close() }

// recordFault appends a degraded entry to the scatter bucket for loc.
func (b *MCBackend) recordFault(loc Location, es ne.Erasure, blockIdx int) {
	bucket := degradedLogBucket(loc)
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.log[bucket]
	for i := range entries {
		if entries[i].PathTemplate == loc.ObjID {
			entries[i].ErrorPattern = appendUnique(entries[i].ErrorPattern, blockIdx)
			return
		}
	}
	b.log[bucket] = append(entries, DegradedEntry{
		PathTemplate: loc.ObjID,
		Erasure:      es,
		ErrorPattern: []int{blockIdx},
		Repo:         loc.Repo,
		Pod:          loc.Pod,
		Cap:          loc.Cap,
		RecordedAt:   time.Now(),
	})
}

func appendUnique(xs []int, v int) []int {
	for _, x := range xs {
		if x == v {
			return xs
		}
	}
	return append(xs, v)
}

// DegradedObjects returns every logged degraded entry, for the resource
// manager's asynchronous rebuild scheduler to consume.
func (b *MCBackend) DegradedObjects() []DegradedEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var all []DegradedEntry
	for _, entries := range b.log {
		all = append(all, entries...)
	}
	return all
}

type mcBlockStore struct {
	mc    *MCBackend
	loc   Location
	inner ne.BlockStore
}

func (s *mcBlockStore) OpenBlock(ctx context.Context, blockIdx int, isPut bool) (ne.BlockHandle, error) {
	bh, err := s.inner.OpenBlock(ctx, blockIdx, isPut)
	if err != nil {
		s.mc.recordFault(s.loc, ne.Erasure{}, blockIdx)
		return nil, err
	}
	return bh, nil
}

func (s *mcBlockStore) DeleteBlock(ctx context.Context, blockIdx int) error {
	return s.inner.DeleteBlock(ctx, blockIdx)
}
