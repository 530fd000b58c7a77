package dal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marfs-core/marfs/internal/ne"
)

func init() {
	Register(VariantS3, func(cfg map[string]interface{}) (Backend, error) {
		bucket, _ := cfg["bucket"].(string)
		if bucket == "" {
			return nil, fmt.Errorf("dal/s3: config missing \"bucket\"")
		}
		s3cfg := &S3Config{Bucket: bucket}
		if region, ok := cfg["region"].(string); ok {
			s3cfg.Region = region
		}
		if endpoint, ok := cfg["endpoint"].(string); ok {
			s3cfg.Endpoint = endpoint
		}
		if ps, ok := cfg["force_path_style"].(bool); ok {
			s3cfg.ForcePathStyle = ps
		}
		return NewS3Backend(context.Background(), s3cfg)
	})
}

// S3Config is the S3 DAL variant's YAML-sourced configuration, trimmed
// from the teacher's internal/storage/s3.Config down to what an NE
// block-store backend actually needs (the teacher's cost/tiering
// fields have no MarFS repo analogue; see DESIGN.md).
type S3Config struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	MaxRetries     int    `yaml:"max_retries"`
}

// S3Backend implements Backend against a single S3 bucket, grounded on
// internal/storage/s3/backend.go's NewBackend/GetObject/PutObject shape
// with the CargoShip optimizer removed (spec.md's repos are fixed N+E
// pools, not cost-tiered archives).
type S3Backend struct {
	client *s3.Client
	bucket string
	cfg    *S3Config
	logger *slog.Logger

	mu      sync.Mutex
	metrics S3Metrics
}

// S3Metrics tracks basic request/byte counters, mirroring
// internal/storage/s3.BackendMetrics without the acceleration/multipart
// fields that came along with teacher features this DAL doesn't use.
type S3Metrics struct {
	Requests        int64
	Errors          int64
	BytesUploaded   int64
	BytesDownloaded int64
}

func NewS3Backend(ctx context.Context, cfg *S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("dal/s3: bucket name cannot be empty")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(cfg.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("dal/s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Backend{
		client: client,
		bucket: cfg.Bucket,
		cfg:    cfg,
		logger: slog.Default().With("component", "dal-s3", "bucket", cfg.Bucket),
	}, nil
}

func (b *S3Backend) OpenObject(ctx context.Context, loc Location) (ne.BlockStore, error) {
	return &s3BlockStore{backend: b, loc: loc}, nil
}

func (b *S3Backend) DeleteObject(ctx context.Context, loc Location) error {
	// The object's blocks are numbered but unbounded in count from this
	// backend's perspective, so this deletes nothing and returns nil;
	// blocks are removed only through BlockStore.DeleteBlock.
	return nil
}

func (b *S3Backend) UpdateObjectLocation(ctx context.Context, loc Location) (Location, error) {
	return loc, nil
}

func (b *S3Backend) Close() error { return nil }

func (b *S3Backend) recordMetrics(isError bool, uploaded, downloaded int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.Requests++
	if isError {
		b.metrics.Errors++
	}
	b.metrics.BytesUploaded += uploaded
	b.metrics.BytesDownloaded += downloaded
}

func (b *S3Backend) getObject(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		b.recordMetrics(true, 0, 0)
		return nil, fmt.Errorf("dal/s3: get %s: %w", key, err)
	}
	defer result.Body.Close()
	data, err := io.ReadAll(result.Body)
	if err != nil {
		b.recordMetrics(true, 0, 0)
		return nil, fmt.Errorf("dal/s3: read body %s: %w", key, err)
	}
	b.recordMetrics(false, 0, int64(len(data)))
	return data, nil
}

func (b *S3Backend) putObject(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		b.recordMetrics(true, 0, 0)
		return fmt.Errorf("dal/s3: put %s: %w", key, err)
	}
	b.recordMetrics(false, int64(len(data)), 0)
	return nil
}

func (b *S3Backend) deleteObject(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("dal/s3: delete %s: %w", key, err)
	}
	return nil
}

type s3BlockStore struct {
	backend *S3Backend
	loc     Location
}

func (s *s3BlockStore) OpenBlock(ctx context.Context, blockIdx int, isPut bool) (ne.BlockHandle, error) {
	return &s3BlockHandle{
		ctx:     ctx,
		backend: s.backend,
		key:     blockKey(s.loc, blockIdx),
		metaKey: metaKey(s.loc, blockIdx),
		isPut:   isPut,
	}, nil
}

func (s *s3BlockStore) DeleteBlock(ctx context.Context, blockIdx int) error {
	key := blockKey(s.loc, blockIdx)
	if err := s.backend.deleteObject(ctx, key); err != nil {
		return err
	}
	_ = s.backend.deleteObject(ctx, metaKey(s.loc, blockIdx))
	return nil
}

// s3BlockHandle buffers a whole block's data in memory: S3 objects are
// immutable, so writes accumulate until Close (a single PutObject) and
// reads fetch the whole object on first touch, then serve Seek/Read
// against the in-memory copy — the same whole-object-buffering strategy
// internal/ne's in-memory test store uses, just backed by S3 instead of
// a map.
type s3BlockHandle struct {
	ctx     context.Context
	backend *S3Backend
	key     string
	metaKey string
	isPut   bool

	writeBuf []byte
	readBuf  []byte
	loaded   bool
	pos      int64
	aborted  bool
}

func (h *s3BlockHandle) Write(p []byte) (int, error) {
	if !h.isPut {
		return 0, fmt.Errorf("dal/s3: write on read-only block handle")
	}
	h.writeBuf = append(h.writeBuf, p...)
	return len(p), nil
}

func (h *s3BlockHandle) ensureLoaded() error {
	if h.loaded {
		return nil
	}
	data, err := h.backend.getObject(h.ctx, h.key)
	if err != nil {
		return err
	}
	h.readBuf = data
	h.loaded = true
	return nil
}

func (h *s3BlockHandle) Read(p []byte) (int, error) {
	if h.isPut {
		return 0, fmt.Errorf("dal/s3: read on write-only block handle")
	}
	if err := h.ensureLoaded(); err != nil {
		return 0, err
	}
	if h.pos >= int64(len(h.readBuf)) {
		return 0, io.EOF
	}
	n := copy(p, h.readBuf[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *s3BlockHandle) Seek(offset int64, whence int) (int64, error) {
	if err := h.ensureLoaded(); err != nil {
		return 0, err
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = h.pos + offset
	case io.SeekEnd:
		target = int64(len(h.readBuf)) + offset
	}
	if target < 0 {
		return 0, fmt.Errorf("dal/s3: negative seek")
	}
	h.pos = target
	return target, nil
}

func (h *s3BlockHandle) WriteMeta(m ne.BlockMeta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("dal/s3: marshal meta: %w", err)
	}
	return h.backend.putObject(h.ctx, h.metaKey, data)
}

func (h *s3BlockHandle) ReadMeta() (ne.BlockMeta, error) {
	data, err := h.backend.getObject(h.ctx, h.metaKey)
	if err != nil {
		return ne.BlockMeta{}, err
	}
	var m ne.BlockMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return ne.BlockMeta{}, fmt.Errorf("dal/s3: unmarshal meta: %w", err)
	}
	return m, nil
}

func (h *s3BlockHandle) Sync() error { return nil }

func (h *s3BlockHandle) Abort() error {
	h.aborted = true
	h.writeBuf = nil
	return nil
}

func (h *s3BlockHandle) Close() error {
	if h.aborted || !h.isPut {
		return nil
	}
	return h.backend.putObject(h.ctx, h.key, h.writeBuf)
}
