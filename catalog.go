package tickcat

import (
	"context"
	"fmt"
	"iter"
	"os"
	"sync/atomic"
	"time"

	"github.com/quantfold/tickcat/backend"
	"github.com/quantfold/tickcat/blobstore"
	"github.com/quantfold/tickcat/codec"
	"github.com/quantfold/tickcat/coordinate"
	"github.com/quantfold/tickcat/engine"
	"github.com/quantfold/tickcat/partition"
	"github.com/quantfold/tickcat/schema"
)

// Catalog is the write-coordination and query-routing layer over one
// storage backend.
type Catalog struct {
	desc     backend.Descriptor
	store    blobstore.BlobStore
	registry *schema.Registry
	router   *engine.Router
	coord    *coordinate.Coordinator
	writer   *partition.Writer
	bucket   time.Duration
	logger   *Logger
	metrics  MetricsCollector

	// seq distinguishes staging paths of writes issued by this process.
	seq atomic.Uint64
}

// New opens a catalog at the given URI.
//
// Supported URIs: plain paths and "file://..." (local disk), "memory://"
// (in-process, for tests). Remote object-store catalogs need a configured
// client; construct the store yourself and use NewWithStore.
func New(uri string, opts ...Option) (*Catalog, error) {
	desc, root, err := backend.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	var store blobstore.BlobStore
	switch desc.Protocol {
	case "file":
		store = blobstore.NewLocalStore(root)
	case "memory":
		store = blobstore.NewMemoryStore()
	default:
		return nil, fmt.Errorf("tickcat: protocol %q needs a configured client; use NewWithStore", desc.Protocol)
	}
	return NewWithStore(desc, store, opts...)
}

// NewWithStore opens a catalog on an explicit backend descriptor and blob
// store, e.g. an S3 or MinIO store built from an authenticated client.
func NewWithStore(desc backend.Descriptor, store blobstore.BlobStore, opts ...Option) (*Catalog, error) {
	if store == nil {
		return nil, fmt.Errorf("tickcat: nil blob store")
	}

	o := options{
		locker:           coordinate.NoopLocker{},
		codec:            codec.Default,
		compression:      partition.CompressionZstd,
		logger:           NoopLogger(),
		metrics:          NoopMetricsCollector{},
		lockTimeout:      10 * time.Second,
		bucket:           time.Hour,
		queryConcurrency: 4,
	}
	for _, opt := range opts {
		opt(&o)
	}

	registry := schema.NewRegistry()

	coord := coordinate.New(o.locker, func(co *coordinate.Options) {
		co.Timeout = o.lockTimeout
		co.HolderID = o.holderID
		co.RateLimit = o.rateLimit
		co.Logger = o.logger.Logger
	})

	router := engine.NewRouter(registry, desc, store, func(ro *engine.RouterOptions) {
		ro.Bucket = o.bucket
		ro.Concurrency = o.queryConcurrency
	})

	return &Catalog{
		desc:     desc,
		store:    store,
		registry: registry,
		router:   router,
		coord:    coord,
		writer:   partition.NewWriter(store, o.codec, o.compression),
		bucket:   o.bucket,
		logger:   o.logger,
		metrics:  o.metrics,
	}, nil
}

// Backend returns the catalog's backend descriptor.
func (c *Catalog) Backend() backend.Descriptor { return c.desc }

// Registry returns the catalog's schema registry.
func (c *Catalog) Registry() *schema.Registry { return c.registry }

// BucketDuration returns the partition time-bucket granularity.
func (c *Catalog) BucketDuration() time.Duration { return c.bucket }

// KeyFor builds the partition key covering ts with the catalog's bucket
// granularity.
func (c *Catalog) KeyFor(kind, instrumentID string, ts time.Time) partition.Key {
	return partition.KeyFor(kind, instrumentID, ts, c.bucket)
}

// RegisterSchema registers the schema for a record kind.
//
// Identical re-registration is an idempotent no-op; a conflicting schema
// for an already-registered kind fails with *SchemaConflictError. Intended
// to run at startup.
func (c *Catalog) RegisterSchema(kind string, s *schema.RecordSchema) error {
	if err := c.registry.Register(kind, s); err != nil {
		return err
	}
	c.logger.Debug("schema registered", "kind", kind)
	return nil
}

// Ack acknowledges a sealed write.
type Ack struct {
	Key      partition.Key
	Records  int // total records in the partition after the write
	Path     string
	Checksum uint32
}

// Write validates records against kind's schema and appends them to the
// partition identified by key, serialized per partition by the configured
// lock service.
//
// The whole batch is validated before anything is written: one invalid
// record rejects the batch with *SchemaViolationError and the partition is
// untouched. The write stages to a temporary path and seals with an atomic
// rename, so a failure mid-write leaves the previous partition content (or
// absence) intact.
func (c *Catalog) Write(ctx context.Context, kind string, records []schema.Record, key partition.Key) (Ack, error) {
	start := time.Now()
	ack, err := c.write(ctx, kind, records, key)
	c.metrics.RecordWrite(kind, len(records), time.Since(start), err)
	if err != nil {
		c.logger.Error("write failed", "kind", kind, "partition", key, "error", err)
		return Ack{}, err
	}
	c.logger.Debug("partition sealed", "partition", key, "records", ack.Records, "path", ack.Path)
	return ack, nil
}

func (c *Catalog) write(ctx context.Context, kind string, records []schema.Record, key partition.Key) (Ack, error) {
	if len(records) == 0 {
		return Ack{}, fmt.Errorf("tickcat: empty batch")
	}
	if key.Kind == "" {
		key.Kind = kind
	} else if key.Kind != kind {
		return Ack{}, fmt.Errorf("tickcat: partition key kind %q does not match %q", key.Kind, kind)
	}
	if err := key.Validate(); err != nil {
		return Ack{}, err
	}

	// Validate the whole batch up front; no partial partition writes.
	rows := make([]schema.Record, len(records))
	for i, rec := range records {
		normalized, err := c.registry.Normalize(kind, rec)
		if err != nil {
			return Ack{}, err
		}
		rows[i] = normalized
	}

	token := fmt.Sprintf("%d-%d", os.Getpid(), c.seq.Add(1))

	var res partition.Result
	err := c.coord.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		res, err = c.writer.Append(ctx, key, rows, token)
		return err
	})
	if err != nil {
		return Ack{}, translateWriteError(key, err)
	}

	return Ack{Key: key, Records: res.Records, Path: res.Path, Checksum: res.Checksum}, nil
}

// Query plans and lazily executes a query against the catalog's own
// backend. See QueryBackend for the engine selection rules.
func (c *Catalog) Query(ctx context.Context, kind string, pred engine.Predicate, pref engine.Preference) (iter.Seq2[schema.Record, error], error) {
	return c.queryRouter(ctx, c.router, kind, pred, pref)
}

// QueryBackend plans and lazily executes a query against an explicit
// backend.
//
// Engine selection: PreferNative fails with *BackendCapabilityError when
// the backend cannot run the native engine, never a silent downgrade.
// PreferAuto picks native where supported, generic otherwise, and never
// fails for capability reasons. The returned sequence is finite,
// forward-only, and restartable only by calling QueryBackend again.
func (c *Catalog) QueryBackend(ctx context.Context, kind string, pred engine.Predicate, desc backend.Descriptor, store blobstore.BlobStore, pref engine.Preference) (iter.Seq2[schema.Record, error], error) {
	router := engine.NewRouter(c.registry, desc, store, func(ro *engine.RouterOptions) {
		ro.Bucket = c.bucket
	})
	return c.queryRouter(ctx, router, kind, pred, pref)
}

func (c *Catalog) queryRouter(ctx context.Context, router *engine.Router, kind string, pred engine.Predicate, pref engine.Preference) (iter.Seq2[schema.Record, error], error) {
	start := time.Now()
	plan, err := router.Plan(ctx, kind, pred, pref)
	if err != nil {
		c.metrics.RecordQuery(kind, 0, time.Since(start), err)
		return nil, err
	}
	c.metrics.RecordQuery(kind, plan.Engine, time.Since(start), nil)
	c.logger.Debug("query planned",
		"kind", kind, "engine", plan.Engine, "segments", len(plan.Segments))
	return router.Execute(ctx, plan), nil
}
