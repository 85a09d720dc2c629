package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quantfold/tickcat/backend"
	"github.com/quantfold/tickcat/blobstore"
	"github.com/quantfold/tickcat/partition"
	"github.com/quantfold/tickcat/schema"
)

// RouterOptions configures a Router.
type RouterOptions struct {
	// LocalRoot is the directory sealed segments live under for the native
	// engine's direct read path. Detected automatically when the store is a
	// *blobstore.LocalStore.
	LocalRoot string
	// Bucket is the partition time-bucket duration, used to decide whether
	// a partition can overlap a query's time window. Default: 1h.
	Bucket time.Duration
	// Concurrency bounds the generic engine's segment prefetch fan-out.
	// Default: 4.
	Concurrency int
}

// Router plans queries against one backend: it picks a legal engine for the
// caller's preference and resolves the sealed segments a predicate touches.
type Router struct {
	registry    *schema.Registry
	desc        backend.Descriptor
	store       blobstore.BlobStore
	localRoot   string
	bucket      time.Duration
	concurrency int
}

// NewRouter creates a Router for the given backend.
func NewRouter(registry *schema.Registry, desc backend.Descriptor, store blobstore.BlobStore, optFns ...func(*RouterOptions)) *Router {
	opts := RouterOptions{
		Bucket:      time.Hour,
		Concurrency: 4,
	}
	if local, ok := store.(*blobstore.LocalStore); ok {
		opts.LocalRoot = local.Root()
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{
		registry:    registry,
		desc:        desc,
		store:       store,
		localRoot:   opts.LocalRoot,
		bucket:      opts.Bucket,
		concurrency: opts.Concurrency,
	}
}

// Plan selects a legal engine and resolves the segments to scan.
//
// PreferNative against a backend without native support fails with
// *CapabilityError; PreferAuto never fails for capability reasons. Planning
// does not read segment data and never mutates partition state.
func (r *Router) Plan(ctx context.Context, kind string, pred Predicate, pref Preference) (*Plan, error) {
	if _, ok := r.registry.Lookup(kind); !ok {
		return nil, fmt.Errorf("engine: kind %q is not registered", kind)
	}

	eng, err := r.selectEngine(pref)
	if err != nil {
		return nil, err
	}

	segments, err := r.resolveSegments(ctx, kind, pred)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Engine:    eng,
		Kind:      kind,
		Predicate: pred,
		Backend:   r.desc,
		Segments:  segments,
	}, nil
}

func (r *Router) selectEngine(pref Preference) (Engine, error) {
	switch pref {
	case PreferNative:
		if !r.desc.CanRun(Native) {
			return 0, &CapabilityError{Protocol: r.desc.Protocol, Requested: Native}
		}
		return Native, nil
	case PreferGeneric:
		if !r.desc.CanRun(Generic) {
			return 0, &CapabilityError{Protocol: r.desc.Protocol, Requested: Generic}
		}
		return Generic, nil
	case PreferAuto:
		if r.desc.CanRun(Native) {
			return Native, nil
		}
		return Generic, nil
	default:
		return 0, fmt.Errorf("engine: unknown preference %d", uint8(pref))
	}
}

// resolveSegments lists sealed segments for kind and prunes partitions that
// cannot overlap the predicate. Listing returns sorted names, so segments
// come back in (instrument, bucket) order.
func (r *Router) resolveSegments(ctx context.Context, kind string, pred Predicate) ([]string, error) {
	prefix := partition.KindPrefix(kind)
	if pred.InstrumentID != "" {
		prefix += pred.InstrumentID + "/"
	}

	names, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var segments []string
	for _, name := range names {
		key, err := partition.ParsePath(name)
		if err != nil {
			// Staging leftovers or foreign files; sealed data only.
			continue
		}
		if !pred.Begin.IsZero() && key.Bucket.Add(r.bucket).Before(pred.Begin) {
			continue
		}
		if !pred.End.IsZero() && key.Bucket.After(pred.End) {
			continue
		}
		segments = append(segments, name)
	}
	return segments, nil
}
