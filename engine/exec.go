package engine

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/tickcat/internal/mmap"
	"github.com/quantfold/tickcat/partition"
	"github.com/quantfold/tickcat/schema"
)

// Execute runs a plan and returns a lazy, finite, forward-only sequence of
// validated records matching the plan's predicate.
//
// A plan executes at most once; re-invoke Plan to restart a query.
// Execution never mutates partition state. A corrupted segment surfaces as
// *partition.CorruptionError.
func (r *Router) Execute(ctx context.Context, plan *Plan) iter.Seq2[schema.Record, error] {
	return func(yield func(schema.Record, error) bool) {
		if !plan.consume() {
			yield(nil, fmt.Errorf("engine: plan already executed; re-plan to restart"))
			return
		}

		var segments iter.Seq2[*partition.Segment, error]
		switch plan.Engine {
		case Native:
			segments = r.nativeSegments(plan)
		case Generic:
			segments = r.genericSegments(ctx, plan)
		default:
			yield(nil, fmt.Errorf("engine: plan has no engine selected"))
			return
		}

		for seg, err := range segments {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, row := range seg.Rows {
				rec, err := r.registry.Normalize(plan.Kind, row)
				if err != nil {
					yield(nil, err)
					return
				}
				if !plan.Predicate.Matches(rec) {
					continue
				}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

// nativeSegments reads sealed segments straight from the local file system
// via mmap, one at a time. This path is synchronous, which is what the
// capability table restricts to local backends.
func (r *Router) nativeSegments(plan *Plan) iter.Seq2[*partition.Segment, error] {
	return func(yield func(*partition.Segment, error) bool) {
		if r.localRoot == "" {
			yield(nil, fmt.Errorf("engine: native engine has no local root configured"))
			return
		}
		for _, name := range plan.Segments {
			m, err := mmap.Open(filepath.Join(r.localRoot, filepath.FromSlash(name)))
			if err != nil {
				yield(nil, err)
				return
			}
			seg, err := partition.DecodeSegment(name, m.Data)
			closeErr := m.Close()
			if err == nil {
				err = closeErr
			}
			if !yield(seg, err) || err != nil {
				return
			}
		}
	}
}

// genericSegments streams sealed segments through the blobstore, prefetching
// up to r.concurrency segments ahead while still yielding them in listing
// order.
func (r *Router) genericSegments(ctx context.Context, plan *Plan) iter.Seq2[*partition.Segment, error] {
	return func(yield func(*partition.Segment, error) bool) {
		type fetched struct {
			seg *partition.Segment
			err error
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		results := make([]chan fetched, len(plan.Segments))
		for i := range results {
			results[i] = make(chan fetched, 1)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		go func() {
			for i, name := range plan.Segments {
				g.Go(func() error {
					seg, err := partition.ReadSegment(gctx, r.store, name)
					results[i] <- fetched{seg: seg, err: err}
					return err
				})
			}
			_ = g.Wait()
		}()

		for i := range results {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			select {
			case res := <-results[i]:
				if !yield(res.seg, res.err) || res.err != nil {
					return
				}
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			}
		}
	}
}
