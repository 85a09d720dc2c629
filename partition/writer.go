package partition

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantfold/tickcat/blobstore"
	"github.com/quantfold/tickcat/codec"
	"github.com/quantfold/tickcat/schema"
)

// Writer appends validated rows to partitions.
//
// Writes are staged to a temporary path and committed with an atomic rename,
// so a failed write never corrupts a readable partition. Callers are
// responsible for serializing writers per partition key (see the coordinate
// package); on backends without a lock service a lost race surfaces as
// blobstore.ErrExists from the final rename.
type Writer struct {
	store blobstore.BlobStore
	cdc   codec.Codec
	comp  Compression
}

// NewWriter creates a partition writer on top of store.
func NewWriter(store blobstore.BlobStore, cdc codec.Codec, comp Compression) *Writer {
	if cdc == nil {
		cdc = codec.Default
	}
	return &Writer{store: store, cdc: cdc, comp: comp}
}

// Result describes a sealed partition write.
type Result struct {
	Path     string
	Records  int
	Checksum uint32
}

// Append appends rows to the partition identified by key and seals it.
//
// If the partition already exists its rows are loaded first and the sealed
// file is atomically replaced by the combined content; otherwise the staged
// file is linked into place without replacement so that concurrent,
// uncoordinated creators are detected rather than silently overwritten.
// token distinguishes this writer's staging file from others.
func (w *Writer) Append(ctx context.Context, key Key, rows []schema.Record, token string) (Result, error) {
	if err := key.Validate(); err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return Result{}, fmt.Errorf("partition: no rows to append")
	}

	finalPath := key.Path()

	existing, err := w.loadExisting(ctx, finalPath)
	if err != nil {
		return Result{}, err
	}

	all := make([]schema.Record, 0, len(existing)+len(rows))
	all = append(all, existing...)
	all = append(all, rows...)

	data, crc, err := EncodeSegment(key.Kind, w.cdc, w.comp, all)
	if err != nil {
		return Result{}, err
	}

	stagingPath := key.StagingPath(token)
	if err := w.stage(ctx, stagingPath, data); err != nil {
		return Result{}, err
	}

	replace := existing != nil
	if err := w.store.Rename(ctx, stagingPath, finalPath, replace); err != nil {
		_ = w.store.Delete(ctx, stagingPath)
		return Result{}, err
	}

	return Result{Path: finalPath, Records: len(all), Checksum: crc}, nil
}

// loadExisting returns the rows of an already-sealed partition, nil when the
// partition does not exist yet.
func (w *Writer) loadExisting(ctx context.Context, path string) ([]schema.Record, error) {
	seg, err := ReadSegment(ctx, w.store, path)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if seg.Rows == nil {
		seg.Rows = []schema.Record{}
	}
	return seg.Rows, nil
}

func (w *Writer) stage(ctx context.Context, path string, data []byte) error {
	wb, err := w.store.Create(ctx, path)
	if err != nil {
		return err
	}
	if _, err := wb.Write(data); err != nil {
		wb.Close()
		_ = w.store.Delete(ctx, path)
		return err
	}
	if err := wb.Sync(); err != nil {
		wb.Close()
		_ = w.store.Delete(ctx, path)
		return err
	}
	if err := wb.Close(); err != nil {
		_ = w.store.Delete(ctx, path)
		return err
	}
	return nil
}

// ReadSegment opens and decodes a sealed segment through the blobstore.
func ReadSegment(ctx context.Context, store blobstore.BlobStore, path string) (*Segment, error) {
	blob, err := store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	data, err := blobstore.ReadAll(ctx, blob)
	if err != nil {
		return nil, err
	}
	return DecodeSegment(path, data)
}
