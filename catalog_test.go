package tickcat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tickcat/backend"
	"github.com/quantfold/tickcat/blobstore"
	"github.com/quantfold/tickcat/coordinate"
	"github.com/quantfold/tickcat/engine"
	"github.com/quantfold/tickcat/schema"
)

func tradeSchema() *schema.RecordSchema {
	return schema.MustNew(
		schema.Field{Name: "ts_event", Type: schema.TypeTimestampNanos},
		schema.Field{Name: "price", Type: schema.TypeString},
		schema.Field{Name: "size", Type: schema.TypeFloat64},
		schema.Field{Name: "seq", Type: schema.TypeInt64},
		schema.Field{Name: "aggressor_buy", Type: schema.TypeBool},
	)
}

func newTestCatalog(t *testing.T, uri string, opts ...Option) *Catalog {
	t.Helper()
	c, err := New(uri, opts...)
	require.NoError(t, err)
	require.NoError(t, c.RegisterSchema("trade_tick", tradeSchema()))
	return c
}

func trade(ts time.Time, price string, seq int64) schema.Record {
	return schema.Record{
		"ts_event":      ts,
		"price":         price,
		"size":          1.25,
		"seq":           seq,
		"aggressor_buy": seq%2 == 0,
	}
}

func collectAll(t *testing.T, c *Catalog, kind string, pred engine.Predicate, pref engine.Preference) []schema.Record {
	t.Helper()
	seq, err := c.Query(context.Background(), kind, pred, pref)
	require.NoError(t, err)
	var recs []schema.Record
	for rec, err := range seq {
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	return recs
}

func TestNew_URIs(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "file", c.Backend().Protocol)
	assert.True(t, c.Backend().SupportsNative)

	c, err = New("memory://")
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Backend().Protocol)
	assert.False(t, c.Backend().SupportsNative)

	_, err = New("s3://bucket/prefix")
	require.Error(t, err, "remote backends need an explicit store")

	_, err = New("")
	require.Error(t, err)
}

func TestCatalog_WriteQueryRoundTrip(t *testing.T) {
	for _, uri := range []string{"file", "memory://"} {
		name := uri
		if uri == "file" {
			uri = t.TempDir()
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestCatalog(t, uri)

			// 501 odd nanoseconds: the UnixNano value exceeds 2^53, so any
			// float64 step in the read path would round it away.
			ts := time.Date(2024, 1, 1, 9, 30, 0, 501, time.UTC)
			records := []schema.Record{
				trade(ts, "42001.55", 1),
				trade(ts.Add(time.Second), "42001.60", 9007199254740993),
			}

			ack, err := c.Write(ctx, "trade_tick", records, c.KeyFor("trade_tick", "BTCUSDT", ts))
			require.NoError(t, err)
			assert.Equal(t, 2, ack.Records)
			assert.NotEmpty(t, ack.Path)
			assert.NotZero(t, ack.Checksum)

			recs := collectAll(t, c, "trade_tick", engine.Predicate{}, engine.PreferAuto)
			require.Len(t, recs, 2)

			// Every field comes back with its canonical type and exact value.
			assert.Equal(t, ts.UnixNano(), recs[0]["ts_event"])
			assert.Equal(t, "42001.55", recs[0]["price"])
			assert.Equal(t, 1.25, recs[0]["size"])
			assert.Equal(t, int64(1), recs[0]["seq"])
			assert.Equal(t, false, recs[0]["aggressor_buy"])

			assert.Equal(t, ts.Add(time.Second).UnixNano(), recs[1]["ts_event"])
			assert.Equal(t, int64(9007199254740993), recs[1]["seq"])
			assert.Equal(t, false, recs[1]["aggressor_buy"])
		})
	}
}

func TestCatalog_SchemaRegistration(t *testing.T) {
	c := newTestCatalog(t, "memory://")

	// Identical re-registration is a no-op.
	require.NoError(t, c.RegisterSchema("trade_tick", tradeSchema()))

	conflicting := schema.MustNew(
		schema.Field{Name: "ts_event", Type: schema.TypeTimestampNanos},
	)
	err := c.RegisterSchema("trade_tick", conflicting)
	var conflict *SchemaConflictError
	require.True(t, errors.As(err, &conflict))
}

func TestCatalog_WriteRejectsBadBatchAtomically(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, "memory://")

	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	key := c.KeyFor("trade_tick", "BTCUSDT", ts)

	_, err := c.Write(ctx, "trade_tick", []schema.Record{trade(ts, "1.0", 1)}, key)
	require.NoError(t, err)

	// One bad record anywhere in the batch rejects the whole batch.
	bad := trade(ts.Add(time.Second), "2.0", 2)
	bad["price"] = 2.0
	batch := []schema.Record{trade(ts.Add(time.Minute), "3.0", 3), bad}

	_, err = c.Write(ctx, "trade_tick", batch, key)
	var violation *SchemaViolationError
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "price", violation.Field)

	// The partition still holds only the first write.
	recs := collectAll(t, c, "trade_tick", engine.Predicate{}, engine.PreferAuto)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0]["seq"])
}

func TestCatalog_WriteValidation(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, "memory://")
	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	_, err := c.Write(ctx, "trade_tick", nil, c.KeyFor("trade_tick", "BTCUSDT", ts))
	require.Error(t, err)

	_, err = c.Write(ctx, "trade_tick", []schema.Record{trade(ts, "1.0", 1)}, c.KeyFor("quote_tick", "BTCUSDT", ts))
	require.Error(t, err, "key kind must match the written kind")

	_, err = c.Write(ctx, "unregistered", []schema.Record{trade(ts, "1.0", 1)}, c.KeyFor("unregistered", "BTCUSDT", ts))
	var violation *SchemaViolationError
	require.True(t, errors.As(err, &violation))
}

func TestCatalog_ConcurrentWritersSerialized(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, t.TempDir(), WithLocker(coordinate.NewLocalLocker()))

	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	key := c.KeyFor("trade_tick", "BTCUSDT", ts)

	const writers = 3
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Write(ctx, "trade_tick", []schema.Record{
				trade(ts.Add(time.Duration(i)*time.Second), "1.0", int64(i)),
			}, key)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Serialized read-merge-write: no writer's record is lost.
	recs := collectAll(t, c, "trade_tick", engine.Predicate{}, engine.PreferAuto)
	assert.Len(t, recs, writers)
}

func TestCatalog_LockTimeoutSurfaces(t *testing.T) {
	ctx := context.Background()
	locker := coordinate.NewLocalLocker()
	c := newTestCatalog(t, "memory://",
		WithLocker(locker),
		WithLockTimeout(20*time.Millisecond),
	)

	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	key := c.KeyFor("trade_tick", "BTCUSDT", ts)

	h, err := locker.Acquire(ctx, key.LockName(), "other-process", time.Second)
	require.NoError(t, err)
	defer locker.Release(ctx, h)

	_, err = c.Write(ctx, "trade_tick", []schema.Record{trade(ts, "1.0", 1)}, key)
	var timeout *LockTimeoutError
	require.True(t, errors.As(err, &timeout))

	// Nothing was written while locked out.
	assert.Empty(t, collectAll(t, c, "trade_tick", engine.Predicate{}, engine.PreferAuto))
}

// conflictStore forces the sealing rename to lose, simulating a concurrent
// uncoordinated writer sealing the partition first.
type conflictStore struct {
	*blobstore.MemoryStore
}

func (s conflictStore) Rename(ctx context.Context, oldName, newName string, replace bool) error {
	if !replace {
		return blobstore.ErrExists
	}
	return s.MemoryStore.Rename(ctx, oldName, newName, replace)
}

func TestCatalog_WriteConflictSurfaces(t *testing.T) {
	ctx := context.Background()
	store := conflictStore{MemoryStore: blobstore.NewMemoryStore()}
	c, err := NewWithStore(backend.ForProtocol("memory"), store)
	require.NoError(t, err)
	require.NoError(t, c.RegisterSchema("trade_tick", tradeSchema()))

	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	key := c.KeyFor("trade_tick", "BTCUSDT", ts)

	_, err = c.Write(ctx, "trade_tick", []schema.Record{trade(ts, "1.0", 1)}, key)
	var conflict *WriteConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, key.Path(), conflict.Path)
	assert.True(t, errors.Is(err, blobstore.ErrExists))
}

func TestCatalog_QueryPreferences(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, "memory://")

	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := c.Write(ctx, "trade_tick", []schema.Record{trade(ts, "1.0", 1)}, c.KeyFor("trade_tick", "BTCUSDT", ts))
	require.NoError(t, err)

	// The memory backend cannot run the native engine: a demand fails hard.
	_, err = c.Query(ctx, "trade_tick", engine.Predicate{}, engine.PreferNative)
	var capErr *BackendCapabilityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, "memory", capErr.Protocol)

	// Auto degrades the engine choice, not the query.
	recs := collectAll(t, c, "trade_tick", engine.Predicate{}, engine.PreferAuto)
	assert.Len(t, recs, 1)
}

func TestCatalog_QueryBackend(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, t.TempDir())

	// Stage data in a second, foreign backend and query it through the same
	// catalog's schema registry.
	other := blobstore.NewMemoryStore()
	scratch, err := NewWithStore(backend.ForProtocol("memory"), other)
	require.NoError(t, err)
	require.NoError(t, scratch.RegisterSchema("trade_tick", tradeSchema()))
	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err = scratch.Write(ctx, "trade_tick", []schema.Record{trade(ts, "5.5", 9)}, scratch.KeyFor("trade_tick", "BTCUSDT", ts))
	require.NoError(t, err)

	seq, err := c.QueryBackend(ctx, "trade_tick", engine.Predicate{}, backend.ForProtocol("memory"), other, engine.PreferAuto)
	require.NoError(t, err)
	var recs []schema.Record
	for rec, err := range seq {
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	require.Len(t, recs, 1)
	assert.Equal(t, "5.5", recs[0]["price"])

	// Capability enforcement applies to explicit backends too.
	_, err = c.QueryBackend(ctx, "trade_tick", engine.Predicate{}, backend.ForProtocol("s3"), other, engine.PreferNative)
	var capErr *BackendCapabilityError
	require.True(t, errors.As(err, &capErr))
}

func TestCatalog_QueryTimeWindow(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, t.TempDir(), WithBucketDuration(time.Hour))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 3; h++ {
		ts := base.Add(time.Duration(h) * time.Hour)
		_, err := c.Write(ctx, "trade_tick", []schema.Record{trade(ts, "1.0", int64(h))}, c.KeyFor("trade_tick", "BTCUSDT", ts))
		require.NoError(t, err)
	}

	recs := collectAll(t, c, "trade_tick", engine.Predicate{
		InstrumentID: "BTCUSDT",
		Begin:        base.Add(time.Hour),
		End:          base.Add(time.Hour),
	}, engine.PreferAuto)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0]["seq"])
}

func TestCatalog_Metrics(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	c := newTestCatalog(t, "memory://", WithMetricsCollector(metrics))

	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := c.Write(ctx, "trade_tick", []schema.Record{trade(ts, "1.0", 1)}, c.KeyFor("trade_tick", "BTCUSDT", ts))
	require.NoError(t, err)
	_, err = c.Write(ctx, "trade_tick", nil, c.KeyFor("trade_tick", "BTCUSDT", ts))
	require.Error(t, err)

	collectAll(t, c, "trade_tick", engine.Predicate{}, engine.PreferAuto)

	assert.Equal(t, int64(2), metrics.WriteCount.Load())
	assert.Equal(t, int64(1), metrics.WriteErrors.Load())
	assert.Equal(t, int64(1), metrics.WriteRecords.Load())
	assert.Equal(t, int64(1), metrics.QueryCount.Load())
	assert.Equal(t, int64(1), metrics.QueryGeneric.Load())
}

func TestCatalog_SequentialAppendsAccumulate(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, t.TempDir())

	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	key := c.KeyFor("trade_tick", "BTCUSDT", ts)

	for i := 0; i < 3; i++ {
		ack, err := c.Write(ctx, "trade_tick", []schema.Record{
			trade(ts.Add(time.Duration(i)*time.Second), "1.0", int64(i)),
		}, key)
		require.NoError(t, err)
		assert.Equal(t, i+1, ack.Records, "ack reports the partition total")
	}

	recs := collectAll(t, c, "trade_tick", engine.Predicate{}, engine.PreferNative)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, int64(i), rec["seq"], fmt.Sprintf("record %d", i))
	}
}
