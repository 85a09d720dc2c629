// Package tickcat is an embedded catalog for immutable, time-ordered
// market-data records (trades, order-book deltas, instrument definitions).
//
// Records are validated against fixed per-kind schemas, appended to
// partitioned segment files keyed by (kind, instrument, time bucket), and
// served back through one of two interchangeable query engines:
//
//   - the native engine: embedded and synchronous, reading sealed segments
//     directly from the local file system via mmap; legal only against
//     local backends
//   - the generic engine: backend-agnostic, streaming segments through the
//     blobstore abstraction (local disk, S3, MinIO, in-memory)
//
// Engine legality is a static property of the backend protocol, enforced at
// planning time. Requesting the native engine against a remote backend is a
// hard failure, never a silent downgrade.
//
// Writers are serialized per partition with a named-lock abstraction that
// degrades to a no-op in single-process use and scales up to a distributed
// DynamoDB lock. Writes stage to a temporary path and seal with an atomic
// rename, so a failed write never corrupts a readable partition.
//
// # Quick start
//
//	cat, err := tickcat.New("file:///var/lib/tickcat")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	trade := schema.MustNew(
//		schema.Field{Name: "ts_event", Type: schema.TypeTimestampNanos},
//		schema.Field{Name: "price", Type: schema.TypeString},
//		schema.Field{Name: "size", Type: schema.TypeFloat64},
//		schema.Field{Name: "aggressor_buy", Type: schema.TypeBool},
//	)
//	if err := cat.RegisterSchema("trade_tick", trade); err != nil {
//		log.Fatal(err)
//	}
//
//	key := cat.KeyFor("trade_tick", "BTCUSDT", time.Now())
//	ack, err := cat.Write(ctx, "trade_tick", batch, key)
//
//	results, err := cat.Query(ctx, "trade_tick", engine.Predicate{
//		InstrumentID: "BTCUSDT",
//	}, engine.PreferAuto)
//	for rec, err := range results {
//		...
//	}
package tickcat
