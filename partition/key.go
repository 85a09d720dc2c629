// Package partition defines the unit of storage and atomicity: one sealed
// segment file per (record kind, instrument, time bucket).
//
// Partitions are append-only while staged and immutable once sealed. A
// writer stages under stage/ and commits with an atomic rename into data/,
// so listings of data/ never observe a half-written partition.
package partition

import (
	"fmt"
	"strings"
	"time"
)

const (
	// dataPrefix is where sealed segments live.
	dataPrefix = "data"
	// stagePrefix is where unsealed segments are staged before rename.
	stagePrefix = "stage"
	// segmentExt is the sealed segment file extension.
	segmentExt = ".seg"

	bucketStampLayout = "20060102T150405Z"
)

// Key identifies one partition: the atomic, independently lockable unit of
// stored records.
type Key struct {
	Kind         string
	InstrumentID string
	Bucket       time.Time
}

// KeyFor builds the partition key covering ts for the given bucket duration.
func KeyFor(kind, instrumentID string, ts time.Time, bucket time.Duration) Key {
	return Key{
		Kind:         kind,
		InstrumentID: instrumentID,
		Bucket:       ts.UTC().Truncate(bucket),
	}
}

// Validate checks that the key produces a safe, unambiguous storage path.
func (k Key) Validate() error {
	for _, part := range []struct{ name, v string }{
		{"kind", k.Kind},
		{"instrument", k.InstrumentID},
	} {
		if part.v == "" {
			return fmt.Errorf("partition: empty %s", part.name)
		}
		if strings.ContainsAny(part.v, "/\\") || part.v == "." || part.v == ".." {
			return fmt.Errorf("partition: %s %q contains path separators", part.name, part.v)
		}
	}
	if k.Bucket.IsZero() {
		return fmt.Errorf("partition: zero time bucket")
	}
	return nil
}

// Path returns the deterministic sealed-segment path for this key, e.g.
// "data/trade_tick/BTCUSDT/20240101T000000Z.seg".
func (k Key) Path() string {
	return dataPrefix + "/" + k.Kind + "/" + k.InstrumentID + "/" + k.stamp() + segmentExt
}

// StagingPath returns the temporary path a writer stages to before sealing.
// token makes concurrent stagings of the same key distinguishable.
func (k Key) StagingPath(token string) string {
	return stagePrefix + "/" + k.Kind + "/" + k.InstrumentID + "/" + k.stamp() + "-" + token + segmentExt
}

// LockName returns the name used for this partition's write lock.
func (k Key) LockName() string {
	return k.Kind + "/" + k.InstrumentID + "/" + k.stamp()
}

func (k Key) stamp() string {
	return k.Bucket.UTC().Format(bucketStampLayout)
}

// String implements fmt.Stringer.
func (k Key) String() string { return k.LockName() }

// KindPrefix returns the listing prefix for all sealed segments of a kind.
func KindPrefix(kind string) string {
	return dataPrefix + "/" + kind + "/"
}

// ParsePath parses a sealed segment path produced by Key.Path back into its
// key. It rejects anything that does not look like a sealed segment.
func ParsePath(name string) (Key, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 4 || parts[0] != dataPrefix || !strings.HasSuffix(parts[3], segmentExt) {
		return Key{}, fmt.Errorf("partition: %q is not a sealed segment path", name)
	}
	stamp := strings.TrimSuffix(parts[3], segmentExt)
	bucket, err := time.Parse(bucketStampLayout, stamp)
	if err != nil {
		return Key{}, fmt.Errorf("partition: %q has invalid bucket stamp: %w", name, err)
	}
	return Key{Kind: parts[1], InstrumentID: parts[2], Bucket: bucket}, nil
}
