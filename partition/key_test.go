package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFor_TruncatesToBucket(t *testing.T) {
	ts := time.Date(2024, 1, 1, 9, 47, 12, 345, time.UTC)
	k := KeyFor("trade_tick", "BTCUSDT", ts, time.Hour)

	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), k.Bucket)

	// Identical result regardless of the caller's zone.
	est := time.FixedZone("EST", -5*3600)
	k2 := KeyFor("trade_tick", "BTCUSDT", ts.In(est), time.Hour)
	assert.Equal(t, k, k2)
}

func TestKey_PathDeterministic(t *testing.T) {
	k := Key{
		Kind:         "trade_tick",
		InstrumentID: "BTCUSDT",
		Bucket:       time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, "data/trade_tick/BTCUSDT/20240101T090000Z.seg", k.Path())
	assert.Equal(t, k.Path(), k.Path())
	assert.Equal(t, "trade_tick/BTCUSDT/20240101T090000Z", k.LockName())
	assert.Equal(t, "stage/trade_tick/BTCUSDT/20240101T090000Z-w1.seg", k.StagingPath("w1"))
}

func TestKey_Validate(t *testing.T) {
	bucket := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, Key{Kind: "trade_tick", InstrumentID: "BTCUSDT", Bucket: bucket}.Validate())

	bad := []Key{
		{Kind: "", InstrumentID: "BTCUSDT", Bucket: bucket},
		{Kind: "trade_tick", InstrumentID: "", Bucket: bucket},
		{Kind: "trade/tick", InstrumentID: "BTCUSDT", Bucket: bucket},
		{Kind: "trade_tick", InstrumentID: "..", Bucket: bucket},
		{Kind: "trade_tick", InstrumentID: `a\b`, Bucket: bucket},
		{Kind: "trade_tick", InstrumentID: "BTCUSDT"},
	}
	for _, k := range bad {
		assert.Error(t, k.Validate(), "%+v", k)
	}
}

func TestParsePath_RoundTrip(t *testing.T) {
	k := Key{
		Kind:         "quote_tick",
		InstrumentID: "ETHUSDT",
		Bucket:       time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC),
	}

	got, err := ParsePath(k.Path())
	require.NoError(t, err)
	assert.Equal(t, k.Kind, got.Kind)
	assert.Equal(t, k.InstrumentID, got.InstrumentID)
	assert.True(t, got.Bucket.Equal(k.Bucket))
}

func TestParsePath_Rejects(t *testing.T) {
	bad := []string{
		"stage/trade_tick/BTCUSDT/20240101T000000Z-w1.seg",
		"data/trade_tick/BTCUSDT/20240101T000000Z",
		"data/trade_tick/20240101T000000Z.seg",
		"data/trade_tick/BTCUSDT/extra/20240101T000000Z.seg",
		"data/trade_tick/BTCUSDT/notatime.seg",
		"README.md",
	}
	for _, name := range bad {
		_, err := ParsePath(name)
		assert.Error(t, err, name)
	}
}

func TestKindPrefix(t *testing.T) {
	assert.Equal(t, "data/trade_tick/", KindPrefix("trade_tick"))
}
