package ddblock

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tickcat/coordinate"
)

// fakeClient emulates the two conditional operations the locker uses on a
// single in-memory table.
type fakeClient struct {
	mu    sync.Mutex
	items map[string]lockItem
}

type lockItem struct {
	holder    string
	expiresAt int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]lockItem)}
}

func attrS(av types.AttributeValue) string {
	return av.(*types.AttributeValueMemberS).Value
}

func attrN(av types.AttributeValue) int64 {
	n, _ := strconv.ParseInt(av.(*types.AttributeValueMemberN).Value, 10, 64)
	return n
}

func (f *fakeClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := attrS(params.Item["lock_name"])
	now := attrN(params.ExpressionAttributeValues[":now"])

	// attribute_not_exists(lock_name) OR expires_at < :now
	if existing, ok := f.items[name]; ok && existing.expiresAt >= now {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[name] = lockItem{
		holder:    attrS(params.Item["holder"]),
		expiresAt: attrN(params.Item["expires_at"]),
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := attrS(params.Key["lock_name"])
	holder := attrS(params.ExpressionAttributeValues[":holder"])

	existing, ok := f.items[name]
	if !ok || existing.holder != holder {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(f.items, name)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	l := New(client, "tickcat-locks")

	h, err := l.Acquire(ctx, "trade_tick/BTCUSDT/a", "w1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "w1", h.Holder)
	require.NoError(t, l.Release(ctx, h))

	// Free again after release.
	h2, err := l.Acquire(ctx, "trade_tick/BTCUSDT/a", "w2", time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, h2))
}

func TestLocker_ContendedTimesOut(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	l := New(client, "tickcat-locks", func(o *Options) {
		o.PollInterval = 5 * time.Millisecond
	})

	h, err := l.Acquire(ctx, "a", "w1", time.Second)
	require.NoError(t, err)
	defer l.Release(ctx, h)

	_, err = l.Acquire(ctx, "a", "w2", 30*time.Millisecond)
	var te *coordinate.TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "a", te.Name)
}

func TestLocker_ExpiredLeaseIsAcquirable(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	l := New(client, "tickcat-locks", func(o *Options) {
		o.Lease = time.Nanosecond
		o.PollInterval = time.Millisecond
	})

	// Acquire and abandon; the nanosecond lease expires immediately.
	_, err := l.Acquire(ctx, "a", "crashed", time.Second)
	require.NoError(t, err)

	h, err := l.Acquire(ctx, "a", "w2", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "w2", h.Holder)
}

func TestLocker_ReleaseAfterLeaseTakeoverIsNoop(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	l := New(client, "tickcat-locks", func(o *Options) {
		o.Lease = time.Nanosecond
		o.PollInterval = time.Millisecond
	})

	stale, err := l.Acquire(ctx, "a", "w1", time.Second)
	require.NoError(t, err)

	// Lease expires; another holder takes over with a long lease.
	long := New(client, "tickcat-locks")
	current, err := long.Acquire(ctx, "a", "w2", time.Second)
	require.NoError(t, err)

	// Stale holder's release must not tear down the new holder's lock.
	require.NoError(t, l.Release(ctx, stale))

	_, err = long.Acquire(ctx, "a", "w3", 20*time.Millisecond)
	var te *coordinate.TimeoutError
	require.True(t, errors.As(err, &te), "lock should still be held by w2")

	require.NoError(t, long.Release(ctx, current))
}

func TestLocker_ContextCancelDuringPoll(t *testing.T) {
	client := newFakeClient()
	l := New(client, "tickcat-locks", func(o *Options) {
		o.PollInterval = 10 * time.Millisecond
	})

	h, err := l.Acquire(context.Background(), "a", "w1", time.Second)
	require.NoError(t, err)
	defer l.Release(context.Background(), h)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	_, err = l.Acquire(ctx, "a", "w2", time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
