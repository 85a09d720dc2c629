// Package ddblock implements the coordinate.Locker contract on DynamoDB.
//
// A lock is one item keyed by lock name, written with a conditional put
// that succeeds only when the item is absent or its lease has expired.
// Leases bound the damage of a crashed holder: its locks become acquirable
// again once the lease runs out.
//
// Table schema:
//   - Partition key: lock_name (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name tickcat-locks \
//	  --attribute-definitions AttributeName=lock_name,AttributeType=S \
//	  --key-schema AttributeName=lock_name,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
package ddblock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/quantfold/tickcat/coordinate"
)

// Client is the interface for the DynamoDB operations the locker needs.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Options configures a Locker.
type Options struct {
	// Lease is how long an acquired lock stays valid without release.
	// Default: 30s.
	Lease time.Duration
	// PollInterval is the wait between contended acquisition attempts.
	// Default: 250ms.
	PollInterval time.Duration
}

// Locker is a DynamoDB-backed distributed named lock.
type Locker struct {
	client       Client
	tableName    string
	lease        time.Duration
	pollInterval time.Duration
}

// New creates a Locker using the given DynamoDB client and table.
func New(client Client, tableName string, optFns ...func(*Options)) *Locker {
	opts := Options{
		Lease:        30 * time.Second,
		PollInterval: 250 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Locker{
		client:       client,
		tableName:    tableName,
		lease:        opts.Lease,
		pollInterval: opts.PollInterval,
	}
}

// Acquire implements coordinate.Locker. It polls the conditional put until
// the lock is granted, the timeout elapses, or ctx is cancelled.
func (l *Locker) Acquire(ctx context.Context, name, holder string, timeout time.Duration) (*coordinate.Handle, error) {
	deadline := time.Now().Add(timeout)

	for {
		acquiredAt := time.Now()
		err := l.tryPut(ctx, name, holder, acquiredAt)
		if err == nil {
			return &coordinate.Handle{Name: name, Holder: holder, AcquiredAt: acquiredAt}, nil
		}

		var condErr *types.ConditionalCheckFailedException
		if !errors.As(err, &condErr) {
			return nil, fmt.Errorf("ddblock: acquire %q: %w", name, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &coordinate.TimeoutError{Name: name, Timeout: timeout}
		}
		wait := l.pollInterval
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (l *Locker) tryPut(ctx context.Context, name, holder string, acquiredAt time.Time) error {
	expires := acquiredAt.Add(l.lease).UnixNano()
	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item: map[string]types.AttributeValue{
			"lock_name":  &types.AttributeValueMemberS{Value: name},
			"holder":     &types.AttributeValueMemberS{Value: holder},
			"expires_at": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)},
		},
		ConditionExpression: aws.String("attribute_not_exists(lock_name) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", acquiredAt.UnixNano())},
		},
	})
	return err
}

// Release implements coordinate.Locker. The delete is conditional on the
// holder so that a lock re-acquired after lease expiry is not torn down by
// the previous holder.
func (l *Locker) Release(ctx context.Context, h *Handle) error {
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"lock_name": &types.AttributeValueMemberS{Value: h.Name},
		},
		ConditionExpression: aws.String("holder = :holder"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":holder": &types.AttributeValueMemberS{Value: h.Holder},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			// Someone else holds it now (our lease expired); nothing to do.
			return nil
		}
		return fmt.Errorf("ddblock: release %q: %w", h.Name, err)
	}
	return nil
}

// Handle aliases coordinate.Handle for readability in this package.
type Handle = coordinate.Handle
