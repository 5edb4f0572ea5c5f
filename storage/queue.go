package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"taskflow-api/domain"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// ChangeQueue publishes entity change events to an Azure storage queue.
type ChangeQueue struct {
	client queueClient
	create func(ctx context.Context) error
}

// NewChangeQueue creates a publisher for the named queue.
func NewChangeQueue(connStr, queue string) (*ChangeQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Minute,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	qc, err := azqueue.NewQueueClientFromConnectionString(connStr, queue, &opts)
	if err != nil {
		return nil, err
	}
	create := func(ctx context.Context) error {
		_, err := qc.Create(ctx, nil)
		return err
	}
	return &ChangeQueue{client: qc, create: create}, nil
}

// EnsureQueue creates the queue, tolerating one that already exists.
func (q *ChangeQueue) EnsureQueue(ctx context.Context) error {
	if q.create == nil {
		return nil
	}
	if err := q.create(ctx); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			return nil
		}
		return err
	}
	return nil
}

// Publish enqueues one change event.
func (q *ChangeQueue) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueMessage(ctx, string(data), nil)
	return err
}
