package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-wenjoy/internal/events"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// FulfillmentNotifier turns payment.done events into fulfillment tasks.
type FulfillmentNotifier struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
}

// Notify implements events.Notifier. Other topics are ignored.
func (n FulfillmentNotifier) Notify(ctx context.Context, ev events.Event) error {
	if ev.Topic != events.TopicPaymentDone {
		return nil
	}
	if n.Client == nil {
		return errors.New("queue: task client not configured")
	}
	var payload FulfillPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("queue: decode %s payload: %w", ev.Topic, err)
	}
	if payload.TransactionID == "" {
		payload.TransactionID = ev.AggregateID
	}
	opts := []asynq.Option{asynq.TaskID(payload.TaskID())}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	task, err := NewFulfillTask(payload, opts...)
	if err != nil {
		return err
	}
	if _, err := n.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			TasksEnqueuedTotal.WithLabelValues(TypePaymentFulfill, "duplicate").Inc()
			return nil
		}
		TasksEnqueuedTotal.WithLabelValues(TypePaymentFulfill, "error").Inc()
		return fmt.Errorf("queue: enqueue %s: %w", TypePaymentFulfill, err)
	}
	TasksEnqueuedTotal.WithLabelValues(TypePaymentFulfill, "enqueued").Inc()
	return nil
}
