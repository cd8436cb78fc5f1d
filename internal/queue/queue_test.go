package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-wenjoy/internal/common"
	"github.com/noah-isme/toko-wenjoy/internal/events"
	"github.com/noah-isme/toko-wenjoy/internal/queue"
)

type recordingClient struct {
	tasks []*asynq.Task
	seen  map[string]bool
	err   error
}

func (c *recordingClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.seen == nil {
		c.seen = map[string]bool{}
	}
	var payload queue.FulfillPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return nil, err
	}
	if c.seen[payload.TaskID()] {
		return nil, asynq.ErrTaskIDConflict
	}
	c.seen[payload.TaskID()] = true
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: payload.TaskID(), Type: task.Type()}, nil
}

func doneEvent(t *testing.T) events.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"transactionId": "tx-1",
		"reference":     "SO042-1",
		"state":         "done",
		"amount":        150000,
		"orderId":       "SO042",
		"orderName":     "SO042",
		"customerEmail": "buyer@example.com",
	})
	require.NoError(t, err)
	return events.Event{ID: "ev-1", Topic: events.TopicPaymentDone, AggregateID: "tx-1", Payload: payload}
}

func TestFulfillmentNotifierEnqueuesOncePerTransaction(t *testing.T) {
	client := &recordingClient{}
	n := queue.FulfillmentNotifier{Client: client, Queue: "payments", MaxRetry: 5}

	require.NoError(t, n.Notify(context.Background(), doneEvent(t)))
	require.NoError(t, n.Notify(context.Background(), doneEvent(t)))

	require.Len(t, client.tasks, 1)
	require.Equal(t, queue.TypePaymentFulfill, client.tasks[0].Type())
	var payload queue.FulfillPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, "SO042-1", payload.Reference)
	require.Equal(t, "buyer@example.com", payload.CustomerEmail)
}

func TestFulfillmentNotifierIgnoresOtherTopics(t *testing.T) {
	client := &recordingClient{}
	n := queue.FulfillmentNotifier{Client: client}
	ev := doneEvent(t)
	ev.Topic = events.TopicPaymentPending
	require.NoError(t, n.Notify(context.Background(), ev))
	require.Empty(t, client.tasks)
}

func TestFulfillmentNotifierPropagatesEnqueueErrors(t *testing.T) {
	n := queue.FulfillmentNotifier{Client: &recordingClient{err: errors.New("redis down")}}
	require.Error(t, n.Notify(context.Background(), doneEvent(t)))
}

func TestFulfillmentHandlerSendsConfirmation(t *testing.T) {
	mailer := &common.InMemoryEmail{}
	h := queue.FulfillmentHandler{Mailer: mailer, Logger: zerolog.Nop()}
	task, err := queue.NewFulfillTask(queue.FulfillPayload{
		TransactionID: "tx-1",
		Reference:     "SO042-1",
		Amount:        150000,
		OrderName:     "SO042",
		CustomerEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	sent := mailer.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "buyer@example.com", sent[0].To)
	require.Contains(t, sent[0].Subject, "SO042")
}

func TestFulfillmentHandlerSkipsRetryOnBadPayload(t *testing.T) {
	h := queue.FulfillmentHandler{Mailer: &common.InMemoryEmail{}, Logger: zerolog.Nop()}
	err := h.ProcessTask(context.Background(), asynq.NewTask(queue.TypePaymentFulfill, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewFulfillTaskRequiresTransaction(t *testing.T) {
	_, err := queue.NewFulfillTask(queue.FulfillPayload{Reference: "R"})
	require.Error(t, err)
}
