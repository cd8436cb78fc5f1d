package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-wenjoy/internal/events"
)

type stubStore struct {
	last events.Event
	err  error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, ev events.Event) (events.Event, error) {
	if s.err != nil {
		return events.Event{}, s.err
	}
	ev.ID = uuid.NewString()
	ev.OccurredAt = time.Now()
	s.last = ev
	return ev, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	payload := map[string]any{"reference": "ref-1"}
	event, err := bus.Emit(context.Background(), events.TopicPaymentDone, "tx-1", payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicPaymentDone, store.last.Topic)
	require.Equal(t, "tx-1", store.last.AggregateID)
	require.JSONEq(t, `{"reference":"ref-1"}`, string(store.last.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "ref-1", decoded["reference"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", "tx-1", nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicPaymentDone, "", nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicPaymentDone, "tx-1", "not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicPaymentDone, "tx-1", nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	first := &captureNotifier{err: errors.New("boom")}
	second := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{first, nil, second}}

	_, err := bus.Emit(context.Background(), events.TopicPaymentPending, "tx-2", nil)
	require.ErrorContains(t, err, "boom")
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
}

func TestEmitPropagatesStoreError(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{err: errors.New("db down")}, Notifiers: []events.Notifier{notifier}}

	_, err := bus.Emit(context.Background(), events.TopicPaymentCanceled, "tx-3", nil)
	require.ErrorContains(t, err, "db down")
	require.Empty(t, notifier.events)
}
