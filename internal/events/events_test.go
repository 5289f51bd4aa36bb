package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe("test_event", func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	require.NoError(t, bus.PublishJSON("test_event", map[string]string{"foo": "bar"}))
	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, "test_event", received.Type)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, "bar", decoded["foo"])
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2, countAll int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })
	bus.SubscribeAll(func(_ *Event) error { countAll++; return nil })

	require.NoError(t, bus.Publish(&Event{Type: "event"}))
	require.NoError(t, bus.Publish(&Event{Type: "other"}))

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
	assert.Equal(t, 2, countAll)
}

func TestEventBusHandlerError(t *testing.T) {
	bus := NewEventBus()
	var secondCalled bool

	bus.Subscribe("event", func(_ *Event) error { return errors.New("sink down") })
	bus.Subscribe("event", func(_ *Event) error { secondCalled = true; return nil })

	err := bus.Publish(&Event{Type: "event"})
	assert.EqualError(t, err, "sink down")
	assert.True(t, secondCalled)
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NoError(t, bus.Publish(&Event{Type: "unknown"}))
	assert.NoError(t, bus.PublishJSON("unknown", nil))

	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON("unknown", nil))
}

func TestReservationPayload(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := &models.Reservation{
		ID:           42,
		FacilityID:   1,
		FacilityName: "Court A",
		OwnerID:      "u-7",
		Status:       models.StatusPending,
		StartTime:    start,
		EndTime:      start.Add(90 * time.Minute),
		TotalCost:    decimal.RequireFromString("120.00"),
		Version:      1,
	}

	event, err := NewJSONEvent(EventReservationCreated, NewReservationPayload(r, "api"))
	require.NoError(t, err)
	assert.False(t, event.CreatedAt.IsZero())

	var decoded ReservationEventPayload
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	assert.Equal(t, int64(42), decoded.ReservationID)
	assert.Equal(t, "pending", decoded.Status)
	assert.Equal(t, "api", decoded.ChangedBy)
	assert.True(t, decoded.TotalCost.Equal(decimal.NewFromInt(120)))
	assert.True(t, decoded.EndTime.Equal(r.EndTime))
}

func TestEventTypeFor(t *testing.T) {
	assert.Equal(t, EventReservationConfirmed, EventTypeFor(models.StatusConfirmed))
	assert.Equal(t, EventReservationCancelled, EventTypeFor(models.StatusCancelled))
	assert.Equal(t, EventReservationCompleted, EventTypeFor(models.StatusCompleted))
	assert.Equal(t, EventReservationUpdated, EventTypeFor(models.StatusPending))
}
