package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/shopspring/decimal"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationUpdated   = "reservation_updated"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationCancelled = "reservation_cancelled"
	EventReservationCompleted = "reservation_completed"
)

// EventTypeFor maps a lifecycle target status to its event type.
func EventTypeFor(status models.Status) string {
	switch status {
	case models.StatusConfirmed:
		return EventReservationConfirmed
	case models.StatusCancelled:
		return EventReservationCancelled
	case models.StatusCompleted:
		return EventReservationCompleted
	default:
		return EventReservationUpdated
	}
}

// ReservationEventPayload is the reservation snapshot sent to consumers.
type ReservationEventPayload struct {
	ReservationID int64           `json:"reservation_id"`
	FacilityID    int64           `json:"facility_id"`
	FacilityName  string          `json:"facility_name"`
	OwnerID       string          `json:"owner_id"`
	OwnerName     string          `json:"owner_name,omitempty"`
	Status        string          `json:"status"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Purpose       string          `json:"purpose,omitempty"`
	Version       int64           `json:"version"`
	ChangedBy     string          `json:"changed_by,omitempty"`
}

// NewReservationPayload snapshots a reservation.
func NewReservationPayload(r *models.Reservation, changedBy string) ReservationEventPayload {
	return ReservationEventPayload{
		ReservationID: r.ID,
		FacilityID:    r.FacilityID,
		FacilityName:  r.FacilityName,
		OwnerID:       r.OwnerID,
		OwnerName:     r.OwnerName,
		Status:        r.Status.String(),
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		TotalCost:     r.TotalCost,
		Purpose:       r.Purpose,
		Version:       r.Version,
		ChangedBy:     changedBy,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	all         []EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler that sees every event.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish notifies subscribers of the event type. The first handler error is
// returned after every handler has run.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers[event.Type])+len(b.all))
	handlers = append(handlers, b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
