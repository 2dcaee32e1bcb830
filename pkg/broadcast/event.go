// Package broadcast fans domain events out to every connected client.
//
// Delivery is best-effort and at-most-once per client. Each client has a
// bounded queue; when it is full the event is dropped for that client so a
// slow reader never blocks the mutation that produced the event.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event names delivered to clients.
const (
	EventNewDonation           = "newDonation"
	EventNewRequest            = "newRequest"
	EventDonationStatusUpdated = "donationStatusUpdated"
	EventRequestStatusUpdated  = "requestStatusUpdated"
)

// KnownEvents lists every event name clients may subscribe to.
var KnownEvents = []string{
	EventNewDonation,
	EventNewRequest,
	EventDonationStatusUpdated,
	EventRequestStatusUpdated,
}

// IsKnownEvent reports whether name is a published event.
func IsKnownEvent(name string) bool {
	for _, e := range KnownEvents {
		if e == name {
			return true
		}
	}
	return false
}

// Event is one notification. Data holds the full JSON record of the entity
// that changed.
type Event struct {
	ID   uuid.UUID       `json:"id"`
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
}

// NewEvent encodes payload into an event.
func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}
	return Event{
		ID:   uuid.New(),
		Name: name,
		Data: data,
		At:   time.Now().UTC(),
	}, nil
}

// Publisher is what domain services depend on to announce changes.
type Publisher interface {
	Publish(ctx context.Context, name string, payload any) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
