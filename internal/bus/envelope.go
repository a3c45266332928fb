package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fedeegea/baggage-backend/internal/events"
	"github.com/fedeegea/baggage-backend/pkg/enums"
)

// EnvelopeVersion is the wire schema version carried on every message.
const EnvelopeVersion = 1

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the versioned wire format for one baggage event. Consumers
// validate it before touching any field; anything that fails validation is
// counted and dropped, never processed.
type Envelope struct {
	Version     int       `json:"version" validate:"required,eq=1"`
	EventID     string    `json:"event_id" validate:"required,uuid"`
	Sequence    int64     `json:"sequence" validate:"required,gt=0"`
	ItemID      string    `json:"item_id" validate:"required"`
	Kind        string    `json:"kind" validate:"required,oneof=scanned loaded delivered lost"`
	OccurredAt  time.Time `json:"occurred_at" validate:"required"`
	Origin      string    `json:"origin,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Weight      float64   `json:"weight,omitempty" validate:"gte=0"`
}

// NewEnvelope wraps a stored event for the wire, minting a fresh message id.
// Redeliveries of the same bus message keep the same id, which is what the
// consumer's idempotency guard keys on.
func NewEnvelope(event events.Event) Envelope {
	return Envelope{
		Version:     EnvelopeVersion,
		EventID:     uuid.NewString(),
		Sequence:    event.ID,
		ItemID:      event.ItemID,
		Kind:        string(event.Kind),
		OccurredAt:  event.OccurredAt,
		Origin:      event.Origin,
		Destination: event.Destination,
		Weight:      event.Weight,
	}
}

// Encode serializes the envelope after validating it.
func (e Envelope) Encode() ([]byte, error) {
	if err := validate.Struct(e); err != nil {
		return nil, fmt.Errorf("envelope validation: %w", err)
	}
	return json.Marshal(e)
}

// Event converts a decoded envelope back into the domain event.
func (e Envelope) Event() events.Event {
	return events.Event{
		ID:          e.Sequence,
		ItemID:      e.ItemID,
		Kind:        enums.EventKind(e.Kind),
		OccurredAt:  e.OccurredAt,
		Origin:      e.Origin,
		Destination: e.Destination,
		Weight:      e.Weight,
	}
}

// DecodeEnvelope parses and validates a wire payload. Unknown versions and
// missing fields are decode errors, not handler errors.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("envelope decode: %w", err)
	}
	if err := validate.Struct(envelope); err != nil {
		return Envelope{}, fmt.Errorf("envelope validation: %w", err)
	}
	return envelope, nil
}
