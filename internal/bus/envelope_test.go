package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedeegea/baggage-backend/internal/events"
	"github.com/fedeegea/baggage-backend/pkg/enums"
)

func validEvent() events.Event {
	return events.Event{
		ID:          42,
		ItemID:      "bag-1",
		Kind:        enums.KindScanned,
		OccurredAt:  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Origin:      "EZE",
		Destination: "MAD",
		Weight:      12.5,
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	envelope := NewEnvelope(validEvent())
	payload, err := envelope.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(payload)
	require.NoError(t, err)

	assert.Equal(t, envelope, decoded)
	assert.Equal(t, validEvent(), decoded.Event())
}

func TestNewEnvelopeMintsDistinctEventIDs(t *testing.T) {
	first := NewEnvelope(validEvent())
	second := NewEnvelope(validEvent())
	assert.NotEqual(t, first.EventID, second.EventID)
}

func TestDecodeEnvelopeRejectsInvalidPayloads(t *testing.T) {
	base := NewEnvelope(validEvent())

	cases := map[string]func(e *Envelope){
		"missing item id": func(e *Envelope) { e.ItemID = "" },
		"unknown kind":    func(e *Envelope) { e.Kind = "teleported" },
		"bad event id":    func(e *Envelope) { e.EventID = "not-a-uuid" },
		"zero occurred":   func(e *Envelope) { e.OccurredAt = time.Time{} },
		"wrong version":   func(e *Envelope) { e.Version = 2 },
		"no sequence":     func(e *Envelope) { e.Sequence = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			envelope := base
			mutate(&envelope)
			payload, err := json.Marshal(envelope)
			require.NoError(t, err)
			_, err = DecodeEnvelope(payload)
			assert.Error(t, err)
		})
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json at all"))
	assert.Error(t, err)
}
