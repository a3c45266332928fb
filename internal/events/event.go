package events

import (
	"time"

	"github.com/fedeegea/baggage-backend/pkg/db/models"
	"github.com/fedeegea/baggage-backend/pkg/enums"
)

// Event is one immutable fact about an item reaching a lifecycle state.
// ID is the store-assigned sequence number; zero until appended.
type Event struct {
	ID          int64
	ItemID      string
	Kind        enums.EventKind
	OccurredAt  time.Time
	Origin      string
	Destination string
	Weight      float64
}

// ProjectedStatus is the derived current state of one item.
type ProjectedStatus struct {
	ItemID      string
	State       enums.EventKind
	Origin      string
	Destination string
	Weight      float64
	LastEventAt time.Time
}

func fromModel(row models.BaggageEvent) Event {
	return Event{
		ID:          row.ID,
		ItemID:      row.ItemID,
		Kind:        row.Kind,
		OccurredAt:  row.OccurredAt,
		Origin:      row.Origin,
		Destination: row.Destination,
		Weight:      row.Weight,
	}
}

func toModel(event Event) models.BaggageEvent {
	return models.BaggageEvent{
		ItemID:      event.ItemID,
		Kind:        event.Kind,
		OccurredAt:  event.OccurredAt,
		Origin:      event.Origin,
		Destination: event.Destination,
		Weight:      event.Weight,
	}
}
