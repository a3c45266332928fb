package events

import "time"

// Sentinel values substituted for absent fields on the all-items view, kept
// verbatim from the dashboard contract.
const (
	SentinelUnknownState = "desconocido"
	SentinelUnspecified  = "No especificado"
)

// EventRecord is the serialized form of one stored event.
type EventRecord struct {
	ID          int64     `json:"id"`
	ItemID      string    `json:"item_id"`
	Kind        string    `json:"kind"`
	OccurredAt  time.Time `json:"occurred_at"`
	Origin      string    `json:"origin,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Weight      float64   `json:"weight,omitempty"`
}

// ItemView is one row of the all-items listing. Absent fields are replaced
// with explicit sentinels instead of nulls.
type ItemView struct {
	ItemID      string    `json:"item_id"`
	State       string    `json:"state"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Weight      float64   `json:"weight"`
	LastEventAt time.Time `json:"last_event_at"`
}

// StatsView aggregates advisory statistics about the event log. Errored
// sub-computations degrade to zero values, never to a failed response.
type StatsView struct {
	ByKind        map[string]int64 `json:"by_kind"`
	Last24h       int64            `json:"last_24h"`
	DistinctItems int64            `json:"distinct_items"`
}

func newEventRecord(event Event) EventRecord {
	return EventRecord{
		ID:          event.ID,
		ItemID:      event.ItemID,
		Kind:        string(event.Kind),
		OccurredAt:  event.OccurredAt,
		Origin:      event.Origin,
		Destination: event.Destination,
		Weight:      event.Weight,
	}
}

func newItemView(status ProjectedStatus) ItemView {
	view := ItemView{
		ItemID:      status.ItemID,
		State:       string(status.State),
		Origin:      status.Origin,
		Destination: status.Destination,
		Weight:      status.Weight,
		LastEventAt: status.LastEventAt,
	}
	if view.State == "" {
		view.State = SentinelUnknownState
	}
	if view.Origin == "" {
		view.Origin = SentinelUnspecified
	}
	if view.Destination == "" {
		view.Destination = SentinelUnspecified
	}
	return view
}
