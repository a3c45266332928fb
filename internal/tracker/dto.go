package tracker

import "time"

// StatusView is the tracker snapshot exposed on the ops surface.
type StatusView struct {
	ActiveCount           int              `json:"active_count"`
	MaxActive             int              `json:"max_active"`
	GenerationIntervalSec int              `json:"generation_interval_sec"`
	Items                 []ActiveItemView `json:"items"`
}

// ActiveItemView is one active item with its schedule: the absolute time of
// the next transition plus the countdown to it.
type ActiveItemView struct {
	ItemID             string    `json:"item_id"`
	State              string    `json:"state"`
	Origin             string    `json:"origin"`
	Destination        string    `json:"destination"`
	Weight             float64   `json:"weight"`
	NextActionAt       time.Time `json:"next_action_at"`
	SecondsUntilAction float64   `json:"seconds_until_next_action"`
}

func newActiveItemView(item ActiveItem, now time.Time) ActiveItemView {
	remaining := item.NextActionAt.Sub(now).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return ActiveItemView{
		ItemID:             item.ItemID,
		State:              string(item.State),
		Origin:             item.Origin,
		Destination:        item.Destination,
		Weight:             item.Weight,
		NextActionAt:       item.NextActionAt,
		SecondsUntilAction: remaining,
	}
}
