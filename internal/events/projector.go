package events

import "sort"

// Project folds an item's event history into its current status. The fold is
// ordered by occurred_at with the store sequence id breaking ties, so the
// result is stable for any input permutation, including duplicates. Origin,
// destination and weight are carried forward from the earliest event that set
// them, since follow-up events may omit these fields.
//
// Pure function: the input slice is not mutated and may be shared between
// concurrent callers.
func Project(history []Event) (ProjectedStatus, bool) {
	if len(history) == 0 {
		return ProjectedStatus{}, false
	}

	ordered := make([]Event, len(history))
	copy(ordered, history)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].OccurredAt.Equal(ordered[j].OccurredAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
	})

	status := ProjectedStatus{ItemID: ordered[0].ItemID}
	for _, event := range ordered {
		status.State = event.Kind
		status.LastEventAt = event.OccurredAt
		if status.Origin == "" && event.Origin != "" {
			status.Origin = event.Origin
		}
		if status.Destination == "" && event.Destination != "" {
			status.Destination = event.Destination
		}
		if status.Weight == 0 && event.Weight != 0 {
			status.Weight = event.Weight
		}
	}
	return status, true
}
