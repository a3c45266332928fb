package enums

import "fmt"

// EventKind is the lifecycle state a baggage event reports.
type EventKind string

const (
	KindScanned   EventKind = "scanned"
	KindLoaded    EventKind = "loaded"
	KindDelivered EventKind = "delivered"
	KindLost      EventKind = "lost"
)

// Kinds lists every valid event kind in lifecycle order; lost is the
// out-of-band exceptional state.
func Kinds() []EventKind {
	return []EventKind{KindScanned, KindLoaded, KindDelivered, KindLost}
}

// ParseEventKind validates a wire value.
func ParseEventKind(value string) (EventKind, error) {
	switch EventKind(value) {
	case KindScanned, KindLoaded, KindDelivered, KindLost:
		return EventKind(value), nil
	default:
		return "", fmt.Errorf("unknown event kind %q", value)
	}
}

// IsTerminal reports whether no further events are expected for an item in
// this state.
func (k EventKind) IsTerminal() bool {
	return k == KindDelivered || k == KindLost
}

// IsValid reports whether the kind is one of the known lifecycle states.
func (k EventKind) IsValid() bool {
	_, err := ParseEventKind(string(k))
	return err == nil
}

func (k EventKind) String() string {
	return string(k)
}
