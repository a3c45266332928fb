package models

import (
	"time"

	"github.com/fedeegea/baggage-backend/pkg/enums"
)

// BaggageEvent is one append-only row in the event log. The internal sequence
// id breaks ordering ties between events sharing an occurred_at timestamp.
type BaggageEvent struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	ItemID      string          `gorm:"column:item_id;not null;index:idx_baggage_events_item_id"`
	Kind        enums.EventKind `gorm:"column:kind;not null;index:idx_baggage_events_kind"`
	OccurredAt  time.Time       `gorm:"column:occurred_at;not null;index:idx_baggage_events_occurred_at"`
	Origin      string          `gorm:"column:origin"`
	Destination string          `gorm:"column:destination"`
	Weight      float64         `gorm:"column:weight"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name used by the goose migrations.
func (BaggageEvent) TableName() string {
	return "baggage_events"
}
