package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fedeegea/baggage-backend/pkg/db/models"
	"github.com/fedeegea/baggage-backend/pkg/enums"
	pkgerrors "github.com/fedeegea/baggage-backend/pkg/errors"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BaggageEvent{}))
	return db
}

func mustAppend(t *testing.T, repo *Repository, event Event) Event {
	t.Helper()
	stored, err := repo.Append(context.Background(), event)
	require.NoError(t, err)
	return stored
}

func TestAppendAssignsSequenceID(t *testing.T) {
	repo := NewRepository(testDB(t))
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	first := mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindScanned, OccurredAt: base, Origin: "EZE", Destination: "MAD", Weight: 18.2})
	second := mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindLoaded, OccurredAt: base.Add(time.Minute)})

	assert.Positive(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, "EZE", first.Origin)
}

func TestAppendRejectsMalformedEvents(t *testing.T) {
	repo := NewRepository(testDB(t))
	at := time.Now()

	cases := map[string]Event{
		"missing item id": {Kind: enums.KindScanned, OccurredAt: at},
		"invalid kind":    {ItemID: "bag-1", Kind: enums.EventKind("teleported"), OccurredAt: at},
		"zero timestamp":  {ItemID: "bag-1", Kind: enums.KindScanned},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Append(context.Background(), event)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStoreMalformed))
		})
	}
}

func TestAppendAllowsDuplicateKindPerItem(t *testing.T) {
	repo := NewRepository(testDB(t))
	at := time.Now()

	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindScanned, OccurredAt: at})
	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindScanned, OccurredAt: at.Add(time.Second)})

	history, err := repo.History(context.Background(), "bag-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	repo := NewRepository(testDB(t))
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindScanned, OccurredAt: base})
	mustAppend(t, repo, Event{ItemID: "bag-2", Kind: enums.KindScanned, OccurredAt: base.Add(2 * time.Minute)})
	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindLoaded, OccurredAt: base.Add(time.Minute)})

	rows, err := repo.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "bag-2", rows[0].ItemID)
	assert.Equal(t, enums.KindLoaded, rows[1].Kind)
}

func TestHistoryIsChronologicalPerItem(t *testing.T) {
	repo := NewRepository(testDB(t))
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose.
	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindLoaded, OccurredAt: base.Add(time.Minute)})
	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindScanned, OccurredAt: base})
	mustAppend(t, repo, Event{ItemID: "bag-2", Kind: enums.KindScanned, OccurredAt: base})

	history, err := repo.History(context.Background(), "bag-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, enums.KindScanned, history[0].Kind)
	assert.Equal(t, enums.KindLoaded, history[1].Kind)
}

func TestHistoryUnknownItemIsEmptyNotError(t *testing.T) {
	repo := NewRepository(testDB(t))

	history, err := repo.History(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLatestPerItemPicksMostRecentEvent(t *testing.T) {
	repo := NewRepository(testDB(t))
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindScanned, OccurredAt: base, Origin: "EZE", Destination: "MAD", Weight: 9.5})
	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindLoaded, OccurredAt: base.Add(time.Minute), Origin: "EZE", Destination: "MAD", Weight: 9.5})
	mustAppend(t, repo, Event{ItemID: "bag-2", Kind: enums.KindScanned, OccurredAt: base.Add(2 * time.Minute), Origin: "AEP", Destination: "COR", Weight: 22.1})

	statuses, err := repo.LatestPerItem(context.Background(), 10, false)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.Equal(t, "bag-2", statuses[0].ItemID)
	assert.Equal(t, "bag-1", statuses[1].ItemID)
	assert.Equal(t, enums.KindLoaded, statuses[1].State)
}

func TestLatestPerItemBreaksTimestampTiesBySequence(t *testing.T) {
	repo := NewRepository(testDB(t))
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindScanned, OccurredAt: at})
	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindLoaded, OccurredAt: at})

	statuses, err := repo.LatestPerItem(context.Background(), 10, false)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, enums.KindLoaded, statuses[0].State)
}

func TestLatestPerItemExcludesTerminalItems(t *testing.T) {
	repo := NewRepository(testDB(t))
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	mustAppend(t, repo, Event{ItemID: "delivered", Kind: enums.KindScanned, OccurredAt: base})
	mustAppend(t, repo, Event{ItemID: "delivered", Kind: enums.KindDelivered, OccurredAt: base.Add(time.Minute)})
	mustAppend(t, repo, Event{ItemID: "lost", Kind: enums.KindScanned, OccurredAt: base})
	mustAppend(t, repo, Event{ItemID: "lost", Kind: enums.KindLost, OccurredAt: base.Add(time.Minute)})
	mustAppend(t, repo, Event{ItemID: "in-flight", Kind: enums.KindLoaded, OccurredAt: base.Add(time.Minute)})

	statuses, err := repo.LatestPerItem(context.Background(), 10, true)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "in-flight", statuses[0].ItemID)
}

func TestLatestPerItemEmptyStore(t *testing.T) {
	repo := NewRepository(testDB(t))

	statuses, err := repo.LatestPerItem(context.Background(), 10, false)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestAggregateCounts(t *testing.T) {
	repo := NewRepository(testDB(t))
	now := time.Now()

	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindScanned, OccurredAt: now.Add(-48 * time.Hour)})
	mustAppend(t, repo, Event{ItemID: "bag-1", Kind: enums.KindLoaded, OccurredAt: now.Add(-time.Hour)})
	mustAppend(t, repo, Event{ItemID: "bag-2", Kind: enums.KindScanned, OccurredAt: now.Add(-time.Minute)})

	counts, err := repo.CountsByKind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[enums.KindScanned])
	assert.Equal(t, int64(1), counts[enums.KindLoaded])

	distinct, err := repo.DistinctItemCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), distinct)

	recent, err := repo.CountSince(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), recent)
}
