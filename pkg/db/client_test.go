package db

import (
	"context"
	"errors"
	"testing"

	"github.com/fedeegea/baggage-backend/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    "file::memory:?cache=shared",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: config.DriverSQLite}, nil)
	require.Error(t, err)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: "mysql", DSN: "whatever"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestPing(t *testing.T) {
	client := newTestClient(t)
	require.NoError(t, client.Ping(context.Background()))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	client := newTestClient(t)
	require.NoError(t, client.DB().Exec(`CREATE TABLE tx_probe (id INTEGER PRIMARY KEY, label TEXT)`).Error)

	boom := errors.New("boom")
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO tx_probe (label) VALUES ('should-roll-back')`).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, client.DB().Raw(`SELECT COUNT(*) FROM tx_probe`).Scan(&count).Error)
	assert.Zero(t, count)
}

func TestWithTxCommits(t *testing.T) {
	client := newTestClient(t)
	require.NoError(t, client.DB().Exec(`CREATE TABLE tx_commit_probe (id INTEGER PRIMARY KEY, label TEXT)`).Error)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec(`INSERT INTO tx_commit_probe (label) VALUES ('kept')`).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, client.DB().Raw(`SELECT COUNT(*) FROM tx_commit_probe`).Scan(&count).Error)
	assert.EqualValues(t, 1, count)
}
