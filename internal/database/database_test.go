package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crypto-alert-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestCreateAndListPending(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	id1, err := d.CreateAlert(ctx, 42, "bitcoin", 50000, types.ThresholdMin)
	require.NoError(t, err)
	id2, err := d.CreateAlert(ctx, 42, "bitcoin", 50000, types.ThresholdMin)
	require.NoError(t, err)
	id3, err := d.CreateAlert(ctx, 7, "ethereum", 3000.5, types.ThresholdMax)
	require.NoError(t, err)

	assert.Less(t, id1, id2)
	assert.Less(t, id2, id3)

	pending, err := d.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	byID := make(map[int64]types.Alert)
	for _, a := range pending {
		byID[a.ID] = a
	}
	eth := byID[id3]
	assert.Equal(t, int64(7), eth.ChatID)
	assert.Equal(t, "ethereum", eth.Currency)
	assert.Equal(t, 3000.5, eth.Threshold)
	assert.Equal(t, types.ThresholdMax, eth.ThresholdType)
	assert.False(t, eth.Delivered)
	assert.NotZero(t, eth.CreatedAt)

	chat42, err := d.ListPendingByChat(ctx, 42)
	require.NoError(t, err)
	require.Len(t, chat42, 2)
	assert.Equal(t, id1, chat42[0].ID)
	assert.Equal(t, id2, chat42[1].ID)
}

func TestMarkDelivered(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	id, err := d.CreateAlert(ctx, 42, "bitcoin", 50000, types.ThresholdMin)
	require.NoError(t, err)
	other, err := d.CreateAlert(ctx, 42, "bitcoin", 40000, types.ThresholdMin)
	require.NoError(t, err)

	require.NoError(t, d.MarkDelivered(ctx, id))

	var deliveredAt int64
	require.NoError(t, d.db.Get(&deliveredAt, `SELECT delivered_at FROM alerts WHERE id = ?`, id))

	// second call changes nothing
	require.NoError(t, d.MarkDelivered(ctx, id))
	var again int64
	require.NoError(t, d.db.Get(&again, `SELECT delivered_at FROM alerts WHERE id = ?`, id))
	assert.Equal(t, deliveredAt, again)

	// unknown id is a no-op
	require.NoError(t, d.MarkDelivered(ctx, 9999))

	pending, err := d.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, other, pending[0].ID)

	chat, err := d.ListPendingByChat(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, chat, 1)
}

func TestPurgeDelivered(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	delivered, err := d.CreateAlert(ctx, 1, "bitcoin", 1, types.ThresholdMax)
	require.NoError(t, err)
	_, err = d.CreateAlert(ctx, 1, "bitcoin", 2, types.ThresholdMax)
	require.NoError(t, err)
	require.NoError(t, d.MarkDelivered(ctx, delivered))

	n, err := d.PurgeDelivered(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = d.PurgeDelivered(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := d.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	require.NoError(t, d.SaveMetric(ctx, types.MetricSample{Name: "alerts_created", Value: 3}))
	require.NoError(t, d.SaveMetric(ctx, types.MetricSample{Name: "alerts_created", Value: 5}))
	require.NoError(t, d.SaveMetric(ctx, types.MetricSample{Name: "oracle_failures", LabelKey: "currency", LabelValue: "bitcoin", Value: 2}))
	require.NoError(t, d.SaveMetric(ctx, types.MetricSample{Name: "oracle_failures", LabelKey: "currency", LabelValue: "ethereum", Value: 1}))

	samples, err := d.LoadMetrics(ctx, "alerts_created")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 5.0, samples[0].Value)

	samples, err = d.LoadMetrics(ctx, "oracle_failures")
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	samples, err = d.LoadMetrics(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestStorageErrors(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	require.NoError(t, d.Close())

	_, err := d.CreateAlert(ctx, 1, "bitcoin", 1, types.ThresholdMin)
	assert.True(t, errors.Is(err, types.ErrStorage))

	_, err = d.ListPending(ctx)
	assert.True(t, errors.Is(err, types.ErrStorage))

	err = d.MarkDelivered(ctx, 1)
	assert.True(t, errors.Is(err, types.ErrStorage))
}

func TestMigratesLegacyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")

	legacy, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE alerts (
			id INTEGER PRIMARY KEY,
			chat_id INTEGER NOT NULL,
			currency TEXT NOT NULL,
			threshold REAL NOT NULL,
			threshold_type TEXT NOT NULL,
			delivered INTEGER DEFAULT 0
		)`)
	require.NoError(t, err)
	_, err = legacy.Exec(`INSERT INTO alerts (chat_id, currency, threshold, threshold_type) VALUES (42, 'bitcoin', 50000, 'min')`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	d, err := Open(DriverSQLite, path)
	require.NoError(t, err)
	defer d.Close()

	pending, err := d.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bitcoin", pending[0].Currency)
	assert.Zero(t, pending[0].CreatedAt)

	require.NoError(t, d.MarkDelivered(context.Background(), pending[0].ID))
	pending, err = d.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.Error(t, err)
}
