package database

import (
	"context"
	"fmt"
	"time"

	"crypto-alert-bot/internal/types"

	log "github.com/sirupsen/logrus"
)

const alertColumns = `id, chat_id, currency, threshold, threshold_type, delivered, created_at`

// CreateAlert saves a new pending alert and returns its id
func (d *DB) CreateAlert(ctx context.Context, chatID int64, currency string, threshold float64, thresholdType types.ThresholdType) (int64, error) {
	now := time.Now().Unix()

	var id int64
	if d.driver == DriverPostgres {
		query := d.db.Rebind(`
		INSERT INTO alerts (chat_id, currency, threshold, threshold_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id;`)
		if err := d.db.QueryRowxContext(ctx, query, chatID, currency, threshold, string(thresholdType), now).Scan(&id); err != nil {
			return 0, fmt.Errorf("%w: failed to insert alert: %w", types.ErrStorage, err)
		}
	} else {
		query := `
		INSERT INTO alerts (chat_id, currency, threshold, threshold_type, created_at)
		VALUES (?, ?, ?, ?, ?);`
		res, err := d.db.ExecContext(ctx, query, chatID, currency, threshold, string(thresholdType), now)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to insert alert: %w", types.ErrStorage, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("%w: failed to read alert id: %w", types.ErrStorage, err)
		}
	}

	log.WithFields(log.Fields{
		"id":             id,
		"chat_id":        chatID,
		"currency":       currency,
		"threshold":      threshold,
		"threshold_type": thresholdType,
	}).Debug("Alert inserted")
	return id, nil
}

// ListPending fetches every alert that has not been delivered yet
func (d *DB) ListPending(ctx context.Context) ([]types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE delivered = FALSE;`

	var alerts []types.Alert
	if err := d.db.SelectContext(ctx, &alerts, query); err != nil {
		return nil, fmt.Errorf("%w: failed to query pending alerts: %w", types.ErrStorage, err)
	}
	return alerts, nil
}

// ListPendingByChat fetches the pending alerts of one chat, oldest first
func (d *DB) ListPendingByChat(ctx context.Context, chatID int64) ([]types.Alert, error) {
	query := d.db.Rebind(`SELECT ` + alertColumns + ` FROM alerts WHERE chat_id = ? AND delivered = FALSE ORDER BY id;`)

	var alerts []types.Alert
	if err := d.db.SelectContext(ctx, &alerts, query, chatID); err != nil {
		return nil, fmt.Errorf("%w: failed to query alerts for chat ID %d: %w", types.ErrStorage, chatID, err)
	}
	return alerts, nil
}

// MarkDelivered flags an alert as delivered. Already delivered or unknown
// ids are left untouched.
func (d *DB) MarkDelivered(ctx context.Context, alertID int64) error {
	query := d.db.Rebind(`UPDATE alerts SET delivered = TRUE, delivered_at = ? WHERE id = ? AND delivered = FALSE;`)
	if _, err := d.db.ExecContext(ctx, query, time.Now().Unix(), alertID); err != nil {
		return fmt.Errorf("%w: failed to mark alert %d delivered: %w", types.ErrStorage, alertID, err)
	}
	return nil
}

// PurgeDelivered removes alerts delivered before the given time
func (d *DB) PurgeDelivered(ctx context.Context, before time.Time) (int64, error) {
	query := d.db.Rebind(`DELETE FROM alerts WHERE delivered = TRUE AND delivered_at IS NOT NULL AND delivered_at < ?;`)
	res, err := d.db.ExecContext(ctx, query, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: failed to purge delivered alerts: %w", types.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count purged alerts: %w", types.ErrStorage, err)
	}
	return n, nil
}
