package database

import (
	"context"
	"fmt"

	"crypto-alert-bot/internal/types"

	log "github.com/sirupsen/logrus"
)

func (d *DB) SaveMetric(ctx context.Context, s types.MetricSample) error {
	query := d.db.Rebind(`
	INSERT INTO metrics (metric_name, label_key, label_value, metric_value)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (metric_name, label_key, label_value) DO UPDATE SET metric_value = excluded.metric_value;`)
	if _, err := d.db.ExecContext(ctx, query, s.Name, s.LabelKey, s.LabelValue, s.Value); err != nil {
		return fmt.Errorf("%w: failed to save metric %s: %w", types.ErrStorage, s.Name, err)
	}
	log.Debugf("Metric saved: %s[%s=%s] = %f", s.Name, s.LabelKey, s.LabelValue, s.Value)
	return nil
}

// LoadMetrics fetches every stored sample of a metric, labeled or not
func (d *DB) LoadMetrics(ctx context.Context, name string) ([]types.MetricSample, error) {
	query := d.db.Rebind(`
	SELECT metric_name, label_key, label_value, metric_value
	FROM metrics
	WHERE metric_name = ?;`)

	var samples []types.MetricSample
	if err := d.db.SelectContext(ctx, &samples, query, name); err != nil {
		return nil, fmt.Errorf("%w: failed to load metric %s: %w", types.ErrStorage, name, err)
	}
	return samples, nil
}
