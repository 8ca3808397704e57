package types

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrStorage           = errors.New("storage error")
	ErrOracleUnavailable = errors.New("price oracle unavailable")
	ErrValidation        = errors.New("validation error")
	ErrNotify            = errors.New("notification failed")
)

// ThresholdType is the direction of an alert's comparison.
type ThresholdType string

const (
	// ThresholdMin fires when the price drops strictly below the threshold.
	ThresholdMin ThresholdType = "min"
	// ThresholdMax fires when the price rises to or above the threshold.
	ThresholdMax ThresholdType = "max"
)

func (t ThresholdType) Valid() bool {
	return t == ThresholdMin || t == ThresholdMax
}

type Alert struct {
	ID            int64         `db:"id" json:"id"`
	ChatID        int64         `db:"chat_id" json:"chat_id"`
	Currency      string        `db:"currency" json:"currency"`
	Threshold     float64       `db:"threshold" json:"threshold"`
	ThresholdType ThresholdType `db:"threshold_type" json:"threshold_type"`
	Delivered     bool          `db:"delivered" json:"delivered"`
	CreatedAt     int64         `db:"created_at" json:"created_at"`
}

// Matches reports whether price satisfies the alert's threshold condition.
// min is strict, max is inclusive. A NaN or infinite threshold or price
// never matches.
func (a Alert) Matches(price float64) bool {
	if !isFinite(price) || !a.HasFiniteThreshold() {
		return false
	}

	cmp := decimal.NewFromFloat(price).Cmp(decimal.NewFromFloat(a.Threshold))
	switch a.ThresholdType {
	case ThresholdMin:
		return cmp < 0
	case ThresholdMax:
		return cmp >= 0
	}
	return false
}

// HasFiniteThreshold is false for rows holding NaN or ±Inf, which older
// versions of the bot accepted as input.
func (a Alert) HasFiniteThreshold() bool {
	return isFinite(a.Threshold)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type MetricSample struct {
	Name       string  `db:"metric_name"`
	LabelKey   string  `db:"label_key"`
	LabelValue string  `db:"label_value"`
	Value      float64 `db:"metric_value"`
}
