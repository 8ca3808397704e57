package alert

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"crypto-alert-bot/internal/currency"
	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/translation"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Store is the durable alert table.
type Store interface {
	CreateAlert(ctx context.Context, chatID int64, currency string, threshold float64, thresholdType types.ThresholdType) (int64, error)
	ListPending(ctx context.Context) ([]types.Alert, error)
	ListPendingByChat(ctx context.Context, chatID int64) ([]types.Alert, error)
	MarkDelivered(ctx context.Context, alertID int64) error
	PurgeDelivered(ctx context.Context, before time.Time) (int64, error)
}

type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	// Interval between the starts of two evaluation cycles.
	Interval time.Duration
	// OracleTimeout bounds a single price fetch.
	OracleTimeout time.Duration
	// CycleTimeout bounds a whole cycle; zero picks a default.
	CycleTimeout time.Duration
	// Retention > 0 purges delivered alerts older than it after each cycle.
	Retention time.Duration
}

// Result summarizes one evaluation cycle.
type Result struct {
	Pending      int
	Delivered    int
	Skipped      int
	NotifyFailed int
}

type Service struct {
	store    Store
	oracle   price.Oracle
	notifier Notifier
	registry *currency.Registry
	metrics  *metrics.Metrics
	config   Config

	// mu is held for a whole evaluation cycle and for every insert, so an
	// alert is either fully visible to a cycle or not at all.
	mu sync.Mutex

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

func NewService(store Store, oracle price.Oracle, notifier Notifier, registry *currency.Registry, m *metrics.Metrics, c Config) *Service {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = 10 * time.Second
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 5 * time.Minute
	}

	return &Service{
		store:    store,
		oracle:   oracle,
		notifier: notifier,
		registry: registry,
		metrics:  m,
		config:   c,
		stop:     make(chan struct{}),
	}
}

// ParseThreshold turns user input like "50000", "49 999.5" or "0,35" into a threshold.
func ParseThreshold(text string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, errors.Wrapf(types.ErrValidation, "%q is not a number", text)
	}
	if d.IsNegative() {
		return 0, errors.Wrapf(types.ErrValidation, "%q is negative", text)
	}

	f := d.InexactFloat64()
	if math.IsInf(f, 0) {
		return 0, errors.Wrapf(types.ErrValidation, "%q is out of range", text)
	}
	return f, nil
}

// CreateAlert stores a pending alert for chatID.
func (s *Service) CreateAlert(ctx context.Context, chatID int64, symbol string, threshold float64, thresholdType types.ThresholdType) (int64, error) {
	if _, ok := s.registry.Lookup(symbol); !ok {
		return 0, errors.Wrapf(types.ErrValidation, "unknown currency %q", symbol)
	}
	if !thresholdType.Valid() {
		return 0, errors.Wrapf(types.ErrValidation, "unknown threshold type %q", thresholdType)
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold < 0 {
		return 0, errors.Wrapf(types.ErrValidation, "invalid threshold %v", threshold)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.store.CreateAlert(ctx, chatID, strings.ToLower(symbol), threshold, thresholdType)
	if err != nil {
		return 0, err
	}

	s.metrics.AlertsCreated.Inc()
	log.WithFields(log.Fields{
		"id":             id,
		"chat_id":        chatID,
		"currency":       symbol,
		"threshold":      threshold,
		"threshold_type": thresholdType,
	}).Info("Alert created")
	return id, nil
}

// PendingAlerts lists the alerts of a chat that have not fired yet.
func (s *Service) PendingAlerts(ctx context.Context, chatID int64) ([]types.Alert, error) {
	return s.store.ListPendingByChat(ctx, chatID)
}

// CheckAlerts runs one evaluation cycle. It fails only when the pending
// alerts cannot be loaded; price and notification failures leave the
// affected alerts pending for the next cycle.
func (s *Service) CheckAlerts(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		s.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	log.Debug("🔄 Checking alerts...")

	var res Result
	alerts, err := s.store.ListPending(ctx)
	if err != nil {
		s.metrics.Cycles.WithLabelValues("failed").Inc()
		return res, err
	}
	res.Pending = len(alerts)
	s.metrics.PendingAlerts.Set(float64(len(alerts)))

	prices := s.fetchPrices(ctx, alerts)

	for _, a := range alerts {
		fields := log.Fields{
			"id":             a.ID,
			"chat_id":        a.ChatID,
			"currency":       a.Currency,
			"threshold":      a.Threshold,
			"threshold_type": a.ThresholdType,
		}

		if !a.HasFiniteThreshold() {
			res.Skipped++
			log.WithFields(fields).Warn("⚠️ Alert has a non-finite threshold and can never fire, skipping")
			continue
		}

		p, ok := prices[a.Currency]
		if !ok {
			res.Skipped++
			continue
		}

		if !a.Matches(p) {
			continue
		}

		if err := s.notifier.Notify(ctx, a.ChatID, s.notification(a, p)); err != nil {
			res.NotifyFailed++
			s.metrics.NotifyFailures.Inc()
			log.WithFields(fields).WithError(err).Warn("❌ Failed to send alert notification, alert stays pending")
			continue
		}

		if err := s.store.MarkDelivered(ctx, a.ID); err != nil {
			// the user got the message; a retry next cycle may repeat it
			log.WithFields(fields).WithError(err).Error("Failed to mark alert delivered")
			continue
		}

		res.Delivered++
		s.metrics.AlertsDelivered.Inc()
		log.WithFields(fields).WithField("price", p).Info("✅ Alert delivered")
	}

	if s.config.Retention > 0 {
		n, err := s.store.PurgeDelivered(ctx, time.Now().Add(-s.config.Retention))
		if err != nil {
			log.WithError(err).Warn("Failed to purge delivered alerts")
		} else if n > 0 {
			log.Infof("Purged %d delivered alerts", n)
		}
	}

	s.metrics.Cycles.WithLabelValues("ok").Inc()
	log.WithFields(log.Fields{
		"pending":       res.Pending,
		"delivered":     res.Delivered,
		"skipped":       res.Skipped,
		"notify_failed": res.NotifyFailed,
	}).Debug("Alert check completed.")
	return res, nil
}

// fetchPrices asks the oracle once per distinct currency. Currencies whose
// price could not be fetched are missing from the result.
func (s *Service) fetchPrices(ctx context.Context, alerts []types.Alert) map[string]float64 {
	prices := make(map[string]float64)
	tried := make(map[string]bool)

	for _, a := range alerts {
		if tried[a.Currency] {
			continue
		}
		tried[a.Currency] = true

		cur, ok := s.registry.Lookup(a.Currency)
		if !ok {
			s.metrics.OracleFailures.WithLabelValues(a.Currency).Inc()
			log.WithField("currency", a.Currency).Warn("⚠️ Pending alerts for unknown currency")
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.config.OracleTimeout)
		p, err := s.oracle.GetPrice(fetchCtx, cur)
		cancel()
		if err != nil {
			s.metrics.OracleFailures.WithLabelValues(cur.Symbol).Inc()
			log.WithField("currency", cur.Symbol).WithError(err).Warn("⚠️ No price data, skipping currency this cycle")
			continue
		}
		prices[a.Currency] = p
	}
	return prices
}

func (s *Service) notification(a types.Alert, p float64) string {
	name := a.Currency
	if cur, ok := s.registry.Lookup(a.Currency); ok {
		name = cur.Name
	}

	if a.ThresholdType == types.ThresholdMin {
		return translation.Translate(
			"Attention! %s price fell below the minimum threshold of %s USD and is now %s USD",
			name, formatAmount(a.Threshold), formatAmount(p),
		)
	}
	return translation.Translate(
		"Attention! %s price reached the maximum threshold of %s USD and is now %s USD",
		name, formatAmount(a.Threshold), formatAmount(p),
	)
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
