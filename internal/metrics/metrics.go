package metrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"crypto-alert-bot/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const namespace = "crypto_alert"

// Store persists counters between restarts.
type Store interface {
	SaveMetric(ctx context.Context, s types.MetricSample) error
	LoadMetrics(ctx context.Context, name string) ([]types.MetricSample, error)
}

type Metrics struct {
	CommandsProcessed  prometheus.Counter
	MessagesHandled    prometheus.Counter
	ChannelsCount      prometheus.Gauge
	MessagesPerChannel *prometheus.CounterVec

	AlertsCreated   prometheus.Counter
	AlertsDelivered prometheus.Counter
	NotifyFailures  prometheus.Counter
	OracleFailures  *prometheus.CounterVec
	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	PendingAlerts   prometheus.Gauge

	mu       sync.Mutex
	channels map[int64]struct{}
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram_bot",
			Name:      "commands_processed",
			Help:      "The total number of processed commands and button presses",
		}),
		MessagesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram_bot",
			Name:      "messages_handled",
			Help:      "The total number of handled messages",
		}),
		ChannelsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "telegram_bot",
			Name:      "channels_count",
			Help:      "The current number of unique chats the bot is operating in",
		}),
		MessagesPerChannel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram_bot",
			Name:      "messages_per_channel",
			Help:      "The total number of messages handled per chat",
		}, []string{"chat_id"}),
		AlertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "alerts_created",
			Help:      "The total number of alerts created",
		}),
		AlertsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "alerts_delivered",
			Help:      "The total number of alerts delivered",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "notify_failures",
			Help:      "The total number of failed alert notifications",
		}),
		OracleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "oracle_failures",
			Help:      "The total number of failed price fetches per currency",
		}, []string{"currency"}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "cycles",
			Help:      "The total number of evaluation cycles by result",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of evaluation cycles",
			Buckets:   prometheus.DefBuckets,
		}),
		PendingAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "pending_alerts",
			Help:      "Pending alerts seen by the last evaluation cycle",
		}),
		channels: make(map[int64]struct{}),
	}

	reg.MustRegister(
		m.CommandsProcessed,
		m.MessagesHandled,
		m.ChannelsCount,
		m.MessagesPerChannel,
		m.AlertsCreated,
		m.AlertsDelivered,
		m.NotifyFailures,
		m.OracleFailures,
		m.Cycles,
		m.CycleDuration,
		m.PendingAlerts,
	)
	return m
}

// TrackMessage counts a message from chatID and remembers the chat.
func (m *Metrics) TrackMessage(chatID int64) {
	m.MessagesHandled.Inc()
	m.MessagesPerChannel.WithLabelValues(strconv.FormatInt(chatID, 10)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.channels[chatID]; !exists {
		m.channels[chatID] = struct{}{}
		m.ChannelsCount.Set(float64(len(m.channels)))
	}
}

func (m *Metrics) counters() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"commands_processed": m.CommandsProcessed,
		"messages_handled":   m.MessagesHandled,
		"alerts_created":     m.AlertsCreated,
		"alerts_delivered":   m.AlertsDelivered,
		"notify_failures":    m.NotifyFailures,
	}
}

type labeledCounter struct {
	vec   *prometheus.CounterVec
	label string
}

func (m *Metrics) labeledCounters() map[string]labeledCounter {
	return map[string]labeledCounter{
		"messages_per_channel": {vec: m.MessagesPerChannel, label: "chat_id"},
		"oracle_failures":      {vec: m.OracleFailures, label: "currency"},
	}
}

// Load restores persisted counters. Call once, before anything is counted.
func (m *Metrics) Load(ctx context.Context, store Store) error {
	for name, c := range m.counters() {
		samples, err := store.LoadMetrics(ctx, name)
		if err != nil {
			return err
		}
		for _, s := range samples {
			if s.LabelKey == "" {
				c.Add(s.Value)
			}
		}
	}

	for name, lc := range m.labeledCounters() {
		samples, err := store.LoadMetrics(ctx, name)
		if err != nil {
			return err
		}
		for _, s := range samples {
			if s.LabelKey != lc.label {
				continue
			}
			lc.vec.WithLabelValues(s.LabelValue).Add(s.Value)

			if name == "messages_per_channel" {
				chatID, err := strconv.ParseInt(s.LabelValue, 10, 64)
				if err != nil {
					log.Warnf("Failed to parse chatID %s: %v", s.LabelValue, err)
					continue
				}
				m.mu.Lock()
				m.channels[chatID] = struct{}{}
				m.mu.Unlock()
			}
		}
	}

	m.mu.Lock()
	m.ChannelsCount.Set(float64(len(m.channels)))
	m.mu.Unlock()

	log.Info("Metrics loaded from database.")
	return nil
}

// Save writes the current counter values to store.
func (m *Metrics) Save(ctx context.Context, store Store) error {
	for name, c := range m.counters() {
		if err := store.SaveMetric(ctx, types.MetricSample{Name: name, Value: counterValue(c)}); err != nil {
			return err
		}
	}

	for name, lc := range m.labeledCounters() {
		metricChan := make(chan prometheus.Metric)
		go func() {
			lc.vec.Collect(metricChan)
			close(metricChan)
		}()

		var samples []types.MetricSample
		for metric := range metricChan {
			metricProto := &dto.Metric{}
			if err := metric.Write(metricProto); err != nil {
				log.Warnf("Failed to read %s metric: %v", name, err)
				continue
			}
			for _, label := range metricProto.GetLabel() {
				if label.GetName() == lc.label {
					samples = append(samples, types.MetricSample{
						Name:       name,
						LabelKey:   lc.label,
						LabelValue: label.GetValue(),
						Value:      metricProto.GetCounter().GetValue(),
					})
				}
			}
		}

		for _, s := range samples {
			if err := store.SaveMetric(ctx, s); err != nil {
				return err
			}
		}
	}

	log.Debug("Metrics saved to database.")
	return nil
}

// RunPersistence saves metrics every interval until ctx is done.
func (m *Metrics) RunPersistence(ctx context.Context, store Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Save(ctx, store); err != nil {
				log.Errorf("Failed to save metrics: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func counterValue(c prometheus.Counter) float64 {
	metricProto := &dto.Metric{}
	if err := c.Write(metricProto); err != nil {
		log.Warnf("Failed to read metric value: %v", err)
		return 0
	}
	return metricProto.GetCounter().GetValue()
}
