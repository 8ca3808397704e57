package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	"crypto-alert-bot/config"
	"crypto-alert-bot/internal/alert"
	"crypto-alert-bot/internal/currency"
	"crypto-alert-bot/internal/database"
	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/session"
	"crypto-alert-bot/internal/telegram"
	"crypto-alert-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const metricsSaveInterval = 5 * time.Minute

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	translation.Configure(config.GetString("locales_path"), strings.ToLower(config.GetString("lang")))
	log.Debugf("Bot language: %s", translation.GetLanguage())

	db, err := database.Open(config.GetString("database_driver"), config.GetString("database_dsn"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	botMetrics := metrics.New(prometheus.DefaultRegisterer)
	if err := botMetrics.Load(ctx, db); err != nil {
		log.Errorf("Failed to load metrics: %v", err)
	}

	registry := currency.DefaultRegistry()
	oracle := newOracle()

	sessions, closeSessions, err := newSessionStore(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	defer closeSessions()

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	})
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	alerts := alert.NewService(db, oracle, bot, registry, botMetrics, alert.Config{
		Interval:      config.GetDuration("check_interval"),
		OracleTimeout: config.GetDuration("oracle_timeout"),
		Retention:     config.GetDuration("alert_retention"),
	})
	handler := telegram.NewHandler(bot, alerts, price.NewCache(oracle, config.GetDuration("price_cache_ttl")), sessions, registry, botMetrics)

	alerts.Start(ctx)
	go botMetrics.RunPersistence(ctx, db, metricsSaveInterval)

	server := newMetricsAndHealthServer(config.GetInt("metrics_port"), db)
	go func() {
		log.Infof("Launching metrics and health endpoint on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start metrics and health server: %v", err)
		}
	}()

	var handlers sync.WaitGroup
	handleUpdates(ctx, handler, bot.GetUpdatesChannel(), &handlers)

	log.Info("Shutting down...")
	bot.StopReceivingUpdates()
	alerts.Stop()
	handlers.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Failed to stop metrics server: %v", err)
	}
	if err := botMetrics.Save(shutdownCtx, db); err != nil {
		log.Errorf("Failed to save metrics: %v", err)
	} else {
		log.Info("Metrics saved, shutting down...")
	}
}

func setupLogging() {
	level, err := log.ParseLevel(config.GetString("log_level"))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting telegram bot...")
}

// newOracle picks the price source: an explicit price_source, else
// CoinMarketCap when an API key is set, else Coinpaprika.
func newOracle() price.Oracle {
	source := strings.ToLower(config.GetString("price_source"))
	if source == "" {
		source = "coinpaprika"
		if config.GetString("api_key") != "" {
			source = "coinmarketcap"
		}
	}

	timeout := config.GetDuration("oracle_timeout")
	switch source {
	case "coinmarketcap":
		log.Info("Using CoinMarketCap price source")
		return price.NewCoinMarketCap(config.GetString("coinmarketcap_url"), config.GetString("api_key"), timeout)
	case "coinpaprika":
		log.Info("Using Coinpaprika price source")
		return price.NewCoinpaprika(config.GetString("api_pro_key"), timeout)
	default:
		log.Fatalf("Unknown price source %q", source)
		return nil
	}
}

func newSessionStore(ctx context.Context) (session.Store, func(), error) {
	ttl := config.GetDuration("session_ttl")

	redisURL := config.GetString("redis_url")
	if redisURL == "" {
		return session.NewMemoryStore(ttl), func() {}, nil
	}

	store, err := session.NewRedisStoreFromURL(ctx, redisURL, ttl)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Using Redis session store")
	return store, func() {
		if err := store.Close(); err != nil {
			log.Errorf("Failed to close redis: %v", err)
		}
	}, nil
}

func handleUpdates(ctx context.Context, handler *telegram.Handler, updates tgbotapi.UpdatesChannel, wg *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				handleUpdate(ctx, handler, update)
			}()
		}
	}
}

func handleUpdate(ctx context.Context, handler *telegram.Handler, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, debug.Stack())
		}
	}()

	// handlers outlive the shutdown signal so an alert being saved is not cut off
	handler.HandleUpdate(context.WithoutCancel(ctx), update)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func newMetricsAndHealthServer(port int, db pinger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			log.Warnf("Health check failed: %v", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
