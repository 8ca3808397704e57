package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		// a missing .env is fine, the environment may already be populated
		_ = godotenv.Load()

		viper.AutomaticEnv()

		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
		viper.BindEnv("api_key", "COINMARKETCAP_API_KEY", "API_KEY")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("price_source", "PRICE_SOURCE")
		viper.BindEnv("coinmarketcap_url", "COINMARKETCAP_URL")
		viper.BindEnv("check_interval", "CHECK_INTERVAL")
		viper.BindEnv("oracle_timeout", "ORACLE_TIMEOUT")
		viper.BindEnv("price_cache_ttl", "PRICE_CACHE_TTL")
		viper.BindEnv("database_driver", "DATABASE_DRIVER")
		viper.BindEnv("database_dsn", "DATABASE_DSN")
		viper.BindEnv("redis_url", "REDIS_URL")
		viper.BindEnv("session_ttl", "SESSION_TTL")
		viper.BindEnv("alert_retention", "ALERT_RETENTION")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("log_level", "LOG_LEVEL")
		viper.BindEnv("lang", "BOT_LANG")
		viper.BindEnv("locales_path", "LOCALES_PATH")

		viper.SetDefault("coinmarketcap_url", "https://pro-api.coinmarketcap.com/v2/cryptocurrency/quotes/latest")
		viper.SetDefault("check_interval", time.Minute)
		viper.SetDefault("oracle_timeout", 10*time.Second)
		viper.SetDefault("price_cache_ttl", 30*time.Second)
		viper.SetDefault("database_driver", "sqlite")
		viper.SetDefault("database_dsn", "alerts.db")
		viper.SetDefault("session_ttl", 30*time.Minute)
		viper.SetDefault("alert_retention", time.Duration(0))
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("log_level", "info")
		viper.SetDefault("lang", "en")
		viper.SetDefault("locales_path", "locales")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

// GetDuration accepts Go duration strings ("90s", "5m") for env values.
func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
