package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	HTTPTimeout time.Duration

	StoreDriver string // mysql|memory
	MySQLDSN    string

	CacheDriver string // redis|memory|none
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration

	NotifyWebhookURL string
	NotifyRPS        int
	MailTo           string
	MailFrom         string

	MaxPageSize int

	SeedFile    string
	SeedWorkers int
}

// Load reads the environment. A .env file in the working directory, when
// present, fills in variables that are not already set.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg(".env loaded")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ""),
		HTTPTimeout: time.Duration(atoi("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,

		StoreDriver: strings.ToLower(env("STORE_DRIVER", "mysql")),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/cityinfo?parseTime=true&charset=utf8mb4&loc=UTC"),

		CacheDriver: strings.ToLower(env("CACHE_DRIVER", "redis")),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,

		NotifyWebhookURL: env("NOTIFY_WEBHOOK_URL", ""),
		NotifyRPS:        atoi("NOTIFY_RPS", 5),
		MailTo:           env("MAIL_TO", "admin@mycompany.com"),
		MailFrom:         env("MAIL_FROM", "noreply@mycompany.com"),

		MaxPageSize: atoi("MAX_PAGE_SIZE", 20),

		SeedFile:    env("SEED_FILE", "seed/cities.json"),
		SeedWorkers: atoi("SEED_WORKERS", 4),
	}
	if c.StoreDriver == "memory" && c.AppEnv == "prod" {
		log.Warn().Msg("STORE_DRIVER=memory: data is lost on restart")
	}
	return c
}

func env(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
