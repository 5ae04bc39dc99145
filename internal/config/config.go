package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPipelineConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	Timezone    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	CronSecret          string
	AdminAPIKey         string
	StripeWebhookSecret string

	// UnitPrice is the per-piece charge in yen.
	UnitPrice int64

	Registry  RegistryConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
}

type RegistryConfig struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	SnapshotBucket string
	AWSRegion      string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	TriggerRate  float64
	TriggerBurst int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type SchedulerConfig struct {
	Enabled     bool
	EnabledJobs []string
	FetchAt     string
	LockAt      string
	SettleAt    string
}

const (
	DefaultRegistryURL  = "https://www.houjin-bangou.nta.go.jp/download/sabun/index.html"
	DefaultUserAgent    = "Mozilla/5.0 (compatible; KigyoSearchBot/1.0)"
	DefaultUnitPrice    = 380
	DefaultTimezone     = "Asia/Tokyo"
	DefaultCancelReason = "ユーザーキャンセル"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "kigyomail"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		Timezone:     getenv("APP_TIMEZONE", DefaultTimezone),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kigyomail"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		CronSecret:          strings.TrimSpace(getenv("CRON_SECRET", "")),
		AdminAPIKey:         strings.TrimSpace(getenv("ADMIN_API_KEY", "")),
		StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		UnitPrice:           getenvInt64("UNIT_PRICE", DefaultUnitPrice),

		Registry: RegistryConfig{
			BaseURL:        getenv("REGISTRY_BASE_URL", DefaultRegistryURL),
			UserAgent:      getenv("REGISTRY_USER_AGENT", DefaultUserAgent),
			Timeout:        time.Duration(getenvInt("REGISTRY_TIMEOUT_SECONDS", 60)) * time.Second,
			SnapshotBucket: strings.TrimSpace(getenv("REGISTRY_SNAPSHOT_BUCKET", "")),
			AWSRegion:      getenv("AWS_REGION", "ap-northeast-1"),
		},
		Redis: RedisConfig{
			Addr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:     strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:           getenvInt("REDIS_DB", 0),
			TriggerRate:  getenvFloat("TRIGGER_RATE", 0.2),
			TriggerBurst: getenvInt("TRIGGER_BURST", 3),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			EnabledJobs: splitList(getenv("SCHEDULER_JOBS", "")),
			FetchAt:     getenv("SCHEDULER_FETCH_AT", "09:00"),
			LockAt:      getenv("SCHEDULER_LOCK_AT", "16:30"),
			SettleAt:    getenv("SCHEDULER_SETTLE_AT", "23:00"),
		},
	}

	return cfg
}

// Location resolves the configured timezone, falling back to JST.
func (c Config) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
