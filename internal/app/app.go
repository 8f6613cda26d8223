package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Addr            string
	DatabaseURL     string // empty selects the in-memory store
	SeedGroups      string // "slug:Title;slug:Title", created at startup
	SessionLifetime time.Duration
	SessionCleanup  time.Duration
	CookieSecure    bool

	LogLevel  string
	LogFormat string // "text" or "json"

	PageCacheTTL  time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MediaDir    string
	MediaURL    string
	S3Bucket    string
	S3Region    string
	S3PublicURL string
	MaxUploadMB int64

	RateLimitRPS   float64
	RateLimitBurst int
}

// LoadConfig reads the environment, after loading an optional .env file.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Addr:            getenv("ADDR", ":8080"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		SeedGroups:      getenv("SEED_GROUPS", ""),
		SessionLifetime: time.Duration(getint("SESSION_LIFETIME_HOURS", 24*14)) * time.Hour,
		SessionCleanup:  getduration("SESSION_CLEANUP_INTERVAL", 30*time.Minute),
		CookieSecure:    getenv("COOKIE_SECURE", "false") == "true",

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "text"),

		PageCacheTTL:  getduration("PAGE_CACHE_TTL", 20*time.Second),
		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getint("REDIS_DB", 0),

		MediaDir:    getenv("MEDIA_DIR", "media"),
		MediaURL:    getenv("MEDIA_URL", "/media/"),
		S3Bucket:    getenv("S3_BUCKET", ""),
		S3Region:    getenv("S3_REGION", "us-east-1"),
		S3PublicURL: getenv("S3_PUBLIC_URL", ""),
		MaxUploadMB: int64(getint("MAX_UPLOAD_MB", 5)),

		RateLimitRPS:   getfloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst: getint("RATE_LIMIT_BURST", 10),
	}
}

// MaxUploadBytes bounds a multipart post submission.
func (c Config) MaxUploadBytes() int64 { return c.MaxUploadMB << 20 }

// NewLogger builds the process logger from the config.
func NewLogger(cfg Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getint(k string, def int) int {
	n, err := strconv.Atoi(getenv(k, ""))
	if err != nil {
		return def
	}
	return n
}

func getfloat(k string, def float64) float64 {
	f, err := strconv.ParseFloat(getenv(k, ""), 64)
	if err != nil {
		return def
	}
	return f
}

func getduration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getenv(k, ""))
	if err != nil {
		return def
	}
	return d
}

// Must aborts start-up on err.
func Must(log *logrus.Logger, err error) {
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
}
