package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port            string
	MaxUploadMB     int
	ShutdownTimeout time.Duration
	// RemoteInputs accepts "url" form fields as tool inputs.
	RemoteInputs bool
}

// ToolsConfig holds the defaults applied when a request leaves an option out.
type ToolsConfig struct {
	PageSize       string // a4|letter|auto
	Fit            string // contain|cover
	MarginPt       float64
	MaxImageSide   int
	MaxImagePixels int
	RenderScale    float64
	JPEGQuality    float64
	MaxRenderPages int
}

// QueueConfig defines queue connectivity and names. An empty RedisURL
// disables async jobs.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
	// Run starts the dispatcher in this process.
	Run                bool
	Concurrency        int
	JobMaxAttempts     int
	RetryBaseDelay     time.Duration
	RetryBackoffFactor float64
	JobTimeout         time.Duration
}

// ArtifactsConfig selects where job inputs and outputs live.
type ArtifactsConfig struct {
	Backend    string // local|redis|s3
	Dir        string
	TTL        time.Duration
	SealSecret string
}

// S3Config configures the S3 artifact backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// LimitsConfig configures request throttling.
type LimitsConfig struct {
	RequestsPerMinute int
	ConcurrentRenders int
	// TrustedProxies are IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	HTTP      HTTPConfig
	Tools     ToolsConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Artifacts ArtifactsConfig
	S3        S3Config
	Limits    LimitsConfig
}

// Load reads the given .env files (default ".env") into the environment,
// without overriding variables that are already set, then returns FromEnv.
// Missing files are skipped.
func Load(paths ...string) (Config, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	return FromEnv(), nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/minitools.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_minitools",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.HTTP = HTTPConfig{
		Port:            getEnv("PORT", "8080"),
		MaxUploadMB:     parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "15s"), 15*time.Second),
		RemoteInputs:    parseBool(getEnv("ALLOW_REMOTE_INPUTS", "0")),
	}

	cfg.Tools = ToolsConfig{
		PageSize:       strings.ToLower(getEnv("DEFAULT_PAGE_SIZE", "a4")),
		Fit:            strings.ToLower(getEnv("DEFAULT_FIT", "contain")),
		MarginPt:       parseFloat(getEnv("DEFAULT_MARGIN_PT", "12"), 12),
		MaxImageSide:   parseInt(getEnv("MAX_IMAGE_SIDE", "2000"), 2000),
		MaxImagePixels: parseInt(getEnv("MAX_IMAGE_PIXELS", "50000000"), 50000000),
		RenderScale:    parseFloat(getEnv("RENDER_SCALE", "1.5"), 1.5),
		JPEGQuality:    parseFloat(getEnv("JPEG_QUALITY", "0.85"), 0.85),
		MaxRenderPages: parseInt(getEnv("MAX_RENDER_PAGES", "200"), 200),
	}

	// Queue defaults
	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", ""),
		Stream:       getEnv("QUEUE_STREAM", "jobs:tools"),
		Group:        getEnv("QUEUE_GROUP", "workers:tools"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
	}

	// Worker defaults
	cfg.Worker = WorkerConfig{
		Run:                parseBool(getEnv("RUN_DISPATCHER", "1")),
		Concurrency:        parseInt(getEnv("WORKER_CONCURRENCY", "4"), 4),
		JobMaxAttempts:     parseInt(getEnv("JOB_MAX_ATTEMPTS", "3"), 3),
		RetryBaseDelay:     parseDuration(getEnv("RETRY_BASE_DELAY", "2s"), 2*time.Second),
		RetryBackoffFactor: parseFloat(getEnv("RETRY_BACKOFF_FACTOR", "2.0"), 2.0),
		JobTimeout:         parseDuration(getEnv("JOB_TIMEOUT", "5m"), 5*time.Minute),
	}
	if cfg.Worker.Concurrency < 1 {
		cfg.Worker.Concurrency = 1
	}
	if cfg.Worker.JobMaxAttempts < 1 {
		cfg.Worker.JobMaxAttempts = 1
	}

	cfg.Artifacts = ArtifactsConfig{
		Backend:    strings.ToLower(getEnv("ARTIFACT_BACKEND", "local")),
		Dir:        getEnv("ARTIFACT_DIR", "artifacts"),
		TTL:        parseDuration(getEnv("ARTIFACT_TTL", "1h"), time.Hour),
		SealSecret: getEnv("ARTIFACT_SEAL_SECRET", ""),
	}

	cfg.S3 = S3Config{
		Bucket:          getEnv("S3_BUCKET", ""),
		Region:          getEnv("AWS_REGION", "eu-central-1"),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		Prefix:          getEnv("S3_PREFIX", "minitools/"),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	cfg.Limits = LimitsConfig{
		RequestsPerMinute: parseInt(getEnv("RATE_LIMIT_PER_MINUTE", "60"), 60),
		ConcurrentRenders: parseInt(getEnv("MAX_CONCURRENT_RENDERS", "2"), 2),
		TrustedProxies:    splitList(getEnv("TRUSTED_PROXIES", "")),
	}

	return cfg
}

// AsyncEnabled reports whether a queue is configured.
func (c Config) AsyncEnabled() bool { return c.Queue.RedisURL != "" }

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
