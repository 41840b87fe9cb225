package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	Host      HostConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Webhook   WebhookConfig
	Tracing   TracingConfig
	RateLimit RateLimitConfig
	Functions FunctionsConfig
}

type HostConfig struct {
	Addr string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
	Retention     time.Duration
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency     int
	MaxActiveStages int
	MetricsAddr     string
}

const (
	StorageBackendMinio = "minio"
	StorageBackendLocal = "local"
)

type StorageConfig struct {
	Backend   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	LocalDir  string
}

type DatabaseConfig struct {
	DSN string
}

type WebhookConfig struct {
	URL    string
	Secret string
}

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
	SampleRatio  float64
}

type RateLimitConfig struct {
	Enabled  bool
	Capacity int
	Window   time.Duration
}

type FunctionsConfig struct {
	Prefix      string
	Arch        string
	DebugTraces bool
}

func Load() Config {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	return Config{
		Host: HostConfig{
			Addr: env("PIXELBENCH_HOST_ADDR", ":8080"),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "stages"),
			Retention:     envDuration("ASYNC_RESULT_RETENTION", 10*time.Minute),
		},
		Worker: WorkerConfig{
			Concurrency:     envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveStages: envInt("WORKER_MAX_ACTIVE_STAGES", defaultWorkerSlots),
			MetricsAddr:     env("WORKER_METRICS_ADDR", ":9091"),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(env("STORAGE_BACKEND", StorageBackendMinio)),
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "pixelbench-outputs"),
			Region:    env("MINIO_REGION", "us-east-2"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
			LocalDir:  env("STORAGE_LOCAL_DIR", "./.pixelbench-output"),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Webhook: WebhookConfig{
			URL:    env("WEBHOOK_URL", ""),
			Secret: env("WEBHOOK_SECRET", ""),
		},
		Tracing: TracingConfig{
			Exporter:     env("OTEL_TRACES_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio:  envFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		},
		RateLimit: RateLimitConfig{
			Enabled:  envBool("RATE_LIMIT_ENABLED", false),
			Capacity: envInt("RATE_LIMIT_CAPACITY", 100),
			Window:   envDuration("RATE_LIMIT_WINDOW", time.Second),
		},
		Functions: FunctionsConfig{
			Prefix:      env("FUNCTION_PREFIX", "pixel_func"),
			Arch:        env("FUNCTION_ARCH", DefaultArch()),
			DebugTraces: envBool("STAGE_DEBUG_TRACES", false),
		},
	}
}

// DefaultArch names the variant label for the running CPU.
func DefaultArch() string {
	switch runtime.GOARCH {
	case "amd64", "386":
		return "x86"
	case "arm64", "arm":
		return "arm"
	default:
		return runtime.GOARCH
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
