package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	UploadDir  string `env:"UPLOAD_DIR" default:"uploads"`
	ResultsDir string `env:"RESULTS_DIR" default:"results"`

	FaceEngineURL     string        `env:"FACE_ENGINE_URL"`
	FaceEngineTimeout time.Duration `env:"FACE_ENGINE_TIMEOUT" default:"30s"`
	FFmpegPath        string        `env:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath       string        `env:"FFPROBE_PATH" default:"ffprobe"`

	BatchSize     int `env:"BATCH_SIZE" default:"4"`
	SwapWorkers   int `env:"SWAP_WORKERS" default:"4"`
	JobWorkers    int `env:"JOB_WORKERS" default:"2"`
	JobQueueSize  int `env:"JOB_QUEUE_SIZE" default:"32"`
	MaxFrames     int `env:"MAX_FRAMES" default:"0"`
	FaceCacheSize int `env:"FACE_CACHE_SIZE" default:"256"`

	MaxUploadBytes          int64 `env:"MAX_UPLOAD_BYTES" default:"209715200"` // 200 MiB
	MaxWebSocketConnections int   `env:"MAX_WEBSOCKET_CONNECTIONS" default:"1000"`
	RateLimitPerMinute      int   `env:"RATE_LIMIT_PER_MINUTE" default:"60"`

	SessionIdleTimeout   time.Duration `env:"SESSION_IDLE_TIMEOUT" default:"300s"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" default:"60s"`
	FileMaxAge           time.Duration `env:"FILE_MAX_AGE" default:"24h"`
	CleanupInterval      time.Duration `env:"CLEANUP_INTERVAL" default:"12h"`
	JobRetention         time.Duration `env:"JOB_RETENTION" default:"24h"`

	// Optional infrastructure; each is only wired when its URL is set.
	DatabaseURL  string `env:"DATABASE_URL"`
	RedisURL     string `env:"REDIS_URL"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" default:"faceswap.jobs"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"FACE_ENGINE_URL": cfg.FaceEngineURL,
		"UPLOAD_DIR":      cfg.UploadDir,
		"RESULTS_DIR":     cfg.ResultsDir,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	positive := map[string]int{
		"BATCH_SIZE":     cfg.BatchSize,
		"SWAP_WORKERS":   cfg.SwapWorkers,
		"JOB_WORKERS":    cfg.JobWorkers,
		"JOB_QUEUE_SIZE": cfg.JobQueueSize,

		"RATE_LIMIT_PER_MINUTE":     cfg.RateLimitPerMinute,
		"MAX_WEBSOCKET_CONNECTIONS": cfg.MaxWebSocketConnections,
	}
	for name, value := range positive {
		if value < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, value)
		}
	}

	if cfg.MaxFrames < 0 {
		return errors.New("MAX_FRAMES must not be negative")
	}
	if cfg.FaceCacheSize < 0 {
		return errors.New("FACE_CACHE_SIZE must not be negative")
	}
	if cfg.MaxUploadBytes < 1 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.SessionIdleTimeout <= 0 || cfg.SessionSweepInterval <= 0 {
		return errors.New("SESSION_IDLE_TIMEOUT and SESSION_SWEEP_INTERVAL must be positive")
	}
	if cfg.CleanupInterval <= 0 || cfg.FileMaxAge <= 0 || cfg.JobRetention <= 0 {
		return errors.New("CLEANUP_INTERVAL, FILE_MAX_AGE and JOB_RETENTION must be positive")
	}

	if cfg.AppEnv == "production" && cfg.DatabaseURL != "" {
		if err := validateSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}

// IsProduction reports whether the service runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
