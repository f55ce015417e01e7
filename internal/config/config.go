package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Cache       CacheConfig
	Tasks       TasksConfig
	Engine      EngineConfig
	Scoring     ScoringConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// CacheConfig holds tiered cache configuration
type CacheConfig struct {
	L1TTL        time.Duration
	L2TTL        time.Duration
	L3TTL        time.Duration
	L1Size       int
	L2Size       int
	L3Size       int
	HistoryLimit int
}

// TasksConfig holds task orchestrator configuration
type TasksConfig struct {
	Workers        int
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	ComputeTimeout time.Duration
	QueueSize      int
	EventsTopic    string
}

// EngineConfig holds engine read-path configuration
type EngineConfig struct {
	PendingWait       time.Duration
	WarmupConcurrency int
	WarmupWait        time.Duration
}

// ScoringConfig holds the heuristic scoring constants
type ScoringConfig struct {
	TopTermCount         int
	VocabCap             int
	MaxDocFreqRatio      float64
	Window               time.Duration
	ConfidenceSaturation int
	ViralityCap          float64
	ScoreWeight          float64
	CommentWeight        float64
	TFIDFWeight          float64
	EngagementWeight     float64
	VelocityWeight       float64
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "trendpulse"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Cache: CacheConfig{
			L1TTL:        getEnvAsDuration("CACHE_L1_TTL", 5*time.Minute),
			L2TTL:        getEnvAsDuration("CACHE_L2_TTL", 30*time.Minute),
			L3TTL:        getEnvAsDuration("CACHE_L3_TTL", 2*time.Hour),
			L1Size:       getEnvAsInt("CACHE_L1_SIZE", 4096),
			L2Size:       getEnvAsInt("CACHE_L2_SIZE", 1024),
			L3Size:       getEnvAsInt("CACHE_L3_SIZE", 4096),
			HistoryLimit: getEnvAsInt("CACHE_HISTORY_LIMIT", 30),
		},
		Tasks: TasksConfig{
			Workers:        getEnvAsInt("TASKS_WORKERS", 4),
			MaxRetries:     getEnvAsInt("TASKS_MAX_RETRIES", 3),
			BackoffBase:    getEnvAsDuration("TASKS_BACKOFF_BASE", 60*time.Second),
			BackoffCap:     getEnvAsDuration("TASKS_BACKOFF_CAP", 700*time.Second),
			ComputeTimeout: getEnvAsDuration("TASKS_COMPUTE_TIMEOUT", 5*time.Minute),
			QueueSize:      getEnvAsInt("TASKS_QUEUE_SIZE", 256),
			EventsTopic:    getEnv("TASKS_EVENTS_TOPIC", "trend"),
		},
		Engine: EngineConfig{
			PendingWait:       getEnvAsDuration("ENGINE_PENDING_WAIT", 2*time.Second),
			WarmupConcurrency: getEnvAsInt("ENGINE_WARMUP_CONCURRENCY", 4),
			WarmupWait:        getEnvAsDuration("ENGINE_WARMUP_WAIT", 30*time.Second),
		},
		Scoring: ScoringConfig{
			TopTermCount:         getEnvAsInt("SCORING_TOP_TERMS", 20),
			VocabCap:             getEnvAsInt("SCORING_VOCAB_CAP", 1000),
			MaxDocFreqRatio:      getEnvAsFloat("SCORING_MAX_DOC_FREQ_RATIO", 0.8),
			Window:               getEnvAsDuration("SCORING_WINDOW", 7*24*time.Hour),
			ConfidenceSaturation: getEnvAsInt("SCORING_CONFIDENCE_SATURATION", 50),
			ViralityCap:          getEnvAsFloat("SCORING_VIRALITY_CAP", 5.0),
			ScoreWeight:          getEnvAsFloat("SCORING_SCORE_WEIGHT", 0.6),
			CommentWeight:        getEnvAsFloat("SCORING_COMMENT_WEIGHT", 0.4),
			TFIDFWeight:          getEnvAsFloat("SCORING_TFIDF_WEIGHT", 0.4),
			EngagementWeight:     getEnvAsFloat("SCORING_ENGAGEMENT_WEIGHT", 0.4),
			VelocityWeight:       getEnvAsFloat("SCORING_VELOCITY_WEIGHT", 0.2),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Tasks.Workers < 1 {
		return errInvalid("TASKS_WORKERS must be at least 1")
	}
	if config.Tasks.BackoffBase <= 0 || config.Tasks.BackoffCap < config.Tasks.BackoffBase {
		return errInvalid("task backoff cap must be at least the base delay")
	}
	if config.Cache.HistoryLimit < 1 {
		return errInvalid("CACHE_HISTORY_LIMIT must be at least 1")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errInvalid(msg string) error { return configError(msg) }

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
