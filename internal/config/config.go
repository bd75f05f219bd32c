package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, populated from environment
// variables. Load .env via godotenv before calling Load().
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DBHost                 string
	DBPort                 string
	DBUser                 string
	DBPassword             string
	DBName                 string
	UseMemoryStore         bool
	InstanceConnectionName string // Cloud SQL socket, production only

	// Excel processor sidecar
	ProcessorURL   string
	ProcessorToken string // shared secret for the notify-progress callback

	// Uploaded dataset files
	DatasetDir string

	// Conversational engine tuning
	FormatDecisionTTL time.Duration
	ReconnectWait     time.Duration
	QRWaitTimeout     time.Duration
	IngestionMaxAge   time.Duration
}

// Load builds a Config from the environment with sane defaults.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "postgres"),
		DBPassword:             getEnv("DB_PASS", ""),
		DBName:                 getEnv("DB_NAME", "autochat"),
		UseMemoryStore:         getEnvBool("USE_MEMORY_STORE", false),
		InstanceConnectionName: getEnv("INSTANCE_CONNECTION_NAME", ""),

		ProcessorURL:   getEnv("EXCEL_PROCESSOR_URL", "http://localhost:8001"),
		ProcessorToken: getEnv("EXCEL_PROCESSOR_TOKEN", ""),

		DatasetDir: getEnv("DATASET_DIR", os.TempDir()),

		FormatDecisionTTL: getEnvDuration("FORMAT_DECISION_TTL", 5*time.Minute),
		ReconnectWait:     getEnvDuration("RECONNECT_WAIT", 2*time.Second),
		QRWaitTimeout:     getEnvDuration("QR_WAIT_TIMEOUT", 10*time.Second),
		IngestionMaxAge:   getEnvDuration("INGESTION_MAX_AGE", 30*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
