package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	BunDebug    bool

	// Spatial conventions
	TargetSRID     int    // reference system every comparison runs in (SIRGAS 2000)
	GeometryColumn string // fixed geometry column name
	SampleLimit    int    // rows fetched per matching table for display
	SampleValues   int    // distinct values shown per column
	DisplayLength  int    // runes kept per displayed value

	// Database sessions
	SSLMode          string
	StatementTimeout time.Duration

	// HTTP sessions
	SessionTTL     time.Duration
	SessionSecret  string
	AllowedOrigins []string
}

// Load loads environment variables and returns a Config struct
func Load() *Config {
	_ = godotenv.Load()

	allowedOrigins := strings.Split(
		getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		",",
	)

	return &Config{
		Port:             getEnv("APP_PORT", "8780"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		BunDebug:         getEnvAsBool("BUNDEBUG", false),
		TargetSRID:       getEnvAsInt("TARGET_SRID", 4674),
		GeometryColumn:   getEnv("GEOMETRY_COLUMN", "geom"),
		SampleLimit:      getEnvAsInt("SAMPLE_LIMIT", 5),
		SampleValues:     getEnvAsInt("SAMPLE_VALUES", 5),
		DisplayLength:    getEnvAsInt("DISPLAY_LENGTH", 100),
		SSLMode:          getEnv("PG_SSLMODE", "disable"),
		StatementTimeout: getEnvAsDuration("STATEMENT_TIMEOUT", 120*time.Second),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		SessionSecret:    getEnv("SESSION_SECRET", ""),
		AllowedOrigins:   allowedOrigins,
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return fallback
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("invalid bool for %s, defaulting to %v\n", key, fallback)
		return fallback
	}
	return val
}

func getEnvAsInt(key string, fallback int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return fallback
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("invalid positive int for %s, defaulting to %d\n", key, fallback)
		return fallback
	}
	return val
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		return fallback
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("invalid duration for %s, defaulting to %s\n", key, fallback)
		return fallback
	}
	return val
}
