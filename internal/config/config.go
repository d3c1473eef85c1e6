package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	CorpusPath         string
	SnapshotPath       string
	ArchivePath        string
	DBPath             string
	VectorSize         int
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	IndexBatchLimit    int
	IndexRatePerSecond float64
	DefaultTopK        int
	APIPort            string
	LogLevel           slog.Level
	LogFormat          string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		CorpusPath:         getEnv("CORPUS_PATH", ""),
		SnapshotPath:       getEnv("SNAPSHOT_PATH", "./data/facetrace.json"),
		ArchivePath:        getEnv("ARCHIVE_PATH", "./data/deleted_records.json"),
		DBPath:             getEnv("DB_PATH", "./data/facetrace.db"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "facenet-vggface2"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", "dummy-key"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogLevel:           parseLogLevel(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	// Parse VECTOR_SIZE
	// Note: This must match the output vector size of the face embedding model.
	// For facenet-vggface2 this is 512 dimensions. If the vector size changes,
	// the snapshot must be rebuilt from the corpus.
	vectorSizeStr := getEnv("VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("VECTOR_SIZE must be greater than 0")
	}
	cfg.VectorSize = vectorSize

	cfg.IndexBatchLimit, err = getEnvInt("INDEX_BATCH_LIMIT", 50)
	if err != nil {
		return nil, err
	}
	cfg.DefaultTopK, err = getEnvInt("DEFAULT_TOP_K", 3)
	if err != nil {
		return nil, err
	}
	cfg.IndexRatePerSecond, err = getEnvFloat("INDEX_RATE_PER_SECOND", 5)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.CorpusPath == "" {
		return nil, fmt.Errorf("CORPUS_PATH is required")
	}

	// Create ./data directory if it doesn't exist (for snapshot, archive, and DB files)
	dataDir := filepath.Dir(cfg.SnapshotPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// parseLogLevel maps a level name to a slog.Level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return parsed, nil
}

// getEnvFloat gets a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return parsed, nil
}
