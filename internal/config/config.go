/**
 * Configuration for the Figure Processing Worker
 *
 * Loads configuration from environment variables matching .env.figprocess
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL string

	// PostgreSQL configuration
	DatabaseURL string

	// External service URLs
	GrobidURL      string
	ModelServerURL string

	// Figure extraction (pdffigures2) configuration
	PDFFiguresJarPath string
	FigureResolution  int
	PDFFiguresTimeout time.Duration

	// GROBID call ceiling; keeps a worker goroutine from blocking
	// indefinitely on a stuck fulltext request.
	GrobidTimeout time.Duration

	// OCR configuration
	OCRGridMaxDim      int
	TesseractLanguages string

	// Plot-to-table model selection ("unichart" or "deplot")
	Plot2TableModel string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout time.Duration
	MaxFileSize       int64

	// Working directory for PDFs, rendered figures and metadata
	WorkDir string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:        getEnvOrThrow("DATABASE_URL"),
		GrobidURL:          getEnvOrDefault("GROBID_URL", "http://localhost:8070"),
		ModelServerURL:     getEnvOrDefault("MODEL_SERVER_URL", "http://localhost:8500"),
		PDFFiguresJarPath:  getEnvOrDefault("PDFFIGURES_JAR_PATH", "models/pdffigures2-assembly-0.0.12-SNAPSHOT.jar"),
		FigureResolution:   getEnvAsIntOrDefault("FIGURE_RESOLUTION", 300),
		PDFFiguresTimeout:  getEnvAsDurationOrDefault("PDFFIGURES_TIMEOUT", 20*time.Second),
		GrobidTimeout:      getEnvAsDurationOrDefault("GROBID_TIMEOUT", 90*time.Second),
		OCRGridMaxDim:      getEnvAsIntOrDefault("OCR_GRID_MAXDIM", 100),
		TesseractLanguages: getEnvOrDefault("TESSERACT_LANGUAGES", "eng"),
		Plot2TableModel:    getEnvOrDefault("PLOT2TABLE_MODEL", "unichart"),
		WorkerConcurrency:  getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout:  getEnvAsDurationOrDefault("PROCESSING_TIMEOUT", 5*time.Minute),
		MaxFileSize:        getEnvAsInt64OrDefault("MAX_FILE_SIZE", 52428800), // 50MB
		WorkDir:            getEnvOrDefault("WORK_DIR", "/tmp/figprocess"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.GrobidURL == "" {
		return fmt.Errorf("GROBID_URL is required")
	}

	if c.ModelServerURL == "" {
		return fmt.Errorf("MODEL_SERVER_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 64 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 64, got %d", c.WorkerConcurrency)
	}

	if c.FigureResolution < 72 || c.FigureResolution > 1200 {
		return fmt.Errorf("FIGURE_RESOLUTION must be between 72 and 1200 DPI, got %d", c.FigureResolution)
	}

	if c.OCRGridMaxDim < 10 || c.OCRGridMaxDim > 1000 {
		return fmt.Errorf("OCR_GRID_MAXDIM must be between 10 and 1000, got %d", c.OCRGridMaxDim)
	}

	if c.Plot2TableModel != "unichart" && c.Plot2TableModel != "deplot" {
		return fmt.Errorf("PLOT2TABLE_MODEL must be \"unichart\" or \"deplot\", got %q", c.Plot2TableModel)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 1GB, got %d", c.MaxFileSize)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrThrow gets environment variable or panics
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault gets environment variable as a duration ("20s", "5m")
// or returns default
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
