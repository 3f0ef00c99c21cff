package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            string
	StoragePath     string
	MaxUploadSize   int64
	RetentionWindow time.Duration
	SweepInterval   time.Duration
	MaxConcurrent   int64
	LogLevel        string
	LogFile         string
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "3000"),
		StoragePath:     getEnv("STORAGE_PATH", "./uploads"),
		MaxUploadSize:   getEnvInt64("MAX_UPLOAD_SIZE", 10*1024*1024), // 10 MiB
		RetentionWindow: getEnvDuration("RETENTION_HOURS", 24*time.Hour),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL_HOURS", 1*time.Hour),
		MaxConcurrent:   getEnvInt64("MAX_CONCURRENT", 4),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if hours, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(hours * float64(time.Hour))
		}
	}
	return fallback
}
