package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	TCPAddr        string
	HTTPAddr       string
	LogLevel       zapcore.Level
	LogFile        string
	Dev            bool
	OutboxSize     int
	WriteTimeout   time.Duration
	OriginPatterns []string
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		TCPAddr:  getEnv("ARENA_TCP_ADDR", "localhost:8888"),
		HTTPAddr: getEnv("ARENA_HTTP_ADDR", ":8080"),
		LogFile:  getEnv("ARENA_LOG_FILE", ""),
	}

	var err error
	if cfg.LogLevel, err = zapcore.ParseLevel(getEnv("ARENA_LOG_LEVEL", "info")); err != nil {
		return Config{}, fmt.Errorf("ARENA_LOG_LEVEL: %w", err)
	}
	if cfg.Dev, err = strconv.ParseBool(getEnv("ARENA_DEV", "false")); err != nil {
		return Config{}, fmt.Errorf("ARENA_DEV: %w", err)
	}
	if cfg.OutboxSize, err = strconv.Atoi(getEnv("ARENA_OUTBOX_SIZE", "32")); err != nil {
		return Config{}, fmt.Errorf("ARENA_OUTBOX_SIZE: %w", err)
	}
	if cfg.OutboxSize < 8 {
		return Config{}, fmt.Errorf("ARENA_OUTBOX_SIZE: must be at least 8, got %d", cfg.OutboxSize)
	}
	if cfg.WriteTimeout, err = time.ParseDuration(getEnv("ARENA_WRITE_TIMEOUT", "5s")); err != nil {
		return Config{}, fmt.Errorf("ARENA_WRITE_TIMEOUT: %w", err)
	}
	if v := getEnv("ARENA_WS_ORIGINS", ""); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.OriginPatterns = append(cfg.OriginPatterns, p)
			}
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
