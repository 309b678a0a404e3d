// Package configs loads the command's settings from the environment and an
// optional .env file.
package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"immoscoutclient/internal/logger"
	"immoscoutclient/pkg/config"
	"immoscoutclient/pkg/impersonate"

	"github.com/joho/godotenv"
)

type LogConfig struct {
	Level  slog.Level
	Format string
}

type AppConfig struct {
	Client config.Config
	Log    LogConfig
}

// Load reads envPath (default ".env") if it exists, then the environment.
// Variables already set in the environment win over the file.
func Load(envPath ...string) (*AppConfig, error) {
	path := ".env"
	if len(envPath) > 0 && envPath[0] != "" {
		path = envPath[0]
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("could not load env file %s: %w", path, err)
	}

	cfg := &AppConfig{Client: config.DefaultConfig()}

	timeout, err := getEnvAsInt("IMMOSCOUT_TIMEOUT", int(cfg.Client.RequestTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("IMMOSCOUT_TIMEOUT must be positive, got %d", timeout)
	}
	cfg.Client.RequestTimeout = time.Duration(timeout) * time.Second

	if name, ok := os.LookupEnv("IMMOSCOUT_IMPERSONATE"); ok {
		p, err := impersonate.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("IMMOSCOUT_IMPERSONATE: %w", err)
		}
		cfg.Client.Impersonate = p
	}

	cfg.Client.UserAgent = getEnvAsString("IMMOSCOUT_USER_AGENT", cfg.Client.UserAgent)

	cfg.Client.Backend = getEnvAsString("IMMOSCOUT_BACKEND", cfg.Client.Backend)
	switch cfg.Client.Backend {
	case config.BackendResty, config.BackendFiber:
	default:
		return nil, fmt.Errorf("IMMOSCOUT_BACKEND: unknown backend %q", cfg.Client.Backend)
	}

	if cfg.Client.Size, err = getEnvAsInt("IMMOSCOUT_POOL_SIZE", cfg.Client.Size); err != nil {
		return nil, err
	}

	if cfg.Log.Level, err = logger.ParseLevel(getEnvAsString("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg.Log.Format = getEnvAsString("LOG_FORMAT", logger.FormatTint)

	return cfg, nil
}

func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue, nil
	}
	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, valueStr)
	}
	return valueInt, nil
}
