package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "FLEETPIPE_"

func applyEnv(cfg *Config) error {
	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Output = envString("LOG_OUTPUT", cfg.Log.Output)
	cfg.Engine.Kind = envString("ENGINE", cfg.Engine.Kind)
	cfg.Engine.SQLitePath = envString("ENGINE_SQLITE_PATH", cfg.Engine.SQLitePath)
	cfg.Engine.DatabaseURL = envString("DATABASE_URL", cfg.Engine.DatabaseURL)
	cfg.Database.Path = envString("DATABASE_PATH", cfg.Database.Path)
	cfg.Gateway.Kind = envString("GATEWAY", cfg.Gateway.Kind)

	var err error
	if cfg.Engine.Timeout, err = envDuration("ENGINE_TIMEOUT", cfg.Engine.Timeout); err != nil {
		return err
	}
	if cfg.Lifecycle.PollInterval, err = envDuration("POLL_INTERVAL", cfg.Lifecycle.PollInterval); err != nil {
		return err
	}
	if cfg.Lifecycle.MaxPollAttempts, err = envInt("MAX_POLL_ATTEMPTS", cfg.Lifecycle.MaxPollAttempts); err != nil {
		return err
	}
	return nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return n, nil
}
