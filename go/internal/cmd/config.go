package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values come from the
// environment; an optional YAML file provides overrides for the tuning
// knobs that rarely change.
type Config struct {
	Port string

	NATSURL     string
	StreamName  string
	UseConsumer bool

	DatabaseURL string

	Tuning TuningConfig
}

// TuningConfig holds the coordinator's timing knobs.
type TuningConfig struct {
	DisconnectThresholdSec int `yaml:"disconnect_threshold_sec"`
	ElectionWindowSec      int `yaml:"election_window_sec"`
	CompletionGraceSec     int `yaml:"completion_grace_sec"`
}

func (t TuningConfig) DisconnectThreshold() time.Duration {
	return time.Duration(t.DisconnectThresholdSec) * time.Second
}

func (t TuningConfig) ElectionWindow() time.Duration {
	return time.Duration(t.ElectionWindowSec) * time.Second
}

func (t TuningConfig) CompletionGrace() time.Duration {
	return time.Duration(t.CompletionGraceSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func loadConfig() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		NATSURL:     getEnv("NATS_URL", ""),
		StreamName:  getEnv("NATS_STREAM", "SESSION_EVENTS"),
		UseConsumer: getEnvAsBool("STATS_USE_CONSUMER", false),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Tuning: TuningConfig{
			DisconnectThresholdSec: getEnvAsInt("DISCONNECT_THRESHOLD_SEC", 20),
			ElectionWindowSec:      getEnvAsInt("ELECTION_WINDOW_SEC", 10),
			CompletionGraceSec:     getEnvAsInt("COMPLETION_GRACE_SEC", 30),
		},
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadTuningFile(path, &cfg.Tuning); err != nil {
			return nil, err
		}
	}

	if cfg.Tuning.DisconnectThresholdSec <= 0 ||
		cfg.Tuning.ElectionWindowSec < 0 ||
		cfg.Tuning.CompletionGraceSec < 0 {
		return nil, fmt.Errorf("invalid tuning configuration: %+v", cfg.Tuning)
	}

	return cfg, nil
}

func loadTuningFile(path string, tuning *TuningConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, tuning); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}
