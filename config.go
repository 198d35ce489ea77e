package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultRegion = "europe-west1"
	defaultModel  = "gemini-2.5-flash"
)

// Config is the service configuration. It is read from an optional YAML
// file, then overridden by the environment, then by command-line flags.
type Config struct {
	Addr           string        `yaml:"addr" validate:"required"`
	LogLevel       string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	DictionaryPath string        `yaml:"dictionary_path"`
	Storage        StorageConfig `yaml:"storage"`
	Gemini         GeminiConfig  `yaml:"gemini"`
	Limits         LimitsConfig  `yaml:"limits"`
}

// StorageConfig selects the persistence backend. An empty Path keeps
// everything in memory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// GeminiConfig enables the Gemini-backed solver when ProjectID is set.
type GeminiConfig struct {
	ProjectID string `yaml:"project_id"`
	Region    string `yaml:"region" validate:"required_with=ProjectID"`
	Model     string `yaml:"model" validate:"required_with=ProjectID"`
}

// LimitsConfig holds per-IP request budgets.
type LimitsConfig struct {
	ActionsPerSecond int `yaml:"actions_per_second" validate:"gt=0"`
	SolvesPerMinute  int `yaml:"solves_per_minute" validate:"gt=0"`
}

var configValidate = validator.New()

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Addr:     ":8080",
		LogLevel: "info",
		Gemini: GeminiConfig{
			Region: defaultRegion,
			Model:  defaultModel,
		},
		Limits: LimitsConfig{
			ActionsPerSecond: 60,
			SolvesPerMinute:  5,
		},
	}
}

// LoadConfig reads path over DefaultConfig and applies environment
// overrides. A missing path is not an error when path is empty.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// applyEnv honours PORT, GCP_PROJECT_ID and GCP_REGION.
func (c *Config) applyEnv(getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	if project := getenv("GCP_PROJECT_ID"); project != "" {
		c.Gemini.ProjectID = project
	}
	if region := getenv("GCP_REGION"); region != "" {
		c.Gemini.Region = region
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Namespace() + " (" + fe.Tag() + ")"
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// slogLevel maps LogLevel to a slog level.
func (c *Config) slogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
