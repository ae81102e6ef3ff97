// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package config loads the streamd configuration from YAML with
// environment variable substitution.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Query-farm/streambody/streambody"
)

const (
	EngineNetHTTP = "nethttp"
	EngineFiber   = "fiber"

	defaultAddr            = "127.0.0.1:8080"
	defaultShutdownTimeout = 10 * time.Second
	defaultServiceName     = "streamd"
	defaultDSN             = "file::memory:?cache=shared"
)

// Config is the complete streamd configuration.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Stream    streambody.Config `yaml:"stream"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	Database  DatabaseConfig    `yaml:"database"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Engine          string        `yaml:"engine"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Conformance     bool          `yaml:"conformance"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFromFile loads configuration from a YAML file, substituting
// ${VAR} and ${VAR:-default} from the environment before parsing.
func LoadFromFile(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)
	if strings.Contains(cleanPath, "..") {
		return nil, errors.New("invalid config path: path traversal not allowed")
	}
	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, errors.New("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", cleanPath)
	}
	return Parse([]byte(substituteEnvVars(string(data))))
}

// Parse decodes YAML that has already had environment variables substituted.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "failed to parse YAML config")
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	c.Server.Engine = strings.ToLower(c.Server.Engine)
	if c.Server.Engine == "" {
		c.Server.Engine = EngineNetHTTP
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
	if c.Database.DSN == "" {
		c.Database.DSN = defaultDSN
	}
}

// Validate checks the engine name and the stream options.
func (c *Config) Validate() error {
	switch c.Server.Engine {
	case EngineNetHTTP, EngineFiber:
	default:
		return errors.Newf("unknown server engine %q", c.Server.Engine)
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.Newf("shutdown_timeout must not be negative, got %s", c.Server.ShutdownTimeout)
	}
	return errors.Wrap(c.Stream.Validate(), "stream")
}

// LoadEnvFiles loads environment variables from the .env files that exist.
// Earlier files take precedence because godotenv never overrides a
// variable that is already set.
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			slog.Warn("failed to load env file", "file", envFile, "err", err)
			continue
		}
		slog.Info("loaded environment variables", "file", envFile)
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default}. Unset or
// empty variables take the default, or the empty string without one.
func substituteEnvVars(content string) string {
	return envPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}
		if value := os.Getenv(submatches[1]); value != "" {
			return value
		}
		return strings.TrimPrefix(submatches[2], "-")
	})
}
