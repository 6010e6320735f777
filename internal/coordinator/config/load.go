package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "DISCOVERY"

// envOverrides are applied on top of the file configuration
type envOverrides struct {
	HTTPPort        string        `envconfig:"HTTP_PORT"`
	GRPCPort        string        `envconfig:"GRPC_PORT"`
	StrictInput     *bool         `envconfig:"STRICT_INPUT"`
	ToolTimeout     time.Duration `envconfig:"TOOL_TIMEOUT"`
	MaxRetries      *int          `envconfig:"MAX_RETRIES"`
	SessionMaxIdle  time.Duration `envconfig:"SESSION_MAX_IDLE"`
	DiscoveryTTL    time.Duration `envconfig:"DISCOVERY_CACHE_TTL"`
	RoutingStrategy string        `envconfig:"ROUTING_STRATEGY"`
	GeminiAPIKey    string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel     string        `envconfig:"GEMINI_MODEL"`
	ProjectID       string        `envconfig:"PROJECT_ID"`
	ServiceAccount  string        `envconfig:"SERVICE_ACCOUNT"`
	Bucket          string        `envconfig:"BUCKET"`
	SearchAPIKey    string        `envconfig:"SERPAPI_API_KEY"`
}

// Load reads the YAML file at path (if any), fills defaults and applies
// DISCOVERY_* environment overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decode unmarshals a single YAML document over the defaults in cfg
func decode(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("failed to parse config: expected single document")
	}
	return nil
}

// ApplyEnv overlays DISCOVERY_* environment variables onto cfg.
// GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_STORAGE_BUCKET and SERPAPI_API_KEY are
// honored as fallbacks.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.HTTPPort != "" {
		cfg.Service.HTTPPort = env.HTTPPort
	}
	if env.GRPCPort != "" {
		cfg.Service.GRPCPort = env.GRPCPort
	}
	if env.StrictInput != nil {
		cfg.Service.StrictInput = *env.StrictInput
	}
	if env.ToolTimeout > 0 {
		cfg.Dispatch.Timeout = env.ToolTimeout
	}
	if env.MaxRetries != nil {
		cfg.Dispatch.MaxRetries = *env.MaxRetries
	}
	if env.SessionMaxIdle > 0 {
		cfg.Sessions.MaxIdle = env.SessionMaxIdle
	}
	if env.DiscoveryTTL > 0 {
		cfg.Discovery.CacheTTL = env.DiscoveryTTL
	}
	if env.RoutingStrategy != "" {
		cfg.Routing.Strategy = env.RoutingStrategy
	}
	if env.GeminiAPIKey != "" {
		cfg.Routing.Gemini.APIKey = env.GeminiAPIKey
	}
	if env.GeminiModel != "" {
		cfg.Routing.Gemini.Model = env.GeminiModel
	}

	if env.ProjectID != "" {
		cfg.Remediation.ProjectID = env.ProjectID
	} else if cfg.Remediation.ProjectID == "" {
		cfg.Remediation.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if env.ServiceAccount != "" {
		cfg.Remediation.ServiceAccount = env.ServiceAccount
	}
	if env.Bucket != "" {
		cfg.ToolHost.Bucket = env.Bucket
	} else if bucket := os.Getenv("GOOGLE_CLOUD_STORAGE_BUCKET"); bucket != "" {
		cfg.ToolHost.Bucket = bucket
	}
	if env.SearchAPIKey != "" {
		cfg.ToolHost.SearchAPIKey = env.SearchAPIKey
	} else if cfg.ToolHost.SearchAPIKey == "" {
		cfg.ToolHost.SearchAPIKey = os.Getenv("SERPAPI_API_KEY")
	}
	return nil
}
