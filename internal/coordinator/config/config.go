package config

import (
	"errors"
	"fmt"
	"time"
)

// Transports a tool host can be reached over
const (
	TransportHTTP      = "http"
	TransportStdio     = "stdio"
	TransportInProcess = "inprocess"
)

// Routing strategies
const (
	StrategyKeyword   = "keyword"
	StrategyDelegated = "delegated"
)

// Config is the full coordinator configuration
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Sessions    SessionConfig     `yaml:"sessions"`
	Routing     RoutingConfig     `yaml:"routing"`
	Remediation RemediationConfig `yaml:"remediation"`
	ToolHost    ToolHostConfig    `yaml:"toolhost"`
	Servers     []ServerConfig    `yaml:"servers"`
}

// ServiceConfig holds process-level settings
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	HTTPPort    string `yaml:"http_port"`
	GRPCPort    string `yaml:"grpc_port"`
	DefaultUser string `yaml:"default_user"`
	// StrictInput rejects queries without a resolvable primary field
	StrictInput bool `yaml:"strict_input"`
}

// DispatchConfig holds tool invocation settings
type DispatchConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// DiscoveryConfig holds catalog discovery settings
type DiscoveryConfig struct {
	// CacheTTL of zero means every discovery call refreshes the catalog
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// SessionConfig holds session store settings
type SessionConfig struct {
	// MaxIdle of zero disables expiry
	MaxIdle         time.Duration `yaml:"max_idle"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Shards          int           `yaml:"shards"`
}

// RoutingConfig selects and configures the routing strategy
type RoutingConfig struct {
	Strategy        string             `yaml:"strategy"`
	DecisionTimeout time.Duration      `yaml:"decision_timeout"`
	Gemini          GeminiConfig       `yaml:"gemini"`
	Specialists     []SpecialistConfig `yaml:"specialists"`
}

// GeminiConfig configures the delegated routing decider
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// SpecialistConfig describes one specialist and its routing signals
type SpecialistConfig struct {
	Name    string   `yaml:"name"`
	Summary string   `yaml:"summary"`
	Service string   `yaml:"service"`
	Signals []string `yaml:"signals"`
	Default bool     `yaml:"default"`
}

// RemediationConfig parameterizes the PermissionDenied remediation payload
type RemediationConfig struct {
	ProjectID      string            `yaml:"project_id"`
	ServiceAccount string            `yaml:"service_account"`
	DefaultRole    string            `yaml:"default_role"`
	Roles          map[string]string `yaml:"roles"`
	Template       string            `yaml:"template"`
}

// RoleFor returns the IAM role needed to call the given service
func (r RemediationConfig) RoleFor(service string) string {
	if role, ok := r.Roles[service]; ok && role != "" {
		return role
	}
	return r.DefaultRole
}

// ToolHostConfig configures the built-in tool implementations
type ToolHostConfig struct {
	Port          string        `yaml:"port"`
	Bucket        string        `yaml:"bucket"`
	PubChemURL    string        `yaml:"pubchem_url"`
	PubMedURL     string        `yaml:"pubmed_url"`
	SearchURL     string        `yaml:"search_url"`
	SearchAPIKey  string        `yaml:"search_api_key"`
	Deny          []string      `yaml:"deny"`
	ClientTimeout time.Duration `yaml:"client_timeout"`
}

// ServerConfig describes one remote tool host
type ServerConfig struct {
	Name       string            `yaml:"name"`
	Transport  string            `yaml:"transport"`
	URL        string            `yaml:"url"`
	CatalogURL string            `yaml:"catalog_url"`
	Command    string            `yaml:"command"`
	Args       []string          `yaml:"args"`
	Env        map[string]string `yaml:"env"`
	Tools      []ToolSpec        `yaml:"tools"`
}

// ToolSpec declares a tool statically when a host publishes no catalog
type ToolSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	InputSchema string `yaml:"input_schema"`
}

// Default returns the configuration used when no file is supplied.
// All three built-in tool hosts run in process.
func Default() *Config {
	return &Config{
		Service:     DefaultServiceConfig(),
		Dispatch:    DefaultDispatchConfig(),
		Discovery:   DiscoveryConfig{CacheTTL: DefaultDiscoveryCacheTTL},
		Sessions:    DefaultSessionConfig(),
		Routing:     DefaultRoutingConfig(),
		Remediation: DefaultRemediationConfig(),
		ToolHost:    DefaultToolHostConfig(),
		Servers: []ServerConfig{
			{Name: ServiceHPC, Transport: TransportInProcess},
			{Name: ServiceChem, Transport: TransportInProcess},
			{Name: ServiceLiterature, Transport: TransportInProcess},
		},
	}
}

// DefaultServiceConfig returns default process settings
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        "discovery-agent-coordinator",
		Version:     "0.1.0",
		HTTPPort:    "8080",
		GRPCPort:    "50050",
		DefaultUser: DefaultUserID,
	}
}

// DefaultDispatchConfig returns default tool invocation settings
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Timeout:           DefaultToolTimeout,
		MaxRetries:        DefaultMaxRetries,
		InitialDelay:      DefaultRetryInitialDelay,
		MaxDelay:          DefaultRetryMaxDelay,
		BackoffMultiplier: DefaultRetryMultiplier,
	}
}

// DefaultSessionConfig returns default session store settings
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIdle:         DefaultSessionMaxIdle,
		CleanupInterval: DefaultSessionCleanupInterval,
		Shards:          DefaultSessionShards,
	}
}

// DefaultRoutingConfig returns the keyword strategy with the built-in specialists
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		Strategy:        StrategyKeyword,
		DecisionTimeout: DefaultDecisionTimeout,
		Gemini:          GeminiConfig{Model: "gemini-2.5-flash"},
		Specialists:     DefaultSpecialists(),
	}
}

// DefaultSpecialists returns the built-in specialists in routing order
func DefaultSpecialists() []SpecialistConfig {
	return []SpecialistConfig{
		{
			Name:    SpecialistInfrastructure,
			Summary: "Provisions HPC clusters and submits and tracks Slurm jobs",
			Service: ServiceHPC,
			Signals: []string{"hpc", "cluster", "slurm", "sbatch", "deploy", "gke", "quota", "submit job", "submit a job", "status of job", "job status"},
		},
		{
			Name:    SpecialistCompound,
			Summary: "Looks up chemical compounds on PubChem and estimates toxicity",
			Service: ServiceChem,
			Signals: []string{"pubchem", "structure", "weight", "formula", "smiles", "molecule", "compound", "toxic"},
		},
		{
			Name:    SpecialistLiterature,
			Summary: "Searches PubMed for papers and research",
			Service: ServiceLiterature,
			Signals: []string{"pubmed", "paper", "research", "cancer", "literature", "article"},
		},
		{
			Name:    SpecialistGeneral,
			Summary: "Answers general questions and explains what the agent can do",
			Default: true,
		},
	}
}

// Built-in specialist names
const (
	SpecialistInfrastructure = "infrastructure_specialist"
	SpecialistCompound       = "compound_analyzer"
	SpecialistLiterature     = "literature_researcher"
	SpecialistGeneral        = "general"
)

// DefaultRemediationConfig returns the remediation defaults for Service Usage denials
func DefaultRemediationConfig() RemediationConfig {
	return RemediationConfig{
		ServiceAccount: "4635792027-compute@developer.gserviceaccount.com",
		DefaultRole:    "roles/serviceusage.serviceUsageViewer",
		Template:       DefaultRemediationTemplate,
	}
}

// DefaultToolHostConfig returns defaults for the built-in tool implementations
func DefaultToolHostConfig() ToolHostConfig {
	return ToolHostConfig{
		Port:          "9090",
		Bucket:        "discovery-results",
		PubChemURL:    "https://pubchem.ncbi.nlm.nih.gov/rest/pug",
		PubMedURL:     "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		SearchURL:     "https://serpapi.com/search.json",
		ClientTimeout: 20 * time.Second,
	}
}

// Validate checks the configuration for values the coordinator cannot run with
func (c *Config) Validate() error {
	if c.Dispatch.Timeout <= 0 {
		return errors.New("dispatch.timeout must be positive")
	}
	if c.Dispatch.MaxRetries < 0 {
		return errors.New("dispatch.max_retries must be non-negative")
	}
	if c.Dispatch.InitialDelay < 0 || c.Dispatch.MaxDelay < 0 || c.Dispatch.BackoffMultiplier < 0 {
		return errors.New("dispatch retry delays and backoff_multiplier must be non-negative")
	}
	if c.Dispatch.MaxDelay > 0 && c.Dispatch.MaxDelay < c.Dispatch.InitialDelay {
		return fmt.Errorf("dispatch.max_delay %v is below dispatch.initial_delay %v", c.Dispatch.MaxDelay, c.Dispatch.InitialDelay)
	}
	switch c.Routing.Strategy {
	case StrategyKeyword:
	case StrategyDelegated:
		if c.Routing.Gemini.APIKey == "" {
			return errors.New("routing.gemini.api_key is required for the delegated strategy")
		}
	default:
		return fmt.Errorf("unknown routing strategy %q", c.Routing.Strategy)
	}

	defaults := 0
	for _, sp := range c.Routing.Specialists {
		if sp.Name == "" {
			return errors.New("specialist name cannot be empty")
		}
		if sp.Default {
			defaults++
		}
	}
	if defaults != 1 {
		return fmt.Errorf("exactly one default specialist required, got %d", defaults)
	}

	seen := make(map[string]bool, len(c.Servers))
	for _, s := range c.Servers {
		if s.Name == "" {
			return errors.New("server name cannot be empty")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate server %q", s.Name)
		}
		seen[s.Name] = true
		switch s.Transport {
		case TransportHTTP:
			if s.URL == "" {
				return fmt.Errorf("server %q: url required for http transport", s.Name)
			}
		case TransportStdio:
			if s.Command == "" {
				return fmt.Errorf("server %q: command required for stdio transport", s.Name)
			}
		case TransportInProcess:
		default:
			return fmt.Errorf("server %q: unknown transport %q", s.Name, s.Transport)
		}
	}
	return nil
}
