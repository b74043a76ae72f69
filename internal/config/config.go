// Package config loads the server's TOML configuration file into typed
// structs describing the server itself and every configured project.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the root of the TOML configuration file.
type Config struct {
	// Name is the human-readable name of this server instance.
	Name string `toml:"name"`

	// Port is the TCP port the HTTP server listens on.
	Port int `toml:"port"`

	// BasePath is prefixed to every project's BaseEndpointPath when
	// registering routes.
	BasePath string `toml:"base_path"`

	// LogPath is the directory build log files and history snapshots
	// are written to.
	LogPath string `toml:"log_path"`

	// Archive configures optional S3-compatible mirroring of build logs
	// alongside the local LogPath copy.
	Archive ArchiveConfig `toml:"archive"`

	// SSL holds optional TLS termination settings.
	SSL SSLConfig `toml:"ssl"`

	// Auth is the server-level authorization policy, used as a fallback
	// for any project that does not declare its own.
	Auth AuthConfig `toml:"auth"`

	// History configures optional durable archival of completed builds.
	History HistoryConfig `toml:"history"`

	// Janitor configures periodic pruning of old logs and history.
	Janitor JanitorConfig `toml:"janitor"`

	// Projects maps a project name to its configuration.
	Projects map[string]ProjectConfig `toml:"projects"`
}

// SSLConfig describes TLS termination for the HTTP listener.
type SSLConfig struct {
	Enable bool   `toml:"enable"`
	Cert   string `toml:"cert"`
	Key    string `toml:"key"`
}

// AuthType enumerates the supported authorization policies.
type AuthType string

const (
	// AuthTypeToken authorizes via a bearer token or ?token= query param.
	AuthTypeToken AuthType = "token"
	// AuthTypeAddress authorizes via an IP or hostname allow-list against
	// the caller's remote address.
	AuthTypeAddress AuthType = "address"
	// AuthTypeBoth requires both a valid token and an allow-listed address.
	AuthTypeBoth AuthType = "both"
)

// AuthConfig describes an authorization policy.
type AuthConfig struct {
	// Type selects the policy. Empty means "no authorization required".
	Type AuthType `toml:"type"`

	// AllowedTokens is the bearer-token allow-list, used when Type is
	// AuthTypeToken or AuthTypeBoth.
	AllowedTokens []string `toml:"allowed_tokens"`

	// AllowedAddresses is the IP/hostname allow-list, used when Type is
	// AuthTypeAddress or AuthTypeBoth.
	AllowedAddresses []string `toml:"allowed_addresses"`
}

// IsSet reports whether this policy declares anything, distinguishing a
// project with no auth block (fall back to server policy) from one that
// explicitly disables auth.
func (a AuthConfig) IsSet() bool {
	return a.Type != ""
}

// ArchiveConfig describes the optional S3-compatible mirror for build
// log files. S3 archival is disabled unless Enable is true.
type ArchiveConfig struct {
	Enable    bool   `toml:"enable"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Bucket    string `toml:"bucket"`
}

// HistoryConfig selects the optional BuildResult persistence backend.
type HistoryConfig struct {
	// Backend is "memory" (default, process-lifetime only) or "postgres".
	Backend string `toml:"backend"`

	// DSN is the Postgres connection string, used when Backend is "postgres".
	DSN string `toml:"dsn"`
}

// JanitorConfig configures the periodic retention sweep.
type JanitorConfig struct {
	// Enabled turns the janitor goroutine on.
	Enabled bool `toml:"enabled"`

	// Schedule is a robfig/cron expression, e.g. "0 * * * *" for hourly.
	Schedule string `toml:"schedule"`

	// RetentionDays is how many days of archived logs and history to keep.
	RetentionDays int `toml:"retention_days"`
}

// ProjectConfig describes one buildable project.
type ProjectConfig struct {
	// AllowMultiBuild, when false, rejects a second submission outright
	// while a build is running instead of queueing it.
	AllowMultiBuild bool `toml:"allow_multi_build"`

	// MaxPendingBuild bounds the queue depth for this project.
	MaxPendingBuild int `toml:"max_pending_build"`

	// BaseEndpointPath is appended to the server's BasePath for every
	// endpoint this project registers.
	BaseEndpointPath string `toml:"base_endpoint_path"`

	// UniqueBuildKey names the payload field used to deduplicate builds.
	UniqueBuildKey string `toml:"unique_build_key"`

	// Auth overrides the server-level policy for this project, if set.
	Auth AuthConfig `toml:"auth"`

	// API configures the endpoint path for each operation.
	API APIConfig `toml:"api"`

	// Build configures the command pipeline.
	Build BuildConfig `toml:"build"`
}

// APIConfig maps each ingress operation to its endpoint path and
// optional return-field templates.
type APIConfig struct {
	Health     EndpointConfig `toml:"health"`
	Build      EndpointConfig `toml:"build"`
	IsBuilding EndpointConfig `toml:"is_building"`
	Abort      EndpointConfig `toml:"abort"`
	Cleanup    EndpointConfig `toml:"cleanup"`
	Socket     EndpointConfig `toml:"socket"`
}

// EndpointConfig is one HTTP endpoint's path plus any extra response
// fields to resolve and include in the JSON body.
type EndpointConfig struct {
	Endpoint     string            `toml:"endpoint"`
	ReturnFields map[string]string `toml:"return_fields"`

	// RequiredFields names payload fields that must be present for this
	// endpoint to admit the request (build's admission check only; a
	// leading "$" is trimmed before comparing against the payload, as
	// in the original config).
	RequiredFields []string `toml:"payload"`
}

// BuildConfig is the command pipeline for a project.
type BuildConfig struct {
	Commands     []CommandConfig `toml:"commands"`
	RunOnSuccess []CommandConfig `toml:"run_on_success"`
	RunOnFailure []CommandConfig `toml:"run_on_failure"`
	OnSuccess    string          `toml:"on_success"`
	OnFailure    string          `toml:"on_failure"`
}

// CommandConfig is a single shell command template.
type CommandConfig struct {
	Shell      string `toml:"shell"`
	Title      string `toml:"title"`
	OnError    string `toml:"on_error"`
	SendToSock bool   `toml:"send_to_sock"`
}

// Load reads and parses the TOML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate applies defaults and rejects configurations the rest of the
// system cannot run with.
func (c *Config) validate() error {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogPath == "" {
		c.LogPath = "./logs"
	}
	if c.History.Backend == "" {
		c.History.Backend = "memory"
	}
	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = "0 * * * *"
	}
	if c.Janitor.RetentionDays == 0 {
		c.Janitor.RetentionDays = 30
	}

	for name, p := range c.Projects {
		if p.UniqueBuildKey == "" {
			return fmt.Errorf("project %q: unique_build_key is required", name)
		}
		if p.MaxPendingBuild == 0 {
			p.MaxPendingBuild = 10
			c.Projects[name] = p
		}
		for _, cmd := range p.Build.Commands {
			if cmd.OnError != "" && cmd.OnError != "abort" && cmd.OnError != "continue" {
				return fmt.Errorf("project %q: command %q has invalid on_error %q", name, cmd.Title, cmd.OnError)
			}
		}
	}

	return nil
}
