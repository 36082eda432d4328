// Package config decodes the typed configuration surface for each of the
// three node roles (agent, relay, client). It stops at
// decode-defaults-validate: no flag parsing, no daemonization. YAML
// decoding (gopkg.in/yaml.v3) mirrors the runbook loader this project grew
// out of, and the environment-variable overlay (github.com/caarlos0/env/v11)
// runs after it so deployment-time overrides win without needing a second
// config file per environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as a human-readable
// string ("30s", "5m") in both the YAML config file and an env var
// overlay. yaml.v3 and caarlos0/env both fall back to
// encoding.TextUnmarshaler for scalar values, which plain time.Duration
// does not implement (it unmarshals as a bare integer of nanoseconds).
type Duration time.Duration

// UnmarshalYAML decodes a scalar duration string, e.g. "30s".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back to its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalText lets the env overlay (caarlos0/env) and anything else
// relying on encoding.TextUnmarshaler parse the same string form.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// AccessConfig is the agent's filesystem access policy surface.
type AccessConfig struct {
	AllowedPaths      []string `yaml:"allowed_paths" env:"REMOTEFS_ALLOWED_PATHS" envSeparator:","`
	ReadOnlyPaths     []string `yaml:"read_only_paths" env:"REMOTEFS_READ_ONLY_PATHS" envSeparator:","`
	DeniedPaths       []string `yaml:"denied_paths" env:"REMOTEFS_DENIED_PATHS" envSeparator:","`
	MaxFileSize       uint64   `yaml:"max_file_size" env:"REMOTEFS_MAX_FILE_SIZE"`
	FollowSymlinks    bool     `yaml:"follow_symlinks" env:"REMOTEFS_FOLLOW_SYMLINKS"`
	AllowedExtensions []string `yaml:"allowed_extensions" env:"REMOTEFS_ALLOWED_EXTENSIONS" envSeparator:","`
	DeniedExtensions  []string `yaml:"denied_extensions" env:"REMOTEFS_DENIED_EXTENSIONS" envSeparator:","`
}

// TLSConfig names the PEM files relaytls loads to build a *tls.Config for
// a node's side of a connection. The files are read only when the node's
// EnableTLS flag is set; a missing or unreadable file is then an error the
// caller reports at startup, not a silent fallback to plaintext.
type TLSConfig struct {
	CACertFile     string `yaml:"ca_cert_file" env:"REMOTEFS_TLS_CA_CERT_FILE"`
	CertFile       string `yaml:"cert_file" env:"REMOTEFS_TLS_CERT_FILE"`
	KeyFile        string `yaml:"key_file" env:"REMOTEFS_TLS_KEY_FILE"`
	RequireClient  bool   `yaml:"require_client_cert" env:"REMOTEFS_TLS_REQUIRE_CLIENT_CERT"`
}

// SecurityConfig is the agent's link-security surface.
type SecurityConfig struct {
	EnableTLS      bool          `yaml:"enable_tls" env:"REMOTEFS_ENABLE_TLS"`
	VerifyCerts    bool          `yaml:"verify_certs" env:"REMOTEFS_VERIFY_CERTS"`
	SessionTimeout Duration `yaml:"session_timeout" env:"REMOTEFS_SESSION_TIMEOUT"`
	EnableAuth     bool          `yaml:"enable_auth" env:"REMOTEFS_ENABLE_AUTH"`
	TLS            TLSConfig     `yaml:"tls"`
}

// NetworkConfig is the agent's reconnection surface.
type NetworkConfig struct {
	ConnectionTimeout    Duration `yaml:"connection_timeout" env:"REMOTEFS_CONNECTION_TIMEOUT"`
	HeartbeatInterval    Duration `yaml:"heartbeat_interval" env:"REMOTEFS_HEARTBEAT_INTERVAL"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" env:"REMOTEFS_MAX_RECONNECT_ATTEMPTS"`
	ReconnectBackoffBase Duration `yaml:"reconnect_backoff_base" env:"REMOTEFS_RECONNECT_BACKOFF_BASE"`
}

// PerformanceConfig is the agent's I/O tuning surface.
type PerformanceConfig struct {
	WorkerThreads int  `yaml:"worker_threads" env:"REMOTEFS_WORKER_THREADS"`
	IOBufferSize  int  `yaml:"io_buffer_size" env:"REMOTEFS_IO_BUFFER_SIZE"`
	AsyncIO       bool `yaml:"async_io" env:"REMOTEFS_ASYNC_IO"`
}

// AgentConfig is the full configuration an agent process loads.
type AgentConfig struct {
	AgentID     string            `yaml:"agent_id" env:"REMOTEFS_AGENT_ID"`
	RelayURL    string            `yaml:"relay_url" env:"REMOTEFS_RELAY_URL"`
	Access      AccessConfig      `yaml:"access"`
	Security    SecurityConfig    `yaml:"security"`
	Network     NetworkConfig     `yaml:"network"`
	Performance PerformanceConfig `yaml:"performance"`
}

// MessageLimitsConfig bounds the relay's wire codec.
type MessageLimitsConfig struct {
	MaxMessageSize int `yaml:"max_message_size" env:"REMOTEFS_MAX_MESSAGE_SIZE"`
	MaxChunkSize   int `yaml:"max_chunk_size" env:"REMOTEFS_MAX_CHUNK_SIZE"`
	MaxDirEntries  int `yaml:"max_dir_entries" env:"REMOTEFS_MAX_DIR_ENTRIES"`
}

// RelaySessionConfig bounds the relay's session table.
type RelaySessionConfig struct {
	Timeout         Duration `yaml:"timeout" env:"REMOTEFS_SESSION_TIMEOUT"`
	MaxSessions     int           `yaml:"max_sessions" env:"REMOTEFS_MAX_SESSIONS"`
	CleanupInterval Duration `yaml:"cleanup_interval" env:"REMOTEFS_CLEANUP_INTERVAL"`
}

// RelayConfig is the full configuration a relay process loads.
type RelayConfig struct {
	BindAddress    string              `yaml:"bind_address" env:"REMOTEFS_BIND_ADDRESS"`
	Port           int                 `yaml:"port" env:"REMOTEFS_PORT"`
	MaxConnections int                 `yaml:"max_connections" env:"REMOTEFS_MAX_CONNECTIONS"`
	MessageLimits  MessageLimitsConfig `yaml:"message_limits"`
	Session        RelaySessionConfig  `yaml:"session"`
	EnableTLS      bool                `yaml:"enable_tls" env:"REMOTEFS_ENABLE_TLS"`
	TLS            TLSConfig           `yaml:"tls"`
}

// AgentEndpoint is one entry in a client's configured agent set.
type AgentEndpoint struct {
	ID      string `yaml:"id"`
	URL     string `yaml:"url"`
	Weight  int    `yaml:"weight"`
	Enabled bool   `yaml:"enabled"`
}

// RetryStrategyKind enumerates §6's client retry_strategy variants.
type RetryStrategyKind string

const (
	RetryStrategyNone        RetryStrategyKind = "None"
	RetryStrategyLinear      RetryStrategyKind = "Linear"
	RetryStrategyExponential RetryStrategyKind = "Exponential"
)

// LoadBalancingKind enumerates §6's client load_balancing variants.
type LoadBalancingKind string

const (
	LoadBalancingRoundRobin         LoadBalancingKind = "RoundRobin"
	LoadBalancingWeightedRoundRobin LoadBalancingKind = "WeightedRoundRobin"
	LoadBalancingLeastConnections   LoadBalancingKind = "LeastConnections"
	LoadBalancingRandom             LoadBalancingKind = "Random"
)

// BehaviourConfig is the client's retry/load-balancing surface.
type BehaviourConfig struct {
	OperationTimeout Duration     `yaml:"operation_timeout" env:"REMOTEFS_OPERATION_TIMEOUT"`
	MaxRetries       int               `yaml:"max_retries" env:"REMOTEFS_MAX_RETRIES"`
	RetryStrategy    RetryStrategyKind `yaml:"retry_strategy"`
	RetryDelay       Duration     `yaml:"retry_delay"`
	RetryBase        Duration     `yaml:"retry_base"`
	RetryCap         Duration     `yaml:"retry_cap"`
	LoadBalancing    LoadBalancingKind `yaml:"load_balancing"`
	EnableFailover   bool              `yaml:"enable_failover" env:"REMOTEFS_ENABLE_FAILOVER"`
}

// ReconnectionConfig is the client connection's reconnect surface.
type ReconnectionConfig struct {
	Enabled     bool          `yaml:"enabled" env:"REMOTEFS_RECONNECTION_ENABLED"`
	MaxAttempts int           `yaml:"max_attempts" env:"REMOTEFS_RECONNECTION_MAX_ATTEMPTS"`
	BaseDelay   Duration `yaml:"base_delay" env:"REMOTEFS_RECONNECTION_BASE_DELAY"`
	MaxDelay    Duration `yaml:"max_delay" env:"REMOTEFS_RECONNECTION_MAX_DELAY"`
	Multiplier  float64       `yaml:"multiplier" env:"REMOTEFS_RECONNECTION_MULTIPLIER"`
}

// ClientConnectionConfig is the client's per-link tuning surface.
type ClientConnectionConfig struct {
	ConnectTimeout    Duration           `yaml:"connect_timeout" env:"REMOTEFS_CONNECT_TIMEOUT"`
	HeartbeatInterval Duration           `yaml:"heartbeat_interval" env:"REMOTEFS_HEARTBEAT_INTERVAL"`
	MaxMessageSize    int                `yaml:"max_message_size" env:"REMOTEFS_MAX_MESSAGE_SIZE"`
	Reconnection      ReconnectionConfig `yaml:"reconnection"`
	EnableTLS         bool               `yaml:"enable_tls" env:"REMOTEFS_ENABLE_TLS"`
	TLS               TLSConfig          `yaml:"tls"`
}

// ClientConfig is the full configuration a client process loads.
type ClientConfig struct {
	Agents     []AgentEndpoint        `yaml:"agents"`
	Behaviour  BehaviourConfig        `yaml:"behaviour"`
	Connection ClientConnectionConfig `yaml:"connection"`
}

// Default timeouts and sizes applied when a loaded config leaves the field
// at its YAML zero value.
const (
	DefaultConnectionTimeout = Duration(10 * time.Second)
	DefaultHeartbeatInterval = Duration(30 * time.Second)
	DefaultSessionTimeout    = Duration(2 * time.Minute)
	DefaultCleanupInterval   = Duration(30 * time.Second)
	DefaultMaxMessageSize    = 16 * 1024 * 1024
	DefaultMaxReconnect      = 0 // 0 = unlimited
	DefaultReconnectBackoff  = Duration(1 * time.Second)
	DefaultOperationTimeout  = Duration(30 * time.Second)
	DefaultMaxRetries        = 2
)

// LoadAgentConfig reads and decodes an agent config file, applies the
// environment overlay, fills defaults, and validates the result.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	var cfg AgentConfig
	if err := decodeYAMLFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment overlay: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AgentConfig) applyDefaults() {
	if c.Network.ConnectionTimeout <= 0 {
		c.Network.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.Network.HeartbeatInterval <= 0 {
		c.Network.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Network.ReconnectBackoffBase <= 0 {
		c.Network.ReconnectBackoffBase = DefaultReconnectBackoff
	}
	if c.Security.SessionTimeout <= 0 {
		c.Security.SessionTimeout = DefaultSessionTimeout
	}
	if c.Performance.IOBufferSize <= 0 {
		c.Performance.IOBufferSize = 64 * 1024
	}
	if c.Performance.WorkerThreads <= 0 {
		c.Performance.WorkerThreads = 4
	}
}

func (c *AgentConfig) validate() error {
	if c.AgentID == "" {
		return fmt.Errorf("config: agent_id is required")
	}
	if c.RelayURL == "" {
		return fmt.Errorf("config: relay_url is required")
	}
	if c.Access.MaxFileSize == 0 {
		return fmt.Errorf("config: access.max_file_size must be set (0 would permit unbounded reads/writes)")
	}
	return nil
}

// LoadRelayConfig reads and decodes a relay config file, applies the
// environment overlay, fills defaults, and validates the result.
func LoadRelayConfig(path string) (*RelayConfig, error) {
	var cfg RelayConfig
	if err := decodeYAMLFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment overlay: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *RelayConfig) applyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 9443
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 1000
	}
	if c.MessageLimits.MaxMessageSize <= 0 {
		c.MessageLimits.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.MessageLimits.MaxChunkSize <= 0 {
		c.MessageLimits.MaxChunkSize = 1024 * 1024
	}
	if c.MessageLimits.MaxDirEntries <= 0 {
		c.MessageLimits.MaxDirEntries = 10000
	}
	if c.Session.Timeout <= 0 {
		c.Session.Timeout = DefaultSessionTimeout
	}
	if c.Session.CleanupInterval <= 0 {
		c.Session.CleanupInterval = DefaultCleanupInterval
	}
	if c.Session.MaxSessions <= 0 {
		c.Session.MaxSessions = 10000
	}
}

func (c *RelayConfig) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	return nil
}

// LoadClientConfig reads and decodes a client config file, applies the
// environment overlay, fills defaults, and validates the result.
func LoadClientConfig(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := decodeYAMLFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment overlay: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) applyDefaults() {
	if c.Behaviour.OperationTimeout <= 0 {
		c.Behaviour.OperationTimeout = DefaultOperationTimeout
	}
	if c.Behaviour.RetryStrategy == "" {
		c.Behaviour.RetryStrategy = RetryStrategyExponential
	}
	if c.Behaviour.LoadBalancing == "" {
		c.Behaviour.LoadBalancing = LoadBalancingRoundRobin
	}
	if c.Connection.ConnectTimeout <= 0 {
		c.Connection.ConnectTimeout = DefaultConnectionTimeout
	}
	if c.Connection.HeartbeatInterval <= 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.MaxMessageSize <= 0 {
		c.Connection.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Connection.Reconnection.BaseDelay <= 0 {
		c.Connection.Reconnection.BaseDelay = DefaultReconnectBackoff
	}
	if c.Connection.Reconnection.Multiplier <= 0 {
		c.Connection.Reconnection.Multiplier = 2.0
	}
	for i := range c.Agents {
		if c.Agents[i].Weight <= 0 {
			c.Agents[i].Weight = 1
		}
	}
}

func (c *ClientConfig) validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("config: at least one agent endpoint is required")
	}
	switch c.Behaviour.RetryStrategy {
	case RetryStrategyNone, RetryStrategyLinear, RetryStrategyExponential:
	default:
		return fmt.Errorf("config: unknown retry_strategy %q", c.Behaviour.RetryStrategy)
	}
	switch c.Behaviour.LoadBalancing {
	case LoadBalancingRoundRobin, LoadBalancingWeightedRoundRobin, LoadBalancingLeastConnections, LoadBalancingRandom:
	default:
		return fmt.Errorf("config: unknown load_balancing %q", c.Behaviour.LoadBalancing)
	}
	return nil
}

func decodeYAMLFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
