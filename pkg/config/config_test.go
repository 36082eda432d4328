package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAgentConfig_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "agent.yaml", `
agent_id: agent-1
relay_url: wss://relay.example.com/ws
access:
  allowed_paths: ["/srv/data"]
  max_file_size: 104857600
security:
  enable_tls: true
`)

	cfg, err := LoadAgentConfig(path)
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}
	if cfg.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want agent-1", cfg.AgentID)
	}
	if cfg.Access.MaxFileSize != 104857600 {
		t.Errorf("MaxFileSize = %d", cfg.Access.MaxFileSize)
	}
	if cfg.Network.ConnectionTimeout != DefaultConnectionTimeout {
		t.Errorf("ConnectionTimeout default not applied: %v", cfg.Network.ConnectionTimeout)
	}
	if cfg.Performance.WorkerThreads != 4 {
		t.Errorf("WorkerThreads default = %d, want 4", cfg.Performance.WorkerThreads)
	}
}

func TestLoadAgentConfig_MissingAgentID(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "agent.yaml", `
relay_url: wss://relay.example.com/ws
access:
  max_file_size: 1024
`)
	if _, err := LoadAgentConfig(path); err == nil {
		t.Error("expected error for missing agent_id")
	}
}

func TestLoadAgentConfig_MissingMaxFileSize(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "agent.yaml", `
agent_id: agent-1
relay_url: wss://relay.example.com/ws
`)
	if _, err := LoadAgentConfig(path); err == nil {
		t.Error("expected error for missing access.max_file_size")
	}
}

func TestLoadAgentConfig_EnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "agent.yaml", `
agent_id: agent-1
relay_url: wss://relay.example.com/ws
access:
  max_file_size: 1024
`)
	t.Setenv("REMOTEFS_AGENT_ID", "agent-overridden")
	cfg, err := LoadAgentConfig(path)
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}
	if cfg.AgentID != "agent-overridden" {
		t.Errorf("AgentID = %q, want env override agent-overridden", cfg.AgentID)
	}
}

func TestLoadAgentConfig_FileNotFound(t *testing.T) {
	if _, err := LoadAgentConfig("/nonexistent/agent.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadRelayConfig_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "relay.yaml", `
bind_address: 0.0.0.0
port: 9443
`)
	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.Port != 9443 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.MessageLimits.MaxMessageSize != DefaultMaxMessageSize {
		t.Errorf("MaxMessageSize default not applied: %d", cfg.MessageLimits.MaxMessageSize)
	}
	if cfg.Session.Timeout != DefaultSessionTimeout {
		t.Errorf("Session.Timeout default not applied: %v", cfg.Session.Timeout)
	}
}

func TestLoadRelayConfig_InvalidPort(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "relay.yaml", `
port: 70000
`)
	if _, err := LoadRelayConfig(path); err == nil {
		t.Error("expected error for out-of-range port")
	}
}

func TestLoadRelayConfig_EnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "relay.yaml", `
port: 9443
`)
	t.Setenv("REMOTEFS_PORT", "9999")
	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want env override 9999", cfg.Port)
	}
}

func TestLoadClientConfig_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "client.yaml", `
agents:
  - id: agent-1
    url: wss://relay.example.com/ws
    weight: 2
    enabled: true
behaviour:
  retry_strategy: Exponential
  retry_base: 500ms
  retry_cap: 30s
  load_balancing: WeightedRoundRobin
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].Weight != 2 {
		t.Fatalf("Agents = %+v", cfg.Agents)
	}
	if cfg.Behaviour.RetryStrategy != RetryStrategyExponential {
		t.Errorf("RetryStrategy = %q", cfg.Behaviour.RetryStrategy)
	}
	if cfg.Connection.Reconnection.Multiplier != 2.0 {
		t.Errorf("Multiplier default = %v, want 2.0", cfg.Connection.Reconnection.Multiplier)
	}
}

func TestLoadClientConfig_NoAgents(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "client.yaml", `
behaviour:
  retry_strategy: None
`)
	if _, err := LoadClientConfig(path); err == nil {
		t.Error("expected error for empty agents list")
	}
}

func TestLoadClientConfig_UnknownRetryStrategy(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "client.yaml", `
agents:
  - id: agent-1
    url: wss://relay.example.com/ws
behaviour:
  retry_strategy: Fibonacci
`)
	if _, err := LoadClientConfig(path); err == nil {
		t.Error("expected error for unknown retry_strategy")
	}
}

func TestLoadClientConfig_DefaultAgentWeight(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "client.yaml", `
agents:
  - id: agent-1
    url: wss://relay.example.com/ws
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if cfg.Agents[0].Weight != 1 {
		t.Errorf("Weight default = %d, want 1", cfg.Agents[0].Weight)
	}
}

func TestLoadClientConfig_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "client.yaml", ":::not yaml")
	if _, err := LoadClientConfig(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestAgentConfigDurationsParseFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "agent.yaml", `
agent_id: agent-1
relay_url: wss://relay.example.com/ws
access:
  max_file_size: 1024
network:
  connection_timeout: 5s
  heartbeat_interval: 15s
`)
	cfg, err := LoadAgentConfig(path)
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}
	if time.Duration(cfg.Network.ConnectionTimeout) != 5*time.Second {
		t.Errorf("ConnectionTimeout = %v, want 5s", cfg.Network.ConnectionTimeout)
	}
	if time.Duration(cfg.Network.HeartbeatInterval) != 15*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 15s", cfg.Network.HeartbeatInterval)
	}
}
