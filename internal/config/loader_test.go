package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buildhive.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Server.Port)
	}
	if cfg.Scheduler.MaxConcurrency != 10 {
		t.Errorf("max concurrency = %d, want 10", cfg.Scheduler.MaxConcurrency)
	}
	if cfg.Scheduler.PollInterval != time.Second {
		t.Errorf("poll interval = %v, want 1s", cfg.Scheduler.PollInterval)
	}
	if len(cfg.Agents) != 4 {
		t.Errorf("seed agents = %d, want 4", len(cfg.Agents))
	}
}

func TestLoadFrom_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "9090"
scheduler:
  max_concurrency: 4
  poll_interval: 250ms
agents:
  - name: solo
    type: general
    capabilities: [code_generation]
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Scheduler.MaxConcurrency != 4 {
		t.Errorf("max concurrency = %d, want 4", cfg.Scheduler.MaxConcurrency)
	}
	if cfg.Scheduler.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %v, want 250ms", cfg.Scheduler.PollInterval)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].Name != "solo" {
		t.Errorf("agents = %+v, want the yaml pool", cfg.Agents)
	}
	// Untouched sections keep their defaults.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url = %q, want default", cfg.NATS.URL)
	}
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "9090"
`)
	t.Setenv("BUILDHIVE_PORT", "7070")
	t.Setenv("BUILDHIVE_SCHED_MAX_CONCURRENCY", "3")
	t.Setenv("BUILDHIVE_EXECUTOR_BASE_DURATION", "50ms")
	t.Setenv("BUILDHIVE_MCP_ENABLED", "false")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, want env 7070", cfg.Server.Port)
	}
	if cfg.Scheduler.MaxConcurrency != 3 {
		t.Errorf("max concurrency = %d, want 3", cfg.Scheduler.MaxConcurrency)
	}
	if cfg.Executor.BaseDuration != 50*time.Millisecond {
		t.Errorf("base duration = %v, want 50ms", cfg.Executor.BaseDuration)
	}
	if cfg.MCP.Enabled {
		t.Error("mcp should be disabled by env")
	}
}

func TestLoadFrom_EmptyEnvDoesNotOverride(t *testing.T) {
	t.Setenv("BUILDHIVE_PORT", "")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Server.Port)
	}
}

func TestLoadFrom_MalformedEnvIgnored(t *testing.T) {
	t.Setenv("BUILDHIVE_SCHED_MAX_CONCURRENCY", "lots")
	t.Setenv("BUILDHIVE_SCHED_POLL_INTERVAL", "soonish")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.MaxConcurrency != 10 {
		t.Errorf("max concurrency = %d, want default kept", cfg.Scheduler.MaxConcurrency)
	}
	if cfg.Scheduler.PollInterval != time.Second {
		t.Errorf("poll interval = %v, want default kept", cfg.Scheduler.PollInterval)
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map\n")

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFrom_ValidationFailures(t *testing.T) {
	// Empty env values never override, so clearing these keeps the yaml
	// under test authoritative even when the host has them set.
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NATS_URL", "")

	cases := map[string]string{
		"zero concurrency": "scheduler:\n  max_concurrency: 0\n",
		"empty dsn":        "postgres:\n  dsn: \"\"\n",
		"empty nats url":   "nats:\n  url: \"\"\n",
		"zero batch size":  "integrations:\n  batch_size: 0\n",
	}
	for name, content := range cases {
		path := writeConfigFile(t, content)
		if _, err := LoadFrom(path); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
