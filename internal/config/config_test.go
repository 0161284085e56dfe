package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
server:
  port: 8081
  sse_poll_interval: 500ms

storage:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  database: voicedesk
  user: vd
  password: secret

provider:
  base_url: https://example.test/
  api_key: sk_file
  default_agent_id: agent_file
  timeout: 5s

logging:
  level: debug
  format: json

reaper:
  enabled: true
  schedule: "*/10 * * * *"
  max_age: 30m

notify:
  slack_webhook_url: https://hooks.slack.test/abc
  discord_webhook_id: "123"
  discord_webhook_token: tok
`

// clearProviderEnv blanks the provider environment so host settings don't leak in.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ELEVENLABS_API_KEY", "")
	t.Setenv("ELEVENLABS_AGENT_ID", "")
	t.Setenv("VITE_ELEVENLABS_AGENT_ID", "")
}

func TestParse_FullConfig(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Server.SSEPollInterval != 500*time.Millisecond {
		t.Errorf("Server.SSEPollInterval = %v, want 500ms", cfg.Server.SSEPollInterval)
	}
	if cfg.Storage.Driver != DriverMySQL {
		t.Errorf("Storage.Driver = %q, want mysql", cfg.Storage.Driver)
	}
	if cfg.Storage.Host != "10.0.0.5" || cfg.Storage.Port != 3307 {
		t.Errorf("Storage addr = %s:%d, want 10.0.0.5:3307", cfg.Storage.Host, cfg.Storage.Port)
	}
	if cfg.Storage.User != "vd" || cfg.Storage.Password != "secret" {
		t.Errorf("Storage credentials = %q/%q", cfg.Storage.User, cfg.Storage.Password)
	}
	if !cfg.Storage.Relational() {
		t.Error("mysql storage should be relational")
	}
	if cfg.Provider.BaseURL != "https://example.test" {
		t.Errorf("Provider.BaseURL = %q, want trailing slash trimmed", cfg.Provider.BaseURL)
	}
	if cfg.Provider.APIKey != "sk_file" {
		t.Errorf("Provider.APIKey = %q, want sk_file", cfg.Provider.APIKey)
	}
	if cfg.Provider.DefaultAgentID != "agent_file" {
		t.Errorf("Provider.DefaultAgentID = %q, want agent_file", cfg.Provider.DefaultAgentID)
	}
	if cfg.Provider.Timeout != 5*time.Second {
		t.Errorf("Provider.Timeout = %v, want 5s", cfg.Provider.Timeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Reaper.Enabled || cfg.Reaper.Schedule != "*/10 * * * *" || cfg.Reaper.MaxAge != 30*time.Minute {
		t.Errorf("Reaper = %+v", cfg.Reaper)
	}
	if cfg.Notify.SlackWebhookURL != "https://hooks.slack.test/abc" {
		t.Errorf("Notify.SlackWebhookURL = %q", cfg.Notify.SlackWebhookURL)
	}
	if cfg.Notify.DiscordWebhookID != "123" || cfg.Notify.DiscordWebhookToken != "tok" {
		t.Errorf("Notify discord = %q/%q", cfg.Notify.DiscordWebhookID, cfg.Notify.DiscordWebhookToken)
	}
}

func TestParse_Empty_AppliesDefaults(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000 (default)", cfg.Server.Port)
	}
	if cfg.Server.SSEPollInterval != 2*time.Second {
		t.Errorf("Server.SSEPollInterval = %v, want 2s (default)", cfg.Server.SSEPollInterval)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Errorf("Storage.Driver = %q, want memory (default)", cfg.Storage.Driver)
	}
	if cfg.Storage.Relational() {
		t.Error("memory storage should not be relational")
	}
	if cfg.Provider.BaseURL != DefaultProviderBaseURL {
		t.Errorf("Provider.BaseURL = %q, want %q", cfg.Provider.BaseURL, DefaultProviderBaseURL)
	}
	if cfg.Provider.APIKey != "" {
		t.Errorf("Provider.APIKey = %q, want empty: no built-in key", cfg.Provider.APIKey)
	}
	if cfg.Provider.DefaultAgentID != "" {
		t.Errorf("Provider.DefaultAgentID = %q, want empty: no built-in agent", cfg.Provider.DefaultAgentID)
	}
	if cfg.Provider.Timeout != 15*time.Second {
		t.Errorf("Provider.Timeout = %v, want 15s", cfg.Provider.Timeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v, want info/console", cfg.Logging)
	}
	if cfg.Reaper.Enabled {
		t.Error("reaper should be disabled by default")
	}
	if cfg.Reaper.Schedule != "*/5 * * * *" || cfg.Reaper.MaxAge != 2*time.Hour {
		t.Errorf("Reaper defaults = %+v", cfg.Reaper)
	}
}

func TestParse_SQLiteDefaultPath(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := Parse([]byte("storage:\n  driver: SQLite\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("Storage.Driver = %q, want lowercased sqlite", cfg.Storage.Driver)
	}
	if cfg.Storage.Path != "voicedesk.db" {
		t.Errorf("Storage.Path = %q, want voicedesk.db", cfg.Storage.Path)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := Parse([]byte("storage:\n  driver: mysql\n  database: vd\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Host != "127.0.0.1" || cfg.Storage.Port != 3306 || cfg.Storage.User != "root" {
		t.Errorf("mysql defaults = %+v", cfg.Storage)
	}
}

func TestParse_EnvFallbacks(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ELEVENLABS_API_KEY", "sk_env")
	t.Setenv("VITE_ELEVENLABS_AGENT_ID", "agent_vite")

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "sk_env" {
		t.Errorf("Provider.APIKey = %q, want sk_env", cfg.Provider.APIKey)
	}
	if cfg.Provider.DefaultAgentID != "agent_vite" {
		t.Errorf("Provider.DefaultAgentID = %q, want agent_vite", cfg.Provider.DefaultAgentID)
	}

	t.Setenv("ELEVENLABS_AGENT_ID", "agent_server")
	cfg, err = Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.DefaultAgentID != "agent_server" {
		t.Errorf("Provider.DefaultAgentID = %q, want ELEVENLABS_AGENT_ID to win", cfg.Provider.DefaultAgentID)
	}
}

func TestParse_FileValueBeatsEnv(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ELEVENLABS_API_KEY", "sk_env")
	cfg, err := Parse([]byte("provider:\n  api_key: sk_file\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "sk_file" {
		t.Errorf("Provider.APIKey = %q, want sk_file", cfg.Provider.APIKey)
	}
}

func TestParse_ExpandsEnvReferences(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("VD_TEST_DB_PASSWORD", "hunter2")
	cfg, err := Parse([]byte("storage:\n  driver: mysql\n  database: vd\n  password: ${VD_TEST_DB_PASSWORD}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Password != "hunter2" {
		t.Errorf("Storage.Password = %q, want hunter2", cfg.Storage.Password)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown driver",
			yaml:    "storage:\n  driver: postgres\n",
			wantErr: `storage.driver "postgres"`,
		},
		{
			name:    "mysql without database",
			yaml:    "storage:\n  driver: mysql\n",
			wantErr: "storage.database is required for mysql",
		},
		{
			name:    "bad port",
			yaml:    "server:\n  port: 70000\n",
			wantErr: "server.port 70000 out of range",
		},
		{
			name:    "bad log format",
			yaml:    "logging:\n  format: xml\n",
			wantErr: `logging.format "xml"`,
		},
		{
			name:    "bad reaper schedule",
			yaml:    "reaper:\n  enabled: true\n  schedule: \"not a cron\"\n",
			wantErr: "reaper.schedule",
		},
		{
			name:    "reaper max age too small",
			yaml:    "reaper:\n  enabled: true\n  max_age: 10s\n",
			wantErr: "reaper.max_age must be at least 1m",
		},
		{
			name:    "half discord webhook",
			yaml:    "notify:\n  discord_webhook_id: \"1\"\n",
			wantErr: "must be set together",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProviderEnv(t)
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), "config: validation failed") {
				t.Errorf("error = %q, want validation prefix", err.Error())
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want config: parse prefix", err.Error())
	}
}

func TestLoad_File(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "voicedesk.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want config: read prefix", err.Error())
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
}
