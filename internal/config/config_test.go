package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  addr: ":9000"
  allowed_origins: ["https://pad.example.com"]
websocket:
  ping_interval: 20s
  pong_wait: 30s
store:
  driver: postgres
  postgres:
    host: localhost
    port: 5432
    name: relay
    user: relay
    password: relaypass
log:
  level: debug
  format: json
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":9000")
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://pad.example.com" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.WebSocket.PingInterval != 20*time.Second {
		t.Errorf("WebSocket.PingInterval = %v, want 20s", cfg.WebSocket.PingInterval)
	}
	if cfg.Store.Driver != DriverPostgres {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverPostgres)
	}
	if cfg.Store.Postgres.Host != "localhost" {
		t.Errorf("Store.Postgres.Host = %q, want %q", cfg.Store.Postgres.Host, "localhost")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != "" {
		t.Errorf("Server.Addr = %q, want empty", cfg.Server.Addr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "read config file") {
		t.Errorf("error = %v, want read config file prefix", err)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "secret123")

	yaml := `
store:
  driver: redis
  redis:
    addr: localhost:6379
    password: ${TEST_REDIS_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Redis.Password != "secret123" {
		t.Errorf("Store.Redis.Password = %q, want %q", cfg.Store.Redis.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "log:\n  level: warn\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want default %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.WebSocket.PongWait != DefaultPongWait {
		t.Errorf("WebSocket.PongWait = %v, want default %v", cfg.WebSocket.PongWait, DefaultPongWait)
	}
	if cfg.WebSocket.SendBufferSize != DefaultSendBufferSize {
		t.Errorf("WebSocket.SendBufferSize = %d, want default %d", cfg.WebSocket.SendBufferSize, DefaultSendBufferSize)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("Store.Driver = %q, want default %q", cfg.Store.Driver, DriverMemory)
	}
	if cfg.Store.Postgres.Port != DefaultDBPort {
		t.Errorf("Store.Postgres.Port = %d, want default %d", cfg.Store.Postgres.Port, DefaultDBPort)
	}
	if cfg.Metrics.LatencyWindow != DefaultLatencyWindow {
		t.Errorf("Metrics.LatencyWindow = %d, want default %d", cfg.Metrics.LatencyWindow, DefaultLatencyWindow)
	}
	if cfg.Metrics.EventLogSize != DefaultEventLogSize {
		t.Errorf("Metrics.EventLogSize = %d, want default %d", cfg.Metrics.EventLogSize, DefaultEventLogSize)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestLoadWithDefaults_EnvOverridesFile(t *testing.T) {
	t.Setenv("RELAY_ADDR", ":7777")
	t.Setenv("RELAY_STORE_DRIVER", "sqlite")
	t.Setenv("RELAY_SQLITE_PATH", "/tmp/override.db")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	yaml := `
server:
  addr: ":9000"
store:
  driver: memory
  sqlite:
    path: file.db
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Server.Addr != ":7777" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":7777")
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverSQLite)
	}
	if cfg.Store.SQLite.Path != "/tmp/override.db" {
		t.Errorf("Store.SQLite.Path = %q, want %q", cfg.Store.SQLite.Path, "/tmp/override.db")
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("Server.AllowedOrigins = %v, want 2 entries", cfg.Server.AllowedOrigins)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("RELAY_POSTGRES_PORT", "not-an-int")

	err := ParseEnv(&Config{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Errorf("expected parse env prefix, got %v", err)
	}
}

func TestLoadAndValidate_Defaults(t *testing.T) {
	cfg, err := LoadAndValidate(writeTempFile(t, "{}\n"))
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverMemory)
	}
}

func TestLoadAndValidate_ExampleFile(t *testing.T) {
	t.Setenv("RELAY_POSTGRES_PASSWORD", "from-env")

	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "relay.example.yaml"))
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverMemory)
	}
	if cfg.Store.Postgres.Password != "from-env" {
		t.Errorf("Postgres.Password = %q, want from-env", cfg.Store.Postgres.Password)
	}
	if cfg.WebSocket.PingInterval != 54*time.Second {
		t.Errorf("PingInterval = %v, want 54s", cfg.WebSocket.PingInterval)
	}
}

func TestLoadAndValidate_Invalid(t *testing.T) {
	_, err := LoadAndValidate(writeTempFile(t, "store:\n  driver: mongo\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "validate config") {
		t.Errorf("error = %v, want validate config prefix", err)
	}
}

func validConfig() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing addr",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: "server.addr is required",
		},
		{
			name:    "ping interval not below pong wait",
			mutate:  func(c *Config) { c.WebSocket.PingInterval = c.WebSocket.PongWait },
			wantErr: "websocket.ping_interval (1m0s) must be > 0 and below pong_wait (1m0s)",
		},
		{
			name:    "send buffer",
			mutate:  func(c *Config) { c.WebSocket.SendBufferSize = -1 },
			wantErr: "websocket.send_buffer_size must be >= 1",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Store.Driver = "mongo" },
			wantErr: `store.driver "mongo" is not one of memory, postgres, redis, sqlite`,
		},
		{
			name:    "missing postgres host",
			mutate:  func(c *Config) { c.Store.Driver = DriverPostgres },
			wantErr: "store.postgres.host is required",
		},
		{
			name: "missing postgres password",
			mutate: func(c *Config) {
				c.Store.Driver = DriverPostgres
				c.Store.Postgres.Host = "localhost"
				c.Store.Postgres.Name = "relay"
				c.Store.Postgres.User = "relay"
			},
			wantErr: "store.postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Store.Driver = DriverPostgres
				c.Store.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "store.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "missing redis addr",
			mutate:  func(c *Config) { c.Store.Driver = DriverRedis },
			wantErr: "store.redis.addr is required",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Store.Driver = DriverSQLite
				c.Store.SQLite.Path = ""
			},
			wantErr: "store.sqlite.path is required",
		},
		{
			name:    "latency window",
			mutate:  func(c *Config) { c.Metrics.LatencyWindow = 0 },
			wantErr: "metrics.latency_window must be >= 1",
		},
		{
			name:    "log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: `log.level "verbose" is not one of debug, info, warn, error`,
		},
		{
			name:    "log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: `log.format "xml" is not one of text, json`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
