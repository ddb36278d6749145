package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aloha.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "aloha", cfg.Agent.Name)
	assert.Equal(t, ":12000", cfg.Server.GRPC.Address)
	assert.Equal(t, ":12001", cfg.Server.JSONRPC.Address)
	assert.Equal(t, ":12002", cfg.Server.REST.Address)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "rules", cfg.Reasoner.Type)
	assert.Equal(t, "http://localhost:11434", cfg.Reasoner.Ollama.Host)
	assert.True(t, cfg.Server.GRPC.IsEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
agent:
  name: dicebot
server:
  grpc:
    enabled: false
  jsonrpc:
    address: ":9001"
reasoner:
  type: llm
  ollama:
    model: qwen3:8b
    timeout: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dicebot", cfg.Agent.Name)
	assert.False(t, cfg.Server.GRPC.IsEnabled())
	assert.Equal(t, ":9001", cfg.Server.JSONRPC.Address)
	assert.Equal(t, "llm", cfg.Reasoner.Type)
	assert.Equal(t, 30*time.Second, cfg.Reasoner.Ollama.Timeout)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("ALOHA_TEST_DSN", "file:tasks.db")
	path := writeConfig(t, `
storage:
  type: sql
  sql:
    dsn: ${ALOHA_TEST_DSN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file:tasks.db", cfg.Storage.SQL.DSN)
	assert.Equal(t, "sqlite3", cfg.Storage.SQL.Driver)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"sql without dsn",
			func(c *Config) { c.Storage.Type = "sql" },
			"storage.sql.dsn",
		},
		{
			"unknown storage type",
			func(c *Config) { c.Storage.Type = "redis" },
			"unsupported storage.type",
		},
		{
			"unknown driver",
			func(c *Config) {
				c.Storage.Type = "sql"
				c.Storage.SQL.DSN = "dsn"
				c.Storage.SQL.Driver = "oracle"
			},
			"unsupported storage.sql.driver",
		},
		{
			"unknown reasoner",
			func(c *Config) { c.Reasoner.Type = "oracle" },
			"unsupported reasoner.type",
		},
		{
			"no transports",
			func(c *Config) {
				off := false
				c.Server.GRPC.Enabled = &off
				c.Server.JSONRPC.Enabled = &off
				c.Server.REST.Enabled = &off
			},
			"at least one transport",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatchReload(t *testing.T) {
	path := writeConfig(t, "agent:\n  name: before\n")

	reloaded := make(chan *Config, 1)
	stop, err := Watch(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("agent:\n  name: after\n"), 0644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "after", cfg.Agent.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("config reload did not fire")
	}
}
