// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the agent configuration from YAML with
// environment variable expansion and optional hot reload.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Reasoner ReasonerConfig `yaml:"reasoner"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// AgentConfig names the agent in its card.
type AgentConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

// ServerConfig selects transports and bind addresses.
type ServerConfig struct {
	ExternalHost string          `yaml:"external_host"`
	GRPC         TransportConfig `yaml:"grpc"`
	JSONRPC      TransportConfig `yaml:"jsonrpc"`
	REST         TransportConfig `yaml:"rest"`
}

// TransportConfig is one transport binding.
type TransportConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
}

// IsEnabled treats an absent flag as enabled.
func (c TransportConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// StorageConfig selects the task store backend.
type StorageConfig struct {
	Type string    `yaml:"type"` // "memory" or "sql"
	SQL  SQLConfig `yaml:"sql"`
}

// SQLConfig configures the SQL task store.
type SQLConfig struct {
	Driver string `yaml:"driver"` // "sqlite3", "postgres" or "mysql"
	DSN    string `yaml:"dsn"`
}

// ReasonerConfig selects the reasoning backend.
type ReasonerConfig struct {
	Type   string       `yaml:"type"` // "llm" or "rules"
	Ollama OllamaConfig `yaml:"ollama"`
}

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	Host        string        `yaml:"host"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// SetDefaults fills unset fields with working defaults.
func (c *Config) SetDefaults() {
	if c.Agent.Name == "" {
		c.Agent.Name = "aloha"
	}
	if c.Agent.Description == "" {
		c.Agent.Description = "Dice rolling and prime checking agent"
	}
	if c.Agent.Version == "" {
		c.Agent.Version = "dev"
	}
	if c.Server.ExternalHost == "" {
		c.Server.ExternalHost = "localhost"
	}
	if c.Server.GRPC.Address == "" {
		c.Server.GRPC.Address = ":12000"
	}
	if c.Server.JSONRPC.Address == "" {
		c.Server.JSONRPC.Address = ":12001"
	}
	if c.Server.REST.Address == "" {
		c.Server.REST.Address = ":12002"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.SQL.Driver == "" {
		c.Storage.SQL.Driver = "sqlite3"
	}
	if c.Reasoner.Type == "" {
		c.Reasoner.Type = "rules"
	}
	if c.Reasoner.Ollama.Host == "" {
		c.Reasoner.Ollama.Host = "http://localhost:11434"
	}
	if c.Reasoner.Ollama.Model == "" {
		c.Reasoner.Ollama.Model = "qwen3:8b"
	}
	if c.Reasoner.Ollama.Timeout == 0 {
		c.Reasoner.Ollama.Timeout = 120 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "aloha"
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}
}

// Validate rejects configurations that cannot be served.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "memory":
	case "sql":
		if c.Storage.SQL.DSN == "" {
			return fmt.Errorf("storage.sql.dsn is required when storage.type is sql")
		}
		switch c.Storage.SQL.Driver {
		case "sqlite3", "postgres", "mysql":
		default:
			return fmt.Errorf("unsupported storage.sql.driver: %q", c.Storage.SQL.Driver)
		}
	default:
		return fmt.Errorf("unsupported storage.type: %q", c.Storage.Type)
	}

	switch c.Reasoner.Type {
	case "rules":
	case "llm":
		if c.Reasoner.Ollama.Model == "" {
			return fmt.Errorf("reasoner.ollama.model is required when reasoner.type is llm")
		}
	default:
		return fmt.Errorf("unsupported reasoner.type: %q", c.Reasoner.Type)
	}

	if !c.Server.GRPC.IsEnabled() && !c.Server.JSONRPC.IsEnabled() && !c.Server.REST.IsEnabled() {
		return fmt.Errorf("at least one transport must be enabled")
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads a YAML config file. ${VAR} references are expanded from
// the environment before parsing.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Watch reloads the file on change and invokes onChange with the new
// config. Invalid revisions are logged and skipped. The returned stop
// function ends the watch.
func Watch(path string, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					slog.Warn("config reload skipped", "path", path, "error", err)
					continue
				}
				slog.Info("config reloaded", "path", path)
				onChange(cfg)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
