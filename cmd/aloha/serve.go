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

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/aloha/pkg/config"
	"github.com/kadirpekel/aloha/pkg/executor"
	"github.com/kadirpekel/aloha/pkg/llms"
	"github.com/kadirpekel/aloha/pkg/logger"
	"github.com/kadirpekel/aloha/pkg/observability"
	"github.com/kadirpekel/aloha/pkg/reasoner"
	"github.com/kadirpekel/aloha/pkg/server"
	"github.com/kadirpekel/aloha/pkg/task"
	"github.com/kadirpekel/aloha/pkg/tools"
	"github.com/kadirpekel/aloha/pkg/transport"
)

// ServeCmd starts the agent server.
type ServeCmd struct {
	Reasoner string `help:"Reasoning backend (rules or llm). Overrides config."`
	Model    string `help:"Ollama model name. Overrides config."`
	Host     string `help:"Ollama host URL. Overrides config."`

	Storage   string `help:"Storage backend (memory, sqlite3, postgres, mysql). Overrides config." placeholder:"BACKEND"`
	StorageDB string `name:"storage-db" help:"Storage DSN." placeholder:"DSN"`

	Observe bool `help:"Enable OTLP tracing to localhost:4317."`
	Watch   bool `help:"Watch config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, err := c.loadConfig(cli)
	if err != nil {
		return err
	}

	if cfg.Tracing.Enabled {
		tp, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
			Enabled:     true,
			EndpointURL: cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			if shutdown, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
				_ = shutdown.Shutdown(context.Background())
			}
		}()
	}

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	r, err := buildReasoner(cfg)
	if err != nil {
		return err
	}

	handler := server.NewRequestHandler(store, executor.NewAgentExecutor(r))

	srv, err := transport.NewServer(serverConfig(cfg), handler)
	if err != nil {
		return err
	}

	if c.Watch && cli.Config != "" {
		stop, err := config.Watch(cli.Config, func(next *config.Config) {
			if level, err := logger.ParseLevel(next.Logging.Level); err == nil {
				logger.SetLevel(level)
			}
		})
		if err != nil {
			return err
		}
		defer stop()
	}

	return srv.Start(ctx)
}

func (c *ServeCmd) loadConfig(cli *CLI) (*config.Config, error) {
	cfg := config.Default()
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.Reasoner != "" {
		cfg.Reasoner.Type = c.Reasoner
	}
	if c.Model != "" {
		cfg.Reasoner.Ollama.Model = c.Model
	}
	if c.Host != "" {
		cfg.Reasoner.Ollama.Host = c.Host
	}
	if c.Storage != "" {
		if c.Storage == "memory" {
			cfg.Storage.Type = "memory"
		} else {
			cfg.Storage.Type = "sql"
			cfg.Storage.SQL.Driver = c.Storage
		}
	}
	if c.StorageDB != "" {
		cfg.Storage.SQL.DSN = c.StorageDB
	}
	if c.Observe {
		cfg.Tracing.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildStore(cfg *config.Config) (task.Store, func(), error) {
	if cfg.Storage.Type == "memory" {
		return task.NewMemoryStore(), func() {}, nil
	}

	db, err := sql.Open(cfg.Storage.SQL.Driver, cfg.Storage.SQL.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open task database: %w", err)
	}
	store, err := task.NewSQLStore(db, cfg.Storage.SQL.Driver)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	slog.Info("using SQL task store", "driver", cfg.Storage.SQL.Driver)
	return store, func() { db.Close() }, nil
}

func buildReasoner(cfg *config.Config) (reasoner.Reasoner, error) {
	registry := tools.NewRegistry()
	if err := registry.Register("roll_dice", tools.NewDiceTool()); err != nil {
		return nil, err
	}
	if err := registry.Register("check_prime", tools.NewPrimeTool()); err != nil {
		return nil, err
	}

	switch cfg.Reasoner.Type {
	case "rules":
		return reasoner.NewRuleReasoner(registry), nil
	case "llm":
		provider := llms.NewOllamaProvider(llms.OllamaConfig{
			Host:        cfg.Reasoner.Ollama.Host,
			Model:       cfg.Reasoner.Ollama.Model,
			Temperature: cfg.Reasoner.Ollama.Temperature,
			MaxTokens:   cfg.Reasoner.Ollama.MaxTokens,
			Timeout:     int(cfg.Reasoner.Ollama.Timeout.Seconds()),
		})
		slog.Info("using Ollama reasoner", "model", cfg.Reasoner.Ollama.Model, "host", cfg.Reasoner.Ollama.Host)
		return reasoner.NewLLMReasoner(provider, registry), nil
	default:
		return nil, fmt.Errorf("unsupported reasoner type: %q", cfg.Reasoner.Type)
	}
}

func serverConfig(cfg *config.Config) transport.ServerConfig {
	sc := transport.ServerConfig{
		AgentName:        cfg.Agent.Name,
		AgentDescription: cfg.Agent.Description,
		AgentVersion:     cfg.Agent.Version,
		ExternalHost:     cfg.Server.ExternalHost,
	}
	if cfg.Server.GRPC.IsEnabled() {
		sc.GRPC = &transport.GRPCConfig{Address: cfg.Server.GRPC.Address}
	}
	if cfg.Server.JSONRPC.IsEnabled() {
		sc.JSONRPC = &transport.JSONRPCConfig{Address: cfg.Server.JSONRPC.Address}
	}
	if cfg.Server.REST.IsEnabled() {
		sc.REST = &transport.RESTConfig{Address: cfg.Server.REST.Address}
	}
	return sc
}
