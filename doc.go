// Package aloha provides an A2A-native agent runtime with dice rolling
// and prime checking skills.
//
// The agent implements the A2A (Agent-to-Agent) protocol over three
// transports at once: gRPC, JSON-RPC 2.0 and HTTP+JSON/REST. All three
// share one task lifecycle, one event stream and one store, so a task
// started on one transport can be inspected or canceled on another.
//
// # Quick Start
//
// Install aloha:
//
//	go install github.com/kadirpekel/aloha/cmd/aloha@latest
//
// Start the server with the deterministic rule-based reasoner:
//
//	aloha serve
//
// Or back it with a local Ollama model:
//
//	aloha serve --reasoner llm --model qwen3:8b
//
// Then talk to it over REST:
//
//	curl -X POST localhost:12002/v1/message:send \
//	  -d '{"message":{"role":"user","parts":[{"kind":"text","text":"Is 17 prime?"}]}}'
//
// # Using as Go Library
//
// Import the packages directly:
//
//	import (
//		"github.com/kadirpekel/aloha/pkg/server"
//		"github.com/kadirpekel/aloha/pkg/transport"
//	)
//
// See pkg/server for the transport-agnostic request handler and
// pkg/a2a for the protocol data model.
package aloha
