package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/aloha/pkg/a2a"
	"github.com/kadirpekel/aloha/pkg/server"
)

// ServerConfig selects which transports to bind and where.
type ServerConfig struct {
	AgentName        string
	AgentDescription string
	AgentVersion     string

	// ExternalHost is the hostname advertised in the agent card.
	ExternalHost string

	GRPC    *GRPCConfig
	JSONRPC *JSONRPCConfig
	REST    *RESTConfig
}

// SetDefaults binds all three transports on their default ports when
// the config selects none.
func (c *ServerConfig) SetDefaults() {
	if c.AgentName == "" {
		c.AgentName = "aloha"
	}
	if c.AgentDescription == "" {
		c.AgentDescription = "Dice rolling and prime checking agent"
	}
	if c.AgentVersion == "" {
		c.AgentVersion = "dev"
	}
	if c.ExternalHost == "" {
		c.ExternalHost = "localhost"
	}
	if c.GRPC == nil && c.JSONRPC == nil && c.REST == nil {
		c.GRPC = &GRPCConfig{Address: ":12000"}
		c.JSONRPC = &JSONRPCConfig{Address: ":12001"}
		c.REST = &RESTConfig{Address: ":12002"}
	}
}

func (c *ServerConfig) Validate() error {
	if c.GRPC == nil && c.JSONRPC == nil && c.REST == nil {
		return fmt.Errorf("at least one transport must be configured")
	}
	return nil
}

// transportBinding is one started adapter.
type transportBinding struct {
	name  string
	start func() error
	stop  func(context.Context) error
}

// Server runs the configured transports over one request handler and
// advertises only the interfaces it actually bound.
type Server struct {
	config   ServerConfig
	handler  *server.RequestHandler
	bindings []transportBinding
}

func NewServer(config ServerConfig, handler *server.RequestHandler) (*Server, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{config: config, handler: handler}

	var interfaces []a2a.AgentInterface

	if config.GRPC != nil {
		g := NewGRPCHandler(*config.GRPC, handler)
		s.bindings = append(s.bindings, transportBinding{name: "grpc", start: g.Start, stop: g.Stop})
		interfaces = append(interfaces, a2a.AgentInterface{
			Transport: a2a.TransportGRPC,
			URL:       fmt.Sprintf("%s%s", config.ExternalHost, g.config.Address),
		})
	}
	if config.JSONRPC != nil {
		j := NewJSONRPCHandler(*config.JSONRPC, handler)
		s.bindings = append(s.bindings, transportBinding{name: "jsonrpc", start: j.Start, stop: j.Stop})
		interfaces = append(interfaces, a2a.AgentInterface{
			Transport: a2a.TransportJSONRPC,
			URL:       fmt.Sprintf("http://%s%s/", config.ExternalHost, j.config.Address),
		})
	}
	if config.REST != nil {
		r := NewRESTHandler(*config.REST, handler)
		s.bindings = append(s.bindings, transportBinding{name: "rest", start: r.Start, stop: r.Stop})
		interfaces = append(interfaces, a2a.AgentInterface{
			Transport: a2a.TransportHTTPJSON,
			URL:       fmt.Sprintf("http://%s%s/", config.ExternalHost, r.config.Address),
		})
	}

	handler.SetAgentCard(buildAgentCard(config, interfaces))
	return s, nil
}

// buildAgentCard advertises exactly the bound interfaces. The first
// binding is the preferred transport.
func buildAgentCard(config ServerConfig, interfaces []a2a.AgentInterface) a2a.AgentCard {
	card := a2a.AgentCard{
		Name:               config.AgentName,
		Description:        config.AgentDescription,
		Version:            config.AgentVersion,
		ProtocolVersion:    a2a.ProtocolVersion,
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills:             agentSkills(),
	}
	if len(interfaces) > 0 {
		card.URL = interfaces[0].URL
		card.PreferredTransport = interfaces[0].Transport
		card.AdditionalInterfaces = interfaces
	}
	return card
}

func agentSkills() []a2a.AgentSkill {
	return []a2a.AgentSkill{
		{
			ID:          "roll_dice",
			Name:        "Roll Dice",
			Description: "Rolls an N-sided dice and reports the result",
			Tags:        []string{"dice", "random"},
			Examples:    []string{"Roll a 20-sided dice"},
		},
		{
			ID:          "check_prime",
			Name:        "Prime Checker",
			Description: "Checks whether the given numbers are prime",
			Tags:        []string{"math", "prime"},
			Examples:    []string{"Is 17 prime?"},
		},
	}
}

// Start runs every bound transport until one fails or ctx is canceled,
// then shuts the rest down.
func (s *Server) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, b := range s.bindings {
		b := b
		g.Go(func() error {
			if err := b.start(); err != nil {
				return fmt.Errorf("%s transport: %w", b.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	slog.Info("agent server started",
		"agent", s.config.AgentName,
		"transports", len(s.bindings))

	return g.Wait()
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, b := range s.bindings {
		if err := b.stop(ctx); err != nil {
			slog.Error("transport shutdown failed", "transport", b.name, "error", err)
		}
	}
}

// AgentCard returns the card the server advertises.
func (s *Server) AgentCard() a2a.AgentCard {
	return s.handler.AgentCard()
}
