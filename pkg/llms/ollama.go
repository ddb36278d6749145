package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/aloha/pkg/httpclient"
	"github.com/kadirpekel/aloha/pkg/observability"
)

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	Host        string  `yaml:"host"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"` // seconds
}

// OllamaProvider talks to an Ollama server's /api/chat endpoint.
type OllamaProvider struct {
	config     OllamaConfig
	httpClient *httpclient.Client
	baseURL    string
}

type OllamaRequest struct {
	Model    string          `json:"model"`
	Messages []OllamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *OllamaOptions  `json:"options,omitempty"`
	Tools    []OllamaTool    `json:"tools,omitempty"`
}

type OllamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []OllamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"` // For tool result messages
}

type OllamaTool struct {
	Type     string             `json:"type"`
	Function OllamaToolFunction `json:"function"`
}

type OllamaToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type OllamaToolCall struct {
	Type     string                 `json:"type"`
	Function OllamaToolCallFunction `json:"function"`
}

type OllamaToolCallFunction struct {
	Index     int                    `json:"index,omitempty"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type OllamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type OllamaResponse struct {
	Model           string        `json:"model"`
	CreatedAt       string        `json:"created_at"`
	Message         OllamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaProvider creates a provider for the configured host, which
// defaults to the local Ollama listener.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := 120 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &OllamaProvider{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(2),
		),
		baseURL: baseURL,
	}
}

// Generate implements Provider.
func (p *OllamaProvider) Generate(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (*Completion, error) {
	tracer := observability.GetTracer("aloha.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMGenerate,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.config.Model),
			attribute.String("provider", "ollama"),
			attribute.Int("llm.tools", len(tools)),
		),
	)
	defer span.End()

	request := p.buildRequest(messages, tools)

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if response.Error != "" {
		apiErr := fmt.Errorf("Ollama API error: %s", response.Error)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, response.Error)
		return nil, apiErr
	}

	completion := &Completion{
		Text:       response.Message.Content,
		ToolCalls:  parseToolCalls(response.Message.ToolCalls),
		TokensUsed: response.PromptEvalCount + response.EvalCount,
	}

	span.SetAttributes(
		attribute.Int("llm.tokens", completion.TokensUsed),
		attribute.Int("llm.tool_calls", len(completion.ToolCalls)),
	)
	span.SetStatus(codes.Ok, "success")
	return completion, nil
}

// GetModelName implements Provider.
func (p *OllamaProvider) GetModelName() string {
	return p.config.Model
}

// Close implements Provider.
func (p *OllamaProvider) Close() error {
	return nil
}

func (p *OllamaProvider) buildRequest(messages []ChatMessage, tools []ToolDefinition) OllamaRequest {
	ollamaMessages := make([]OllamaMessage, 0, len(messages))
	for _, msg := range messages {
		om := OllamaMessage{
			Role:     msg.Role,
			Content:  msg.Content,
			ToolName: msg.ToolName,
		}
		for i, tc := range msg.ToolCalls {
			args := tc.Args
			if args == nil {
				args = make(map[string]interface{})
			}
			om.ToolCalls = append(om.ToolCalls, OllamaToolCall{
				Type: "function",
				Function: OllamaToolCallFunction{
					Index:     i,
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		ollamaMessages = append(ollamaMessages, om)
	}

	request := OllamaRequest{
		Model:    p.config.Model,
		Messages: ollamaMessages,
		Stream:   false,
	}

	if p.config.Temperature > 0 || p.config.MaxTokens > 0 {
		request.Options = &OllamaOptions{
			Temperature: p.config.Temperature,
			NumPredict:  p.config.MaxTokens,
		}
	}

	for _, tool := range tools {
		request.Tools = append(request.Tools, OllamaTool{
			Type: "function",
			Function: OllamaToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	return request
}

func parseToolCalls(ollamaToolCalls []OllamaToolCall) []ToolCall {
	if len(ollamaToolCalls) == 0 {
		return nil
	}
	toolCalls := make([]ToolCall, 0, len(ollamaToolCalls))
	for i, tc := range ollamaToolCalls {
		args := tc.Function.Arguments
		if args == nil {
			args = make(map[string]interface{})
		}
		index := tc.Function.Index
		if index < 0 {
			index = i
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:   fmt.Sprintf("call_%d_%s", index, tc.Function.Name),
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return toolCalls
}

func (p *OllamaProvider) makeRequest(ctx context.Context, request OllamaRequest) (*OllamaResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response OllamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &response, nil
}

// Compile-time interface compliance check
var _ Provider = (*OllamaProvider)(nil)
