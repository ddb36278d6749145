package reasoner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/aloha/pkg/llms"
	"github.com/kadirpekel/aloha/pkg/tools"
)

const systemPrompt = `You are a dice rolling agent that can roll arbitrary N-sided dice and check if numbers are prime.

When asked to roll a dice, call the roll_dice tool with the number of sides as an integer parameter.

When asked to check if numbers are prime, call the check_prime tool with a list of integers.

When asked to roll a dice and check if the result is prime:
1. First call roll_dice to get the result
2. Then call check_prime with the result from step 1
3. Include both the dice result and prime check in your response

Always use the tools - never try to roll dice or check primes yourself.
Be conversational and friendly in your responses.

你是一个骰子代理，可以投掷任意面数的骰子并检查数字是否为质数。
当被要求投掷骰子时，使用 roll_dice 工具。
当被要求检查质数时，使用 check_prime 工具。
始终使用工具，不要自己计算。`

// maxToolRounds bounds the generate/execute loop. The final round
// always runs without tool declarations so the model must answer in
// text.
const maxToolRounds = 2

// LLMReasoner drives a chat-completion provider through a bounded
// tool-calling loop.
type LLMReasoner struct {
	provider llms.Provider
	tools    *tools.Registry
}

// NewLLMReasoner creates a reasoner on top of the given provider and
// tool registry.
func NewLLMReasoner(provider llms.Provider, registry *tools.Registry) *LLMReasoner {
	return &LLMReasoner{provider: provider, tools: registry}
}

// Reason implements Reasoner.
func (r *LLMReasoner) Reason(ctx context.Context, input string) (string, error) {
	messages := []llms.ChatMessage{
		{Role: llms.RoleSystem, Content: systemPrompt},
		{Role: llms.RoleUser, Content: input},
	}

	declarations := r.toolDeclarations()

	for round := 0; round < maxToolRounds; round++ {
		// Last round runs without tools to force a text answer.
		decls := declarations
		if round == maxToolRounds-1 {
			decls = nil
		}

		completion, err := r.provider.Generate(ctx, messages, decls)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
		}

		if len(completion.ToolCalls) == 0 {
			if completion.Text == "" {
				return "", fmt.Errorf("%w: model returned neither text nor tool calls", ErrReasoningProtocol)
			}
			return completion.Text, nil
		}

		slog.Debug("model requested tool calls",
			"model", r.provider.GetModelName(), "count", len(completion.ToolCalls))

		for _, call := range completion.ToolCalls {
			result, err := r.tools.Execute(ctx, call.Name, call.Args)
			if err != nil {
				// A tool name this runtime does not know is the model
				// misspeaking, not a tool failure.
				if errors.Is(err, tools.ErrUnknownTool) {
					return "", fmt.Errorf("%w: %v", ErrReasoningProtocol, err)
				}
				return "", fmt.Errorf("tool execution failed: %w", err)
			}

			messages = append(messages, llms.ChatMessage{
				Role:      llms.RoleAssistant,
				ToolCalls: []llms.ToolCall{call},
			})
			messages = append(messages, llms.ChatMessage{
				Role:     llms.RoleTool,
				Content:  result,
				ToolName: call.Name,
			})
		}
	}

	return "", fmt.Errorf("%w: tool call budget exhausted without a text answer", ErrReasoningProtocol)
}

func (r *LLMReasoner) toolDeclarations() []llms.ToolDefinition {
	infos := r.tools.ListInfos()
	decls := make([]llms.ToolDefinition, 0, len(infos))
	for _, info := range infos {
		decls = append(decls, llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  info.Parameters,
		})
	}
	return decls
}

// Compile-time interface compliance check
var _ Reasoner = (*LLMReasoner)(nil)
