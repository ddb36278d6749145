// Package tools hosts the agent's local tools and their registry.
// Tools declare their parameters as JSON schemas so LLM backends can
// produce structured calls against them.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/aloha/pkg/observability"
	"github.com/kadirpekel/aloha/pkg/registry"
)

// ErrUnknownTool marks a dispatch against a name the registry does not
// hold. Callers driving a model distinguish it from a tool's own
// validation failures.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError marks arguments that fail a tool's own validation.
// It is data for the caller, not an infrastructure failure: the
// reasoner reports the message back instead of aborting the exchange.
type ValidationError struct {
	Tool    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError.
func NewValidationError(tool, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Tool: tool, Message: fmt.Sprintf(format, args...)}
}

// ToolInfo describes a tool to LLM backends.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool is a locally executable capability.
type Tool interface {
	GetInfo() ToolInfo
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// GenerateSchema reflects a parameter struct into an inline JSON
// schema suitable for tool declarations.
//
// Supported tags:
//   - json:"name" - parameter name
//   - jsonschema:"required" - mark as required
//   - jsonschema:"description=..." - parameter description
func GenerateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(raw, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")
	return schemaMap, nil
}

// MustGenerateSchema is GenerateSchema for package-level tool
// declarations where a reflection failure is a programming error.
func MustGenerateSchema[T any]() map[string]any {
	schema, err := GenerateSchema[T]()
	if err != nil {
		panic(err)
	}
	return schema
}

// Registry holds the tools available to the reasoner.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Tool]()}
}

// ListInfos returns tool declarations in name order.
func (r *Registry) ListInfos() []ToolInfo {
	tools := r.List()
	infos := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, t.GetInfo())
	}
	return infos
}

// Execute dispatches a tool call by name. An unregistered name is an
// error the caller reports back to the model.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("aloha.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, name),
		),
	)
	defer span.End()

	tool, ok := r.Get(name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, name)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not found")
		observability.GetGlobalMetrics().RecordToolExecution(name, time.Since(startTime), err)
		return "", err
	}

	result, err := tool.Execute(ctx, args)
	observability.GetGlobalMetrics().RecordToolExecution(name, time.Since(startTime), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool execution failed")
		return "", err
	}

	span.SetStatus(codes.Ok, "success")
	return result, nil
}
