package llms

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a chat transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls set on assistant messages that requested tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID set on tool messages carrying an execution result.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Provider generates chat completions with optional tool calling.
type Provider interface {
	// Generate returns the assistant text, any requested tool calls, and
	// the total tokens used.
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error)

	// GetModelName returns the configured model identifier.
	GetModelName() string

	Close() error
}

// ConvertToolInfo builds a ToolDefinition from flat parameter descriptors.
func ConvertToolInfo(name, description string, parameters []ToolParam) ToolDefinition {
	properties := make(map[string]interface{})
	required := []string{}

	for _, p := range parameters {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// ToolParam is a flat tool parameter descriptor used by ConvertToolInfo.
type ToolParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
}
