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

// Package agent runs the tool-calling loop that answers chat messages
// using the SQL and retrieval tools bound to a conversation.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/dbchat/pkg/llms"
	"github.com/kadirpekel/dbchat/pkg/tools"
)

const (
	defaultMaxIterations = 10

	systemPrompt = "You are a helpful assistant that answers questions about the " +
		"connected databases. Use the available tools to inspect schemas and run " +
		"SQL queries. Prefer looking up table definitions before writing queries. " +
		"Answer based on the data you retrieve, not on assumptions."
)

// Agent answers a single chat message by iterating between the LLM and
// its tools until the model produces a final text answer.
//
// The agent is stateless across turns; each Chat call starts from a
// fresh transcript.
type Agent struct {
	llm           llms.Provider
	tools         map[string]tools.Tool
	definitions   []llms.ToolDefinition
	maxIterations int
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxIterations caps how many LLM round trips one Chat call may use.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		a.maxIterations = n
	}
}

// New creates an agent over the given provider and tools.
func New(llm llms.Provider, toolset []tools.Tool, opts ...Option) (*Agent, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm provider is required")
	}

	a := &Agent{
		llm:           llm,
		tools:         make(map[string]tools.Tool, len(toolset)),
		maxIterations: defaultMaxIterations,
	}

	for _, t := range toolset {
		info := t.GetInfo()
		if _, exists := a.tools[info.Name]; exists {
			return nil, fmt.Errorf("duplicate tool %q", info.Name)
		}
		a.tools[info.Name] = t
		a.definitions = append(a.definitions, llms.ConvertToolInfo(info.Name, info.Description, convertParams(info.Parameters)))
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Chat answers one user message. Tool calls requested by the model are
// executed in order and their results fed back until the model returns a
// plain text answer or the iteration cap is hit.
func (a *Agent) Chat(ctx context.Context, input string) (string, error) {
	messages := []llms.Message{
		{Role: llms.RoleSystem, Content: systemPrompt},
		{Role: llms.RoleUser, Content: input},
	}

	for i := 0; i < a.maxIterations; i++ {
		text, calls, tokens, err := a.llm.Generate(ctx, messages, a.definitions)
		if err != nil {
			return "", fmt.Errorf("generation failed: %w", err)
		}
		slog.Debug("Agent iteration", "iteration", i, "tool_calls", len(calls), "tokens", tokens)

		if len(calls) == 0 {
			return text, nil
		}

		messages = append(messages, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   text,
			ToolCalls: calls,
		})

		for _, call := range calls {
			messages = append(messages, llms.Message{
				Role:       llms.RoleTool,
				Content:    a.executeTool(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("no final answer after %d iterations", a.maxIterations)
}

// executeTool runs one requested tool call. Failures are reported back to
// the model as tool output rather than aborting the turn, so it can
// correct itself (e.g. retry a query with a fixed column name).
func (a *Agent) executeTool(ctx context.Context, call llms.ToolCall) string {
	tool, ok := a.tools[call.Name]
	if !ok {
		slog.Warn("Model requested unknown tool", "tool", call.Name)
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}

	result, err := tool.Execute(ctx, call.Args)
	if err != nil {
		slog.Debug("Tool execution failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("Error: %s", result.Error)
	}

	slog.Debug("Tool executed", "tool", call.Name, "duration", result.ExecutionTime)
	return result.Content
}

func convertParams(params []tools.ToolParameter) []llms.ToolParam {
	out := make([]llms.ToolParam, len(params))
	for i, p := range params {
		out[i] = llms.ToolParam{
			Name:        p.Name,
			Type:        p.Type,
			Description: p.Description,
			Required:    p.Required,
			Enum:        p.Enum,
		}
	}
	return out
}
