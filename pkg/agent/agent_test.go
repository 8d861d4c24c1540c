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

package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/dbchat/pkg/llms"
	"github.com/kadirpekel/dbchat/pkg/tools"
)

// scriptedLLM returns one scripted response per Generate call.
type scriptedLLM struct {
	responses []scriptedResponse
	calls     int
	seen      [][]llms.Message
}

type scriptedResponse struct {
	text  string
	calls []llms.ToolCall
}

func (s *scriptedLLM) Generate(ctx context.Context, messages []llms.Message, defs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	s.seen = append(s.seen, messages)
	if s.calls >= len(s.responses) {
		return "", nil, 0, fmt.Errorf("unexpected call %d", s.calls)
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp.text, resp.calls, 0, nil
}

func (s *scriptedLLM) GetModelName() string { return "test-model" }

func (s *scriptedLLM) Close() error { return nil }

// echoTool echoes its "input" argument back.
type echoTool struct {
	name     string
	executed []map[string]interface{}
	fail     bool
}

func (e *echoTool) GetName() string { return e.name }

func (e *echoTool) GetDescription() string { return "echoes input" }

func (e *echoTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        e.name,
		Description: e.GetDescription(),
		Parameters: []tools.ToolParameter{
			{Name: "input", Type: "string", Required: true},
		},
	}
}

func (e *echoTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	e.executed = append(e.executed, args)
	if e.fail {
		err := fmt.Errorf("boom")
		return tools.ToolResult{Success: false, Error: err.Error(), ToolName: e.name}, err
	}
	input, _ := args["input"].(string)
	return tools.ToolResult{
		Success:       true,
		Content:       "echo: " + input,
		ToolName:      e.name,
		ExecutionTime: time.Millisecond,
	}, nil
}

func TestChatDirectAnswer(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{
		{text: "42"},
	}}

	a, err := New(llm, nil)
	require.NoError(t, err)

	answer, err := a.Chat(context.Background(), "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "42", answer)

	// System prompt then user message
	require.Len(t, llm.seen, 1)
	require.Len(t, llm.seen[0], 2)
	assert.Equal(t, llms.RoleSystem, llm.seen[0][0].Role)
	assert.Equal(t, llms.RoleUser, llm.seen[0][1].Role)
}

func TestChatToolLoop(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{
		{calls: []llms.ToolCall{{ID: "call-1", Name: "echo", Args: map[string]interface{}{"input": "hi"}}}},
		{text: "done"},
	}}
	tool := &echoTool{name: "echo"}

	a, err := New(llm, []tools.Tool{tool})
	require.NoError(t, err)

	answer, err := a.Chat(context.Background(), "use the tool")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)

	require.Len(t, tool.executed, 1)
	assert.Equal(t, "hi", tool.executed[0]["input"])

	// Second round trip carries the assistant tool call and the tool result
	require.Len(t, llm.seen, 2)
	transcript := llm.seen[1]
	require.Len(t, transcript, 4)
	assert.Equal(t, llms.RoleAssistant, transcript[2].Role)
	require.Len(t, transcript[2].ToolCalls, 1)
	assert.Equal(t, llms.RoleTool, transcript[3].Role)
	assert.Equal(t, "call-1", transcript[3].ToolCallID)
	assert.Equal(t, "echo: hi", transcript[3].Content)
}

func TestChatToolFailureFedBack(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{
		{calls: []llms.ToolCall{{ID: "call-1", Name: "echo", Args: map[string]interface{}{"input": "hi"}}}},
		{text: "recovered"},
	}}
	tool := &echoTool{name: "echo", fail: true}

	a, err := New(llm, []tools.Tool{tool})
	require.NoError(t, err)

	answer, err := a.Chat(context.Background(), "use the tool")
	require.NoError(t, err, "tool failure should not abort the turn")
	assert.Equal(t, "recovered", answer)

	transcript := llm.seen[1]
	assert.Contains(t, transcript[3].Content, "boom")
}

func TestChatUnknownTool(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{
		{calls: []llms.ToolCall{{ID: "call-1", Name: "nope", Args: nil}}},
		{text: "ok"},
	}}

	a, err := New(llm, nil)
	require.NoError(t, err)

	answer, err := a.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Contains(t, llm.seen[1][3].Content, "unknown tool")
}

func TestChatIterationCap(t *testing.T) {
	// The model keeps asking for tools forever
	responses := make([]scriptedResponse, 5)
	for i := range responses {
		responses[i] = scriptedResponse{
			calls: []llms.ToolCall{{ID: fmt.Sprintf("call-%d", i), Name: "echo", Args: map[string]interface{}{"input": "x"}}},
		}
	}
	llm := &scriptedLLM{responses: responses}

	a, err := New(llm, []tools.Tool{&echoTool{name: "echo"}}, WithMaxIterations(3))
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "loop")
	assert.Error(t, err)
	assert.Equal(t, 3, llm.calls)
}

func TestNewRejectsDuplicateTools(t *testing.T) {
	llm := &scriptedLLM{}
	_, err := New(llm, []tools.Tool{&echoTool{name: "echo"}, &echoTool{name: "echo"}})
	assert.Error(t, err)
}

func TestNewRequiresLLM(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}
