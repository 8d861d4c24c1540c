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

package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/dbchat/pkg/config"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.LLMConfig{
		Model:  "gpt-4o",
		APIKey: "sk-test",
		Host:   srv.URL,
	}
	cfg.SetDefaults()

	provider, err := NewOpenAIProvider(cfg)
	require.NoError(t, err)
	return provider
}

func TestGenerateTextAnswer(t *testing.T) {
	var gotReq openAIRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{
				Message:      openAIMessage{Role: "assistant", Content: "hello there"},
				FinishReason: "stop",
			}},
			Usage: openAIUsage{TotalTokens: 12},
		})
	})

	text, calls, tokens, err := provider.Generate(context.Background(),
		[]Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "hello there", text)
	assert.Empty(t, calls)
	assert.Equal(t, 12, tokens)
	assert.Equal(t, "gpt-4o", gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestGenerateToolCalls(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{
				Message: openAIMessage{
					Role: "assistant",
					ToolCalls: []openAIToolCall{{
						ID:   "call-1",
						Type: "function",
						Function: openAIFunctionCall{
							Name:      "load_data",
							Arguments: `{"query": "SELECT 1"}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
		})
	})

	tools := []ToolDefinition{ConvertToolInfo("load_data", "run sql", []ToolParam{
		{Name: "query", Type: "string", Required: true},
	})}

	_, calls, _, err := provider.Generate(context.Background(),
		[]Message{{Role: RoleUser, Content: "count rows"}}, tools)
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, "call-1", calls[0].ID)
	assert.Equal(t, "load_data", calls[0].Name)
	assert.Equal(t, "SELECT 1", calls[0].Args["query"])
}

func TestGenerateSendsToolDefinitions(t *testing.T) {
	var gotReq openAIRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{Message: openAIMessage{Content: "ok"}}},
		})
	})

	tools := []ToolDefinition{ConvertToolInfo("list_tables", "lists tables", nil)}
	_, _, _, err := provider.Generate(context.Background(),
		[]Message{{Role: RoleUser, Content: "x"}}, tools)
	require.NoError(t, err)

	require.Len(t, gotReq.Tools, 1)
	assert.Equal(t, "function", gotReq.Tools[0].Type)
	assert.Equal(t, "list_tables", gotReq.Tools[0].Function.Name)
}

func TestGenerateAPIError(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"message": "invalid model",
				"type":    "invalid_request_error",
			},
		})
	})

	_, _, _, err := provider.Generate(context.Background(),
		[]Message{{Role: RoleUser, Content: "x"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid model")
}

func TestGenerateNoChoices(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openAIResponse{})
	})

	_, _, _, err := provider.Generate(context.Background(),
		[]Message{{Role: RoleUser, Content: "x"}}, nil)
	assert.Error(t, err)
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(&config.LLMConfig{})
	assert.Error(t, err)
}

func TestConvertToolInfo(t *testing.T) {
	def := ConvertToolInfo("describe_tables", "describe", []ToolParam{
		{Name: "tables", Type: "array", Description: "table names", Required: true},
		{Name: "format", Type: "string", Enum: []string{"ddl", "brief"}},
	})

	assert.Equal(t, "describe_tables", def.Name)
	assert.Equal(t, "object", def.Parameters["type"])

	props := def.Parameters["properties"].(map[string]interface{})
	require.Contains(t, props, "tables")
	require.Contains(t, props, "format")
	assert.Equal(t, []string{"ddl", "brief"}, props["format"].(map[string]interface{})["enum"])

	assert.Equal(t, []string{"tables"}, def.Parameters["required"])
}
