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

// Package tools defines the tool abstraction the agent invokes, plus the
// retrieval-backed query engine tool.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/dbchat/pkg/rag"
)

// QueryEngineTool exposes a rag.QueryEngine as an agent tool. It answers
// natural-language questions via retrieval over the engine's index.
type QueryEngineTool struct {
	engine      *rag.QueryEngine
	name        string
	description string
}

// NewQueryEngineTool creates a query engine tool with the given metadata.
func NewQueryEngineTool(engine *rag.QueryEngine, name, description string) *QueryEngineTool {
	return &QueryEngineTool{
		engine:      engine,
		name:        name,
		description: description,
	}
}

func (t *QueryEngineTool) GetName() string { return t.name }

func (t *QueryEngineTool) GetDescription() string { return t.description }

func (t *QueryEngineTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.name,
		Description: t.description,
		Parameters: []ToolParameter{
			{
				Name:        "input",
				Type:        "string",
				Description: "Natural language query",
				Required:    true,
			},
		},
	}
}

func (t *QueryEngineTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	start := time.Now()

	input, ok := args["input"].(string)
	if !ok || input == "" {
		err := fmt.Errorf("missing required parameter %q", "input")
		return ToolResult{
			Success:       false,
			Error:         err.Error(),
			ToolName:      t.name,
			ExecutionTime: time.Since(start),
		}, err
	}

	answer, err := t.engine.Query(ctx, input)
	if err != nil {
		return ToolResult{
			Success:       false,
			Error:         err.Error(),
			ToolName:      t.name,
			ExecutionTime: time.Since(start),
		}, err
	}

	return ToolResult{
		Success:       true,
		Content:       answer,
		ToolName:      t.name,
		ExecutionTime: time.Since(start),
	}, nil
}

// Ensure QueryEngineTool implements Tool.
var _ Tool = (*QueryEngineTool)(nil)
