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

package databases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/dbchat/pkg/tools"
)

// Toolset returns the generic SQL tools exposed to the agent:
// list_tables, describe_tables, and load_data. The handler, if non-nil,
// is captured by this toolset's load_data tool and invoked for every
// query it executes. Each caller gets its own toolset, so concurrent
// conversations over the same adapter never see each other's handler.
func (a *Adapter) Toolset(h Handler) []tools.Tool {
	return []tools.Tool{
		&listTablesTool{adapter: a},
		&describeTablesTool{adapter: a},
		&loadDataTool{adapter: a, handler: h},
	}
}

type listTablesTool struct {
	adapter *Adapter
}

func (t *listTablesTool) GetName() string { return "list_tables" }

func (t *listTablesTool) GetDescription() string {
	return "List the names of all tables in the database"
}

func (t *listTablesTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
	}
}

func (t *listTablesTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	start := time.Now()

	tables, err := t.adapter.ListTables(ctx)
	if err != nil {
		return errorResult(t.GetName(), start, err), err
	}

	return tools.ToolResult{
		Success:       true,
		Content:       strings.Join(tables, ", "),
		ToolName:      t.GetName(),
		ExecutionTime: time.Since(start),
	}, nil
}

type describeTablesTool struct {
	adapter *Adapter
}

func (t *describeTablesTool) GetName() string { return "describe_tables" }

func (t *describeTablesTool) GetDescription() string {
	return "Describe the schema of the given tables"
}

func (t *describeTablesTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Parameters: []tools.ToolParameter{
			{
				Name:        "tables",
				Type:        "array",
				Description: "Table names to describe",
				Required:    true,
			},
		},
	}
}

func (t *describeTablesTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	start := time.Now()

	names, err := stringSliceArg(args, "tables")
	if err != nil {
		return errorResult(t.GetName(), start, err), err
	}

	description, err := t.adapter.DescribeTables(ctx, names)
	if err != nil {
		return errorResult(t.GetName(), start, err), err
	}

	return tools.ToolResult{
		Success:       true,
		Content:       description,
		ToolName:      t.GetName(),
		ExecutionTime: time.Since(start),
	}, nil
}

type loadDataTool struct {
	adapter *Adapter
	handler Handler
}

func (t *loadDataTool) GetName() string { return "load_data" }

func (t *loadDataTool) GetDescription() string {
	return "Run a SQL query against the database and return the matching rows"
}

func (t *loadDataTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Parameters: []tools.ToolParameter{
			{
				Name:        "query",
				Type:        "string",
				Description: "SQL query to execute",
				Required:    true,
			},
		},
	}
}

func (t *loadDataTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	start := time.Now()

	query, _ := args["query"].(string)

	documents, err := t.adapter.LoadData(ctx, query, t.handler)
	if err != nil {
		return errorResult(t.GetName(), start, err), err
	}

	texts := make([]string, len(documents))
	for i, doc := range documents {
		texts[i] = doc.Text
	}

	return tools.ToolResult{
		Success:       true,
		Content:       strings.Join(texts, "\n"),
		ToolName:      t.GetName(),
		ExecutionTime: time.Since(start),
	}, nil
}

func stringSliceArg(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing required parameter %q", key)
	}

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %q must contain strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("parameter %q must be a list of table names", key)
	}
}

func errorResult(toolName string, start time.Time, err error) tools.ToolResult {
	return tools.ToolResult{
		Success:       false,
		Error:         err.Error(),
		ToolName:      toolName,
		ExecutionTime: time.Since(start),
	}
}
