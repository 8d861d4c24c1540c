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

package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kadirpekel/dbchat/pkg/llms"
	"github.com/kadirpekel/dbchat/pkg/utils"
)

const (
	defaultTopK             = 5
	defaultMaxContextTokens = 3000

	synthesisPrompt = "Answer the question using only the context below.\n\n" +
		"Context:\n%s\n\nQuestion: %s"
)

// QueryEngine answers natural-language queries by retrieving from an Index
// and synthesizing an answer with the LLM.
type QueryEngine struct {
	index            *Index
	llm              llms.Provider
	topK             int
	maxContextTokens int
	counter          *utils.TokenCounter
}

// QueryEngineOption configures a QueryEngine.
type QueryEngineOption func(*QueryEngine)

// WithTopK sets how many documents are retrieved per query.
func WithTopK(topK int) QueryEngineOption {
	return func(e *QueryEngine) {
		e.topK = topK
	}
}

// WithMaxContextTokens caps the retrieved context handed to the LLM.
func WithMaxContextTokens(max int) QueryEngineOption {
	return func(e *QueryEngine) {
		e.maxContextTokens = max
	}
}

// NewQueryEngine creates a query engine over an index.
func NewQueryEngine(index *Index, llm llms.Provider, opts ...QueryEngineOption) (*QueryEngine, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if llm == nil {
		return nil, fmt.Errorf("llm provider is required")
	}

	engine := &QueryEngine{
		index:            index,
		llm:              llm,
		topK:             defaultTopK,
		maxContextTokens: defaultMaxContextTokens,
	}

	for _, opt := range opts {
		opt(engine)
	}

	// Token-exact truncation needs the model's BPE files; fall back to
	// character estimation when they are unavailable.
	counter, err := utils.NewTokenCounter(llm.GetModelName())
	if err != nil {
		slog.Warn("Token counting unavailable, using estimation", "model", llm.GetModelName(), "error", err)
	} else {
		engine.counter = counter
	}

	return engine, nil
}

// Query retrieves the most relevant documents and asks the LLM to answer
// from them.
func (e *QueryEngine) Query(ctx context.Context, query string) (string, error) {
	results, err := e.index.Retrieve(ctx, query, e.topK)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, r := range results {
		if r.Content == "" {
			continue
		}
		sb.WriteString(r.Content)
		sb.WriteString("\n\n")
	}

	context := e.truncate(sb.String())

	messages := []llms.Message{
		{Role: llms.RoleUser, Content: fmt.Sprintf(synthesisPrompt, context, query)},
	}

	answer, _, _, err := e.llm.Generate(ctx, messages, nil)
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}

	return answer, nil
}

func (e *QueryEngine) truncate(text string) string {
	if e.counter != nil {
		return e.counter.Truncate(text, e.maxContextTokens)
	}
	if utils.EstimateTokens(text) <= e.maxContextTokens {
		return text
	}
	cut := e.maxContextTokens * 4
	// Back off to a rune boundary so the cut never splits a character
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
