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

package builder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/dbchat/pkg/config"
	"github.com/kadirpekel/dbchat/pkg/databases"
	"github.com/kadirpekel/dbchat/pkg/embedders"
	"github.com/kadirpekel/dbchat/pkg/llms"
	"github.com/kadirpekel/dbchat/pkg/session"
	"github.com/kadirpekel/dbchat/pkg/vector"
)

// fakeLLM answers directly unless queries were queued with issue, in
// which case it requests one load_data call per queued query first.
type fakeLLM struct {
	pending []string
}

func (f *fakeLLM) issue(query string) {
	f.pending = append(f.pending, query)
}

func (f *fakeLLM) Generate(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	if len(f.pending) > 0 {
		query := f.pending[0]
		f.pending = f.pending[1:]
		return "", []llms.ToolCall{{
			ID:   "call-1",
			Name: "load_data",
			Args: map[string]interface{}{"query": query},
		}}, 0, nil
	}
	return "ok", nil, 0, nil
}

func (f *fakeLLM) GetModelName() string { return "test-model" }

func (f *fakeLLM) Close() error { return nil }

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

type fixture struct {
	builder *Builder
	store   *session.Store
	llm     *fakeLLM
	dbID    string
	vsID    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	store := session.NewStore()
	dbID := store.AddDatabase(&config.DatabaseConfig{Driver: "sqlite", Database: dbPath})
	vsID := store.AddVectorStore(&vector.ProviderConfig{Type: vector.ProviderMemory})

	pool := databases.NewPool()
	t.Cleanup(func() { _ = pool.Close() })

	cfg := &config.Config{}
	cfg.SetDefaults()

	llm := &fakeLLM{}
	b := New(cfg, store, pool,
		WithLLMFactory(func(cfg *config.LLMConfig) (llms.Provider, error) {
			return llm, nil
		}),
		WithEmbedderFactory(func(cfg *config.EmbedderConfig) (embedders.Embedder, error) {
			return &fakeEmbedder{}, nil
		}),
	)
	t.Cleanup(func() { _ = b.Close() })

	// Seed a table for the index
	dbCfg, err := store.GetDatabase(dbID)
	require.NoError(t, err)
	db, err := pool.Get(dbCfg)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE city (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO city (id, name) VALUES (1, 'Toronto')`)
	require.NoError(t, err)

	return &fixture{builder: b, store: store, llm: llm, dbID: dbID, vsID: vsID}
}

func TestDatabaseAdapterIdentity(t *testing.T) {
	f := newFixture(t)

	a1, err := f.builder.DatabaseAdapter(f.dbID)
	require.NoError(t, err)
	a2, err := f.builder.DatabaseAdapter(f.dbID)
	require.NoError(t, err)

	assert.Same(t, a1, a2, "same id should yield the cached adapter")

	_, err = f.builder.DatabaseAdapter("missing")
	assert.Error(t, err)
}

func TestStorageContextCached(t *testing.T) {
	f := newFixture(t)

	s1, err := f.builder.StorageContext(context.Background(), f.vsID)
	require.NoError(t, err)
	s2, err := f.builder.StorageContext(context.Background(), f.vsID)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
}

func TestQueryToolCachedPerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tool1, err := f.builder.QueryTool(ctx, f.vsID, f.dbID)
	require.NoError(t, err)
	assert.Equal(t, "table_query_engine", tool1.GetName())
	assert.Equal(t, "Contains table descriptions for the database", tool1.GetDescription())

	tool2, err := f.builder.QueryTool(ctx, f.vsID, f.dbID)
	require.NoError(t, err)
	assert.Same(t, tool1, tool2)
}

func TestAgentCachedUntilTouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.store.CreateConversation(f.vsID, []string{f.dbID})
	require.NoError(t, err)

	a1, err := f.builder.Agent(ctx, conv)
	require.NoError(t, err)
	a2, err := f.builder.Agent(ctx, conv)
	require.NoError(t, err)
	assert.Same(t, a1, a2, "unchanged conversation reuses the agent")

	conv.Touch()
	a3, err := f.builder.Agent(ctx, conv)
	require.NoError(t, err)
	assert.NotSame(t, a1, a3, "touched conversation gets a fresh agent")
}

func TestAgentRecordsExecutedQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.store.CreateConversation(f.vsID, []string{f.dbID})
	require.NoError(t, err)

	a, err := f.builder.Agent(ctx, conv)
	require.NoError(t, err)

	f.llm.issue("SELECT name FROM city")
	f.llm.issue("SELECT id FROM city")
	_, err = a.Chat(ctx, "what cities are there?")
	require.NoError(t, err)

	results, err := f.store.DrainQueryResults(conv.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "SELECT name FROM city", results[0].Query)
	assert.Equal(t, "SELECT id FROM city", results[1].Query)
	assert.Equal(t, [][]any{{"Toronto"}}, results[0].Rows)
}

func TestQueryResultsRoutedToOwningConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	convA, err := f.store.CreateConversation(f.vsID, []string{f.dbID})
	require.NoError(t, err)
	convB, err := f.store.CreateConversation(f.vsID, []string{f.dbID})
	require.NoError(t, err)

	agentA, err := f.builder.Agent(ctx, convA)
	require.NoError(t, err)

	// Building another agent over the same database must not redirect
	// queries executed by the first one.
	_, err = f.builder.Agent(ctx, convB)
	require.NoError(t, err)

	f.llm.issue("SELECT name FROM city")
	_, err = agentA.Chat(ctx, "what cities are there?")
	require.NoError(t, err)

	resultsA, err := f.store.DrainQueryResults(convA.ID)
	require.NoError(t, err)
	require.Len(t, resultsA, 1)
	assert.Equal(t, "SELECT name FROM city", resultsA[0].Query)

	resultsB, err := f.store.DrainQueryResults(convB.ID)
	require.NoError(t, err)
	assert.Empty(t, resultsB, "the other conversation's queue stays empty")
}

func TestInvalidateDatabase(t *testing.T) {
	f := newFixture(t)

	a1, err := f.builder.DatabaseAdapter(f.dbID)
	require.NoError(t, err)

	f.builder.InvalidateDatabase(f.dbID)

	a2, err := f.builder.DatabaseAdapter(f.dbID)
	require.NoError(t, err)
	assert.NotSame(t, a1, a2)
}

func TestInvalidateVectorStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1, err := f.builder.StorageContext(ctx, f.vsID)
	require.NoError(t, err)

	f.builder.InvalidateVectorStore(f.vsID)

	s2, err := f.builder.StorageContext(ctx, f.vsID)
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
}
