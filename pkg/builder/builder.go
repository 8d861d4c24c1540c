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

// Package builder assembles agents and their supporting resources from
// session state, caching everything that is expensive to construct:
// storage contexts, database adapters, table indexes, and agents.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/kadirpekel/dbchat/pkg/agent"
	"github.com/kadirpekel/dbchat/pkg/config"
	"github.com/kadirpekel/dbchat/pkg/databases"
	"github.com/kadirpekel/dbchat/pkg/embedders"
	"github.com/kadirpekel/dbchat/pkg/llms"
	"github.com/kadirpekel/dbchat/pkg/rag"
	"github.com/kadirpekel/dbchat/pkg/session"
	"github.com/kadirpekel/dbchat/pkg/tools"
	"github.com/kadirpekel/dbchat/pkg/vector"
)

const (
	queryToolName        = "table_query_engine"
	queryToolDescription = "Contains table descriptions for the database"

	tableDocFormat = "Definition of %q table:\n%s"
)

// LLMFactory creates the chat completion provider.
type LLMFactory func(cfg *config.LLMConfig) (llms.Provider, error)

// EmbedderFactory creates the embedding provider.
type EmbedderFactory func(cfg *config.EmbedderConfig) (embedders.Embedder, error)

// Builder creates and caches the resources a conversation needs. Cached
// entries live until explicitly invalidated; agents are additionally
// keyed by the conversation's last-update time, so rebinding a
// conversation produces a fresh agent on the next message.
type Builder struct {
	mu    sync.Mutex
	cfg   *config.Config
	store *session.Store
	pool  *databases.Pool
	cache *cache.Cache

	newLLM      LLMFactory
	newEmbedder EmbedderFactory

	llm      llms.Provider
	embedder embedders.Embedder
}

// Option configures a Builder.
type Option func(*Builder)

// WithLLMFactory overrides how the chat provider is constructed.
func WithLLMFactory(f LLMFactory) Option {
	return func(b *Builder) {
		b.newLLM = f
	}
}

// WithEmbedderFactory overrides how the embedder is constructed.
func WithEmbedderFactory(f EmbedderFactory) Option {
	return func(b *Builder) {
		b.newEmbedder = f
	}
}

// New creates a builder over the given config and session store.
func New(cfg *config.Config, store *session.Store, pool *databases.Pool, opts ...Option) *Builder {
	b := &Builder{
		cfg:   cfg,
		store: store,
		pool:  pool,
		cache: cache.New(cache.NoExpiration, 0),
		newLLM: func(cfg *config.LLMConfig) (llms.Provider, error) {
			return llms.NewOpenAIProvider(cfg)
		},
		newEmbedder: func(cfg *config.EmbedderConfig) (embedders.Embedder, error) {
			return embedders.NewOpenAIEmbedder(cfg)
		},
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// LLM returns the shared chat provider, creating it on first use.
func (b *Builder) LLM() (llms.Provider, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.llmLocked()
}

func (b *Builder) llmLocked() (llms.Provider, error) {
	if b.llm != nil {
		return b.llm, nil
	}
	llm, err := b.newLLM(&b.cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm provider: %w", err)
	}
	b.llm = llm
	return llm, nil
}

// Embedder returns the shared embedder, creating it on first use.
func (b *Builder) Embedder() (embedders.Embedder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.embedderLocked()
}

func (b *Builder) embedderLocked() (embedders.Embedder, error) {
	if b.embedder != nil {
		return b.embedder, nil
	}
	embedder, err := b.newEmbedder(&b.cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	b.embedder = embedder
	return embedder, nil
}

// StorageContext returns the storage context for a vector store id,
// creating provider and collection on first use.
func (b *Builder) StorageContext(ctx context.Context, vectorStoreID string) (*vector.StorageContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.storageContextLocked(ctx, vectorStoreID)
}

func (b *Builder) storageContextLocked(ctx context.Context, vectorStoreID string) (*vector.StorageContext, error) {
	key := "storage:" + vectorStoreID
	if cached, ok := b.cache.Get(key); ok {
		return cached.(*vector.StorageContext), nil
	}

	vsCfg, err := b.store.GetVectorStore(vectorStoreID)
	if err != nil {
		return nil, fmt.Errorf("vector store %s: %w", vectorStoreID, err)
	}

	embedder, err := b.embedderLocked()
	if err != nil {
		return nil, err
	}

	storage, err := vector.NewStorageContext(ctx, vsCfg, embedder.Dimension())
	if err != nil {
		return nil, err
	}

	b.cache.Set(key, storage, cache.NoExpiration)
	slog.Debug("Created storage context", "vector_store", vectorStoreID, "provider", storage.Provider.Name())
	return storage, nil
}

// DatabaseAdapter returns the adapter for a database id, creating the
// connection on first use. The same id always yields the same adapter.
func (b *Builder) DatabaseAdapter(databaseID string) (*databases.Adapter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.databaseAdapterLocked(databaseID)
}

func (b *Builder) databaseAdapterLocked(databaseID string) (*databases.Adapter, error) {
	key := "database:" + databaseID
	if cached, ok := b.cache.Get(key); ok {
		return cached.(*databases.Adapter), nil
	}

	dbCfg, err := b.store.GetDatabase(databaseID)
	if err != nil {
		return nil, fmt.Errorf("database %s: %w", databaseID, err)
	}

	adapter, err := databases.NewAdapter(dbCfg, b.pool)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database %s: %w", databaseID, err)
	}

	b.cache.Set(key, adapter, cache.NoExpiration)
	slog.Debug("Created database adapter", "database", databaseID)
	return adapter, nil
}

// QueryTool returns the retrieval tool for a (vector store, database)
// pair. On first use it indexes one document per table, each holding the
// table's schema definition.
func (b *Builder) QueryTool(ctx context.Context, vectorStoreID, databaseID string) (tools.Tool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queryToolLocked(ctx, vectorStoreID, databaseID)
}

func (b *Builder) queryToolLocked(ctx context.Context, vectorStoreID, databaseID string) (tools.Tool, error) {
	key := "querytool:" + vectorStoreID + ":" + databaseID
	if cached, ok := b.cache.Get(key); ok {
		return cached.(tools.Tool), nil
	}

	adapter, err := b.databaseAdapterLocked(databaseID)
	if err != nil {
		return nil, err
	}

	storage, err := b.storageContextLocked(ctx, vectorStoreID)
	if err != nil {
		return nil, err
	}

	embedder, err := b.embedderLocked()
	if err != nil {
		return nil, err
	}

	llm, err := b.llmLocked()
	if err != nil {
		return nil, err
	}

	docs, err := tableDocuments(ctx, adapter)
	if err != nil {
		return nil, err
	}

	index, err := rag.IndexFromDocuments(ctx, docs, storage, embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to build table index: %w", err)
	}

	engine, err := rag.NewQueryEngine(index, llm)
	if err != nil {
		return nil, err
	}

	tool := tools.NewQueryEngineTool(engine, queryToolName, queryToolDescription)
	b.cache.Set(key, tool, cache.NoExpiration)
	slog.Debug("Built table index", "vector_store", vectorStoreID, "database", databaseID, "tables", len(docs))
	return tool, nil
}

// tableDocuments builds one document per table, carrying the table's
// schema description.
func tableDocuments(ctx context.Context, adapter *databases.Adapter) ([]rag.Document, error) {
	tables, err := adapter.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]rag.Document, 0, len(tables))
	for _, table := range tables {
		description, err := adapter.DescribeTables(ctx, []string{table})
		if err != nil {
			return nil, err
		}
		doc := rag.NewDocument(fmt.Sprintf(tableDocFormat, table, description))
		doc.Metadata = map[string]any{"table": table}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Agent returns the agent for a conversation. The cache key embeds the
// conversation's last-update time, so rebinding the conversation yields a
// fresh agent while the stale entry is evicted.
//
// The agent's SQL tools carry a handler scoped to this conversation, so
// every query it executes is recorded on the owning conversation even when
// other conversations share the same database adapter.
func (b *Builder) Agent(ctx context.Context, conv *session.Conversation) (*agent.Agent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := fmt.Sprintf("agent:%s:%d", conv.ID, conv.LastUpdate.UnixNano())
	if cached, ok := b.cache.Get(key); ok {
		return cached.(*agent.Agent), nil
	}
	b.evictPrefix("agent:" + conv.ID + ":")

	llm, err := b.llmLocked()
	if err != nil {
		return nil, err
	}

	conversationID := conv.ID
	handler := func(query string, rows [][]any) {
		if err := b.store.AppendQueryResult(conversationID, query, rows); err != nil {
			slog.Warn("Failed to record query result", "conversation", conversationID, "error", err)
		}
	}

	var toolset []tools.Tool
	for _, dbID := range conv.DatabaseIDs {
		queryTool, err := b.queryToolLocked(ctx, conv.VectorStoreID, dbID)
		if err != nil {
			return nil, err
		}
		toolset = append(toolset, queryTool)

		adapter, err := b.databaseAdapterLocked(dbID)
		if err != nil {
			return nil, err
		}
		toolset = append(toolset, adapter.Toolset(handler)...)
	}

	a, err := agent.New(llm, toolset)
	if err != nil {
		return nil, err
	}

	b.cache.Set(key, a, cache.NoExpiration)
	slog.Debug("Assembled agent", "conversation", conv.ID, "tools", len(toolset))
	return a, nil
}

// InvalidateVectorStore drops the cached storage context and every query
// tool built on it.
func (b *Builder) InvalidateVectorStore(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Delete("storage:" + id)
	b.evictPrefix("querytool:" + id + ":")
}

// InvalidateDatabase drops the cached adapter and every query tool built
// on it.
func (b *Builder) InvalidateDatabase(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Delete("database:" + id)
	for key := range b.cache.Items() {
		if strings.HasPrefix(key, "querytool:") && strings.HasSuffix(key, ":"+id) {
			b.cache.Delete(key)
		}
	}
}

// evictPrefix deletes all cache entries whose key starts with prefix.
// Callers must hold b.mu.
func (b *Builder) evictPrefix(prefix string) {
	for key := range b.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			b.cache.Delete(key)
		}
	}
}

// Close releases pooled resources held by cached entries.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, item := range b.cache.Items() {
		if storage, ok := item.Object.(*vector.StorageContext); ok {
			if err := storage.Provider.Close(); err != nil {
				slog.Warn("Failed to close vector provider", "key", key, "error", err)
			}
		}
	}
	b.cache.Flush()

	if b.llm != nil {
		if err := b.llm.Close(); err != nil {
			return err
		}
	}
	return nil
}
