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

package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProviderUpsertSearch(t *testing.T) {
	provider, err := NewMemoryProvider(MemoryConfig{})
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()
	require.NoError(t, provider.CreateCollection(ctx, "test", 3))

	require.NoError(t, provider.Upsert(ctx, "test", "a", []float32{1, 0, 0}, map[string]any{"content": "alpha"}))
	require.NoError(t, provider.Upsert(ctx, "test", "b", []float32{0, 1, 0}, map[string]any{"content": "beta"}))

	results, err := provider.Search(ctx, "test", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "alpha", results[0].Content)
}

func TestMemoryProviderTopKClamped(t *testing.T) {
	provider, err := NewMemoryProvider(MemoryConfig{})
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()
	require.NoError(t, provider.Upsert(ctx, "test", "only", []float32{1, 0}, map[string]any{"content": "single"}))

	// Asking for more results than stored documents must not fail
	results, err := provider.Search(ctx, "test", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMemoryProviderEmptyCollection(t *testing.T) {
	provider, err := NewMemoryProvider(MemoryConfig{})
	require.NoError(t, err)
	defer provider.Close()

	results, err := provider.Search(context.Background(), "empty", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryProviderCount(t *testing.T) {
	provider, err := NewMemoryProvider(MemoryConfig{})
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()
	count, err := provider.Count(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, provider.Upsert(ctx, "test", "a", []float32{1}, nil))
	require.NoError(t, provider.Upsert(ctx, "test", "b", []float32{0.5}, nil))

	count, err = provider.Count(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewProviderFactory(t *testing.T) {
	provider, err := NewProvider(&ProviderConfig{Type: ProviderMemory})
	require.NoError(t, err)
	assert.Equal(t, "memory", provider.Name())
	provider.Close()

	_, err = NewProvider(&ProviderConfig{Type: "bogus"})
	assert.Error(t, err)

	_, err = NewProvider(nil)
	assert.Error(t, err)

	_, err = NewProvider(&ProviderConfig{Type: ProviderPinecone})
	assert.Error(t, err, "pinecone requires its config section")
}

func TestProviderConfigValidate(t *testing.T) {
	cfg := &ProviderConfig{}
	assert.Error(t, cfg.Validate())

	cfg.SetDefaults()
	assert.Equal(t, ProviderMemory, cfg.Type)
	assert.Equal(t, "dbchat", cfg.Collection)
	assert.NoError(t, cfg.Validate())

	pc := &ProviderConfig{Type: ProviderPinecone, Pinecone: &PineconeConfig{}}
	assert.Error(t, pc.Validate(), "api key required")

	pc.Pinecone.APIKey = "key"
	assert.Error(t, pc.Validate(), "index name required")

	pc.Pinecone.IndexName = "idx"
	assert.NoError(t, pc.Validate())

	qc := &ProviderConfig{Type: ProviderQdrant, Qdrant: &QdrantConfig{}}
	assert.Error(t, qc.Validate(), "host required")
	qc.Qdrant.Host = "localhost"
	assert.NoError(t, qc.Validate())
}

func TestNewStorageContextMemory(t *testing.T) {
	cfg := &ProviderConfig{Type: ProviderMemory}
	cfg.SetDefaults()

	storage, err := NewStorageContext(context.Background(), cfg, 3)
	require.NoError(t, err)
	defer storage.Provider.Close()

	assert.Equal(t, "dbchat", storage.Collection)
	assert.Equal(t, "memory", storage.Provider.Name())
}
