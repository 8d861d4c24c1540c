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
	"fmt"
)

// ProviderType identifies a vector provider implementation.
type ProviderType string

const (
	// ProviderMemory uses chromem-go for embedded in-memory storage.
	ProviderMemory ProviderType = "memory"

	// ProviderPinecone uses the Pinecone managed vector database.
	ProviderPinecone ProviderType = "pinecone"

	// ProviderQdrant uses the Qdrant vector database.
	ProviderQdrant ProviderType = "qdrant"
)

// ProviderConfig is the vector store descriptor: a discriminator plus
// provider-specific settings.
type ProviderConfig struct {
	// Type identifies which provider to create.
	Type ProviderType `yaml:"type" json:"type"`

	// Collection is the collection vectors are written to.
	// For Pinecone the index name takes precedence.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`

	// Memory configuration (used when Type == "memory").
	Memory *MemoryConfig `yaml:"memory,omitempty" json:"memory,omitempty"`

	// Pinecone configuration (used when Type == "pinecone").
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty" json:"pinecone,omitempty"`

	// Qdrant configuration (used when Type == "qdrant").
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty" json:"qdrant,omitempty"`
}

// SetDefaults applies default values.
func (c *ProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = ProviderMemory
	}
	if c.Type == ProviderMemory && c.Memory == nil {
		c.Memory = &MemoryConfig{}
	}
	if c.Collection == "" {
		c.Collection = "dbchat"
	}
}

// Validate checks the configuration.
func (c *ProviderConfig) Validate() error {
	switch c.Type {
	case ProviderMemory:
		// Memory has no required fields
		return nil
	case ProviderPinecone:
		if c.Pinecone == nil {
			return fmt.Errorf("pinecone configuration is required")
		}
		if c.Pinecone.APIKey == "" {
			return fmt.Errorf("pinecone api_key is required")
		}
		if c.Pinecone.IndexName == "" {
			return fmt.Errorf("pinecone index_name is required")
		}
		return nil
	case ProviderQdrant:
		if c.Qdrant == nil {
			return fmt.Errorf("qdrant configuration is required")
		}
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host is required")
		}
		return nil
	case "":
		return fmt.Errorf("provider type is required")
	default:
		return fmt.Errorf("unknown provider type: %q", c.Type)
	}
}

// collection resolves the collection name for the storage context.
func (c *ProviderConfig) collection() string {
	if c.Type == ProviderPinecone && c.Pinecone != nil && c.Pinecone.IndexName != "" {
		return c.Pinecone.IndexName
	}
	if c.Collection != "" {
		return c.Collection
	}
	return "dbchat"
}

// NewProvider creates a vector provider from a descriptor.
func NewProvider(cfg *ProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vector store configuration is required")
	}

	switch cfg.Type {
	case ProviderMemory:
		memoryCfg := MemoryConfig{}
		if cfg.Memory != nil {
			memoryCfg = *cfg.Memory
		}
		return NewMemoryProvider(memoryCfg)

	case ProviderPinecone:
		if cfg.Pinecone == nil {
			return nil, fmt.Errorf("pinecone configuration is required")
		}
		return NewPineconeProvider(*cfg.Pinecone)

	case ProviderQdrant:
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant configuration is required")
		}
		return NewQdrantProvider(*cfg.Qdrant)

	default:
		return nil, fmt.Errorf("unknown provider type: %q", cfg.Type)
	}
}

// NewStorageContext creates the provider for a vector store descriptor and
// ensures its collection exists with the given dimensionality. For hosted
// providers the remote index is created on first use; an existing index is
// left untouched, so repeated calls for the same descriptor are safe.
func NewStorageContext(ctx context.Context, cfg *ProviderConfig, dimension int) (*StorageContext, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	collection := cfg.collection()
	if err := provider.CreateCollection(ctx, collection, dimension); err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to ensure collection %q: %w", collection, err)
	}

	return &StorageContext{
		Provider:   provider,
		Collection: collection,
	}, nil
}
