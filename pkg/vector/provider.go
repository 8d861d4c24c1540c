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

// Package vector provides vector store backends for the table index.
//
// Three backends are supported: chromem-go (in-memory, zero-config),
// Pinecone (hosted), and Qdrant (hosted). A StorageContext bundles a
// backend with the collection embeddings are written to.
package vector

import "context"

// Provider is the interface all vector store backends implement.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Upsert adds or updates a document with its pre-computed vector.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search finds the topK most similar vectors.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// CreateCollection ensures the collection exists with the given
	// dimensionality. Safe to call repeatedly.
	CreateCollection(ctx context.Context, collection string, vectorDimension int) error

	// Count returns the number of vectors stored in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases provider resources.
	Close() error
}

// Result is a single similarity search hit.
type Result struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Content  string         `json:"content"`
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StorageContext bundles a provider with the collection it writes to.
// It is the unit the indexing layer consumes.
type StorageContext struct {
	Provider   Provider
	Collection string
}
