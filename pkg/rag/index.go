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

	"github.com/kadirpekel/dbchat/pkg/embedders"
	"github.com/kadirpekel/dbchat/pkg/vector"
)

// Index is a vector index over a fixed set of documents.
// There is no incremental update path; rebuilding means re-running
// IndexFromDocuments against the same storage context.
type Index struct {
	storage  *vector.StorageContext
	embedder embedders.Embedder
	size     int
}

// IndexFromDocuments embeds each document and upserts it into the storage
// context's collection.
func IndexFromDocuments(ctx context.Context, docs []Document, storage *vector.StorageContext, embedder embedders.Embedder) (*Index, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage context is required")
	}

	for _, doc := range docs {
		vec, err := embedder.Embed(ctx, doc.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
		}

		metadata := map[string]any{"content": doc.Text}
		for k, v := range doc.Metadata {
			metadata[k] = v
		}

		if err := storage.Provider.Upsert(ctx, storage.Collection, doc.ID, vec, metadata); err != nil {
			return nil, fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	slog.Debug("Indexed documents",
		"count", len(docs),
		"collection", storage.Collection,
		"provider", storage.Provider.Name())

	return &Index{
		storage:  storage,
		embedder: embedder,
		size:     len(docs),
	}, nil
}

// Retrieve embeds the query and returns the topK most similar documents.
func (i *Index) Retrieve(ctx context.Context, query string, topK int) ([]vector.Result, error) {
	vec, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if topK > i.size && i.size > 0 {
		topK = i.size
	}

	results, err := i.storage.Provider.Search(ctx, i.storage.Collection, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	return results, nil
}

// Size returns the number of documents the index was built from.
func (i *Index) Size() int {
	return i.size
}
