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

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig configures the Pinecone vector provider.
type PineconeConfig struct {
	// APIKey is required for Pinecone authentication.
	APIKey string `yaml:"api_key" json:"api_key"`

	// Environment is the Pinecone pod environment (e.g. "us-west1-gcp").
	Environment string `yaml:"environment,omitempty" json:"environment,omitempty"`

	// IndexName is the index to bind to. Created on first use if absent.
	IndexName string `yaml:"index_name" json:"index_name"`

	// Host is the Pinecone API host (optional, defaults to https://api.pinecone.io).
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// PodType for index creation (defaults to "p1.x1").
	PodType string `yaml:"pod_type,omitempty" json:"pod_type,omitempty"`
}

// indexAdmin is the slice of the Pinecone control-plane client used for
// index creation. Narrowed to an interface so the ensure step is testable.
type indexAdmin interface {
	ListIndexes(ctx context.Context) ([]*pinecone.Index, error)
	CreatePodIndex(ctx context.Context, in *pinecone.CreatePodIndexRequest) (*pinecone.Index, error)
}

// PineconeProvider implements Provider using the Pinecone hosted vector
// database.
type PineconeProvider struct {
	client    *pinecone.Client
	admin     indexAdmin
	config    PineconeConfig
	indexName string
}

// NewPineconeProvider creates a new Pinecone provider.
func NewPineconeProvider(cfg PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}

	clientParams := pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
	}
	if cfg.Host != "" {
		clientParams.Host = cfg.Host
	}

	client, err := pinecone.NewClient(clientParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "dbchat-index"
	}

	return &PineconeProvider{
		client:    client,
		admin:     client,
		config:    cfg,
		indexName: indexName,
	}, nil
}

// Name returns the provider name.
func (p *PineconeProvider) Name() string {
	return "pinecone"
}

// getIndexConnection gets an IndexConnection for the index.
func (p *PineconeProvider) getIndexConnection(ctx context.Context, indexName string) (*pinecone.IndexConnection, error) {
	index, err := p.client.DescribeIndex(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %s: %w", indexName, err)
	}

	indexConn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      index.Host,
		Namespace: "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}

	return indexConn, nil
}

func (p *PineconeProvider) resolveIndex(collection string) string {
	if collection == "" {
		return p.indexName
	}
	return collection
}

// Upsert adds or updates a document with its vector.
func (p *PineconeProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	indexConn, err := p.getIndexConnection(ctx, p.resolveIndex(collection))
	if err != nil {
		return err
	}
	defer indexConn.Close()

	var pineconeMetadata *pinecone.Metadata
	if len(metadata) > 0 {
		pineconeMetadata, err = structpb.NewStruct(metadata)
		if err != nil {
			return fmt.Errorf("failed to convert metadata: %w", err)
		}
	}

	pineconeVector := &pinecone.Vector{
		Id:       id,
		Values:   vector,
		Metadata: pineconeMetadata,
	}

	if _, err := indexConn.UpsertVectors(ctx, []*pinecone.Vector{pineconeVector}); err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}

	return nil
}

// Search finds the most similar vectors.
func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	indexConn, err := p.getIndexConnection(ctx, p.resolveIndex(collection))
	if err != nil {
		return nil, err
	}
	defer indexConn.Close()

	queryRequest := &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
		IncludeValues:   true,
	}

	queryResponse, err := indexConn.QueryByVectorValues(ctx, queryRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}

	return convertPineconeResults(queryResponse.Matches), nil
}

// CreateCollection ensures the index exists, creating a pod index with the
// given dimensionality and cosine similarity when it does not. Idempotent:
// an existing index is never recreated.
func (p *PineconeProvider) CreateCollection(ctx context.Context, collection string, vectorDimension int) error {
	return ensureIndex(ctx, p.admin, p.resolveIndex(collection), p.config.Environment, p.config.PodType, vectorDimension)
}

func ensureIndex(ctx context.Context, admin indexAdmin, indexName, environment, podType string, dimension int) error {
	indexes, err := admin.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}

	for _, idx := range indexes {
		if idx.Name == indexName {
			return nil // Index exists
		}
	}

	if podType == "" {
		podType = "p1.x1"
	}

	_, err = admin.CreatePodIndex(ctx, &pinecone.CreatePodIndexRequest{
		Name:        indexName,
		Dimension:   int32(dimension),
		Metric:      pinecone.Cosine,
		Environment: environment,
		PodType:     podType,
	})
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", indexName, err)
	}

	return nil
}

// Count returns the number of vectors stored in the index.
func (p *PineconeProvider) Count(ctx context.Context, collection string) (int, error) {
	indexConn, err := p.getIndexConnection(ctx, p.resolveIndex(collection))
	if err != nil {
		return 0, err
	}
	defer indexConn.Close()

	stats, err := indexConn.DescribeIndexStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to describe index stats: %w", err)
	}

	return int(stats.TotalVectorCount), nil
}

// Close closes the Pinecone client.
func (p *PineconeProvider) Close() error {
	// Pinecone client doesn't have an explicit close method
	return nil
}

func convertPineconeResults(matches []*pinecone.ScoredVector) []Result {
	results := make([]Result, 0, len(matches))

	for _, scoredVector := range matches {
		if scoredVector.Vector == nil {
			continue
		}

		vector := scoredVector.Vector

		metadata := make(map[string]any)
		if vector.Metadata != nil {
			for k, v := range vector.Metadata.AsMap() {
				metadata[k] = v
			}
		}

		content := ""
		if str, ok := metadata["content"].(string); ok {
			content = str
		}

		results = append(results, Result{
			ID:       vector.Id,
			Score:    scoredVector.Score,
			Content:  content,
			Vector:   vector.Values,
			Metadata: metadata,
		})
	}

	return results
}

// Ensure PineconeProvider implements Provider.
var _ Provider = (*PineconeProvider)(nil)
