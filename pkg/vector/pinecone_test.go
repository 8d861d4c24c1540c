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
	"testing"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIndexAdmin struct {
	existing []string
	created  []*pinecone.CreatePodIndexRequest
	listErr  error
}

func (s *stubIndexAdmin) ListIndexes(ctx context.Context) ([]*pinecone.Index, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	indexes := make([]*pinecone.Index, 0, len(s.existing))
	for _, name := range s.existing {
		indexes = append(indexes, &pinecone.Index{Name: name})
	}
	return indexes, nil
}

func (s *stubIndexAdmin) CreatePodIndex(ctx context.Context, in *pinecone.CreatePodIndexRequest) (*pinecone.Index, error) {
	s.created = append(s.created, in)
	return &pinecone.Index{Name: in.Name}, nil
}

func TestEnsureIndexCreatesMissing(t *testing.T) {
	admin := &stubIndexAdmin{}

	err := ensureIndex(context.Background(), admin, "quickstart", "us-west1-gcp", "", 1536)
	require.NoError(t, err)

	require.Len(t, admin.created, 1)
	req := admin.created[0]
	assert.Equal(t, "quickstart", req.Name)
	assert.Equal(t, int32(1536), req.Dimension)
	assert.Equal(t, pinecone.Cosine, req.Metric)
	assert.Equal(t, "us-west1-gcp", req.Environment)
	assert.Equal(t, "p1.x1", req.PodType, "pod type defaults when unset")
}

func TestEnsureIndexIdempotent(t *testing.T) {
	admin := &stubIndexAdmin{existing: []string{"quickstart"}}

	err := ensureIndex(context.Background(), admin, "quickstart", "us-west1-gcp", "p1.x1", 1536)
	require.NoError(t, err)
	assert.Empty(t, admin.created, "existing index must not be recreated")
}

func TestEnsureIndexListFailure(t *testing.T) {
	admin := &stubIndexAdmin{listErr: fmt.Errorf("control plane unavailable")}

	err := ensureIndex(context.Background(), admin, "quickstart", "us-west1-gcp", "", 1536)
	assert.Error(t, err)
	assert.Empty(t, admin.created)
}

func TestNewPineconeProviderRequiresKey(t *testing.T) {
	_, err := NewPineconeProvider(PineconeConfig{})
	assert.Error(t, err)
}
