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

// Package rag provides the retrieval layer: documents, a vector index over
// them, and a query engine that answers questions from retrieved context.
package rag

import "github.com/google/uuid"

// Document is a unit of retrievable text.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewDocument creates a document with a generated id.
func NewDocument(text string) Document {
	return Document{
		ID:   uuid.NewString(),
		Text: text,
	}
}
