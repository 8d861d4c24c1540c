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

// Package session holds the in-memory application state: the registered
// databases and vector stores, and the conversations that bind them
// together. State lives for the lifetime of the process only.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/dbchat/pkg/config"
	"github.com/kadirpekel/dbchat/pkg/vector"
)

// ErrNotFound is returned when a looked-up resource does not exist.
var ErrNotFound = errors.New("not found")

// QueryResult captures one executed SQL query and its raw result rows.
type QueryResult struct {
	Query string  `json:"query"`
	Rows  [][]any `json:"rows"`
}

// Conversation binds one vector store and a set of databases. Every query
// the agent runs during a turn is recorded on the conversation in
// execution order until drained.
type Conversation struct {
	ID            string    `json:"id"`
	VectorStoreID string    `json:"vector_store_id"`
	DatabaseIDs   []string  `json:"database_ids"`
	LastUpdate    time.Time `json:"last_update"`

	queryResults []QueryResult
}

// Touch bumps the conversation's last-update time, invalidating any agent
// assembled from an earlier snapshot of it.
func (c *Conversation) Touch() {
	c.LastUpdate = time.Now()
}

// Store is the process-wide session state. All methods are safe for
// concurrent use.
type Store struct {
	mu sync.RWMutex

	vectorStores  map[string]*vector.ProviderConfig
	databases     map[string]*config.DatabaseConfig
	conversations map[string]*Conversation

	currentConversation string
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		vectorStores:  make(map[string]*vector.ProviderConfig),
		databases:     make(map[string]*config.DatabaseConfig),
		conversations: make(map[string]*Conversation),
	}
}

// NewStoreFromConfig seeds a store with the databases and vector stores
// declared in the configuration file.
func NewStoreFromConfig(cfg *config.Config) *Store {
	s := NewStore()
	for id, db := range cfg.Databases {
		s.databases[id] = db
	}
	for id, vs := range cfg.VectorStores {
		s.vectorStores[id] = vs
	}
	return s
}

// ------------------------------------------------------------------
// Vector stores
// ------------------------------------------------------------------

// AddVectorStore registers a vector store config and returns its id.
func (s *Store) AddVectorStore(cfg *vector.ProviderConfig) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.vectorStores[id] = cfg
	return id
}

// GetVectorStore returns the config registered under id.
func (s *Store) GetVectorStore(id string) (*vector.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.vectorStores[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg, nil
}

// ListVectorStores returns the ids of all registered vector stores.
func (s *Store) ListVectorStores() map[string]*vector.ProviderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*vector.ProviderConfig, len(s.vectorStores))
	for id, cfg := range s.vectorStores {
		out[id] = cfg
	}
	return out
}

// RemoveVectorStore deletes a vector store registration.
func (s *Store) RemoveVectorStore(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vectorStores[id]; !ok {
		return ErrNotFound
	}
	delete(s.vectorStores, id)
	return nil
}

// ------------------------------------------------------------------
// Databases
// ------------------------------------------------------------------

// AddDatabase registers a database config and returns its id.
func (s *Store) AddDatabase(cfg *config.DatabaseConfig) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.databases[id] = cfg
	return id
}

// GetDatabase returns the config registered under id.
func (s *Store) GetDatabase(id string) (*config.DatabaseConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.databases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg, nil
}

// ListDatabases returns all registered database configs by id.
func (s *Store) ListDatabases() map[string]*config.DatabaseConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*config.DatabaseConfig, len(s.databases))
	for id, cfg := range s.databases {
		out[id] = cfg
	}
	return out
}

// RemoveDatabase deletes a database registration.
func (s *Store) RemoveDatabase(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.databases[id]; !ok {
		return ErrNotFound
	}
	delete(s.databases, id)
	return nil
}

// ------------------------------------------------------------------
// Conversations
// ------------------------------------------------------------------

// CreateConversation creates a conversation bound to the given vector
// store and databases. Referenced resources must already be registered.
func (s *Store) CreateConversation(vectorStoreID string, databaseIDs []string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vectorStores[vectorStoreID]; !ok {
		return nil, ErrNotFound
	}
	for _, dbID := range databaseIDs {
		if _, ok := s.databases[dbID]; !ok {
			return nil, ErrNotFound
		}
	}

	conv := &Conversation{
		ID:            uuid.NewString(),
		VectorStoreID: vectorStoreID,
		DatabaseIDs:   databaseIDs,
		LastUpdate:    time.Now(),
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}

// GetConversation returns the conversation registered under id.
func (s *Store) GetConversation(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv, nil
}

// ListConversations returns all conversations by id.
func (s *Store) ListConversations() map[string]*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Conversation, len(s.conversations))
	for id, conv := range s.conversations {
		out[id] = conv
	}
	return out
}

// RemoveConversation deletes a conversation. If it was current, the
// current selection is cleared.
func (s *Store) RemoveConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	if s.currentConversation == id {
		s.currentConversation = ""
	}
	return nil
}

// SetCurrentConversation marks a conversation as the active one.
func (s *Store) SetCurrentConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	s.currentConversation = id
	return nil
}

// CurrentConversation returns the active conversation, if any.
func (s *Store) CurrentConversation() (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.currentConversation == "" {
		return nil, ErrNotFound
	}
	conv, ok := s.conversations[s.currentConversation]
	if !ok {
		return nil, ErrNotFound
	}
	return conv, nil
}

// UpdateConversation rebinds a conversation's vector store and databases
// and bumps its last-update time.
func (s *Store) UpdateConversation(id, vectorStoreID string, databaseIDs []string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if _, ok := s.vectorStores[vectorStoreID]; !ok {
		return nil, ErrNotFound
	}
	for _, dbID := range databaseIDs {
		if _, ok := s.databases[dbID]; !ok {
			return nil, ErrNotFound
		}
	}

	conv.VectorStoreID = vectorStoreID
	conv.DatabaseIDs = databaseIDs
	conv.Touch()
	return conv, nil
}

// AppendQueryResult records an executed query and its rows on the
// conversation, preserving execution order.
func (s *Store) AppendQueryResult(conversationID, query string, rows [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.queryResults = append(conv.queryResults, QueryResult{Query: query, Rows: rows})
	return nil
}

// DrainQueryResults returns and clears the conversation's recorded query
// results in execution order.
func (s *Store) DrainQueryResults(conversationID string) ([]QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	results := conv.queryResults
	conv.queryResults = nil
	return results, nil
}
