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

// Package server exposes the session API over HTTP: registering
// databases and vector stores, managing conversations, and chatting
// with the agent bound to a conversation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/dbchat/pkg/builder"
	"github.com/kadirpekel/dbchat/pkg/config"
	"github.com/kadirpekel/dbchat/pkg/session"
	"github.com/kadirpekel/dbchat/pkg/vector"
)

// Server is the dbchat HTTP server.
type Server struct {
	cfg     *config.ServerConfig
	store   *session.Store
	builder *builder.Builder
	server  *http.Server
}

// New creates the HTTP server over a session store and builder.
func New(cfg *config.ServerConfig, store *session.Store, b *builder.Builder) *Server {
	if cfg.Host == "" || cfg.Port == 0 {
		cfg.SetDefaults()
	}

	return &Server{
		cfg:     cfg,
		store:   store,
		builder: b,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/databases", func(r chi.Router) {
			r.Get("/", s.handleListDatabases)
			r.Post("/", s.handleAddDatabase)
			r.Get("/{id}", s.handleGetDatabase)
			r.Delete("/{id}", s.handleRemoveDatabase)
		})

		r.Route("/vector-stores", func(r chi.Router) {
			r.Get("/", s.handleListVectorStores)
			r.Post("/", s.handleAddVectorStore)
			r.Get("/{id}", s.handleGetVectorStore)
			r.Delete("/{id}", s.handleRemoveVectorStore)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.handleListConversations)
			r.Post("/", s.handleCreateConversation)
			r.Get("/current", s.handleCurrentConversation)
			r.Put("/current", s.handleSetCurrentConversation)
			r.Get("/{id}", s.handleGetConversation)
			r.Put("/{id}", s.handleUpdateConversation)
			r.Delete("/{id}", s.handleRemoveConversation)
			r.Post("/{id}/messages", s.handleSendMessage)
			r.Get("/{id}/results", s.handleDrainResults)
		})
	})

	return r
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.cfg.Address())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	slog.Info("HTTP server shutting down")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// ------------------------------------------------------------------
// Handlers
// ------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// databaseSummary is the API view of a registered database. Credentials
// stay server-side.
type databaseSummary struct {
	ID       string `json:"id"`
	Driver   string `json:"driver"`
	Database string `json:"database,omitempty"`
	Host     string `json:"host,omitempty"`
}

func databaseView(id string, cfg *config.DatabaseConfig) databaseSummary {
	return databaseSummary{
		ID:       id,
		Driver:   cfg.Driver,
		Database: cfg.Database,
		Host:     cfg.Host,
	}
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	all := s.store.ListDatabases()
	out := make([]databaseSummary, 0, len(all))
	for id, cfg := range all {
		out = append(out, databaseView(id, cfg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"databases": out, "total": len(out)})
}

func (s *Server) handleAddDatabase(w http.ResponseWriter, r *http.Request) {
	var cfg config.DatabaseConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := s.store.AddDatabase(&cfg)
	slog.Info("Database registered", "id", id, "driver", cfg.Driver)
	writeJSON(w, http.StatusCreated, databaseView(id, &cfg))
}

func (s *Server) handleGetDatabase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg, err := s.store.GetDatabase(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, databaseView(id, cfg))
}

func (s *Server) handleRemoveDatabase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.RemoveDatabase(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.builder.InvalidateDatabase(id)
	w.WriteHeader(http.StatusNoContent)
}

// vectorStoreSummary is the API view of a registered vector store.
type vectorStoreSummary struct {
	ID         string              `json:"id"`
	Type       vector.ProviderType `json:"type"`
	Collection string              `json:"collection,omitempty"`
}

func vectorStoreView(id string, cfg *vector.ProviderConfig) vectorStoreSummary {
	return vectorStoreSummary{
		ID:         id,
		Type:       cfg.Type,
		Collection: cfg.Collection,
	}
}

func (s *Server) handleListVectorStores(w http.ResponseWriter, r *http.Request) {
	all := s.store.ListVectorStores()
	out := make([]vectorStoreSummary, 0, len(all))
	for id, cfg := range all {
		out = append(out, vectorStoreView(id, cfg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"vector_stores": out, "total": len(out)})
}

func (s *Server) handleAddVectorStore(w http.ResponseWriter, r *http.Request) {
	var cfg vector.ProviderConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := s.store.AddVectorStore(&cfg)
	slog.Info("Vector store registered", "id", id, "type", cfg.Type)
	writeJSON(w, http.StatusCreated, vectorStoreView(id, &cfg))
}

func (s *Server) handleGetVectorStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg, err := s.store.GetVectorStore(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, vectorStoreView(id, cfg))
}

func (s *Server) handleRemoveVectorStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.RemoveVectorStore(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.builder.InvalidateVectorStore(id)
	w.WriteHeader(http.StatusNoContent)
}

type conversationRequest struct {
	VectorStoreID string   `json:"vector_store_id"`
	DatabaseIDs   []string `json:"database_ids"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	all := s.store.ListConversations()
	out := make([]*session.Conversation, 0, len(all))
	for _, conv := range all {
		out = append(out, conv)
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out, "total": len(out)})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	conv, err := s.store.CreateConversation(req.VectorStoreID, req.DatabaseIDs)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	slog.Info("Conversation created", "id", conv.ID)
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.GetConversation(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	conv, err := s.store.UpdateConversation(chi.URLParam(r, "id"), req.VectorStoreID, req.DatabaseIDs)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleRemoveConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveConversation(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCurrentConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.CurrentConversation()
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("no conversation selected"))
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleSetCurrentConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.store.SetCurrentConversation(req.ID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, errors.New("content is required"))
		return
	}

	conv, err := s.store.GetConversation(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	a, err := s.builder.Agent(r.Context(), conv)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	reply, err := a.Chat(r.Context(), req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleDrainResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.DrainQueryResults(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if results == nil {
		results = []session.QueryResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ------------------------------------------------------------------
// Helpers
// ------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
