// Package server exposes the memory agent over HTTP/WebSocket and as an
// MCP tool server.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/michaelbrown/recall/internal/config"
	"github.com/michaelbrown/recall/internal/memory"
	"github.com/michaelbrown/recall/internal/sandbox"
	"github.com/michaelbrown/recall/internal/storage"
)

// Server is the HTTP server for the Recall web API.
type Server struct {
	cfg           *config.Config
	store         storage.Store
	memory        *memory.Store
	exec          *sandbox.Executor
	conversations *ConversationManager
	router        chi.Router
	http          *http.Server
}

// New creates a new Server.
func New(cfg *config.Config, store storage.Store) (*Server, error) {
	mem, err := memory.NewStoreWithLimits(cfg.Memory.Path, cfg.MemoryLimits())
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	s := &Server{
		cfg:           cfg,
		store:         store,
		memory:        mem,
		exec:          sandbox.New(cfg.SandboxTimeout()),
		conversations: NewConversationManager(),
		router:        chi.NewRouter(),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		// Conversations
		r.Get("/conversations", s.handleListConversations)
		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)

		// Messages
		r.Get("/conversations/{id}/messages", s.handleGetMessages)
		r.Post("/conversations/{id}/messages", s.handleSendMessage)

		// WebSocket (no JSON content-type)
		r.Get("/conversations/{id}/ws", s.handleWebSocket)

		// Memory store
		r.Get("/memory/tree", s.handleMemoryTree)
		r.Get("/memory/size", s.handleMemorySize)

		// Providers & models
		r.Get("/providers", s.handleListProviders)
		r.Get("/models/{provider}", s.handleListModels)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	log.Printf("Recall server starting on http://localhost%s", addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")
	s.conversations.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
