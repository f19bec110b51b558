package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/michaelbrown/recall/internal/llm"
	"github.com/michaelbrown/recall/internal/storage"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Conversation handlers ---

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	opts := storage.ConversationListOptions{}

	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = storage.ConversationStatus(status)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	conversations, err := s.store.ListConversations(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if conversations == nil {
		conversations = []storage.Conversation{}
	}
	writeJSON(w, http.StatusOK, conversations)
}

type createConversationRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Persona  string `json:"persona"`
	Title    string `json:"title"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = s.cfg.DefaultProvider
	}

	provider, err := s.cfg.Provider(providerName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	model := req.Model
	if model == "" {
		model = provider.Models["default"]
	}

	conv := &storage.Conversation{
		ID:       uuid.New().String(),
		Title:    req.Title,
		Status:   storage.StatusActive,
		Provider: providerName,
		Model:    model,
		Persona:  req.Persona,
	}

	if err := s.store.CreateConversation(r.Context(), conv); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "conversation not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Remove from active conversations first
	s.conversations.Remove(id)

	if err := s.store.DeleteConversation(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "conversation not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Message handlers ---

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	messages, err := s.store.LoadMessages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if messages == nil {
		messages = []llm.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	// Get or create active conversation
	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	ac, err := s.conversations.GetOrCreate(r.Context(), conv, s.cfg, s.store, s.memory, s.exec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("initializing agent: %v", err))
		return
	}

	// Lock to ensure one message at a time
	ac.mu.Lock()
	defer ac.mu.Unlock()

	// Auto-generate title from first message
	if conv.Title == "" {
		conv.Title = generateTitle(req.Content)
		s.store.UpdateConversation(r.Context(), conv)
	}

	// Run agent
	ctx, cancel := context.WithCancel(r.Context())
	ac.Cancel = cancel
	defer func() { ac.Cancel = nil }()

	response, err := ac.Agent.Chat(ctx, req.Content)
	cancel()

	// Save messages
	if saveErr := s.store.SaveMessages(r.Context(), conv.ID, ac.Agent.History()); saveErr != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("saving messages: %v", saveErr))
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("agent error: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"content": response})
}

// --- Memory handlers ---

func (s *Server) handleMemoryTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.memory.ListFiles()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"root": s.memory.Root(), "tree": tree})
}

func (s *Server) handleMemorySize(w http.ResponseWriter, r *http.Request) {
	size, err := s.memory.Size(".")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"bytes": size})
}

// --- Provider/Model handlers ---

type providerInfo struct {
	Name   string            `json:"name"`
	Models map[string]string `json:"models"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	var providers []providerInfo
	for name, p := range s.cfg.Providers {
		providers = append(providers, providerInfo{
			Name:   name,
			Models: p.Models,
		})
	}
	writeJSON(w, http.StatusOK, providers)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	provider, err := s.cfg.Provider(providerName)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	// Query live models; fall back to the configured model map when the
	// provider doesn't answer.
	client := llm.NewClient(provider.BaseURL, provider.APIKey, "")
	models, err := client.ListModels(r.Context())
	if err != nil {
		models = nil
		for _, name := range provider.Models {
			models = append(models, llm.ModelInfo{ID: name})
		}
	}
	writeJSON(w, http.StatusOK, models)
}

// generateTitle creates a conversation title from the first user message.
func generateTitle(firstMessage string) string {
	t := strings.TrimSpace(firstMessage)
	if len(t) > 80 {
		t = t[:80] + "..."
	}
	return t
}
