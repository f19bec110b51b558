package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/recall/internal/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local-only deployment
	},
}

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify conversation exists
	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	// Upgrade to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Get or create active conversation
	ac, err := s.conversations.GetOrCreate(r.Context(), conv, s.cfg, s.store, s.memory, s.exec)
	if err != nil {
		wsWriteJSON(conn, wsOutgoing{Type: "error", Content: fmt.Sprintf("initializing agent: %v", err)})
		return
	}

	// Read loop
	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			log.Printf("websocket read error: %v", err)
			return
		}

		if msg.Type != "message" || msg.Content == "" {
			wsWriteJSON(conn, wsOutgoing{Type: "error", Content: "invalid message"})
			continue
		}

		// Process message with agent
		s.processWebSocketMessage(conn, ac, conv, msg.Content)
	}
}

func (s *Server) processWebSocketMessage(conn *websocket.Conn, ac *ActiveConversation, conv *storage.Conversation, content string) {
	// Ensure one message at a time
	ac.mu.Lock()
	defer ac.mu.Unlock()

	// Mutex for thread-safe writes to the WebSocket connection
	var wsMu sync.Mutex

	// Auto-generate title from first message
	if conv.Title == "" {
		conv.Title = generateTitle(content)
		s.store.UpdateConversation(context.Background(), conv)
	}

	// Create cancellable context — cancelled on client disconnect
	ctx, cancel := context.WithCancel(context.Background())
	ac.Cancel = cancel
	defer func() {
		cancel()
		ac.Cancel = nil
	}()

	// Wire agent callbacks to send WebSocket messages
	send := func(msg wsOutgoing) {
		wsMu.Lock()
		wsWriteJSON(conn, msg)
		wsMu.Unlock()
	}
	ac.Agent.OnTextDelta = func(delta string) {
		send(wsOutgoing{Type: "text_delta", Content: delta})
	}
	ac.Agent.OnThink = func(thought string) {
		send(wsOutgoing{Type: "think", Content: thought})
	}
	ac.Agent.OnSnippet = func(code string) {
		send(wsOutgoing{Type: "snippet", Content: code})
	}
	ac.Agent.OnSnippetResult = func(result string) {
		send(wsOutgoing{Type: "snippet_result", Content: result})
	}

	// Run the agent loop
	response, err := ac.Agent.Chat(ctx, content)

	// Save messages regardless of error
	if saveErr := s.store.SaveMessages(context.Background(), conv.ID, ac.Agent.History()); saveErr != nil {
		log.Printf("failed to save messages for conversation %s: %v", conv.ID, saveErr)
	}

	wsMu.Lock()
	defer wsMu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			wsWriteJSON(conn, wsOutgoing{Type: "error", Content: "interrupted"})
		} else {
			wsWriteJSON(conn, wsOutgoing{Type: "error", Content: err.Error()})
		}
		return
	}

	wsWriteJSON(conn, wsOutgoing{Type: "done", Content: response})
}

func wsWriteJSON(conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("websocket marshal error: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}
