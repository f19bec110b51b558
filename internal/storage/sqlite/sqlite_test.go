package sqlite

import (
	"context"
	"testing"

	"github.com/michaelbrown/recall/internal/llm"
	"github.com/michaelbrown/recall/internal/storage"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetConversation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	conv := &storage.Conversation{
		ID:       "abc12345-0000-0000-0000-000000000000",
		Title:    "test conversation",
		Status:   storage.StatusActive,
		Provider: "vllm",
		Model:    "driaforall/mem-agent",
		Persona:  "default",
	}

	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}

	if got.Title != "test conversation" {
		t.Errorf("title = %q, want %q", got.Title, "test conversation")
	}
	if got.Status != storage.StatusActive {
		t.Errorf("status = %q, want %q", got.Status, storage.StatusActive)
	}
	if got.Provider != "vllm" {
		t.Errorf("provider = %q, want %q", got.Provider, "vllm")
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should not be zero")
	}
}

func TestGetConversationByPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	conv := &storage.Conversation{
		ID:     "abc12345-0000-0000-0000-000000000000",
		Status: storage.StatusActive,
	}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	got, err := s.GetConversation(ctx, "abc12345")
	if err != nil {
		t.Fatalf("GetConversation by prefix: %v", err)
	}
	if got.ID != conv.ID {
		t.Errorf("got ID %q, want %q", got.ID, conv.ID)
	}
}

func TestGetConversationAmbiguousPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{
		"abc00000-0000-0000-0000-000000000000",
		"abc11111-0000-0000-0000-000000000000",
	} {
		conv := &storage.Conversation{ID: id, Status: storage.StatusActive}
		if err := s.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("CreateConversation: %v", err)
		}
	}

	_, err := s.GetConversation(ctx, "abc")
	if err == nil {
		t.Fatal("expected error for ambiguous prefix")
	}
}

func TestListConversations(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"aaa", "bbb", "ccc"} {
		conv := &storage.Conversation{ID: id, Status: storage.StatusActive}
		if err := s.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("CreateConversation: %v", err)
		}
	}

	conversations, err := s.ListConversations(ctx, storage.ConversationListOptions{})
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(conversations) != 3 {
		t.Errorf("got %d conversations, want 3", len(conversations))
	}
}

func TestListConversationsFilterByStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.CreateConversation(ctx, &storage.Conversation{ID: "a1", Status: storage.StatusActive})
	s.CreateConversation(ctx, &storage.Conversation{ID: "a2", Status: storage.StatusCompleted})
	s.CreateConversation(ctx, &storage.Conversation{ID: "a3", Status: storage.StatusActive})

	conversations, err := s.ListConversations(ctx, storage.ConversationListOptions{Status: storage.StatusActive})
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(conversations) != 2 {
		t.Errorf("got %d active conversations, want 2", len(conversations))
	}
}

func TestListConversationsLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.CreateConversation(ctx, &storage.Conversation{ID: string(rune('a' + i)), Status: storage.StatusActive})
	}

	conversations, err := s.ListConversations(ctx, storage.ConversationListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(conversations) != 2 {
		t.Errorf("got %d conversations, want 2", len(conversations))
	}
}

func TestUpdateConversation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	conv := &storage.Conversation{ID: "upd1", Status: storage.StatusActive}
	s.CreateConversation(ctx, conv)

	conv.Title = "updated title"
	conv.Status = storage.StatusCompleted
	if err := s.UpdateConversation(ctx, conv); err != nil {
		t.Fatalf("UpdateConversation: %v", err)
	}

	got, err := s.GetConversation(ctx, "upd1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Title != "updated title" {
		t.Errorf("title = %q, want %q", got.Title, "updated title")
	}
	if got.Status != storage.StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, storage.StatusCompleted)
	}
}

func TestDeleteConversation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	conv := &storage.Conversation{ID: "del1", Status: storage.StatusActive}
	s.CreateConversation(ctx, conv)
	s.SaveMessages(ctx, "del1", []llm.Message{{Role: llm.RoleUser, Content: "hello"}})

	if err := s.DeleteConversation(ctx, "del1"); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	_, err := s.GetConversation(ctx, "del1")
	if err == nil {
		t.Fatal("expected error after delete")
	}

	msgs, err := s.LoadMessages(ctx, "del1")
	if err != nil {
		t.Fatalf("LoadMessages after delete: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after delete, got %d", len(msgs))
	}
}

func TestSaveAndLoadMessages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	conv := &storage.Conversation{ID: "msg1", Status: storage.StatusActive}
	s.CreateConversation(ctx, conv)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful."},
		{Role: llm.RoleUser, Content: "Where do I live?"},
		{Role: llm.RoleAssistant, Content: "<python>\ncontent = read_file(\"user.md\")\n</python>"},
		{Role: llm.RoleUser, Content: "<result>\n{\"bindings\": {\"content\": \"lives in Amsterdam\"}}\n</result>"},
		{Role: llm.RoleAssistant, Content: "<reply>You live in Amsterdam.</reply>"},
	}

	if err := s.SaveMessages(ctx, "msg1", messages); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	loaded, err := s.LoadMessages(ctx, "msg1")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}

	if len(loaded) != 5 {
		t.Fatalf("got %d messages, want 5", len(loaded))
	}

	if loaded[0].Role != llm.RoleSystem {
		t.Errorf("msg[0] role = %q, want system", loaded[0].Role)
	}
	if loaded[2].Content != messages[2].Content {
		t.Errorf("msg[2] content = %q, want snippet turn preserved", loaded[2].Content)
	}
	if loaded[4].Content != messages[4].Content {
		t.Errorf("msg[4] content = %q, want reply preserved", loaded[4].Content)
	}
}

func TestSaveMessagesOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	conv := &storage.Conversation{ID: "ow1", Status: storage.StatusActive}
	s.CreateConversation(ctx, conv)

	// Save initial
	s.SaveMessages(ctx, "ow1", []llm.Message{{Role: llm.RoleUser, Content: "first"}})

	// Overwrite
	s.SaveMessages(ctx, "ow1", []llm.Message{
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleAssistant, Content: "second"},
	})

	loaded, err := s.LoadMessages(ctx, "ow1")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("got %d messages, want 2", len(loaded))
	}
}

func TestLoadMessagesEmpty(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	msgs, err := s.LoadMessages(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if msgs != nil {
		t.Errorf("expected nil for nonexistent conversation, got %v", msgs)
	}
}
