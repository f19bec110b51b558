package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/michaelbrown/recall/internal/agent"
	"github.com/michaelbrown/recall/internal/config"
	"github.com/michaelbrown/recall/internal/llm"
	"github.com/michaelbrown/recall/internal/memory"
	"github.com/michaelbrown/recall/internal/sandbox"
	"github.com/michaelbrown/recall/internal/storage"
)

// ActiveConversation tracks an in-memory agent for a conversation.
type ActiveConversation struct {
	Agent  *agent.Agent
	Cancel context.CancelFunc // cancels in-flight Chat
	mu     sync.Mutex         // one message at a time per conversation
}

// ConversationManager tracks which conversations have an active Agent in memory.
type ConversationManager struct {
	mu            sync.RWMutex
	conversations map[string]*ActiveConversation
}

// NewConversationManager creates a new ConversationManager.
func NewConversationManager() *ConversationManager {
	return &ConversationManager{
		conversations: make(map[string]*ActiveConversation),
	}
}

// Get returns an active conversation if it exists.
func (cm *ConversationManager) Get(conversationID string) (*ActiveConversation, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	ac, ok := cm.conversations[conversationID]
	return ac, ok
}

// GetOrCreate returns an existing active conversation or creates a new one.
// All conversations share the configured memory store; each gets its own
// agent and history.
func (cm *ConversationManager) GetOrCreate(
	ctx context.Context,
	conv *storage.Conversation,
	cfg *config.Config,
	store storage.Store,
	mem *memory.Store,
	exec *sandbox.Executor,
) (*ActiveConversation, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if ac, ok := cm.conversations[conv.ID]; ok {
		return ac, nil
	}

	// Resolve provider
	providerName := conv.Provider
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}
	provider, err := cfg.Provider(providerName)
	if err != nil {
		return nil, fmt.Errorf("resolving provider: %w", err)
	}

	// Resolve model
	model := conv.Model
	if model == "" {
		model = provider.Models["default"]
	}

	// Load persona if specified
	var persona *agent.Persona
	if conv.Persona != "" {
		personaPath := filepath.Join(cfg.Agent.PersonasDir, conv.Persona+".yaml")
		persona, err = agent.LoadPersona(personaPath)
		if err != nil {
			return nil, fmt.Errorf("loading persona: %w", err)
		}
	}

	// Create LLM client and agent
	client := llm.NewClient(provider.BaseURL, provider.APIKey, model)
	a, err := agent.New(client, exec, mem)
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	a.SetMaxTurns(cfg.Agent.MaxToolTurns)
	a.SetMaxTokens(cfg.Agent.ContextMaxTokens)

	// Set up utility LLM if configured
	if utilityModel, ok := provider.Models["utility"]; ok && utilityModel != "" {
		utilityClient := llm.NewClient(provider.BaseURL, provider.APIKey, utilityModel)
		a.SetUtilityLLM(utilityClient)
	}

	// Apply persona overrides
	if persona != nil {
		persona.Apply(a)
	}

	// Load existing history if any
	messages, err := store.LoadMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	if len(messages) > 0 {
		a.SetHistory(messages)
	}

	ac := &ActiveConversation{
		Agent: a,
	}
	cm.conversations[conv.ID] = ac
	return ac, nil
}

// Remove removes an active conversation and cancels any in-flight work.
func (cm *ConversationManager) Remove(conversationID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if ac, ok := cm.conversations[conversationID]; ok {
		if ac.Cancel != nil {
			ac.Cancel()
		}
		delete(cm.conversations, conversationID)
	}
}

// CloseAll cancels all active conversations.
func (cm *ConversationManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for id, ac := range cm.conversations {
		if ac.Cancel != nil {
			ac.Cancel()
		}
		delete(cm.conversations, id)
	}
}
