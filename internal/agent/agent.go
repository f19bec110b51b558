// Package agent implements the memory agent loop: the model emits tagged
// text (<think>/<python>/<reply>), snippets run in the sandbox against the
// memory store, and execution results are fed back until the model replies.
package agent

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelbrown/recall/internal/llm"
	"github.com/michaelbrown/recall/internal/memory"
	"github.com/michaelbrown/recall/internal/sandbox"
)

//go:embed system_prompt.txt
var defaultSystemPrompt string

const (
	defaultMaxTurns  = 20
	defaultMaxTokens = 32768
)

// Agent manages a conversation and executes the snippet loop.
type Agent struct {
	llm        llm.Client
	utilityLLM llm.Client // optional, for summarization
	exec       *sandbox.Executor
	store      *memory.Store
	history    []llm.Message
	maxTurns   int
	maxTokens  int

	OnThink         func(thought string)
	OnSnippet       func(code string)
	OnSnippetResult func(result string)
	OnTextDelta     func(delta string)
}

// New creates an Agent bound to a memory store. The store is seeded with the
// skeleton layout if it is empty.
func New(client llm.Client, exec *sandbox.Executor, store *memory.Store) (*Agent, error) {
	if err := store.Seed(); err != nil {
		return nil, fmt.Errorf("seeding memory: %w", err)
	}
	return &Agent{
		llm:       client,
		exec:      exec,
		store:     store,
		maxTurns:  defaultMaxTurns,
		maxTokens: defaultMaxTokens,
		history: []llm.Message{
			llm.SystemMessage(defaultSystemPrompt),
		},
	}, nil
}

// SetSystemPrompt overrides the default system prompt.
func (a *Agent) SetSystemPrompt(prompt string) {
	if prompt != "" {
		a.history[0] = llm.SystemMessage(prompt)
	}
}

// SetMaxTurns sets the snippet-turn limit for a single Chat call.
func (a *Agent) SetMaxTurns(n int) {
	if n > 0 {
		a.maxTurns = n
	}
}

// SetMaxTokens sets the context window token budget for history compaction.
func (a *Agent) SetMaxTokens(maxTokens int) {
	if maxTokens > 0 {
		a.maxTokens = maxTokens
	}
}

// SetUtilityLLM sets an optional lightweight LLM client for housekeeping tasks
// like summarization.
func (a *Agent) SetUtilityLLM(client llm.Client) {
	a.utilityLLM = client
}

// SetClient swaps the main conversation LLM client (for mid-session model switching).
func (a *Agent) SetClient(client llm.Client) {
	a.llm = client
}

// Store returns the memory store the agent operates on.
func (a *Agent) Store() *memory.Store {
	return a.store
}

// Chat sends a user message and runs the full loop: the model thinks, runs
// snippets against memory, sees their results, and eventually replies.
// Returns the text of the <reply> block.
func (a *Agent) Chat(ctx context.Context, userMessage string) (string, error) {
	a.compactHistory(ctx)
	a.history = append(a.history, llm.UserMessage(userMessage))

	for turn := 0; turn < a.maxTurns; turn++ {
		resp, err := a.llm.ChatCompletionStream(ctx, a.history, a.OnTextDelta)
		if err != nil {
			return "", fmt.Errorf("llm call (turn %d): %w", turn+1, err)
		}

		a.history = append(a.history, resp.Message)

		parts := extractParts(resp.Message.Content)
		if parts.Think != "" && a.OnThink != nil {
			a.OnThink(parts.Think)
		}

		if parts.Reply != "" {
			return parts.Reply, nil
		}

		// No snippet and no reply: treat the raw content as the answer
		// rather than looping on a malformed turn.
		if parts.Code == "" {
			return resp.Message.Content, nil
		}

		if a.OnSnippet != nil {
			a.OnSnippet(parts.Code)
		}

		result, err := a.runSnippet(ctx, parts.Code)
		if err != nil {
			return "", err
		}
		if a.OnSnippetResult != nil {
			a.OnSnippetResult(result)
		}

		a.history = append(a.history, llm.UserMessage("<result>\n"+result+"\n</result>"))
	}

	return "", fmt.Errorf("agent reached max tool turns (%d) without a reply", a.maxTurns)
}

// runSnippet executes one code block in the sandbox and renders the outcome
// as JSON for the model. Snippet failures come back in the payload; only
// infrastructure failures surface as errors.
func (a *Agent) runSnippet(ctx context.Context, code string) (string, error) {
	lim := a.store.Limits()
	res, err := a.exec.Execute(ctx, sandbox.Request{
		Code:         code,
		AllowedPath:  a.store.Root(),
		MemoryRoot:   a.store.Root(),
		ImportModule: "memory",
		Limits: sandbox.WriteLimits{
			FileBytes:  lim.FileSize,
			DirBytes:   lim.DirSize,
			TotalBytes: lim.StoreSize,
		},
	})
	if err != nil {
		return "", fmt.Errorf("sandbox: %w", err)
	}

	payload := map[string]any{}
	if len(res.Bindings) > 0 {
		payload["bindings"] = res.Bindings
	}
	if res.Error != "" {
		payload["error"] = res.Error
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snippet result: %w", err)
	}
	return string(data), nil
}

// compactHistory summarizes older messages when history exceeds the token budget.
func (a *Agent) compactHistory(ctx context.Context) error {
	total := estimateHistoryTokens(a.history)
	if total <= a.maxTokens {
		return nil
	}

	// Keep recent messages within 60% of budget
	recentBudget := a.maxTokens * 60 / 100
	splitIdx := findSplitPoint(a.history, recentBudget)
	if splitIdx >= len(a.history) {
		return nil // nothing to compact
	}

	// Old messages are indices 1 through splitIdx-1 (skip system prompt at 0)
	oldMessages := a.history[1:splitIdx]
	if len(oldMessages) == 0 {
		return nil
	}

	summarizer := a.llm
	if a.utilityLLM != nil {
		summarizer = a.utilityLLM
	}
	summary, err := summarizeMessages(ctx, summarizer, oldMessages)
	if err != nil {
		// Fallback: simple trim, keep last few messages
		a.trimHistory(10)
		return nil
	}

	// Rebuild history: system prompt + summary + recent messages
	summaryMsg := llm.SystemMessage("[Prior conversation summary]\n" + summary)
	newHistory := make([]llm.Message, 0, 2+len(a.history)-splitIdx)
	newHistory = append(newHistory, a.history[0]) // system prompt
	newHistory = append(newHistory, summaryMsg)
	newHistory = append(newHistory, a.history[splitIdx:]...)
	a.history = newHistory

	return nil
}

// History returns the current conversation history (for debugging/display).
func (a *Agent) History() []llm.Message {
	return a.history
}

// SetHistory replaces the conversation history (used when resuming a session).
func (a *Agent) SetHistory(messages []llm.Message) {
	a.history = messages
}

// Reset clears conversation history (keeps system prompt).
func (a *Agent) Reset() {
	a.history = a.history[:1]
}

// trimHistory keeps the conversation within reasonable bounds.
// Preserves the system message and last N messages.
func (a *Agent) trimHistory(keepLast int) {
	if len(a.history) <= keepLast+1 {
		return
	}
	system := a.history[0]
	recent := a.history[len(a.history)-keepLast:]
	a.history = append([]llm.Message{system}, recent...)
}

// SaveConversation writes the conversation history to a timestamped JSON file
// under dir. Returns the path written.
func (a *Agent) SaveConversation(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating conversation dir: %w", err)
	}
	path := filepath.Join(dir, time.Now().Format("2006-01-02_15-04-05")+".json")
	data, err := json.MarshalIndent(a.history, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding conversation: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing conversation: %w", err)
	}
	return path, nil
}

// String returns a summary of the agent state.
func (a *Agent) String() string {
	return fmt.Sprintf("Agent(history=%d messages, maxTurns=%d)", len(a.history), a.maxTurns)
}
