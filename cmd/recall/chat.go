package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/recall/internal/agent"
	"github.com/michaelbrown/recall/internal/config"
	"github.com/michaelbrown/recall/internal/llm"
	"github.com/michaelbrown/recall/internal/memory"
	"github.com/michaelbrown/recall/internal/sandbox"
	"github.com/michaelbrown/recall/internal/storage"
	"github.com/michaelbrown/recall/internal/storage/sqlite"
)

var resumeID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat with the memory agent",
	Long: `Start an interactive conversation with the Recall memory agent.
The agent answers from the markdown memory store and records new facts in it.

Examples:
  recall chat
  recall chat --provider openrouter
  recall chat --memory ~/notes/memory`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Load persona if specified
	var persona *agent.Persona
	if personaFlag != "" {
		personaPath := filepath.Join(cfg.Agent.PersonasDir, personaFlag+".yaml")
		persona, err = agent.LoadPersona(personaPath)
		if err != nil {
			return fmt.Errorf("loading persona: %w", err)
		}
	}

	providerName := providerFlag
	if providerName == "" {
		if persona != nil && persona.Provider != "" {
			providerName = persona.Provider
		} else {
			providerName = cfg.DefaultProvider
		}
	}

	provider, err := cfg.Provider(providerName)
	if err != nil {
		return err
	}

	model := modelFlag
	if model == "" {
		if persona != nil && persona.Model != "" {
			model = persona.Model
		} else {
			model = provider.Models["default"]
		}
	}

	memoryPath := memoryFlag
	if memoryPath == "" {
		memoryPath = cfg.Memory.Path
	}
	mem, err := memory.NewStoreWithLimits(memoryPath, cfg.MemoryLimits())
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}

	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Resume an existing conversation or start a fresh one.
	var conv *storage.Conversation
	if resumeID != "" {
		conv, err = store.GetConversation(ctx, resumeID)
		if err != nil {
			return err
		}
	} else {
		conv = &storage.Conversation{
			ID:       uuid.New().String(),
			Status:   storage.StatusActive,
			Provider: providerName,
			Model:    model,
			Persona:  personaFlag,
		}
		if err := store.CreateConversation(ctx, conv); err != nil {
			return fmt.Errorf("creating conversation: %w", err)
		}
	}

	fmt.Printf("Recall - Memory Agent Chat\n")
	if persona != nil {
		fmt.Printf("Persona: %s\n", persona.Name)
	}
	fmt.Printf("Provider: %s | Model: %s\n", providerName, model)
	fmt.Printf("Memory: %s\n", mem.Root())
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	client := llm.NewClient(provider.BaseURL, provider.APIKey, model)
	exec := sandbox.New(cfg.SandboxTimeout())

	a, err := agent.New(client, exec, mem)
	if err != nil {
		return err
	}
	a.SetMaxTurns(cfg.Agent.MaxToolTurns)
	a.SetMaxTokens(cfg.Agent.ContextMaxTokens)

	if utilityModel, ok := provider.Models["utility"]; ok && utilityModel != "" {
		a.SetUtilityLLM(llm.NewClient(provider.BaseURL, provider.APIKey, utilityModel))
	}

	if persona != nil {
		persona.Apply(a)
	}

	if resumeID != "" {
		messages, err := store.LoadMessages(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("loading messages: %w", err)
		}
		if len(messages) > 0 {
			a.SetHistory(messages)
		}
	}

	// Wire up callbacks for display
	a.OnThink = func(thought string) {
		fmt.Printf("  \033[90m… %s\033[0m\n", truncate(thought, 200))
	}
	a.OnSnippet = func(code string) {
		fmt.Printf("\n  \033[33m⚡ snippet\033[0m\n")
		for _, line := range strings.Split(code, "\n") {
			fmt.Printf("  \033[33m│ %s\033[0m\n", line)
		}
	}
	a.OnSnippetResult = func(result string) {
		lines := strings.Split(strings.TrimSpace(result), "\n")
		preview := lines
		if len(preview) > 8 {
			preview = preview[:8]
		}
		for _, line := range preview {
			fmt.Printf("  \033[90m│ %s\033[0m\n", line)
		}
		if len(lines) > 8 {
			fmt.Printf("  \033[90m│ ... (%d more lines)\033[0m\n", len(lines)-8)
		}
		fmt.Println()
	}

	// Set up readline for input with history
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36myou>\033[0m ",
		HistoryFile:     "/tmp/recall_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Per-request cancellation: Ctrl+C cancels the active request, not the
	// whole app. A second Ctrl+C while idle exits.
	var reqCancel context.CancelFunc
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if reqCancel != nil {
				reqCancel()
			}
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		// Handle slash commands
		if strings.HasPrefix(input, "/") {
			if handleCommand(input, a, cfg) {
				continue
			}
		}

		// Create a per-request context so Ctrl+C only cancels this request
		reqCtx, cancel := context.WithCancel(context.Background())
		reqCancel = cancel

		reply, err := a.Chat(reqCtx, input)
		wasInterrupted := reqCtx.Err() != nil
		cancel()
		reqCancel = nil

		// Persist the conversation after every exchange.
		if conv.Title == "" {
			conv.Title = truncate(input, 80)
			store.UpdateConversation(ctx, conv)
		}
		if saveErr := store.SaveMessages(ctx, conv.ID, a.History()); saveErr != nil {
			fmt.Printf("\033[31mwarning: saving conversation: %v\033[0m\n", saveErr)
		}

		if err != nil {
			if wasInterrupted {
				fmt.Println("\n(interrupted)")
				continue
			}
			fmt.Printf("\n\033[31merror: %s\033[0m\n\n", err)
			continue
		}

		fmt.Printf("\n\033[32mrecall>\033[0m %s\n\n", reply)
	}
}

func handleCommand(input string, a *agent.Agent, cfg *config.Config) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		os.Exit(0)
	case "/reset":
		a.Reset()
		fmt.Println("Conversation reset.")
		fmt.Println()
	case "/history":
		data, _ := json.MarshalIndent(a.History(), "", "  ")
		fmt.Println(string(data))
		fmt.Println()
	case "/memory":
		tree, err := a.Store().ListFiles()
		if err != nil {
			fmt.Printf("error: %v\n\n", err)
			return true
		}
		fmt.Println(tree)
	case "/save":
		path, err := a.SaveConversation(cfg.Agent.SaveConversationPath)
		if err != nil {
			fmt.Printf("error: %v\n\n", err)
			return true
		}
		fmt.Printf("Saved to %s\n\n", path)
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     - Show this help")
		fmt.Println("  /reset    - Clear conversation history")
		fmt.Println("  /history  - Show raw conversation history (JSON)")
		fmt.Println("  /memory   - Show the memory file tree")
		fmt.Println("  /save     - Save the conversation to a JSON file")
		fmt.Println("  /quit     - Exit")
		fmt.Println()
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
	}
	return true
}
