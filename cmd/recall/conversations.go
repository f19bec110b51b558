package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/recall/internal/config"
	"github.com/michaelbrown/recall/internal/storage"
	"github.com/michaelbrown/recall/internal/storage/sqlite"
)

var (
	statusFilter string
	limitFlag    int
	exportFormat string
	exportOutput string
	forceFlag    bool
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conversation", "conv"},
	Short:   "Manage saved conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations",
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show conversation details and messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsResumeCmd = &cobra.Command{
	Use:   "resume <conversation-id>",
	Short: "Resume a previous conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resumeID = args[0]
		return runChat(cmd, args)
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

var conversationsExportCmd = &cobra.Command{
	Use:   "export <conversation-id>",
	Short: "Export a conversation as markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsExport,
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsListCmd, conversationsShowCmd, conversationsResumeCmd, conversationsDeleteCmd, conversationsExportCmd)

	conversationsListCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (active, completed, failed, running)")
	conversationsListCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max conversations to show")

	conversationsExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md or json")
	conversationsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	conversationsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")
}

func openStore() (storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return sqlite.Open(cfg.Storage.DBPath)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := storage.ConversationListOptions{
		Status: storage.ConversationStatus(statusFilter),
		Limit:  limitFlag,
	}

	conversations, err := store.ListConversations(context.Background(), opts)
	if err != nil {
		return err
	}

	if len(conversations) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	// Header
	fmt.Printf("%-10s %-12s %-40s %-15s %s\n", "ID", "STATUS", "TITLE", "MODEL", "UPDATED")
	fmt.Println(strings.Repeat("─", 95))

	for _, c := range conversations {
		title := c.Title
		if len(title) > 38 {
			title = title[:38] + ".."
		}
		if title == "" {
			title = "(untitled)"
		}

		model := c.Model
		if len(model) > 13 {
			model = model[:13] + ".."
		}

		age := timeAgo(c.UpdatedAt)

		fmt.Printf("%-10s %-12s %-40s %-15s %s\n",
			c.ID[:8], c.Status, title, model, age)
	}

	return nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	conv, err := store.GetConversation(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Conversation: %s\n", conv.ID)
	fmt.Printf("Title:        %s\n", conv.Title)
	fmt.Printf("Status:       %s\n", conv.Status)
	fmt.Printf("Provider:     %s\n", conv.Provider)
	fmt.Printf("Model:        %s\n", conv.Model)
	if conv.Persona != "" {
		fmt.Printf("Persona:      %s\n", conv.Persona)
	}
	fmt.Printf("Created:      %s\n", conv.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:      %s\n", conv.UpdatedAt.Format(time.RFC3339))

	messages, err := store.LoadMessages(ctx, conv.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\nMessages: %d\n", len(messages))
	fmt.Println(strings.Repeat("─", 60))

	for _, m := range messages {
		switch m.Role {
		case "system":
			continue
		case "user":
			if strings.HasPrefix(strings.TrimSpace(m.Content), "<result>") {
				fmt.Printf("  \033[90m│ %s\033[0m\n", truncate(m.Content, 100))
				continue
			}
			fmt.Printf("\n\033[36myou>\033[0m %s\n", truncate(m.Content, 200))
		case "assistant":
			if m.Content != "" {
				fmt.Printf("\n\033[32mrecall>\033[0m %s\n", truncate(m.Content, 200))
			}
		}
	}

	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	conv, err := store.GetConversation(ctx, args[0])
	if err != nil {
		return err
	}

	if !forceFlag {
		title := conv.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("Delete conversation %s - %q? [y/N] ", conv.ID[:8], title)
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := store.DeleteConversation(ctx, conv.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted conversation %s\n", conv.ID[:8])
	return nil
}

func runConversationsExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	conv, err := store.GetConversation(ctx, args[0])
	if err != nil {
		return err
	}

	messages, err := store.LoadMessages(ctx, conv.ID)
	if err != nil {
		return err
	}

	var output string
	switch exportFormat {
	case "json":
		data, err := storage.ExportJSON(conv, messages)
		if err != nil {
			return err
		}
		output = string(data)
	default:
		output = storage.ExportMarkdown(conv, messages)
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, []byte(output), 0o644)
	}

	fmt.Print(output)
	return nil
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
