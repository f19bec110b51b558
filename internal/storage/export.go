package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/michaelbrown/recall/internal/llm"
)

// ExportMarkdown renders a conversation and its messages as a markdown document.
func ExportMarkdown(conv *Conversation, messages []llm.Message) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# %s\n\n", conv.Title))
	b.WriteString(fmt.Sprintf("- **Conversation:** %s\n", conv.ID))
	b.WriteString(fmt.Sprintf("- **Provider:** %s\n", conv.Provider))
	b.WriteString(fmt.Sprintf("- **Model:** %s\n", conv.Model))
	if conv.Persona != "" {
		b.WriteString(fmt.Sprintf("- **Persona:** %s\n", conv.Persona))
	}
	b.WriteString(fmt.Sprintf("- **Created:** %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("- **Status:** %s\n", conv.Status))
	b.WriteString("\n---\n\n")

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleUser:
			// Snippet results are fed back as user messages; fold them away.
			if strings.HasPrefix(strings.TrimSpace(m.Content), "<result>") {
				b.WriteString(fmt.Sprintf("<details>\n<summary>Execution Result</summary>\n\n```\n%s\n```\n</details>\n\n", m.Content))
				continue
			}
			b.WriteString(fmt.Sprintf("## You\n\n%s\n\n", m.Content))
		case llm.RoleAssistant:
			if m.Content != "" {
				b.WriteString(fmt.Sprintf("## Recall\n\n%s\n\n", m.Content))
			}
		}
	}

	return b.String()
}

// ExportJSON renders a conversation and its messages as formatted JSON.
func ExportJSON(conv *Conversation, messages []llm.Message) ([]byte, error) {
	export := struct {
		Conversation *Conversation `json:"conversation"`
		Messages     []llm.Message `json:"messages"`
	}{
		Conversation: conv,
		Messages:     messages,
	}
	return json.MarshalIndent(export, "", "  ")
}
