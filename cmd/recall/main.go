package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/recall/internal/sandbox"
)

var (
	providerFlag string
	modelFlag    string
	personaFlag  string
	memoryFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Recall - LLM memory agent over a markdown store",
	Long: `Recall is a memory agent: an LLM that reads and writes a markdown
memory store by running sandboxed code snippets.

Talk to it directly with 'recall chat', or expose it to other agents
with 'recall serve'.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "LLM provider (vllm, openrouter)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use (overrides config)")
	rootCmd.PersistentFlags().StringVar(&personaFlag, "persona", "", "Agent persona to use (e.g. default, terse)")
	rootCmd.PersistentFlags().StringVar(&memoryFlag, "memory", "", "Memory directory (overrides config)")
}

func main() {
	// When re-executed as the sandbox worker, run the snippet and exit
	// before any CLI machinery touches stdin/stdout.
	if sandbox.Init() {
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
