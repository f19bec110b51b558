package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/recall/internal/config"
	"github.com/michaelbrown/recall/internal/memory"
)

var memoryCmd = &cobra.Command{
	Use:     "memory",
	Aliases: []string{"mem"},
	Short:   "Inspect and manage the memory store",
}

var memoryInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the memory skeleton (user.md and entities/)",
	RunE:  runMemoryInit,
}

var memoryTreeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the memory file tree",
	RunE:  runMemoryTree,
}

var memorySizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Print the total size of the memory store",
	RunE:  runMemorySize,
}

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryInitCmd, memoryTreeCmd, memorySizeCmd)
}

func openMemory() (*memory.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	path := memoryFlag
	if path == "" {
		path = cfg.Memory.Path
	}
	return memory.NewStoreWithLimits(path, cfg.MemoryLimits())
}

func runMemoryInit(cmd *cobra.Command, args []string) error {
	mem, err := openMemory()
	if err != nil {
		return err
	}
	if err := mem.Seed(); err != nil {
		return err
	}
	fmt.Printf("Memory initialized at %s\n", mem.Root())
	return nil
}

func runMemoryTree(cmd *cobra.Command, args []string) error {
	mem, err := openMemory()
	if err != nil {
		return err
	}
	tree, err := mem.ListFiles()
	if err != nil {
		return err
	}
	fmt.Println(tree)
	return nil
}

func runMemorySize(cmd *cobra.Command, args []string) error {
	mem, err := openMemory()
	if err != nil {
		return err
	}
	size, err := mem.Size(".")
	if err != nil {
		return err
	}
	fmt.Printf("%d bytes\n", size)
	return nil
}
