package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/recall/internal/config"
	"github.com/michaelbrown/recall/internal/server"
	"github.com/michaelbrown/recall/internal/storage/sqlite"
)

var (
	portFlag int
	httpFlag bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the memory agent to other programs",
	Long: `Serve the memory agent.

By default this speaks MCP over stdio, exposing a use_memory_agent tool
that other agents can call. With --http it starts the REST/WebSocket
server instead.

Examples:
  recall serve
  recall serve --http --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&httpFlag, "http", false, "Serve HTTP/WebSocket instead of MCP stdio")
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on with --http (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if memoryFlag != "" {
		cfg.Memory.Path = memoryFlag
	}

	if !httpFlag {
		m, err := server.NewMCPServer(cfg)
		if err != nil {
			return err
		}
		return m.ServeStdio()
	}

	// Open storage
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	// Determine port
	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	// Create and start server
	srv, err := server.New(cfg, store)
	if err != nil {
		return err
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
	}()

	return srv.Start(port)
}
