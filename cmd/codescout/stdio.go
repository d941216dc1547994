package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/codescout/codescout/internal/config"
	"github.com/codescout/codescout/internal/log"
	"github.com/codescout/codescout/internal/mcp"
)

func stdioCmd() *cobra.Command {
	var (
		envFile    string
		persistDir string
	)

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This lets AI assistants index and search local repositories.
Configuration is loaded from environment variables and a .env file;
logs go to stderr so stdout carries only protocol traffic.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(envFile, persistDir)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&persistDir, "persist-dir", "", "Directory for index storage (default ~/.codescout)")

	return cmd
}

func runStdio(envFile, persistDir string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = cfg.Apply(config.WithPersistDir(persistDir))

	if err := cfg.EnsurePersistDir(); err != nil {
		return fmt.Errorf("prepare persist directory: %w", err)
	}

	logger := log.Configure(cfg)
	logger.Info("starting MCP server",
		slog.String("version", version),
		slog.String("persist_dir", cfg.PersistDir()),
	)

	ops := buildOperations(cfg, logger)
	server := mcp.NewServer(ops, cfg.PersistDir(), embeddingConfig(cfg, "", ""), cfg.Vector(), version, logger)

	return server.ServeStdio()
}
