package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codescout/codescout/internal/config"
	"github.com/codescout/codescout/internal/log"
)

func updateCmd() *cobra.Command {
	var (
		envFile    string
		persistDir string
	)

	cmd := &cobra.Command{
		Use:   "update [path]",
		Short: "Rebuild a repository's index from scratch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath := "."
			if len(args) > 0 {
				repoPath = args[0]
			}

			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			cfg = cfg.Apply(config.WithPersistDir(persistDir))
			logger := log.Configure(cfg)

			ops := buildOperations(cfg, logger)
			ctx := log.WithNewCorrelationID(cmd.Context())

			summary, err := ops.Update(ctx, repoPath, cfg.PersistDir())
			if err != nil {
				return err
			}

			fmt.Printf("Reindexed %d files (%d chunks) from %s\n",
				summary.FilesIndexed, summary.ChunksIndexed, summary.RepoRoot)
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&persistDir, "persist-dir", "", "Directory for index storage (default ~/.codescout)")

	return cmd
}
