package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codescout/codescout/internal/config"
	"github.com/codescout/codescout/internal/log"
)

func statusCmd() *cobra.Command {
	var (
		envFile    string
		persistDir string
	)

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Report what is indexed for a repository",
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
			report, err := ops.Status(cmd.Context(), repoPath, cfg.PersistDir())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&persistDir, "persist-dir", "", "Directory for index storage (default ~/.codescout)")

	return cmd
}
