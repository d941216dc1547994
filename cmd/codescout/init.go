package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/codescout/codescout/domain/vector"
	"github.com/codescout/codescout/internal/config"
	"github.com/codescout/codescout/internal/log"
)

func initCmd() *cobra.Command {
	var (
		envFile    string
		persistDir string
		model      string
		baseURL    string
		device     string
		metric     string
		searchMode string
		sampleRate float64
		maxVRAMMB  int
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Build a semantic search index for a git repository",
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

			vectorCfg := cfg.Vector()
			if device != "" {
				vectorCfg.Device = device
			}
			if metric != "" {
				vectorCfg.Metric = vector.Metric(metric)
			}
			if searchMode != "" {
				vectorCfg.SearchMode = vector.SearchMode(searchMode)
			}
			if cmd.Flags().Changed("sample-rate") {
				vectorCfg.Approx.SampleRate = sampleRate
			}
			if cmd.Flags().Changed("max-vram-mb") {
				vectorCfg.MaxVRAMMB = maxVRAMMB
			}

			ops := buildOperations(cfg, logger)
			ctx := log.WithNewCorrelationID(cmd.Context())

			summary, err := ops.Init(ctx, repoPath, cfg.PersistDir(), embeddingConfig(cfg, model, baseURL), vectorCfg)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "index built",
				slog.String("repo", summary.RepoRoot),
				slog.String("index_dir", summary.IndexDir),
			)
			fmt.Printf("Indexed %d files (%d chunks) from %s\n",
				summary.FilesIndexed, summary.ChunksIndexed, summary.RepoRoot)
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&persistDir, "persist-dir", "", "Directory for index storage (default ~/.codescout)")
	cmd.Flags().StringVar(&model, "model", "", "Embedding model identifier")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "OpenAI-compatible API base URL")
	cmd.Flags().StringVar(&device, "device", "", "Compute device preference: auto, cuda, mps, or cpu")
	cmd.Flags().StringVar(&metric, "metric", "", "Similarity metric: ip or l2")
	cmd.Flags().StringVar(&searchMode, "search-mode", "", "Search mode: exact or approx")
	cmd.Flags().Float64Var(&sampleRate, "sample-rate", 1.0, "Approximate search sampling rate in (0, 1]")
	cmd.Flags().IntVar(&maxVRAMMB, "max-vram-mb", 0, "Search working-memory cap in MiB (0 = unbounded)")

	return cmd
}
