package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codescout/codescout/application/service"
	"github.com/codescout/codescout/domain/vector"
	"github.com/codescout/codescout/internal/config"
	"github.com/codescout/codescout/internal/log"
)

func searchCmd() *cobra.Command {
	var (
		envFile    string
		persistDir string
		repoPath   string
		topK       int
		noRefresh  bool
		device     string
		metric     string
		searchMode string
		sampleRate float64
		maxVRAMMB  int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantically search an indexed repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			cfg = cfg.Apply(config.WithPersistDir(persistDir))
			logger := log.Configure(cfg)

			var opts []vector.SearchOption
			if device != "" {
				opts = append(opts, vector.WithDevice(device))
			}
			if metric != "" {
				opts = append(opts, vector.WithMetric(vector.Metric(metric)))
			}
			if searchMode != "" {
				opts = append(opts, vector.WithSearchMode(vector.SearchMode(searchMode)))
			}
			if cmd.Flags().Changed("sample-rate") {
				opts = append(opts, vector.WithSampleRate(sampleRate))
			}
			if cmd.Flags().Changed("max-vram-mb") {
				opts = append(opts, vector.WithMaxVRAMMB(maxVRAMMB))
			}

			ops := buildOperations(cfg, logger)
			ctx := log.WithNewCorrelationID(cmd.Context())

			report, err := ops.Search(ctx, repoPath, cfg.PersistDir(), service.SearchParams{
				Query:       args[0],
				TopK:        topK,
				SkipRefresh: noRefresh,
				Options:     opts,
			})
			if err != nil {
				return err
			}

			if len(report.Results) == 0 {
				fmt.Println("No results.")
				return nil
			}
			for _, r := range report.Results {
				fmt.Printf("%s:%d-%d  score=%.4f\n", r.Path, r.LineStart, r.LineEnd, r.Score)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&persistDir, "persist-dir", "", "Directory for index storage (default ~/.codescout)")
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the git repository")
	cmd.Flags().IntVar(&topK, "top-k", service.DefaultTopK, "Number of results to return")
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "Skip the incremental refresh before searching")
	cmd.Flags().StringVar(&device, "device", "", "Per-call compute device override")
	cmd.Flags().StringVar(&metric, "metric", "", "Per-call similarity metric override")
	cmd.Flags().StringVar(&searchMode, "search-mode", "", "Per-call search mode override")
	cmd.Flags().Float64Var(&sampleRate, "sample-rate", 1.0, "Per-call sampling rate override")
	cmd.Flags().IntVar(&maxVRAMMB, "max-vram-mb", 0, "Per-call working-memory cap override")

	return cmd
}
