package main

import (
	"log/slog"

	"github.com/codescout/codescout/application/service"
	"github.com/codescout/codescout/domain/index"
	"github.com/codescout/codescout/domain/vector"
	"github.com/codescout/codescout/infrastructure/git"
	"github.com/codescout/codescout/infrastructure/provider"
	"github.com/codescout/codescout/infrastructure/vectorstore"
	"github.com/codescout/codescout/internal/config"
)

// buildOperations wires the git client, vector store, and embedding
// provider into the operations service.
func buildOperations(cfg config.AppConfig, logger *slog.Logger) *service.Operations {
	gitClient := git.NewClient(logger)

	openStore := func(indexDir string, vectorCfg vector.Config) (service.VectorStore, error) {
		return vectorstore.New(indexDir, vectorCfg, vectorstore.WithLogger(logger))
	}

	// The stored config names the endpoint and model an index was built
	// with; credentials and retry behaviour come from the environment.
	endpoint := cfg.Embedding()
	newEmbedder := func(embedding index.EmbeddingConfig) service.Embedder {
		baseURL := embedding.BaseURL
		if baseURL == "" {
			baseURL = endpoint.BaseURL()
		}
		apiKey := embedding.APIKey
		if apiKey == "" {
			apiKey = endpoint.APIKey()
		}
		return provider.NewOpenAIEmbedder(provider.OpenAIConfig{
			APIKey:        apiKey,
			BaseURL:       baseURL,
			Model:         embedding.Model,
			Timeout:       endpoint.Timeout(),
			MaxRetries:    endpoint.MaxRetries(),
			InitialDelay:  endpoint.InitialDelay(),
			BackoffFactor: endpoint.BackoffFactor(),
		})
	}

	indexer := service.NewIndexer(gitClient, openStore, newEmbedder,
		service.WithBatchSize(cfg.BatchSize()),
		service.WithParallelism(cfg.Parallelism()),
		service.WithLogger(logger),
	)
	return service.NewOperations(indexer, gitClient, openStore, newEmbedder, logger)
}

// embeddingConfig builds the endpoint identity recorded in a new index.
func embeddingConfig(cfg config.AppConfig, model, baseURL string) index.EmbeddingConfig {
	endpoint := cfg.Embedding()
	if model == "" {
		model = endpoint.Model()
	}
	if model == "" {
		model = provider.DefaultEmbeddingModel
	}
	if baseURL == "" {
		baseURL = endpoint.BaseURL()
	}
	return index.EmbeddingConfig{
		BaseURL: baseURL,
		Model:   model,
		APIKey:  endpoint.APIKey(),
	}
}
