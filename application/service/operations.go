package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codescout/codescout/domain/index"
	"github.com/codescout/codescout/domain/vector"
	"github.com/codescout/codescout/infrastructure/persistence"
)

// DefaultTopK is the number of search hits returned when the caller does
// not ask for a specific count.
const DefaultTopK = 10

// StatusReport describes an indexed repository.
type StatusReport struct {
	RepoRoot          string                `json:"repo_root"`
	RepoHash          string                `json:"repo_hash"`
	IndexDir          string                `json:"index_dir"`
	ConfigPath        string                `json:"config_path"`
	FilesIndexed      int                   `json:"files_indexed"`
	ChunksIndexed     int                   `json:"chunks_indexed"`
	Embedding         index.EmbeddingConfig `json:"embedding"`
	Chunking          index.ChunkingConfig  `json:"chunking"`
	Vector            vector.Config         `json:"vector"`
	LastIndexedAt     string                `json:"last_indexed_at,omitempty"`
	LastIndexedCommit string                `json:"last_indexed_commit,omitempty"`
}

// SearchParams carries one search request.
type SearchParams struct {
	// Query is the natural-language query to embed and match.
	Query string
	// TopK caps the number of hits; zero means DefaultTopK.
	TopK int
	// SkipRefresh skips the incremental refresh that otherwise runs
	// before the search so results reflect the current worktree.
	SkipRefresh bool
	// Options override the stored search configuration for this call
	// only, e.g. vector.WithMetric or vector.WithSampleRate.
	Options []vector.SearchOption
}

// SearchReport is the result of one search request.
type SearchReport struct {
	Query   string          `json:"query"`
	Results []vector.Result `json:"results"`
}

// Operations exposes the user-facing operations on repository indexes.
// Every method takes the repository path and persist directory explicitly;
// nothing is held in process-global state.
type Operations struct {
	indexer     *Indexer
	git         GitClient
	openStore   StoreOpener
	newEmbedder EmbedderFactory
	logger      *slog.Logger
}

// NewOperations creates an Operations service on top of an Indexer.
func NewOperations(indexer *Indexer, git GitClient, openStore StoreOpener, newEmbedder EmbedderFactory, logger *slog.Logger) *Operations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Operations{
		indexer:     indexer,
		git:         git,
		openStore:   openStore,
		newEmbedder: newEmbedder,
		logger:      logger,
	}
}

// Init builds a repository index from scratch.
func (o *Operations) Init(ctx context.Context, repoPath, persistDir string, embedding index.EmbeddingConfig, vectorCfg vector.Config) (index.Summary, error) {
	_, summary, err := o.indexer.Build(ctx, repoPath, persistDir, embedding, vectorCfg)
	return summary, err
}

// Update rebuilds a repository index, keeping the embedding endpoint and
// vector configuration recorded at init time.
func (o *Operations) Update(ctx context.Context, repoPath, persistDir string) (index.Summary, error) {
	cfg, err := o.loadConfig(ctx, repoPath, persistDir)
	if err != nil {
		return index.Summary{}, err
	}
	_, summary, err := o.indexer.Build(ctx, repoPath, persistDir, cfg.Embedding, cfg.Vector)
	return summary, err
}

// Status reports what is currently indexed for a repository.
func (o *Operations) Status(ctx context.Context, repoPath, persistDir string) (StatusReport, error) {
	cfg, err := o.loadConfig(ctx, repoPath, persistDir)
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		RepoRoot:          cfg.RepoRoot,
		RepoHash:          cfg.RepoHash,
		IndexDir:          cfg.IndexDir,
		ConfigPath:        persistence.RepoConfigPath(cfg.IndexDir),
		FilesIndexed:      len(cfg.Files),
		ChunksIndexed:     cfg.ChunksIndexed,
		Embedding:         cfg.Embedding,
		Chunking:          cfg.Chunking,
		Vector:            cfg.Vector,
		LastIndexedAt:     cfg.LastIndexedAt,
		LastIndexedCommit: cfg.LastIndexedCommit,
	}, nil
}

// Search runs a semantic search over a repository's index. Unless the
// caller opts out, the index is refreshed first so results reflect the
// worktree as it is on disk.
func (o *Operations) Search(ctx context.Context, repoPath, persistDir string, params SearchParams) (SearchReport, error) {
	if params.Query == "" {
		return SearchReport{}, fmt.Errorf("%w: query must not be empty", vector.ErrInvalidConfig)
	}
	topK := params.TopK
	if topK == 0 {
		topK = DefaultTopK
	}

	var cfg index.RepoConfig
	var err error
	if params.SkipRefresh {
		cfg, err = o.loadConfig(ctx, repoPath, persistDir)
	} else {
		cfg, _, err = o.indexer.Refresh(ctx, repoPath, persistDir)
	}
	if err != nil {
		return SearchReport{}, err
	}

	query, err := o.newEmbedder(cfg.Embedding).EmbedText(ctx, params.Query)
	if err != nil {
		return SearchReport{}, err
	}

	store, err := o.openStore(cfg.IndexDir, cfg.Vector)
	if err != nil {
		return SearchReport{}, err
	}
	results, err := store.Search(ctx, query, topK, params.Options...)
	if err != nil {
		return SearchReport{}, err
	}

	o.logger.DebugContext(ctx, "search complete",
		slog.String("repo", cfg.RepoRoot),
		slog.Int("hits", len(results)),
	)
	return SearchReport{Query: params.Query, Results: results}, nil
}

// loadConfig resolves a repository path and loads its index config,
// failing with ErrNotGitRepo or ErrNotInitialized as appropriate.
func (o *Operations) loadConfig(ctx context.Context, repoPath, persistDir string) (index.RepoConfig, error) {
	if !o.git.IsRepo(ctx, repoPath) {
		return index.RepoConfig{}, fmt.Errorf("%w: %s", index.ErrNotGitRepo, repoPath)
	}
	repoRoot, err := o.git.Root(ctx, repoPath)
	if err != nil {
		return index.RepoConfig{}, err
	}
	repoRoot = persistence.NormalizeRepoPath(repoRoot)
	indexDir := persistence.IndexDir(persistDir, persistence.HashRepoPath(repoRoot))
	return persistence.LoadRepoConfig(indexDir)
}
