// Package service orchestrates indexing and search across the git
// worktree, the embedding provider, and the vector store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/codescout/codescout/domain/index"
	"github.com/codescout/codescout/domain/vector"
	"github.com/codescout/codescout/infrastructure/chunking"
	"github.com/codescout/codescout/infrastructure/persistence"
	"github.com/codescout/codescout/infrastructure/scan"
)

// Default indexing parameters.
const (
	DefaultBatchSize   = 64
	DefaultParallelism = 1
)

// Embedder converts texts into embedding vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the subset of the vector store the services drive.
type VectorStore interface {
	Insert(ctx context.Context, entries []vector.Entry) (int, error)
	Search(ctx context.Context, query []float32, topK int, opts ...vector.SearchOption) ([]vector.Result, error)
	DeleteByPaths(ctx context.Context, paths []string) (int, error)
	Drop(ctx context.Context) error
	Len() int
}

// GitClient enumerates local repositories.
type GitClient interface {
	IsRepo(ctx context.Context, path string) bool
	Root(ctx context.Context, path string) (string, error)
	TrackedFiles(ctx context.Context, repoRoot string) ([]string, error)
	HeadCommit(ctx context.Context, repoRoot string) (string, error)
}

// StoreOpener opens the vector store rooted at an index directory.
type StoreOpener func(indexDir string, cfg vector.Config) (VectorStore, error)

// EmbedderFactory builds an embedder for an embedding endpoint config.
type EmbedderFactory func(cfg index.EmbeddingConfig) Embedder

// Indexer builds and refreshes repository indexes.
type Indexer struct {
	git         GitClient
	openStore   StoreOpener
	newEmbedder EmbedderFactory
	batchSize   int
	parallelism int
	logger      *slog.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithBatchSize sets how many chunks are embedded per API call.
func WithBatchSize(n int) IndexerOption {
	return func(i *Indexer) { i.batchSize = n }
}

// WithParallelism bounds how many embedding batches are in flight at once.
func WithParallelism(n int) IndexerOption {
	return func(i *Indexer) { i.parallelism = n }
}

// WithLogger sets the indexer's logger.
func WithLogger(logger *slog.Logger) IndexerOption {
	return func(i *Indexer) { i.logger = logger }
}

// NewIndexer creates an Indexer.
func NewIndexer(git GitClient, openStore StoreOpener, newEmbedder EmbedderFactory, opts ...IndexerOption) *Indexer {
	i := &Indexer{
		git:         git,
		openStore:   openStore,
		newEmbedder: newEmbedder,
		batchSize:   DefaultBatchSize,
		parallelism: DefaultParallelism,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// pendingChunk is a chunk waiting for its embedding.
type pendingChunk struct {
	record vector.Record
	text   string
}

// Build creates or rebuilds a repository's index from scratch: any
// existing vectors are dropped, every tracked text file is chunked and
// embedded, and the repo config is written last.
func (i *Indexer) Build(ctx context.Context, repoPath, persistDir string, embedding index.EmbeddingConfig, vectorCfg vector.Config) (index.RepoConfig, index.Summary, error) {
	repoRoot, repoHash, indexDir, err := i.locate(ctx, repoPath, persistDir)
	if err != nil {
		return index.RepoConfig{}, index.Summary{}, err
	}

	if _, err := persistence.EnsureServerConfig(persistDir); err != nil {
		return index.RepoConfig{}, index.Summary{}, err
	}

	cfg := index.RepoConfig{
		Version:   index.SchemaVersion,
		RepoRoot:  repoRoot,
		RepoHash:  repoHash,
		IndexDir:  indexDir,
		Embedding: embedding,
		Chunking:  index.DefaultChunkingConfig(),
		Vector:    vectorCfg,
		Files:     map[string]index.FileMeta{},
	}

	store, err := i.openStore(indexDir, vectorCfg)
	if err != nil {
		return index.RepoConfig{}, index.Summary{}, err
	}
	if err := store.Drop(ctx); err != nil {
		return index.RepoConfig{}, index.Summary{}, err
	}

	tracked, err := i.git.TrackedFiles(ctx, repoRoot)
	if err != nil {
		return index.RepoConfig{}, index.Summary{}, err
	}

	chunks, metas, err := collectChunks(repoRoot, tracked, cfg.Chunking.Params())
	if err != nil {
		return index.RepoConfig{}, index.Summary{}, err
	}

	inserted, err := i.embedAndInsert(ctx, store, i.newEmbedder(embedding), chunks)
	if err != nil {
		return index.RepoConfig{}, index.Summary{}, err
	}

	cfg.Files = metas
	cfg.ChunksIndexed = store.Len()
	cfg.LastIndexedAt = persistence.UTCNow()
	if sha, err := i.git.HeadCommit(ctx, repoRoot); err == nil {
		cfg.LastIndexedCommit = sha
	}

	configPath, err := persistence.SaveRepoConfig(cfg)
	if err != nil {
		return index.RepoConfig{}, index.Summary{}, err
	}

	i.logger.InfoContext(ctx, "built repository index",
		slog.String("repo", repoRoot),
		slog.Int("files", len(metas)),
		slog.Int("chunks", inserted),
	)

	return cfg, index.Summary{
		RepoRoot:      repoRoot,
		RepoHash:      repoHash,
		IndexDir:      indexDir,
		ConfigPath:    configPath,
		FilesIndexed:  len(metas),
		ChunksIndexed: inserted,
	}, nil
}

// Refresh brings an existing index up to date with the worktree: removed
// or changed files have their vectors deleted, and new or changed text
// files are re-chunked and re-embedded.
func (i *Indexer) Refresh(ctx context.Context, repoPath, persistDir string) (index.RepoConfig, index.IncrementalSummary, error) {
	repoRoot, repoHash, indexDir, err := i.locate(ctx, repoPath, persistDir)
	if err != nil {
		return index.RepoConfig{}, index.IncrementalSummary{}, err
	}

	cfg, err := persistence.LoadRepoConfig(indexDir)
	if err != nil {
		return index.RepoConfig{}, index.IncrementalSummary{}, err
	}

	tracked, err := i.git.TrackedFiles(ctx, repoRoot)
	if err != nil {
		return index.RepoConfig{}, index.IncrementalSummary{}, err
	}

	plan, err := ComputePlan(repoRoot, tracked, cfg)
	if err != nil {
		return index.RepoConfig{}, index.IncrementalSummary{}, err
	}

	store, err := i.openStore(indexDir, cfg.Vector)
	if err != nil {
		return index.RepoConfig{}, index.IncrementalSummary{}, err
	}

	// Changed files are deleted and re-inserted rather than updated in
	// place.
	stale := make([]string, 0, len(plan.Removed)+len(plan.NewOrChanged))
	stale = append(stale, plan.Removed...)
	stale = append(stale, plan.NewOrChanged...)
	if len(stale) > 0 {
		if _, err := store.DeleteByPaths(ctx, stale); err != nil {
			return index.RepoConfig{}, index.IncrementalSummary{}, err
		}
		for _, path := range stale {
			delete(cfg.Files, path)
		}
	}

	chunks, metas, err := collectChunks(repoRoot, plan.NewOrChanged, cfg.Chunking.Params())
	if err != nil {
		return index.RepoConfig{}, index.IncrementalSummary{}, err
	}

	inserted, err := i.embedAndInsert(ctx, store, i.newEmbedder(cfg.Embedding), chunks)
	if err != nil {
		return index.RepoConfig{}, index.IncrementalSummary{}, err
	}

	for path, meta := range metas {
		cfg.Files[path] = meta
	}
	cfg.ChunksIndexed = store.Len()
	cfg.LastIndexedAt = persistence.UTCNow()
	if sha, err := i.git.HeadCommit(ctx, repoRoot); err == nil {
		cfg.LastIndexedCommit = sha
	}

	configPath, err := persistence.SaveRepoConfig(cfg)
	if err != nil {
		return index.RepoConfig{}, index.IncrementalSummary{}, err
	}

	i.logger.InfoContext(ctx, "refreshed repository index",
		slog.String("repo", repoRoot),
		slog.Int("files_indexed", len(plan.NewOrChanged)),
		slog.Int("files_removed", len(plan.Removed)),
		slog.Int("chunks", inserted),
	)

	return cfg, index.IncrementalSummary{
		Summary: index.Summary{
			RepoRoot:      repoRoot,
			RepoHash:      repoHash,
			IndexDir:      indexDir,
			ConfigPath:    configPath,
			FilesIndexed:  len(plan.NewOrChanged),
			ChunksIndexed: inserted,
		},
		FilesRemoved: len(plan.Removed),
	}, nil
}

// locate resolves a repository path to its worktree root, repo hash, and
// index directory.
func (i *Indexer) locate(ctx context.Context, repoPath, persistDir string) (repoRoot, repoHash, indexDir string, err error) {
	if !i.git.IsRepo(ctx, repoPath) {
		return "", "", "", fmt.Errorf("%w: %s", index.ErrNotGitRepo, repoPath)
	}
	repoRoot, err = i.git.Root(ctx, repoPath)
	if err != nil {
		return "", "", "", err
	}
	repoRoot = persistence.NormalizeRepoPath(repoRoot)
	repoHash = persistence.HashRepoPath(repoRoot)
	return repoRoot, repoHash, persistence.IndexDir(persistDir, repoHash), nil
}

// ComputePlan compares the tracked worktree files against the previously
// indexed state. Files whose hash changed or that were never indexed are
// re-embedded; files gone from tracking, or that turned binary, are
// removed; binaries never indexed are reported as skipped.
func ComputePlan(repoRoot string, tracked []string, cfg index.RepoConfig) (index.Plan, error) {
	trackedSet := make(map[string]struct{}, len(tracked))
	for _, path := range tracked {
		trackedSet[path] = struct{}{}
	}

	removed := make(map[string]struct{})
	for path := range cfg.Files {
		if _, ok := trackedSet[path]; !ok {
			removed[path] = struct{}{}
		}
	}

	var plan index.Plan
	for _, relPath := range tracked {
		absPath := filepath.Join(repoRoot, relPath)
		info, err := os.Stat(absPath)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		isText, err := scan.IsTextFile(absPath)
		if err != nil {
			return index.Plan{}, err
		}
		if !isText {
			if _, indexed := cfg.Files[relPath]; indexed {
				removed[relPath] = struct{}{}
			} else {
				plan.SkippedBinary = append(plan.SkippedBinary, relPath)
			}
			continue
		}

		hash, err := scan.HashFile(absPath)
		if err != nil {
			return index.Plan{}, err
		}
		previous, ok := cfg.Files[relPath]
		if !ok || previous.Hash != hash {
			plan.NewOrChanged = append(plan.NewOrChanged, relPath)
		}
	}

	plan.Removed = make([]string, 0, len(removed))
	for path := range removed {
		plan.Removed = append(plan.Removed, path)
	}
	sort.Strings(plan.Removed)
	return plan, nil
}

// collectChunks reads, hashes, and chunks the given text files, returning
// the pending chunks in file order plus per-file metadata.
func collectChunks(repoRoot string, relPaths []string, params chunking.Params) ([]pendingChunk, map[string]index.FileMeta, error) {
	var chunks []pendingChunk
	metas := make(map[string]index.FileMeta, len(relPaths))

	for _, relPath := range relPaths {
		absPath := filepath.Join(repoRoot, relPath)
		info, err := os.Stat(absPath)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		isText, err := scan.IsTextFile(absPath)
		if err != nil {
			return nil, nil, err
		}
		if !isText {
			continue
		}

		text, err := scan.ReadTextFile(absPath)
		if err != nil {
			return nil, nil, err
		}
		hash, err := scan.HashFile(absPath)
		if err != nil {
			return nil, nil, err
		}

		fileChunks, err := chunking.Split(text, params)
		if err != nil {
			return nil, nil, err
		}
		if len(fileChunks) == 0 {
			continue
		}

		metas[relPath] = index.FileMeta{Hash: hash, LineCount: scan.CountLines(text)}
		for _, c := range fileChunks {
			chunks = append(chunks, pendingChunk{
				record: vector.Record{
					Path:      relPath,
					LineStart: c.LineStart,
					LineEnd:   c.LineEnd,
					FileHash:  hash,
				},
				text: c.Text,
			})
		}
	}
	return chunks, metas, nil
}

// embedAndInsert embeds chunks in batches, bounded by the configured
// parallelism, and inserts all entries through a single store call so the
// store persists once. Entry order matches chunk order regardless of how
// batches complete.
func (i *Indexer) embedAndInsert(ctx context.Context, store VectorStore, embedder Embedder, chunks []pendingChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	batches := make([][]pendingChunk, 0, (len(chunks)+i.batchSize-1)/i.batchSize)
	for start := 0; start < len(chunks); start += i.batchSize {
		batches = append(batches, chunks[start:min(start+i.batchSize, len(chunks))])
	}

	embedded := make([][][]float32, len(batches))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(i.parallelism, 1))
	for bi, batch := range batches {
		group.Go(func() error {
			texts := make([]string, len(batch))
			for ti, c := range batch {
				texts[ti] = c.text
			}
			vectors, err := embedder.EmbedTexts(groupCtx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
			}
			embedded[bi] = vectors
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}

	entries := make([]vector.Entry, 0, len(chunks))
	for bi, batch := range batches {
		for ci, c := range batch {
			entries = append(entries, vector.Entry{Record: c.record, Embedding: embedded[bi][ci]})
		}
	}
	return store.Insert(ctx, entries)
}
