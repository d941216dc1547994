package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescout/codescout/domain/index"
	"github.com/codescout/codescout/domain/vector"
	"github.com/codescout/codescout/infrastructure/persistence"
	"github.com/codescout/codescout/infrastructure/scan"
	"github.com/codescout/codescout/infrastructure/vectorstore"
)

// stubGit serves a fixed worktree without shelling out to git.
type stubGit struct {
	root    string
	tracked []string
	head    string
	isRepo  bool
}

func (g *stubGit) IsRepo(ctx context.Context, path string) bool { return g.isRepo }

func (g *stubGit) Root(ctx context.Context, path string) (string, error) { return g.root, nil }

func (g *stubGit) TrackedFiles(ctx context.Context, repoRoot string) ([]string, error) {
	return g.tracked, nil
}

func (g *stubGit) HeadCommit(ctx context.Context, repoRoot string) (string, error) {
	return g.head, nil
}

// stubEmbedder derives a deterministic unit vector from each text, so
// identical texts match exactly under inner product.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = textVector(text)
	}
	return out, nil
}

func (e *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func textVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, 4)
	var norm float64
	for i := range v {
		bits := binary.LittleEndian.Uint32(sum[i*4:])
		v[i] = float32(bits%1000) + 1
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func openTestStore(indexDir string, cfg vector.Config) (VectorStore, error) {
	return vectorstore.New(indexDir, cfg)
}

func testVectorConfig() vector.Config {
	cfg := vector.DefaultConfig()
	cfg.Device = "cpu"
	return cfg
}

func writeRepoFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestIndexer(git GitClient, embedder Embedder) *Indexer {
	return NewIndexer(git, openTestStore, func(index.EmbeddingConfig) Embedder { return embedder })
}

func TestComputePlan(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "unchanged.go", "package a\n")
	writeRepoFile(t, root, "changed.go", "package b // v2\n")
	writeRepoFile(t, root, "new.go", "package c\n")
	writeRepoFile(t, root, "image.bin", "\x00\x01\x02binary")
	writeRepoFile(t, root, "turned.bin", "\x00was text once")

	unchangedHash := fileHash(t, filepath.Join(root, "unchanged.go"))
	cfg := index.RepoConfig{Files: map[string]index.FileMeta{
		"unchanged.go": {Hash: unchangedHash},
		"changed.go":   {Hash: "stale"},
		"gone.go":      {Hash: "whatever"},
		"turned.bin":   {Hash: "text-hash"},
	}}

	tracked := []string{"unchanged.go", "changed.go", "new.go", "image.bin", "turned.bin"}
	plan, err := ComputePlan(root, tracked, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"changed.go", "new.go"}, plan.NewOrChanged)
	assert.Equal(t, []string{"gone.go", "turned.bin"}, plan.Removed)
	assert.Equal(t, []string{"image.bin"}, plan.SkippedBinary)
	assert.False(t, plan.Empty())
}

func TestComputePlan_UpToDate(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "main.go", "package main\n")

	cfg := index.RepoConfig{Files: map[string]index.FileMeta{
		"main.go": {Hash: fileHash(t, filepath.Join(root, "main.go"))},
	}}
	plan, err := ComputePlan(root, []string{"main.go"}, cfg)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestIndexer_Build(t *testing.T) {
	root := t.TempDir()
	persistDir := t.TempDir()
	writeRepoFile(t, root, "a.go", "package a\n")
	writeRepoFile(t, root, "b.go", "package b\n")
	writeRepoFile(t, root, "blob.bin", "\x00\x01\x02")

	git := &stubGit{root: root, tracked: []string{"a.go", "b.go", "blob.bin"}, head: "abc123", isRepo: true}
	indexer := newTestIndexer(git, &stubEmbedder{})

	cfg, summary, err := indexer.Build(context.Background(), root, persistDir, index.EmbeddingConfig{Model: "test"}, testVectorConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.FilesIndexed)
	assert.Equal(t, 2, summary.ChunksIndexed)
	assert.Equal(t, "abc123", cfg.LastIndexedCommit)
	assert.NotEmpty(t, cfg.LastIndexedAt)
	assert.Contains(t, cfg.Files, "a.go")
	assert.Contains(t, cfg.Files, "b.go")
	assert.NotContains(t, cfg.Files, "blob.bin")

	loaded, err := persistence.LoadRepoConfig(cfg.IndexDir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	server, err := persistence.LoadServerConfig(persistDir)
	require.NoError(t, err)
	require.NotNil(t, server)
}

func TestIndexer_BuildNotGitRepo(t *testing.T) {
	git := &stubGit{isRepo: false}
	indexer := newTestIndexer(git, &stubEmbedder{})

	_, _, err := indexer.Build(context.Background(), "/nowhere", t.TempDir(), index.EmbeddingConfig{}, testVectorConfig())
	assert.ErrorIs(t, err, index.ErrNotGitRepo)
}

func TestIndexer_BuildBatching(t *testing.T) {
	root := t.TempDir()
	tracked := make([]string, 0, 5)
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go", "e.go"} {
		writeRepoFile(t, root, name, "package "+name+"\n")
		tracked = append(tracked, name)
	}

	git := &stubGit{root: root, tracked: tracked, isRepo: true}
	embedder := &stubEmbedder{}
	indexer := NewIndexer(git, openTestStore,
		func(index.EmbeddingConfig) Embedder { return embedder },
		WithBatchSize(2), WithParallelism(2))

	_, summary, err := indexer.Build(context.Background(), root, t.TempDir(), index.EmbeddingConfig{}, testVectorConfig())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.ChunksIndexed)
	// 5 chunks in batches of 2 make 3 embedding calls.
	assert.Equal(t, 3, embedder.calls)
}

func TestIndexer_Refresh(t *testing.T) {
	root := t.TempDir()
	persistDir := t.TempDir()
	writeRepoFile(t, root, "keep.go", "package keep\n")
	writeRepoFile(t, root, "edit.go", "package edit\n")
	writeRepoFile(t, root, "drop.go", "package drop\n")

	git := &stubGit{root: root, tracked: []string{"keep.go", "edit.go", "drop.go"}, head: "c1", isRepo: true}
	indexer := newTestIndexer(git, &stubEmbedder{})
	_, _, err := indexer.Build(context.Background(), root, persistDir, index.EmbeddingConfig{}, testVectorConfig())
	require.NoError(t, err)

	writeRepoFile(t, root, "edit.go", "package edit // v2\n")
	writeRepoFile(t, root, "add.go", "package add\n")
	require.NoError(t, os.Remove(filepath.Join(root, "drop.go")))
	git.tracked = []string{"keep.go", "edit.go", "add.go"}
	git.head = "c2"

	cfg, summary, err := indexer.Refresh(context.Background(), root, persistDir)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.FilesIndexed)
	assert.Equal(t, 1, summary.FilesRemoved)
	assert.Equal(t, "c2", cfg.LastIndexedCommit)
	assert.Contains(t, cfg.Files, "add.go")
	assert.NotContains(t, cfg.Files, "drop.go")

	store, err := openTestStore(cfg.IndexDir, cfg.Vector)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())
}

func TestIndexer_RefreshNotInitialized(t *testing.T) {
	root := t.TempDir()
	git := &stubGit{root: root, tracked: nil, isRepo: true}
	indexer := newTestIndexer(git, &stubEmbedder{})

	_, _, err := indexer.Refresh(context.Background(), root, t.TempDir())
	assert.ErrorIs(t, err, index.ErrNotInitialized)
}

func TestOperations_StatusAndSearch(t *testing.T) {
	root := t.TempDir()
	persistDir := t.TempDir()
	writeRepoFile(t, root, "auth.go", "package auth\n")
	writeRepoFile(t, root, "db.go", "package db\n")

	git := &stubGit{root: root, tracked: []string{"auth.go", "db.go"}, head: "h1", isRepo: true}
	embedder := &stubEmbedder{}
	indexer := newTestIndexer(git, embedder)
	ops := NewOperations(indexer, git, openTestStore, func(index.EmbeddingConfig) Embedder { return embedder }, nil)

	_, err := ops.Init(context.Background(), root, persistDir, index.EmbeddingConfig{Model: "test"}, testVectorConfig())
	require.NoError(t, err)

	status, err := ops.Status(context.Background(), root, persistDir)
	require.NoError(t, err)
	assert.Equal(t, 2, status.FilesIndexed)
	assert.Equal(t, 2, status.ChunksIndexed)
	assert.Equal(t, "test", status.Embedding.Model)
	assert.Equal(t, "h1", status.LastIndexedCommit)

	// Query equal to a file's content embeds to the same unit vector,
	// so that file must rank first under inner product.
	report, err := ops.Search(context.Background(), root, persistDir, SearchParams{
		Query: "package auth\n",
		TopK:  1,
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "auth.go", report.Results[0].Path)
}

func TestOperations_SearchRefreshesFirst(t *testing.T) {
	root := t.TempDir()
	persistDir := t.TempDir()
	writeRepoFile(t, root, "old.go", "package old\n")

	git := &stubGit{root: root, tracked: []string{"old.go"}, isRepo: true}
	embedder := &stubEmbedder{}
	indexer := newTestIndexer(git, embedder)
	ops := NewOperations(indexer, git, openTestStore, func(index.EmbeddingConfig) Embedder { return embedder }, nil)

	_, err := ops.Init(context.Background(), root, persistDir, index.EmbeddingConfig{}, testVectorConfig())
	require.NoError(t, err)

	writeRepoFile(t, root, "fresh.go", "package fresh\n")
	git.tracked = []string{"old.go", "fresh.go"}

	// With the refresh skipped the new file stays invisible.
	report, err := ops.Search(context.Background(), root, persistDir, SearchParams{
		Query:       "package fresh\n",
		TopK:        5,
		SkipRefresh: true,
	})
	require.NoError(t, err)
	for _, r := range report.Results {
		assert.NotEqual(t, "fresh.go", r.Path)
	}

	// The default search refreshes first and picks it up.
	report, err = ops.Search(context.Background(), root, persistDir, SearchParams{
		Query: "package fresh\n",
		TopK:  1,
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "fresh.go", report.Results[0].Path)
}

func TestOperations_SearchEmptyQuery(t *testing.T) {
	git := &stubGit{isRepo: true}
	embedder := &stubEmbedder{}
	ops := NewOperations(newTestIndexer(git, embedder), git, openTestStore, func(index.EmbeddingConfig) Embedder { return embedder }, nil)

	_, err := ops.Search(context.Background(), t.TempDir(), t.TempDir(), SearchParams{Query: ""})
	assert.ErrorIs(t, err, vector.ErrInvalidConfig)
}

func TestOperations_Update(t *testing.T) {
	root := t.TempDir()
	persistDir := t.TempDir()
	writeRepoFile(t, root, "one.go", "package one\n")

	git := &stubGit{root: root, tracked: []string{"one.go"}, isRepo: true}
	embedder := &stubEmbedder{}
	indexer := newTestIndexer(git, embedder)
	ops := NewOperations(indexer, git, openTestStore, func(index.EmbeddingConfig) Embedder { return embedder }, nil)

	_, err := ops.Init(context.Background(), root, persistDir, index.EmbeddingConfig{Model: "kept"}, testVectorConfig())
	require.NoError(t, err)

	writeRepoFile(t, root, "two.go", "package two\n")
	git.tracked = []string{"one.go", "two.go"}

	summary, err := ops.Update(context.Background(), root, persistDir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FilesIndexed)

	status, err := ops.Status(context.Background(), root, persistDir)
	require.NoError(t, err)
	// Update keeps the embedding endpoint chosen at init time.
	assert.Equal(t, "kept", status.Embedding.Model)
}

func TestOperations_StatusNotGitRepo(t *testing.T) {
	git := &stubGit{isRepo: false}
	embedder := &stubEmbedder{}
	ops := NewOperations(newTestIndexer(git, embedder), git, openTestStore, func(index.EmbeddingConfig) Embedder { return embedder }, nil)

	_, err := ops.Status(context.Background(), "/nowhere", t.TempDir())
	assert.ErrorIs(t, err, index.ErrNotGitRepo)
}

func fileHash(t *testing.T, path string) string {
	t.Helper()
	hash, err := scan.HashFile(path)
	require.NoError(t, err)
	return hash
}
