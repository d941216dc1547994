// Package index defines the per-repository index model shared by the
// indexer, the operations layer, and the front ends.
package index

import (
	"errors"

	"github.com/codescout/codescout/domain/vector"
	"github.com/codescout/codescout/infrastructure/chunking"
)

// SchemaVersion identifies the on-disk config layout.
const SchemaVersion = 1

// Sentinel errors for the indexing boundary.
var (
	// ErrNotGitRepo indicates the target path is not inside a git worktree.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrNotInitialized indicates no index exists yet for the repository.
	ErrNotInitialized = errors.New("repository index not initialized")
)

// EmbeddingConfig identifies the OpenAI-compatible embedding endpoint used
// to build and query an index.
type EmbeddingConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`

	// APIKey is resolved from the environment at run time and never
	// written to disk.
	APIKey string `json:"-"`
}

// ChunkingConfig records the chunking parameters an index was built with.
type ChunkingConfig struct {
	ChunkLines   int `json:"chunk_lines"`
	OverlapLines int `json:"overlap_lines"`
}

// Params converts the stored config to chunker parameters.
func (c ChunkingConfig) Params() chunking.Params {
	return chunking.Params{ChunkLines: c.ChunkLines, OverlapLines: c.OverlapLines}
}

// DefaultChunkingConfig returns the default chunking configuration.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkLines:   chunking.DefaultChunkLines,
		OverlapLines: chunking.DefaultOverlapLines,
	}
}

// FileMeta is the indexed state of one tracked file, used to detect
// changes between incremental updates.
type FileMeta struct {
	Hash      string `json:"hash"`
	LineCount int    `json:"line_count"`
}

// RepoConfig is the persisted state of one repository's index.
type RepoConfig struct {
	Version           int                 `json:"version"`
	RepoRoot          string              `json:"repo_root"`
	RepoHash          string              `json:"repo_hash"`
	IndexDir          string              `json:"index_dir"`
	Embedding         EmbeddingConfig     `json:"embedding"`
	Chunking          ChunkingConfig      `json:"chunking"`
	Vector            vector.Config       `json:"vector"`
	Files             map[string]FileMeta `json:"files"`
	ChunksIndexed     int                 `json:"chunks_indexed"`
	LastIndexedAt     string              `json:"last_indexed_at"`
	LastIndexedCommit string              `json:"last_indexed_commit"`
}

// ServerConfig is the persist-directory level marker written once when a
// persist directory is first used.
type ServerConfig struct {
	Version    int    `json:"version"`
	PersistDir string `json:"persist_dir"`
	CreatedAt  string `json:"created_at"`
}

// Summary reports the outcome of a full index build.
type Summary struct {
	RepoRoot      string `json:"repo_root"`
	RepoHash      string `json:"repo_hash"`
	IndexDir      string `json:"index_dir"`
	ConfigPath    string `json:"config_path"`
	FilesIndexed  int    `json:"files_indexed"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

// IncrementalSummary reports the outcome of an incremental update.
type IncrementalSummary struct {
	Summary
	FilesRemoved int `json:"files_removed"`
}

// Plan describes what an incremental update will touch: files to re-embed,
// files to remove from the index, and binaries never indexed at all.
type Plan struct {
	NewOrChanged  []string
	Removed       []string
	SkippedBinary []string
}

// Empty reports whether the plan requires no index mutation.
func (p Plan) Empty() bool {
	return len(p.NewOrChanged) == 0 && len(p.Removed) == 0
}
