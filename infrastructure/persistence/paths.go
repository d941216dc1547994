// Package persistence stores per-repository index configuration as JSON
// files under the persist directory. Each repository's index lives in a
// subdirectory named by the SHA-256 of its normalized worktree root.
package persistence

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const (
	repoConfigFileName   = "config.json"
	serverConfigFileName = "server.json"
)

// NormalizeRepoPath resolves a repository path to a stable absolute form so
// the same worktree always maps to the same index directory.
func NormalizeRepoPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs)
}

// HashRepoPath returns the hex SHA-256 of the normalized repository path.
func HashRepoPath(path string) string {
	sum := sha256.Sum256([]byte(NormalizeRepoPath(path)))
	return hex.EncodeToString(sum[:])
}

// IndexDir returns the index directory for a repository hash.
func IndexDir(persistDir, repoHash string) string {
	return filepath.Join(persistDir, repoHash)
}

// RepoConfigPath returns the config file path inside an index directory.
func RepoConfigPath(indexDir string) string {
	return filepath.Join(indexDir, repoConfigFileName)
}

// ServerConfigPath returns the persist-directory marker file path.
func ServerConfigPath(persistDir string) string {
	return filepath.Join(persistDir, serverConfigFileName)
}
