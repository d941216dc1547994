package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/codescout/codescout/domain/index"
)

// LoadRepoConfig reads a repository's index config. A missing file means
// the repository was never initialized.
func LoadRepoConfig(indexDir string) (index.RepoConfig, error) {
	path := RepoConfigPath(indexDir)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return index.RepoConfig{}, fmt.Errorf("%w: %s", index.ErrNotInitialized, indexDir)
	}
	if err != nil {
		return index.RepoConfig{}, fmt.Errorf("read repo config: %w", err)
	}

	var cfg index.RepoConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return index.RepoConfig{}, fmt.Errorf("parse repo config %s: %w", path, err)
	}
	if cfg.Files == nil {
		cfg.Files = map[string]index.FileMeta{}
	}
	return cfg, nil
}

// SaveRepoConfig writes a repository's index config and returns the file
// path. The write is temp-file-then-rename so readers never see a torn
// file.
func SaveRepoConfig(cfg index.RepoConfig) (string, error) {
	path := RepoConfigPath(cfg.IndexDir)
	if err := writeJSONAtomic(path, cfg); err != nil {
		return "", fmt.Errorf("write repo config: %w", err)
	}
	return path, nil
}

// LoadServerConfig reads the persist-directory marker, or nil when the
// directory has never been used.
func LoadServerConfig(persistDir string) (*index.ServerConfig, error) {
	data, err := os.ReadFile(ServerConfigPath(persistDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read server config: %w", err)
	}

	var cfg index.ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	return &cfg, nil
}

// EnsureServerConfig returns the existing persist-directory marker or
// creates one.
func EnsureServerConfig(persistDir string) (index.ServerConfig, error) {
	existing, err := LoadServerConfig(persistDir)
	if err != nil {
		return index.ServerConfig{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	created := index.ServerConfig{
		Version:    index.SchemaVersion,
		PersistDir: persistDir,
		CreatedAt:  UTCNow(),
	}
	if err := writeJSONAtomic(ServerConfigPath(persistDir), created); err != nil {
		return index.ServerConfig{}, fmt.Errorf("write server config: %w", err)
	}
	return created, nil
}

// UTCNow returns the current UTC time at second precision in RFC 3339
// form, the timestamp format used across the persisted configs.
func UTCNow() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// writeJSONAtomic marshals v as indented JSON and writes it via a
// temporary sibling file and rename.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
