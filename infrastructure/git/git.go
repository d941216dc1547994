// Package git enumerates a local repository's worktree through the git CLI.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrGit indicates a git command failed. The wrapped message carries the
// command's stderr.
var ErrGit = errors.New("git error")

// Client runs git commands against local repositories.
type Client struct {
	logger *slog.Logger
}

// NewClient creates a git Client.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger}
}

// run executes git -C repoPath args... and returns trimmed stdout.
func (c *Client) run(ctx context.Context, repoPath string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", repoPath}, args...)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("%w: git %s: %s", ErrGit, strings.Join(args, " "), detail)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether path is inside a git worktree.
func (c *Client) IsRepo(ctx context.Context, path string) bool {
	out, err := c.run(ctx, path, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// Root returns the absolute worktree root for a path inside a repository.
func (c *Client) Root(ctx context.Context, path string) (string, error) {
	root, err := c.run(ctx, path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return filepath.Clean(root), nil
}

// TrackedFiles lists the paths tracked in the index, relative to the
// worktree root.
func (c *Client) TrackedFiles(ctx context.Context, repoRoot string) ([]string, error) {
	out, err := c.run(ctx, repoRoot, "ls-files")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// HeadCommit returns the SHA of HEAD, or an empty string for a repository
// with no commits yet.
func (c *Client) HeadCommit(ctx context.Context, repoRoot string) (string, error) {
	sha, err := c.run(ctx, repoRoot, "rev-parse", "HEAD")
	if err != nil {
		// An unborn branch has no HEAD to resolve.
		if strings.Contains(err.Error(), "unknown revision") || strings.Contains(err.Error(), "ambiguous argument") {
			return "", nil
		}
		return "", err
	}
	return sha, nil
}
