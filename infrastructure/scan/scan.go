// Package scan provides worktree file inspection: text/binary detection,
// content hashing, and text reads.
package scan

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// sampleSize is how many leading bytes are inspected for binary
	// content.
	sampleSize = 4096

	// controlThreshold is the maximum fraction of control characters a
	// sample may contain and still count as text.
	controlThreshold = 0.3
)

// IsTextBytes reports whether a content sample looks like text. A NUL byte
// is an immediate binary verdict; otherwise the verdict is based on the
// fraction of control characters outside the usual whitespace set.
func IsTextBytes(sample []byte) bool {
	if len(sample) == 0 {
		return true
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return false
	}
	control := 0
	for _, b := range sample {
		if b < 32 {
			switch b {
			case '\t', '\n', '\r', '\f', '\b':
			default:
				control++
			}
		}
	}
	return float64(control)/float64(len(sample)) <= controlThreshold
}

// IsTextFile reports whether the file at path looks like text, judging by
// its first few KiB.
func IsTextFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sample := make([]byte, sampleSize)
	n, err := io.ReadFull(f, sample)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return IsTextBytes(sample[:n]), nil
}

// HashFile returns the lowercase hex SHA-256 of the file's contents,
// streamed so large files do not load into memory.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// ReadTextFile reads a file as UTF-8 text, dropping invalid bytes rather
// than failing on them.
func ReadTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// CountLines returns the number of lines in text, where a trailing newline
// does not start a new line.
func CountLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
