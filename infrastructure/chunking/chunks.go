// Package chunking provides line-based text chunking with overlap for
// embedding indexing.
package chunking

import (
	"fmt"
	"strings"
)

// Default chunking parameters for source code.
const (
	DefaultChunkLines   = 80
	DefaultOverlapLines = 10
)

// Params configures the chunking algorithm.
type Params struct {
	// ChunkLines is the maximum number of lines per chunk.
	ChunkLines int
	// OverlapLines is how many trailing lines each chunk shares with the
	// next. Values at or above ChunkLines are clamped to ChunkLines-1.
	OverlapLines int
}

// DefaultParams returns the default chunking parameters.
func DefaultParams() Params {
	return Params{
		ChunkLines:   DefaultChunkLines,
		OverlapLines: DefaultOverlapLines,
	}
}

// Chunk is one window of text with its 1-based inclusive line range.
type Chunk struct {
	Text      string
	LineStart int
	LineEnd   int
}

// Split cuts text into line windows. Line endings are preserved inside
// chunk text; empty text produces no chunks.
func Split(text string, params Params) ([]Chunk, error) {
	if params.ChunkLines <= 0 {
		return nil, fmt.Errorf("chunk lines must be positive (got %d)", params.ChunkLines)
	}
	if params.OverlapLines < 0 {
		return nil, fmt.Errorf("overlap lines must not be negative (got %d)", params.OverlapLines)
	}

	overlap := params.OverlapLines
	if overlap >= params.ChunkLines {
		overlap = params.ChunkLines - 1
	}

	lines := splitKeepEnds(text)
	if len(lines) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		end := min(start+params.ChunkLines, len(lines))
		chunks = append(chunks, Chunk{
			Text:      strings.Join(lines[start:end], ""),
			LineStart: start + 1,
			LineEnd:   end,
		})
		if end >= len(lines) {
			break
		}
		if overlap > 0 {
			start = end - overlap
		} else {
			start = end
		}
	}
	return chunks, nil
}

// splitKeepEnds splits text into lines, keeping each line's terminator.
// A trailing newline does not produce an empty final line.
func splitKeepEnds(text string) []string {
	var lines []string
	for text != "" {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			lines = append(lines, text)
			break
		}
		lines = append(lines, text[:i+1])
		text = text[i+1:]
	}
	return lines
}
