package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/codescout/codescout/domain/vector"
)

// vramSafetyFactor pads the per-row byte cost when sizing chunks, leaving
// headroom for the query vector and scoring scratch on the device.
const vramSafetyFactor = 1.2

// scoredRow pairs a matrix row index with its score for the current query.
type scoredRow struct {
	row   int
	score float32
}

// Search returns up to topK results ranked by descending score. Options
// override the store's configured defaults for this call only.
//
// Exact mode scores every stored row; approx mode scores a deterministic
// fixed-stride sample. Candidates are evaluated chunk by chunk so that at
// most one chunk of rows is resident on the compute device at a time; the
// chunk size is derived from the max_vram_mb budget and never changes the
// ranking. Equal scores rank the lower row index first.
func (s *Store) Search(ctx context.Context, query []float32, topK int, opts ...vector.SearchOption) ([]vector.Result, error) {
	cfg := s.config.ApplyOptions(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive (got %d)", vector.ErrInvalidConfig, topK)
	}

	device, err := s.resolver.Resolve(cfg.Device)
	if err != nil {
		return nil, err
	}

	if len(s.records) == 0 {
		return []vector.Result{}, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, store dimension %d",
			vector.ErrDimensionMismatch, len(query), s.dimension)
	}

	candidates := s.candidateIndices(cfg)
	capacity := chunkCapacity(s.dimension, cfg.MaxVRAMMB)
	if capacity <= 0 || capacity > len(candidates) {
		capacity = len(candidates)
	}

	s.logger.DebugContext(ctx, "searching vectors",
		slog.String("device", string(device)),
		slog.String("metric", string(cfg.Metric)),
		slog.String("mode", string(cfg.SearchMode)),
		slog.Int("candidates", len(candidates)),
		slog.Int("chunk_capacity", capacity),
	)

	chunk := make([]float32, 0, capacity*s.dimension)
	scored := make([]scoredRow, 0, capacity)
	var best []scoredRow

	for start := 0; start < len(candidates); start += capacity {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		indices := candidates[start:min(start+capacity, len(candidates))]
		chunk = s.rows(indices, chunk)

		scored = scored[:0]
		for i, row := range indices {
			vec := chunk[i*s.dimension : (i+1)*s.dimension]
			scored = append(scored, scoredRow{row: row, score: scoreVector(cfg.Metric, query, vec)})
		}

		best = mergeTopK(best, topRows(scored, topK), topK)
	}

	results := make([]vector.Result, len(best))
	for i, b := range best {
		r := s.records[b.row]
		results[i] = vector.Result{
			Path:      r.Path,
			LineStart: r.LineStart,
			LineEnd:   r.LineEnd,
			Score:     float64(b.score),
		}
	}
	return results, nil
}

// candidateIndices selects the rows considered by this search: all rows in
// exact mode, or a systematic sample at indices 0, stride, 2*stride, ... in
// approx mode. The sample is coverage-biased and reproducible for a given
// row count and rate.
func (s *Store) candidateIndices(cfg vector.Config) []int {
	stride := 1
	if cfg.SearchMode == vector.SearchModeApprox {
		stride = sampleStride(cfg.Approx.SampleRate)
	}
	indices := make([]int, 0, (len(s.records)+stride-1)/stride)
	for i := 0; i < len(s.records); i += stride {
		indices = append(indices, i)
	}
	return indices
}

// sampleStride converts a sample rate in (0, 1] to a row stride.
func sampleStride(rate float64) int {
	stride := int(1 / rate)
	if stride < 1 {
		stride = 1
	}
	return stride
}

// chunkCapacity derives the maximum number of candidate vectors per chunk
// from a device memory budget in MiB. Zero budget means unbounded, reported
// as zero capacity. A positive budget always admits at least one row.
func chunkCapacity(dimension, maxVRAMMB int) int {
	if maxVRAMMB <= 0 {
		return 0
	}
	budget := float64(maxVRAMMB) * 1024 * 1024
	rowBytes := float64(dimension*float32Size) * vramSafetyFactor
	capacity := int(budget / rowBytes)
	if capacity < 1 {
		return 1
	}
	return capacity
}

// topRows sorts rows by descending score, breaking ties toward the lower
// row index, and truncates to at most k entries. It mutates its argument.
func topRows(rows []scoredRow, k int) []scoredRow {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].row < rows[j].row
	})
	if len(rows) > k {
		rows = rows[:k]
	}
	return rows
}

// mergeTopK folds one chunk's local top rows into the running global best
// list, keeping at most k entries in descending score order.
func mergeTopK(best, chunkTop []scoredRow, k int) []scoredRow {
	merged := make([]scoredRow, 0, len(best)+len(chunkTop))
	merged = append(merged, best...)
	merged = append(merged, chunkTop...)
	return topRows(merged, k)
}
