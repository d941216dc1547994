// Package vectorstore implements the on-disk embedding repository backing
// semantic code search.
//
// The store keeps two files under <indexDir>/vectors: a human-readable
// meta.json holding the dimension and one record per stored vector, and a
// raw little-endian float32 matrix holding the embeddings themselves. The
// i-th record always describes the i-th matrix row; every operation
// preserves that lockstep or fails without mutating state.
//
// A Store is synchronous and single-caller: it holds no internal locks and
// must not be shared across goroutines without external synchronization.
// Concurrent processes pointed at the same directory produce undefined
// results.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/codescout/codescout/domain/vector"
	"github.com/codescout/codescout/infrastructure/compute"
)

// Store is an on-disk embedding repository with exact and
// sampled-approximate similarity search.
type Store struct {
	dir      string
	config   vector.Config
	resolver *compute.Resolver
	logger   *slog.Logger

	// dimension is locked in by the first insert and reset to zero only
	// when the store becomes fully empty.
	dimension int
	records   []vector.Record
	matrix    []float32 // row-major, len == len(records)*dimension
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithResolver replaces the device resolver.
func WithResolver(r *compute.Resolver) Option {
	return func(s *Store) { s.resolver = r }
}

// New opens the store rooted at indexDir, creating empty state when no
// backing files exist yet. The configuration is validated up front;
// inconsistent backing files fail with vector.ErrStorageCorruption.
func New(indexDir string, config vector.Config, opts ...Option) (*Store, error) {
	s := &Store{
		dir:      filepath.Join(indexDir, vectorsDirName),
		config:   config,
		resolver: compute.NewResolver(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := s.resolver.Validate(config.Device); err != nil {
		return nil, err
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	return len(s.records)
}

// Dimension returns the established vector dimension, or 0 when the store
// is empty and the dimension is still unknown.
func (s *Store) Dimension() int {
	return s.dimension
}

// Insert appends the given entries to the store and persists the result in
// a single save. All embeddings in one call must share the same dimension,
// and that dimension must match the store's established dimension; the
// first insert ever establishes it. Returns the number of entries inserted.
func (s *Store) Insert(ctx context.Context, entries []vector.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	dim := len(entries[0].Embedding)
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty embedding", vector.ErrDimensionMismatch)
	}
	for i, e := range entries {
		if len(e.Embedding) != dim {
			return 0, fmt.Errorf("%w: entry %d has dimension %d, batch established %d",
				vector.ErrDimensionMismatch, i, len(e.Embedding), dim)
		}
	}
	if s.dimension != 0 && dim != s.dimension {
		return 0, fmt.Errorf("%w: insert dimension %d, store dimension %d",
			vector.ErrDimensionMismatch, dim, s.dimension)
	}

	records := make([]vector.Record, 0, len(s.records)+len(entries))
	records = append(records, s.records...)
	matrix := make([]float32, 0, len(s.matrix)+len(entries)*dim)
	matrix = append(matrix, s.matrix...)
	for _, e := range entries {
		records = append(records, e.Record)
		matrix = append(matrix, e.Embedding...)
	}

	if err := s.save(dim, records, matrix); err != nil {
		return 0, err
	}

	s.dimension = dim
	s.records = records
	s.matrix = matrix

	s.logger.DebugContext(ctx, "inserted vectors",
		slog.Int("count", len(entries)),
		slog.Int("total", len(records)),
		slog.Int("dimension", dim),
	)
	return len(entries), nil
}

// DeleteByPaths removes every record whose path is in paths, together with
// the matching matrix rows, preserving the relative order of survivors.
// When the deletion empties the store the matrix is freed and the dimension
// resets to unknown. Returns the number of rows removed; nothing is
// persisted when no row matches.
func (s *Store) DeleteByPaths(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 || len(s.records) == 0 {
		return 0, nil
	}

	doomed := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		doomed[p] = struct{}{}
	}

	records := make([]vector.Record, 0, len(s.records))
	matrix := make([]float32, 0, len(s.matrix))
	removed := 0
	for i, r := range s.records {
		if _, ok := doomed[r.Path]; ok {
			removed++
			continue
		}
		records = append(records, r)
		matrix = append(matrix, s.row(i)...)
	}
	if removed == 0 {
		return 0, nil
	}

	dim := s.dimension
	if len(records) == 0 {
		dim = 0
		matrix = nil
	}

	if err := s.save(dim, records, matrix); err != nil {
		return 0, err
	}

	s.dimension = dim
	s.records = records
	s.matrix = matrix

	s.logger.DebugContext(ctx, "deleted vectors",
		slog.Int("removed", removed),
		slog.Int("remaining", len(records)),
	)
	return removed, nil
}

// Drop irreversibly deletes both backing files and resets the store to
// empty. It is safe to call when nothing exists on disk.
func (s *Store) Drop(ctx context.Context) error {
	if err := removeIfExists(s.metaPath()); err != nil {
		return fmt.Errorf("remove metadata: %w", err)
	}
	if err := removeIfExists(s.matrixPath()); err != nil {
		return fmt.Errorf("remove matrix: %w", err)
	}
	s.dimension = 0
	s.records = nil
	s.matrix = nil

	s.logger.DebugContext(ctx, "dropped vector store", slog.String("dir", s.dir))
	return nil
}

// Paths returns the distinct stored paths in first-seen order.
func (s *Store) Paths() []string {
	seen := make(map[string]struct{}, len(s.records))
	paths := make([]string, 0, len(s.records))
	for _, r := range s.records {
		if _, ok := seen[r.Path]; ok {
			continue
		}
		seen[r.Path] = struct{}{}
		paths = append(paths, r.Path)
	}
	return paths
}

// row returns the i-th matrix row. The returned slice aliases the store's
// matrix and must not be retained across mutations.
func (s *Store) row(i int) []float32 {
	return s.matrix[i*s.dimension : (i+1)*s.dimension]
}

// rows returns matrix rows for the given indices, copied into dst so that
// at most one chunk of candidates is resident outside the backing matrix.
func (s *Store) rows(indices []int, dst []float32) []float32 {
	dst = dst[:0]
	for _, i := range indices {
		dst = append(dst, s.row(i)...)
	}
	return dst
}
