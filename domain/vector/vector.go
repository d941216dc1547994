// Package vector defines the records, configuration, and error taxonomy for
// the on-disk embedding store.
package vector

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the vector store boundary.
var (
	// ErrInvalidConfig indicates a malformed device, metric, search mode,
	// or sample rate. Detected before any state mutation.
	ErrInvalidConfig = errors.New("invalid vector config")

	// ErrDimensionMismatch indicates an insert or query embedding whose
	// dimension disagrees with the store's established dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStorageCorruption indicates the metadata and matrix files disagree
	// on load. The store fails fast rather than guessing which side is
	// authoritative.
	ErrStorageCorruption = errors.New("vector storage corrupted")
)

// Metric selects how candidate rows are scored against a query.
type Metric string

// Supported metrics. Both produce scores where higher is better: inner
// product is the raw dot product, L2 is the negated squared Euclidean
// distance.
const (
	MetricInnerProduct Metric = "ip"
	MetricL2           Metric = "l2"
)

// ParseMetric parses a metric name, case-insensitively.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case MetricInnerProduct:
		return MetricInnerProduct, nil
	case MetricL2:
		return MetricL2, nil
	default:
		return "", fmt.Errorf("%w: metric must be one of ip, l2 (got %q)", ErrInvalidConfig, s)
	}
}

// SearchMode selects which stored rows become candidates during a search.
type SearchMode string

// Supported search modes. Exact considers every stored row; approx
// considers a deterministic systematic sample.
const (
	SearchModeExact  SearchMode = "exact"
	SearchModeApprox SearchMode = "approx"
)

// ParseSearchMode parses a search mode name, case-insensitively.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case SearchModeExact:
		return SearchModeExact, nil
	case SearchModeApprox:
		return SearchModeApprox, nil
	default:
		return "", fmt.Errorf("%w: search_mode must be one of exact, approx (got %q)", ErrInvalidConfig, s)
	}
}

// Record describes one stored vector. Records are positional: the i-th
// record always describes the i-th row of the embedding matrix.
type Record struct {
	Path      string `json:"path"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	FileHash  string `json:"file_hash"`
}

// Entry pairs a record with its embedding for insertion.
type Entry struct {
	Record    Record
	Embedding []float32
}

// Result is one ranked search hit.
type Result struct {
	Path      string  `json:"path"`
	LineStart int     `json:"line_start"`
	LineEnd   int     `json:"line_end"`
	Score     float64 `json:"score"`
}

// ApproxConfig tunes sampled-approximate search.
type ApproxConfig struct {
	// SampleRate is the fraction of stored rows considered as candidates,
	// in (0, 1]. The sample is a deterministic fixed-stride subset, not a
	// random draw, so repeated searches over the same data are reproducible.
	SampleRate float64 `json:"sample_rate"`
}

// Config holds the store's default search behaviour. Individual search
// calls may override any field.
type Config struct {
	// Device is the logical compute preference: auto, cuda, mps, or cpu.
	Device string `json:"device"`

	Metric     Metric       `json:"metric"`
	SearchMode SearchMode   `json:"search_mode"`
	Approx     ApproxConfig `json:"approx"`

	// MaxVRAMMB bounds how many candidate vectors may be resident on the
	// compute device at once during a single search. Zero means unbounded.
	MaxVRAMMB int `json:"max_vram_mb,omitempty"`
}

// DefaultConfig returns the store defaults: auto device, inner-product
// metric, exact search, full sampling, unbounded memory.
func DefaultConfig() Config {
	return Config{
		Device:     "auto",
		Metric:     MetricInnerProduct,
		SearchMode: SearchModeExact,
		Approx:     ApproxConfig{SampleRate: 1.0},
	}
}

// Validate checks metric, search mode, sample rate, and memory budget.
// Device preferences are validated by the device resolver.
func (c Config) Validate() error {
	if _, err := ParseMetric(string(c.Metric)); err != nil {
		return err
	}
	if _, err := ParseSearchMode(string(c.SearchMode)); err != nil {
		return err
	}
	if c.Approx.SampleRate <= 0 || c.Approx.SampleRate > 1 {
		return fmt.Errorf("%w: approx sample_rate must be in (0, 1] (got %v)", ErrInvalidConfig, c.Approx.SampleRate)
	}
	if c.MaxVRAMMB < 0 {
		return fmt.Errorf("%w: max_vram_mb must be positive (got %d)", ErrInvalidConfig, c.MaxVRAMMB)
	}
	return nil
}
