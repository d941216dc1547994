package vectorstore

import "github.com/codescout/codescout/domain/vector"

// scoreVector scores one candidate row against the query. Both metrics
// produce scores where higher is better, so callers never need
// metric-specific comparisons.
func scoreVector(metric vector.Metric, query, row []float32) float32 {
	if metric == vector.MetricL2 {
		return -squaredL2(query, row)
	}
	return dot(query, row)
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// squaredL2 computes the squared Euclidean distance between two
// equal-length vectors.
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
