package vector

// SearchOption overrides one store default for a single search call.
type SearchOption func(*Config)

// WithDevice overrides the device preference for one search.
func WithDevice(device string) SearchOption {
	return func(c *Config) { c.Device = device }
}

// WithMetric overrides the scoring metric for one search.
func WithMetric(metric Metric) SearchOption {
	return func(c *Config) { c.Metric = metric }
}

// WithSearchMode overrides the candidate selection mode for one search.
func WithSearchMode(mode SearchMode) SearchOption {
	return func(c *Config) { c.SearchMode = mode }
}

// WithSampleRate overrides the approximate sampling rate for one search.
func WithSampleRate(rate float64) SearchOption {
	return func(c *Config) { c.Approx.SampleRate = rate }
}

// WithMaxVRAMMB overrides the device memory budget for one search.
// Zero means unbounded.
func WithMaxVRAMMB(mb int) SearchOption {
	return func(c *Config) { c.MaxVRAMMB = mb }
}

// ApplyOptions returns a copy of c with the given overrides applied.
func (c Config) ApplyOptions(opts ...SearchOption) Config {
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}
