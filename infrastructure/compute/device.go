// Package compute resolves a logical device preference to a concrete
// compute target, with graceful degradation when an accelerator is missing.
package compute

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/codescout/codescout/domain/vector"
)

// Device is a concrete compute target.
type Device string

// Concrete targets in auto-probe priority order.
const (
	DeviceCUDA Device = "cuda"
	DeviceMPS  Device = "mps"
	DeviceCPU  Device = "cpu"
)

// PreferenceAuto probes accelerators in priority order cuda, mps, cpu and
// picks the first available.
const PreferenceAuto = "auto"

// Probe reports whether an accelerator is usable. Probes must never fail:
// any internal error is treated as "unavailable".
type Probe func() bool

// Resolver maps device preferences to concrete targets.
type Resolver struct {
	cudaProbe Probe
	mpsProbe  Probe
	logger    *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCUDAProbe replaces the CUDA availability probe.
func WithCUDAProbe(p Probe) ResolverOption {
	return func(r *Resolver) { r.cudaProbe = p }
}

// WithMPSProbe replaces the MPS availability probe.
func WithMPSProbe(p Probe) ResolverOption {
	return func(r *Resolver) { r.mpsProbe = p }
}

// WithLogger sets the resolver's logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver with platform probes.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cudaProbe: cudaAvailable,
		mpsProbe:  mpsAvailable,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a preference to a concrete target. Preferences are
// case-insensitive; an empty preference means auto. An explicit cuda or mps
// preference falls back silently to cpu when the accelerator is
// unavailable; only an unknown preference is an error.
func (r *Resolver) Resolve(preference string) (Device, error) {
	choice := strings.ToLower(strings.TrimSpace(preference))
	if choice == "" {
		choice = PreferenceAuto
	}

	switch choice {
	case PreferenceAuto:
		if r.cudaProbe() {
			return DeviceCUDA, nil
		}
		if r.mpsProbe() {
			return DeviceMPS, nil
		}
		return DeviceCPU, nil
	case string(DeviceCUDA):
		if r.cudaProbe() {
			return DeviceCUDA, nil
		}
		r.logger.Debug("cuda unavailable, falling back to cpu")
		return DeviceCPU, nil
	case string(DeviceMPS):
		if r.mpsProbe() {
			return DeviceMPS, nil
		}
		r.logger.Debug("mps unavailable, falling back to cpu")
		return DeviceCPU, nil
	case string(DeviceCPU):
		return DeviceCPU, nil
	default:
		return "", fmt.Errorf("%w: device must be one of auto, cuda, mps, cpu (got %q)", vector.ErrInvalidConfig, preference)
	}
}

// Validate checks that a preference is well formed without probing.
func (r *Resolver) Validate(preference string) error {
	choice := strings.ToLower(strings.TrimSpace(preference))
	switch choice {
	case "", PreferenceAuto, string(DeviceCUDA), string(DeviceMPS), string(DeviceCPU):
		return nil
	default:
		return fmt.Errorf("%w: device must be one of auto, cuda, mps, cpu (got %q)", vector.ErrInvalidConfig, preference)
	}
}
