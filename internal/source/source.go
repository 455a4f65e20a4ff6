// Package source supplies coherence sample series to the compute pipeline.
// Providers are interchangeable: the pipeline never learns whether a series
// came from a mock file, a synthetic generator, or the remote Darshan API.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Source names accepted at the boundary.
const (
	NameMock    = "mock"
	NameDarshan = "darshan_api"
)

// ErrUnknownSource marks a collaborator-resolution failure. It is a
// boundary error; the compute core never sees it.
var ErrUnknownSource = errors.New("unknown data source")

// ErrIngestUnavailable is returned once remote retries are exhausted.
var ErrIngestUnavailable = errors.New("ingestion unavailable")

// Meta describes one fetch for status reporting.
type Meta struct {
	Upstream string
	Records  int
	Pages    int
	Retries  int
	Latency  time.Duration
}

// Provider loads the sample series covering a window. Implementations are
// safe for concurrent use.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, windowSeconds int) ([]float64, Meta, error)
}

// Resolver maps source names to configured providers.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver indexes the given providers by name.
func NewResolver(providers ...Provider) *Resolver {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Resolver{providers: m}
}

// Lookup resolves a source name, wrapping ErrUnknownSource on a miss.
func (r *Resolver) Lookup(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return p, nil
}

// Input scales a provider can be declared with. The scale is fixed per
// source at configuration time; sample values are never inspected to guess
// it, so the same upstream always lands on the same scale.
const (
	ScaleUnit    = "unit"
	ScalePercent = "percent"
)

// ValidScale reports whether s names a known input scale.
func ValidScale(s string) bool {
	return s == ScaleUnit || s == ScalePercent
}

// ConvertScale maps a series onto the canonical 0-1 scale according to the
// declared input scale. Percent-scale series are divided by 100
// unconditionally; unit-scale series pass through untouched, out-of-band
// samples included.
func ConvertScale(values []float64, scale string) []float64 {
	if scale != ScalePercent {
		return values
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v / 100.0
	}
	return out
}
