package source

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	syntheticCenter = 0.82
	syntheticJitter = 0.06

	minSyntheticSamples = 12
	maxSyntheticSamples = 600
)

// Mock serves series from a JSON fixture file when one is configured and
// readable, falling back to a bounded synthetic random walk so demo mode
// always has a non-empty series.
type Mock struct {
	path   string
	scale  string
	logger zerolog.Logger
}

// NewMock constructs the mock provider. path may be empty. scale declares
// the scale of the fixture values (ScaleUnit when empty); synthetic series
// are generated on the unit scale regardless.
func NewMock(path, scale string, logger zerolog.Logger) *Mock {
	if scale == "" {
		scale = ScaleUnit
	}
	return &Mock{
		path:   path,
		scale:  scale,
		logger: logger.With().Str("component", "mock_source").Logger(),
	}
}

// Name implements Provider.
func (m *Mock) Name() string { return NameMock }

// Fetch implements Provider.
func (m *Mock) Fetch(ctx context.Context, windowSeconds int) ([]float64, Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, err
	}
	start := time.Now()

	if m.path != "" {
		if values, ok := m.loadFixture(); ok {
			return values, Meta{
				Upstream: "mock:file",
				Records:  len(values),
				Pages:    1,
				Latency:  time.Since(start),
			}, nil
		}
	}

	values := syntheticSeries(windowSeconds)
	return values, Meta{
		Upstream: "mock:synthetic",
		Records:  len(values),
		Pages:    1,
		Latency:  time.Since(start),
	}, nil
}

type fixtureFile struct {
	CoherenceValues []float64 `json:"coherenceValues"`
}

func (m *Mock) loadFixture() ([]float64, bool) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		m.logger.Warn().Err(err).Str("path", m.path).Msg("mock fixture unreadable; using synthetic series")
		return nil, false
	}

	var fixture fixtureFile
	if err := json.Unmarshal(raw, &fixture); err != nil {
		m.logger.Warn().Err(err).Str("path", m.path).Msg("mock fixture malformed; using synthetic series")
		return nil, false
	}
	if len(fixture.CoherenceValues) == 0 {
		return nil, false
	}
	return ConvertScale(fixture.CoherenceValues, m.scale), true
}

// syntheticSeries walks randomly around the center, clamped to [0,1]. The
// sample count scales with the window: one sample per 30 seconds, bounded.
func syntheticSeries(windowSeconds int) []float64 {
	n := windowSeconds / 30
	if n < minSyntheticSamples {
		n = minSyntheticSamples
	}
	if n > maxSyntheticSamples {
		n = maxSyntheticSamples
	}

	values := make([]float64, n)
	v := syntheticCenter
	for i := range values {
		v += (rand.Float64()*2 - 1) * syntheticJitter * 0.2
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		values[i] = v
	}
	return values
}

var _ Provider = (*Mock)(nil)
