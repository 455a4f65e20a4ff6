package metrics

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Stability bands derived from the rolling mean.
const (
	StabilityBandHigh   = "High"
	StabilityBandMedium = "Medium"
	StabilityBandLow    = "Low"
)

// Trust continuity bands; a fixed 1:1 projection of the risk level.
const (
	ContinuityStable   = "Stable"
	ContinuityAtRisk   = "At Risk"
	ContinuityCritical = "Critical"
)

// Interpretation is the human-readable reading of a Result. CoherenceTrend
// mirrors Result.Trend exactly; they are never computed independently.
type Interpretation struct {
	Stability       string
	TrustContinuity string
	CoherenceTrend  Trend
}

// Result is the immutable output of one pipeline run. Emitted floats are
// rounded to four decimal places; intermediate computation keeps full
// precision.
type Result struct {
	Stability      float64
	Volatility     float64
	RiskLevel      RiskLevel
	Trend          Trend
	Interpretation Interpretation
	WindowSeconds  int
	SampleCount    int
	ComputedAt     time.Time
}

// Pipeline turns a batch of samples into a Result. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	thresholds Thresholds
	riskRule   string
	logger     zerolog.Logger
	now        func() time.Time
}

// NewPipeline validates the thresholds and constructs a pipeline. riskRule
// selects between RiskRuleVolatility (canonical) and RiskRuleMeanAware; an
// empty value means canonical.
func NewPipeline(t Thresholds, riskRule string, logger zerolog.Logger) (*Pipeline, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if riskRule == "" {
		riskRule = RiskRuleVolatility
	}
	if riskRule != RiskRuleVolatility && riskRule != RiskRuleMeanAware {
		return nil, errUnknownRiskRule(riskRule)
	}
	return &Pipeline{
		thresholds: t,
		riskRule:   riskRule,
		logger:     logger.With().Str("component", "pipeline").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the pipeline clock. Intended for tests.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	clone := *p
	clone.now = now
	return &clone
}

// Thresholds returns the validated tuning the pipeline was built with.
func (p *Pipeline) Thresholds() Thresholds {
	return p.thresholds
}

// Run computes a Result for one window. Degenerate inputs (empty series,
// zero mean) resolve to defined defaults and never error.
func (p *Pipeline) Run(series []float64, windowSeconds int) Result {
	stats := Describe(series)
	volatility := stats.Volatility()

	risk := ClassifyRisk(volatility, p.thresholds)
	if p.riskRule == RiskRuleMeanAware {
		risk = ClassifyRiskMeanAware(stats.Mean, volatility, p.thresholds)
	}

	trend := DetectTrend(series, p.thresholds.TrendSensitivity)

	result := Result{
		Stability:  round4(stats.Mean),
		Volatility: round4(volatility),
		RiskLevel:  risk,
		Trend:      trend,
		Interpretation: Interpretation{
			Stability:       p.stabilityBand(stats.Mean),
			TrustContinuity: continuityBand(risk),
			CoherenceTrend:  trend,
		},
		WindowSeconds: windowSeconds,
		SampleCount:   stats.N,
		ComputedAt:    p.now(),
	}

	p.logger.Debug().
		Int("n", result.SampleCount).
		Int("window_sec", windowSeconds).
		Float64("stability", result.Stability).
		Float64("volatility", result.Volatility).
		Str("risk", string(risk)).
		Str("trend", string(trend)).
		Msg("pipeline run complete")

	return result
}

func (p *Pipeline) stabilityBand(mean float64) string {
	switch {
	case mean >= p.thresholds.StabilityHigh:
		return StabilityBandHigh
	case mean >= p.thresholds.StabilityMedium:
		return StabilityBandMedium
	default:
		return StabilityBandLow
	}
}

func continuityBand(risk RiskLevel) string {
	switch risk {
	case RiskLow:
		return ContinuityStable
	case RiskMedium:
		return ContinuityAtRisk
	default:
		return ContinuityCritical
	}
}

// round4 fixes emitted values at four decimal places. Going through decimal
// avoids the float artifacts a multiply-round-divide would reintroduce.
func round4(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return out
}

type errUnknownRiskRule string

func (e errUnknownRiskRule) Error() string {
	return "unknown risk rule \"" + string(e) + "\" (want volatility or mean_aware)"
}
