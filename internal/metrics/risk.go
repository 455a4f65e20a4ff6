package metrics

import "fmt"

// RiskLevel is the three-tier drift risk classification.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank maps a level onto the total order low < medium < high.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return -1
}

// Valid reports whether r is one of the three known levels.
func (r RiskLevel) Valid() bool {
	return r.Rank() >= 0
}

// ParseRiskLevel converts caller input into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk level %q (want low, medium, or high)", s)
	}
	return r, nil
}

// Risk rule names accepted by the pipeline configuration.
const (
	RiskRuleVolatility = "volatility"
	RiskRuleMeanAware  = "mean_aware"
)

// Mean floors for the mean-aware rule, on the canonical 0-1 scale. A mean
// under the critical floor forces high risk regardless of volatility.
const (
	meanWarnFloor     = 0.80
	meanCriticalFloor = 0.60
)

// Thresholds carries every tunable the compute core reads. Ambient lookups
// are deliberately absent: construct once at startup, validate, pass in.
type Thresholds struct {
	Warn             float64
	Critical         float64
	StabilityHigh    float64
	StabilityMedium  float64
	TrendSensitivity float64
}

// DefaultThresholds returns the stock tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Warn:             0.10,
		Critical:         0.25,
		StabilityHigh:    0.80,
		StabilityMedium:  0.55,
		TrendSensitivity: 0.03,
	}
}

// Validate enforces the ordering invariants. Violations are configuration
// errors and must abort startup; values are never reordered or clamped.
func (t Thresholds) Validate() error {
	if t.Warn <= 0 {
		return fmt.Errorf("warn threshold must be positive, got %v", t.Warn)
	}
	if t.Critical <= t.Warn {
		return fmt.Errorf("critical threshold (%v) must exceed warn threshold (%v)", t.Critical, t.Warn)
	}
	if t.StabilityMedium <= 0 {
		return fmt.Errorf("stability medium threshold must be positive, got %v", t.StabilityMedium)
	}
	if t.StabilityHigh <= t.StabilityMedium {
		return fmt.Errorf("stability high threshold (%v) must exceed medium threshold (%v)", t.StabilityHigh, t.StabilityMedium)
	}
	if t.TrendSensitivity <= 0 {
		return fmt.Errorf("trend sensitivity must be positive, got %v", t.TrendSensitivity)
	}
	return nil
}

// ClassifyRisk buckets a volatility ratio against the warn/critical
// thresholds. This is the canonical rule: volatility alone decides.
func ClassifyRisk(volatility float64, t Thresholds) RiskLevel {
	switch {
	case volatility >= t.Critical:
		return RiskHigh
	case volatility >= t.Warn:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ClassifyRiskMeanAware is the secondary rule: a depressed mean level can
// escalate risk on its own. It intentionally disagrees with ClassifyRisk on
// low-mean series and is only applied when explicitly configured.
func ClassifyRiskMeanAware(mean, volatility float64, t Thresholds) RiskLevel {
	if volatility >= t.Critical || mean < meanCriticalFloor {
		return RiskHigh
	}
	if volatility >= t.Warn || mean < meanWarnFloor {
		return RiskMedium
	}
	return RiskLow
}
