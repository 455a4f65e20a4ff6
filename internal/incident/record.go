package incident

import (
	"fmt"
	"time"

	"github.com/sheldongordon4/coherence-engine/internal/metrics"
)

// EventTrustContinuityAlert is the ledger event type. Every record this
// system emits carries it.
const EventTrustContinuityAlert = "trust_continuity_alert"

// Trace carries free-form provenance for a record: which system computed
// the metrics, which upstream supplied the series, and the originating
// query if any.
type Trace struct {
	Source   string `json:"source"`
	Upstream string `json:"upstream"`
	Query    string `json:"query,omitempty"`
}

// Record is a ledger-ready trust continuity incident. Records are created
// once and never mutated; field names follow the ledger schema.
type Record struct {
	EventType   string            `json:"event"`
	Timestamp   time.Time         `json:"timestamp"`
	WindowLabel string            `json:"window"`
	Stability   float64           `json:"signalStability"`
	Volatility  float64           `json:"signalLiquidity"`
	RiskLevel   metrics.RiskLevel `json:"trustContinuityRisk"`
	Trace       Trace             `json:"trace"`
}

// WindowLabel renders a seconds window as the human-readable duration label
// used across the ledger: exact hours first, then exact minutes, then raw
// seconds (3600 -> "1h", 1800 -> "30m", 45 -> "45s").
func WindowLabel(seconds int) string {
	if seconds%3600 == 0 {
		return fmt.Sprintf("%dh", seconds/3600)
	}
	if seconds%60 == 0 {
		return fmt.Sprintf("%dm", seconds/60)
	}
	return fmt.Sprintf("%ds", seconds)
}
