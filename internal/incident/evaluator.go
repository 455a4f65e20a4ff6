package incident

import (
	"github.com/sheldongordon4/coherence-engine/internal/metrics"
)

// Evaluate decides whether a computed result crosses the alert gate. A
// record materialises iff the result's risk level meets or exceeds
// minSeverity under the low < medium < high order; otherwise ok is false
// and the caller logs "no incident emitted" rather than erroring.
//
// Evaluation is pure: persistence of the returned record belongs to an
// injected Sink, never to this function.
func Evaluate(result metrics.Result, minSeverity metrics.RiskLevel, trace Trace) (Record, bool) {
	if result.RiskLevel.Rank() < minSeverity.Rank() {
		return Record{}, false
	}

	return Record{
		EventType:   EventTrustContinuityAlert,
		Timestamp:   result.ComputedAt,
		WindowLabel: WindowLabel(result.WindowSeconds),
		Stability:   result.Stability,
		Volatility:  result.Volatility,
		RiskLevel:   result.RiskLevel,
		Trace:       trace,
	}, true
}
