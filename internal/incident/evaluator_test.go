package incident

import (
	"testing"
	"time"

	"github.com/sheldongordon4/coherence-engine/internal/metrics"
)

func sampleResult(risk metrics.RiskLevel) metrics.Result {
	return metrics.Result{
		Stability:     0.70,
		Volatility:    0.15,
		RiskLevel:     risk,
		Trend:         metrics.TrendSteady,
		WindowSeconds: 3600,
		SampleCount:   120,
		ComputedAt:    time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestEvaluateEmitsAtOrAboveGate(t *testing.T) {
	trace := Trace{Source: "coherence_engine", Upstream: "mock:synthetic"}

	record, ok := Evaluate(sampleResult(metrics.RiskMedium), metrics.RiskLow, trace)
	if !ok {
		t.Fatal("medium risk with a low gate should emit")
	}
	if record.EventType != EventTrustContinuityAlert {
		t.Fatalf("unexpected event type %q", record.EventType)
	}
	if record.WindowLabel != "1h" {
		t.Fatalf("expected window label 1h, got %q", record.WindowLabel)
	}
	if record.Stability != 0.70 || record.Volatility != 0.15 {
		t.Fatalf("record should carry the result's metrics, got %+v", record)
	}
	if record.Trace != trace {
		t.Fatalf("trace should pass through untouched, got %+v", record.Trace)
	}
}

func TestEvaluateSuppressesBelowGate(t *testing.T) {
	if _, ok := Evaluate(sampleResult(metrics.RiskLow), metrics.RiskMedium, Trace{}); ok {
		t.Fatal("low risk with a medium gate should emit nothing")
	}
}

func TestEvaluateEqualSeverityEmits(t *testing.T) {
	for _, level := range []metrics.RiskLevel{metrics.RiskLow, metrics.RiskMedium, metrics.RiskHigh} {
		if _, ok := Evaluate(sampleResult(level), level, Trace{}); !ok {
			t.Fatalf("risk equal to the gate (%s) should emit", level)
		}
	}
}

func TestEvaluateTimestampFromResult(t *testing.T) {
	res := sampleResult(metrics.RiskHigh)
	record, ok := Evaluate(res, metrics.RiskLow, Trace{})
	if !ok {
		t.Fatal("expected emission")
	}
	if !record.Timestamp.Equal(res.ComputedAt) {
		t.Fatalf("record timestamp should match computation time, got %v", record.Timestamp)
	}
}

func TestWindowLabel(t *testing.T) {
	cases := map[int]string{
		3600:  "1h",
		86400: "24h",
		7200:  "2h",
		1800:  "30m",
		300:   "5m",
		45:    "45s",
		60:    "1m",
		61:    "61s",
	}
	for seconds, want := range cases {
		if got := WindowLabel(seconds); got != want {
			t.Fatalf("WindowLabel(%d) = %q, want %q", seconds, got, want)
		}
	}
}
