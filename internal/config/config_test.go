package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sheldongordon4/coherence-engine/internal/metrics"
	"github.com/sheldongordon4/coherence-engine/internal/source"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: coherence-engine\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	th := cfg.Metrics.Thresholds()
	if th.Warn != 0.10 || th.Critical != 0.25 {
		t.Fatalf("unexpected default risk thresholds: %+v", th)
	}
	if th.StabilityHigh != 0.80 || th.StabilityMedium != 0.55 {
		t.Fatalf("unexpected default stability thresholds: %+v", th)
	}
	if th.TrendSensitivity != 0.03 {
		t.Fatalf("unexpected default trend sensitivity: %v", th.TrendSensitivity)
	}
	if cfg.Metrics.RiskRule != metrics.RiskRuleVolatility {
		t.Fatalf("canonical risk rule should be the default, got %q", cfg.Metrics.RiskRule)
	}
	if cfg.MinSeverity() != metrics.RiskMedium {
		t.Fatalf("unexpected default incident gate: %s", cfg.MinSeverity())
	}
	if cfg.Storage.Backend != "none" {
		t.Fatalf("persistence should default off, got %q", cfg.Storage.Backend)
	}
}

func TestLoadRejectsInvertedRiskThresholds(t *testing.T) {
	_, err := Load(writeConfig(t, `
metrics:
  warn_threshold: 0.30
  critical_threshold: 0.20
`))
	if err == nil {
		t.Fatal("warn above critical must refuse to start")
	}
}

func TestLoadRejectsInvertedStabilityBands(t *testing.T) {
	_, err := Load(writeConfig(t, `
metrics:
  stability_high: 0.50
  stability_medium: 0.60
`))
	if err == nil {
		t.Fatal("stability medium above high must refuse to start")
	}
}

func TestLoadRejectsUnknownRiskRule(t *testing.T) {
	_, err := Load(writeConfig(t, `
metrics:
  risk_rule: blended
`))
	if err == nil {
		t.Fatal("unknown risk rule must refuse to start")
	}
}

func TestLoadRejectsUnknownInputScale(t *testing.T) {
	_, err := Load(writeConfig(t, `
darshan:
  input_scale: permille
`))
	if err == nil {
		t.Fatal("unknown darshan input scale must refuse to start")
	}

	_, err = Load(writeConfig(t, `
metrics:
  mock_scale: raw
`))
	if err == nil {
		t.Fatal("unknown mock scale must refuse to start")
	}
}

func TestLoadDefaultsScalesToUnit(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: coherence-engine\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Darshan.InputScale != source.ScaleUnit {
		t.Fatalf("darshan input scale should default to unit, got %q", cfg.Darshan.InputScale)
	}
	if cfg.Metrics.MockScale != source.ScaleUnit {
		t.Fatalf("mock scale should default to unit, got %q", cfg.Metrics.MockScale)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `
storage:
  backend: dynamo
`))
	if err == nil {
		t.Fatal("unknown storage backend must refuse to start")
	}
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	_, err := Load(writeConfig(t, `
storage:
  backend: postgres
`))
	if err == nil {
		t.Fatal("postgres backend without a dsn must refuse to start")
	}
}

func TestLoadRejectsBadMinSeverity(t *testing.T) {
	_, err := Load(writeConfig(t, `
incidents:
  min_severity: catastrophic
`))
	if err == nil {
		t.Fatal("unknown incident severity must refuse to start")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
metrics:
  warn_threshold: 0.05
  critical_threshold: 0.15
  trend_sensitivity: 0.01
storage:
  backend: sqlite
  sqlite_path: /tmp/coherence.db
incidents:
  min_severity: low
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	th := cfg.Metrics.Thresholds()
	if th.Warn != 0.05 || th.Critical != 0.15 || th.TrendSensitivity != 0.01 {
		t.Fatalf("overrides not applied: %+v", th)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLitePath != "/tmp/coherence.db" {
		t.Fatalf("storage overrides not applied: %+v", cfg.Storage)
	}
	if cfg.MinSeverity() != metrics.RiskLow {
		t.Fatalf("incident gate override not applied: %s", cfg.MinSeverity())
	}
}
