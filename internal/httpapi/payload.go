package httpapi

import (
	"time"

	"github.com/sheldongordon4/coherence-engine/internal/metrics"
	"github.com/sheldongordon4/coherence-engine/internal/storage"
)

// methodDescription names the computation for API consumers. It changes
// only when the math itself changes.
const methodDescription = "rolling mean/stdev; half-window trend"

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type interpretationPayload struct {
	Stability       string `json:"stability"`
	TrustContinuity string `json:"trustContinuity"`
	CoherenceTrend  string `json:"coherenceTrend"`
}

type metaPayload struct {
	Method    string `json:"method"`
	WindowSec int    `json:"windowSec"`
	N         int    `json:"n"`
	Timestamp string `json:"timestamp"`
}

// metricsResponse is the coherence metrics payload. The legacy trio
// mirrors the canonical fields value for value; it exists purely at this
// serialization boundary and is dropped when include_legacy is false.
type metricsResponse struct {
	InteractionStability     float64               `json:"interactionStability"`
	SignalVolatility         float64               `json:"signalVolatility"`
	TrustContinuityRiskLevel string                `json:"trustContinuityRiskLevel"`
	CoherenceTrend           string                `json:"coherenceTrend"`
	Interpretation           interpretationPayload `json:"interpretation"`
	Meta                     metaPayload           `json:"meta"`

	CoherenceMean      *float64 `json:"coherenceMean,omitempty"`
	VolatilityIndex    *float64 `json:"volatilityIndex,omitempty"`
	PredictedDriftRisk *string  `json:"predictedDriftRisk,omitempty"`
}

func newMetricsResponse(result metrics.Result, includeLegacy bool) metricsResponse {
	resp := metricsResponse{
		InteractionStability:     result.Stability,
		SignalVolatility:         result.Volatility,
		TrustContinuityRiskLevel: string(result.RiskLevel),
		CoherenceTrend:           string(result.Trend),
		Interpretation: interpretationPayload{
			Stability:       result.Interpretation.Stability,
			TrustContinuity: result.Interpretation.TrustContinuity,
			CoherenceTrend:  string(result.Interpretation.CoherenceTrend),
		},
		Meta: metaPayload{
			Method:    methodDescription,
			WindowSec: result.WindowSeconds,
			N:         result.SampleCount,
			Timestamp: result.ComputedAt.UTC().Format(time.RFC3339),
		},
	}

	if includeLegacy {
		mean := result.Stability
		vol := result.Volatility
		risk := string(result.RiskLevel)
		resp.CoherenceMean = &mean
		resp.VolatilityIndex = &vol
		resp.PredictedDriftRisk = &risk
	}

	return resp
}

type historyRowPayload struct {
	Timestamp  string  `json:"ts_utc"`
	WindowSec  int     `json:"window_sec"`
	N          int     `json:"n"`
	Stability  float64 `json:"stability"`
	Volatility float64 `json:"volatility"`
	RiskLevel  string  `json:"risk_level"`
	Source     string  `json:"source"`
	RequestID  string  `json:"request_id,omitempty"`
}

type historyResponse struct {
	Count int                 `json:"count"`
	Rows  []historyRowPayload `json:"rows"`
}

func newHistoryResponse(rows []storage.Row) historyResponse {
	payload := make([]historyRowPayload, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, historyRowPayload{
			Timestamp:  row.Timestamp.UTC().Format(time.RFC3339Nano),
			WindowSec:  row.WindowSeconds,
			N:          row.SampleCount,
			Stability:  row.Stability,
			Volatility: row.Volatility,
			RiskLevel:  row.RiskLevel,
			Source:     row.Source,
			RequestID:  row.RequestID,
		})
	}
	return historyResponse{Count: len(payload), Rows: payload}
}

type ingestResponse struct {
	OK           bool  `json:"ok"`
	Records      int   `json:"records"`
	LatencyMS    int64 `json:"latency_ms"`
	PagesFetched int   `json:"pages_fetched"`
	Retries      int   `json:"retries"`
}

type lastIngestPayload struct {
	Source    string `json:"source"`
	Upstream  string `json:"upstream"`
	Records   int    `json:"records"`
	Pages     int    `json:"pages"`
	Retries   int    `json:"retries"`
	LatencyMS int64  `json:"latency_ms"`
	At        string `json:"at"`
}

type statusResponse struct {
	Service            string             `json:"service"`
	Version            string             `json:"version"`
	Environment        string             `json:"environment"`
	StartedAt          string             `json:"startedAt"`
	Now                string             `json:"now"`
	UptimeSec          int64              `json:"uptimeSec"`
	PersistenceBackend string             `json:"persistenceBackend"`
	DefaultWindowSec   int                `json:"defaultWindowSec"`
	DefaultSource      string             `json:"defaultSource"`
	LastIngest         *lastIngestPayload `json:"lastIngest"`
}
