package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const summaryPath = "/signals/summary"

// maxPagesHardCap bounds the pagination loop even against a misbehaving
// upstream that always returns a next page.
const maxPagesHardCap = 50

// DarshanOptions parameterise the remote signal client. InputScale
// declares the scale the upstream publishes on (ScaleUnit or
// ScalePercent); it is applied unconditionally, never inferred from the
// values.
type DarshanOptions struct {
	BaseURL       string
	APIKey        string
	InputScale    string
	PageSize      int
	Timeout       time.Duration
	RetryAttempts int
	RetryBaseWait time.Duration
	RetryMaxWait  time.Duration
}

// Darshan pulls paginated signal summaries from the Darshan API. Fetches
// are read-only GETs, so retried pages are idempotent by construction.
type Darshan struct {
	opts    DarshanOptions
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewDarshan constructs the client, filling conservative defaults for any
// unset option.
func NewDarshan(opts DarshanOptions, logger zerolog.Logger) *Darshan {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBaseWait <= 0 {
		opts.RetryBaseWait = 500 * time.Millisecond
	}
	if opts.RetryMaxWait <= 0 {
		opts.RetryMaxWait = 3 * time.Second
	}
	if opts.InputScale == "" {
		opts.InputScale = ScaleUnit
	}

	return &Darshan{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  logger.With().Str("component", "darshan_source").Logger(),
	}
}

// Name implements Provider.
func (d *Darshan) Name() string { return NameDarshan }

// Fetch implements Provider. It walks the summary pages for the window
// ending now, retrying each page with exponential backoff before giving up
// with ErrIngestUnavailable.
func (d *Darshan) Fetch(ctx context.Context, windowSeconds int) ([]float64, Meta, error) {
	end := time.Now().UTC()
	start := end.Add(-time.Duration(windowSeconds) * time.Second)
	return d.FetchRange(ctx, start, end)
}

// FetchRange is Fetch with explicit bounds, exposed for the manual ingest
// endpoint.
func (d *Darshan) FetchRange(ctx context.Context, start, end time.Time) ([]float64, Meta, error) {
	if d.baseURL == "" {
		return nil, Meta{}, fmt.Errorf("darshan base URL not configured")
	}

	t0 := time.Now()
	meta := Meta{Upstream: "darshan:api"}

	var values []float64
	nextPage := ""
	for page := 0; page < maxPagesHardCap; page++ {
		params := url.Values{}
		params.Set("page_size", strconv.Itoa(d.opts.PageSize))
		params.Set("start_ts", start.Format(time.RFC3339))
		params.Set("end_ts", end.Format(time.RFC3339))
		if nextPage != "" {
			params.Set("page", nextPage)
		}

		payload, retries, err := d.getPage(ctx, params)
		meta.Retries += retries
		if err != nil {
			meta.Latency = time.Since(t0)
			return nil, meta, err
		}

		meta.Pages++
		for _, row := range payload.rows() {
			values = append(values, row.CoherenceScore)
		}

		nextPage = payload.nextPage()
		if nextPage == "" {
			break
		}
	}

	values = ConvertScale(values, d.opts.InputScale)
	meta.Records = len(values)
	meta.Latency = time.Since(t0)

	d.logger.Debug().
		Int("records", meta.Records).
		Int("pages", meta.Pages).
		Int("retries", meta.Retries).
		Dur("latency", meta.Latency).
		Msg("darshan fetch complete")

	return values, meta, nil
}

// getPage fetches one page, retrying transient failures with exponential
// backoff. The loop is deliberately explicit: attempt count and waits are
// visible state, and exhaustion surfaces as ErrIngestUnavailable.
func (d *Darshan) getPage(ctx context.Context, params url.Values) (*summaryPage, int, error) {
	var lastErr error
	retries := 0

	wait := d.opts.RetryBaseWait
	for attempt := 1; attempt <= d.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			retries++
			select {
			case <-ctx.Done():
				return nil, retries, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
			if wait > d.opts.RetryMaxWait {
				wait = d.opts.RetryMaxWait
			}
		}

		page, err := d.doRequest(ctx, params)
		if err == nil {
			return page, retries, nil
		}
		lastErr = err
		d.logger.Warn().Err(err).Int("attempt", attempt).Msg("darshan page fetch failed")
	}

	return nil, retries, fmt.Errorf("%w: %d attempts: %v", ErrIngestUnavailable, d.opts.RetryAttempts, lastErr)
}

func (d *Darshan) doRequest(ctx context.Context, params url.Values) (*summaryPage, error) {
	endpoint := d.baseURL + summaryPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if d.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.opts.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("darshan api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page summaryPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("invalid response schema: %w", err)
	}
	return &page, nil
}

type summaryRow struct {
	Timestamp      string  `json:"timestamp"`
	CoherenceScore float64 `json:"coherenceScore"`
}

// summaryPage tolerates both field spellings the upstream has shipped.
type summaryPage struct {
	Items    []summaryRow `json:"items"`
	Data     []summaryRow `json:"data"`
	NextPage string       `json:"next_page"`
	Next     string       `json:"next"`
}

func (p *summaryPage) rows() []summaryRow {
	if len(p.Items) > 0 {
		return p.Items
	}
	return p.Data
}

func (p *summaryPage) nextPage() string {
	if p.NextPage != "" {
		return p.NextPage
	}
	return p.Next
}

var _ Provider = (*Darshan)(nil)
