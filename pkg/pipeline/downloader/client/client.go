// Package client implements the retry-aware batch client for the upstream
// merchandising data API. Requests carry small fixed-size key batches so a
// failure costs little and a retry is cheap.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	metrics "github.com/tigerroll/merchpipe/pkg/pipeline/core/metrics"
	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	record "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/record"
	retry "github.com/tigerroll/merchpipe/pkg/pipeline/engine/retry"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

const componentName = "batch_client"

// BatchResult is the outcome of one batch fetch: the rows matching the
// requested period, the requested keys actually present in the response, and
// the keys the response silently omitted.
type BatchResult struct {
	Rows    []record.Row
	Present []string
	Missing []string
}

// BatchClient fetches one data type for a batch of store codes.
type BatchClient interface {
	FetchBatch(ctx context.Context, dataType record.DataType, keys []string, period model.Period) (*BatchResult, error)
}

// HTTPClient is the production BatchClient speaking JSON over HTTP.
type HTTPClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	policy   retry.Policy
	recorder metrics.MetricRecorder
}

var _ BatchClient = (*HTTPClient)(nil)

// NewHTTPClient creates a client from the API configuration.
func NewHTTPClient(cfg config.APIConfig, policy retry.Policy, recorder metrics.MetricRecorder) *HTTPClient {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		policy:   policy,
		recorder: recorder,
	}
}

// statusError carries a non-2xx HTTP status through the retry loop so the
// policy's status predicate can classify it.
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

type batchRequest struct {
	Month  string   `json:"month"`
	Stores []string `json:"stores"`
}

type batchResponse struct {
	Rows []map[string]interface{} `json:"rows"`
}

// FetchBatch requests the data type for the key batch, retrying transient
// failures with exponential backoff. Rows are filtered to the requested
// period tag, falling back once to the known alternate tag encodings when the
// exact tag matches nothing.
func (c *HTTPClient) FetchBatch(ctx context.Context, dataType record.DataType, keys []string, period model.Period) (*BatchResult, error) {
	payload, err := json.Marshal(batchRequest{Month: period.YYYYMM, Stores: keys})
	if err != nil {
		return nil, exception.NewPipelineError(componentName, "failed to encode batch request", err, false, false)
	}

	var raw []map[string]interface{}
	maxAttempts := c.policy.MaxAttempts()
	for attempt := 1; ; attempt++ {
		raw, err = c.doRequest(ctx, dataType, payload)
		if err == nil {
			break
		}
		if attempt >= maxAttempts || !c.retryable(err) {
			return nil, exception.NewPipelineError(componentName,
				fmt.Sprintf("batch fetch for %s failed after %d attempt(s)", dataType, attempt), err, false, false)
		}

		interval := c.policy.BackoffInterval(attempt)
		logger.Warnf("Batch fetch for %s failed (attempt %d/%d), retrying in %s: %v", dataType, attempt, maxAttempts, interval, err)
		c.recorder.RecordRetry(ctx, dataType.String(), exception.ExtractErrorMessage(err))
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, exception.NewPipelineError(componentName, "batch fetch cancelled", ctx.Err(), false, false)
		}
	}

	rows := filterByTag(raw, period.Tag())
	if len(rows) == 0 && len(raw) > 0 {
		// The upstream source is inconsistent about zero-padding months in
		// its period tags; retry the match with the known variants.
		for _, alt := range period.AlternateTags() {
			rows = filterByTag(raw, alt)
			if len(rows) > 0 {
				logger.Warnf("Period tag '%s' matched no rows for %s; alternate tag '%s' matched %d.", period.Tag(), dataType, alt, len(rows))
				break
			}
		}
	}

	present := presentKeys(rows, keys)
	missing := missingKeys(keys, present)
	if len(missing) > 0 {
		logger.Warnf("Response for %s omitted %d of %d requested key(s).", dataType, len(missing), len(keys))
	}
	return &BatchResult{Rows: rows, Present: present, Missing: missing}, nil
}

func (c *HTTPClient) doRequest(ctx context.Context, dataType record.DataType, payload []byte) ([]map[string]interface{}, error) {
	url := fmt.Sprintf("%s/%s", c.endpoint, dataType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &statusError{Code: resp.StatusCode}
	}

	var body batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return body.Rows, nil
}

func (c *HTTPClient) retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return c.policy.RetryableStatus(se.Code)
	}
	return c.policy.ShouldRetry(err)
}

func filterByTag(raw []map[string]interface{}, tag string) []record.Row {
	var out []record.Row
	for _, item := range raw {
		if stringValue(item["period"]) != tag {
			continue
		}
		row := record.Row{
			StoreCode: stringValue(item["store_code"]),
			SKU:       stringValue(item["sku"]),
			PeriodTag: tag,
			Values:    make(map[string]string),
		}
		if row.StoreCode == "" {
			continue
		}
		for k, v := range item {
			switch k {
			case "store_code", "sku", "period":
			default:
				row.Values[k] = stringValue(v)
			}
		}
		out = append(out, row)
	}
	return out
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; keep integers unadorned.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

func presentKeys(rows []record.Row, requested []string) []string {
	inRows := make(map[string]bool, len(rows))
	for _, row := range rows {
		inRows[row.StoreCode] = true
	}
	var out []string
	for _, key := range requested {
		if inRows[key] {
			out = append(out, key)
		}
	}
	return out
}

func missingKeys(requested, present []string) []string {
	presentSet := make(map[string]bool, len(present))
	for _, key := range present {
		presentSet[key] = true
	}
	var out []string
	for _, key := range requested {
		if !presentSet[key] {
			out = append(out, key)
		}
	}
	return out
}
