package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	metrics "github.com/tigerroll/merchpipe/pkg/pipeline/core/metrics"
	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	record "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/record"
	retry "github.com/tigerroll/merchpipe/pkg/pipeline/engine/retry"
)

func fastPolicy() retry.Policy {
	return retry.NewPolicy(config.RetryConfig{
		MaxAttempts:          3,
		InitialInterval:      1,
		MaxInterval:          5,
		Factor:               2.0,
		RetryableStatusCodes: []int{429, 500, 502, 503, 504},
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPClient(config.APIConfig{
		Endpoint:              server.URL,
		APIKey:                "test-key",
		RequestTimeoutSeconds: 5,
	}, fastPolicy(), metrics.NewNoOpMetricRecorder())
}

func mustPeriod(t *testing.T, yyyymm string, half model.PeriodHalf) model.Period {
	t.Helper()
	p, err := model.NewPeriod(yyyymm, half)
	require.NoError(t, err)
	return p
}

func rowsBody(rows ...map[string]interface{}) []byte {
	b, _ := json.Marshal(map[string]interface{}{"rows": rows})
	return b
}

func TestFetchBatchFiltersByPeriodTag(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sales", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		var req batchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "202509", req.Month)

		w.Write(rowsBody(
			map[string]interface{}{"store_code": "S001", "sku": "K1", "period": "202509A", "qty": 3},
			map[string]interface{}{"store_code": "S001", "sku": "K2", "period": "202509B", "qty": 9},
		))
	})

	result, err := c.FetchBatch(context.Background(), record.TypeSales, []string{"S001"}, mustPeriod(t, "202509", model.PeriodA))
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "K1", result.Rows[0].SKU)
	assert.Equal(t, "3", result.Rows[0].Values["qty"])
	assert.Equal(t, []string{"S001"}, result.Present)
	assert.Empty(t, result.Missing)
}

func TestFetchBatchReportsMissingKeys(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(rowsBody(
			map[string]interface{}{"store_code": "S001", "period": "202509A"},
		))
	})

	result, err := c.FetchBatch(context.Background(), record.TypeConfig, []string{"S001", "S002", "S003"}, mustPeriod(t, "202509", model.PeriodA))
	require.NoError(t, err)
	assert.Equal(t, []string{"S001"}, result.Present)
	assert.Equal(t, []string{"S002", "S003"}, result.Missing)
}

func TestFetchBatchRetriesTransientStatus(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(rowsBody(map[string]interface{}{"store_code": "S001", "period": "202509A"}))
	})

	result, err := c.FetchBatch(context.Background(), record.TypeConfig, []string{"S001"}, mustPeriod(t, "202509", model.PeriodA))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"S001"}, result.Present)
}

func TestFetchBatchFailsFastOnNonRetryableStatus(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.FetchBatch(context.Background(), record.TypeConfig, []string{"S001"}, mustPeriod(t, "202509", model.PeriodA))
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFetchBatchExhaustsRetries(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.FetchBatch(context.Background(), record.TypeConfig, []string{"S001"}, mustPeriod(t, "202509", model.PeriodA))
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestFetchBatchAlternateTagFallback(t *testing.T) {
	// Rows are stamped with the unpadded month variant; the exact tag matches
	// nothing and the client must fall back to "20259A".
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(rowsBody(
			map[string]interface{}{"store_code": "S001", "period": "20259A"},
		))
	})

	result, err := c.FetchBatch(context.Background(), record.TypeConfig, []string{"S001"}, mustPeriod(t, "202509", model.PeriodA))
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, []string{"S001"}, result.Present)
}

func TestFetchBatchEmptyResponseMeansAllMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"rows": []}`)
	})

	result, err := c.FetchBatch(context.Background(), record.TypeConfig, []string{"S001", "S002"}, mustPeriod(t, "202509", model.PeriodA))
	require.NoError(t, err)
	assert.Empty(t, result.Present)
	assert.Equal(t, []string{"S001", "S002"}, result.Missing)
}
