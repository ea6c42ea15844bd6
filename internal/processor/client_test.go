package processor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltpay/volt-payment-gateway/internal/fault"
	"github.com/voltpay/volt-payment-gateway/internal/metrics"
	"github.com/voltpay/volt-payment-gateway/internal/model"
)

func newTestClient(baseURL string) *Client {
	rec := metrics.NewRecorder(100, time.Minute, 0, slog.New(slog.DiscardHandler))
	return NewClient(ClientConfig{
		Name:           model.ProcessorDefault,
		BaseURL:        baseURL,
		PaymentTimeout: 2 * time.Second,
		HealthTimeout:  time.Second,
	}, rec)
}

func testPayload() model.ProcessorPayload {
	return model.ProcessorPayload{
		CorrelationID: "550e8400-e29b-41d4-a716-446655440000",
		Amount:        decimal.RequireFromString("100.50"),
		RequestedAt:   time.Now().UTC(),
	}
}

func TestPay_Success(t *testing.T) {
	var got model.ProcessorPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, userAgent, r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Pay(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", got.CorrelationID)
	assert.False(t, got.RequestedAt.IsZero(), "requestedAt is always included")
}

func TestPay_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Pay(context.Background(), testPayload())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Transient))

	var call *CallError
	require.True(t, errors.As(err, &call))
	assert.Equal(t, http.StatusInternalServerError, call.StatusCode)
}

func TestPay_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unprocessable", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Pay(context.Background(), testPayload())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Permanent))
}

func TestPay_TransportErrorIsTransient(t *testing.T) {
	err := newTestClient("http://127.0.0.1:1").Pay(context.Background(), testPayload())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Transient))
}

func TestHealth_ParsesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/service-health", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"failing": false, "minResponseTime": 42})
	}))
	defer srv.Close()

	snap := newTestClient(srv.URL).Health(context.Background())
	assert.False(t, snap.Failing)
	assert.True(t, snap.IsHealthy)
	assert.Equal(t, 42, snap.MinResponseTime)
	assert.Equal(t, http.StatusOK, snap.StatusCode)
	assert.Empty(t, snap.Error)
	assert.False(t, snap.LastCheckedAt.IsZero())
}

func TestHealth_FailureSynthesizesFailingSnapshot(t *testing.T) {
	snap := newTestClient("http://127.0.0.1:1").Health(context.Background())
	assert.True(t, snap.Failing)
	assert.Equal(t, model.MinResponseTimeSentinel, snap.MinResponseTime)
	assert.NotEmpty(t, snap.Error)
}

func TestHealth_Non200SynthesizesFailingSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	snap := newTestClient(srv.URL).Health(context.Background())
	assert.True(t, snap.Failing)
	assert.Equal(t, http.StatusTooManyRequests, snap.StatusCode)
	assert.Equal(t, model.MinResponseTimeSentinel, snap.MinResponseTime)
}
