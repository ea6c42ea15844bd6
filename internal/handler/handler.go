package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/voltpay/volt-payment-gateway/internal/audit"
	"github.com/voltpay/volt-payment-gateway/internal/breaker"
	"github.com/voltpay/volt-payment-gateway/internal/cache"
	"github.com/voltpay/volt-payment-gateway/internal/config"
	"github.com/voltpay/volt-payment-gateway/internal/consistency"
	"github.com/voltpay/volt-payment-gateway/internal/dispatcher"
	"github.com/voltpay/volt-payment-gateway/internal/fault"
	"github.com/voltpay/volt-payment-gateway/internal/health"
	"github.com/voltpay/volt-payment-gateway/internal/ledger"
	"github.com/voltpay/volt-payment-gateway/internal/metrics"
	"github.com/voltpay/volt-payment-gateway/internal/model"
	"github.com/voltpay/volt-payment-gateway/internal/summary"
)

const serviceName = "volt-payment-gateway"

// PoolStatsProvider exposes the ledger's connection pool snapshot.
type PoolStatsProvider interface {
	Stats() ledger.PoolStats
}

// PaymentSource looks up single ledger rows for the payment lookup endpoint.
type PaymentSource interface {
	GetPayment(ctx context.Context, correlationID uuid.UUID) (*model.Payment, error)
}

// Params collects the handler's collaborators.
type Params struct {
	Dispatcher      *dispatcher.Dispatcher
	Aggregator      *summary.Aggregator
	Payments        PaymentSource
	Cache           *cache.Cache
	Poller          *health.Poller
	DefaultBreaker  *breaker.Breaker
	FallbackBreaker *breaker.Breaker
	Metrics         *metrics.Recorder
	DefaultCalls    *metrics.Recorder
	FallbackCalls   *metrics.Recorder
	Audit           *audit.Log
	Pool            PoolStatsProvider
	Version         string
	Logger          *slog.Logger
}

// Handler holds HTTP handler dependencies.
type Handler struct {
	dispatcher      *dispatcher.Dispatcher
	aggregator      *summary.Aggregator
	payments        PaymentSource
	cache           *cache.Cache
	poller          *health.Poller
	defaultBreaker  *breaker.Breaker
	fallbackBreaker *breaker.Breaker
	metrics         *metrics.Recorder
	defaultCalls    *metrics.Recorder
	fallbackCalls   *metrics.Recorder
	audit           *audit.Log
	pool            PoolStatsProvider
	version         string
	startedAt       time.Time
	logger          *slog.Logger
}

// New creates a new Handler.
func New(p Params) *Handler {
	return &Handler{
		dispatcher:      p.Dispatcher,
		aggregator:      p.Aggregator,
		payments:        p.Payments,
		cache:           p.Cache,
		poller:          p.Poller,
		defaultBreaker:  p.DefaultBreaker,
		fallbackBreaker: p.FallbackBreaker,
		metrics:         p.Metrics,
		defaultCalls:    p.DefaultCalls,
		fallbackCalls:   p.FallbackCalls,
		audit:           p.Audit,
		pool:            p.Pool,
		version:         p.Version,
		startedAt:       time.Now().UTC(),
		logger:          p.Logger,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /payments", h.SubmitPayment)
	mux.HandleFunc("GET /payments/summary", h.PaymentsSummary)
	mux.HandleFunc("GET /payments/{correlationId}", h.GetPayment)
	mux.HandleFunc("GET /health", h.Liveness)
	mux.HandleFunc("GET /health/payment-processors", h.ProcessorHealth)
	mux.HandleFunc("GET /health/stats", h.Stats)
	mux.HandleFunc("GET /health/performance", h.Performance)
	mux.HandleFunc("GET /health/audit", h.Audit)
	mux.HandleFunc("GET /health/audit/{correlationId}", h.AuditByCorrelation)
	mux.HandleFunc("POST /health/reset-circuit-breakers", h.ResetBreakers)
	mux.HandleFunc("POST /health/clear-health-cache", h.ClearHealthCache)
	mux.HandleFunc("POST /health/clear-audit-logs", h.ClearAuditLogs)
	mux.HandleFunc("/", h.NotFound)
}

// SubmitPayment handles POST /payments.
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req model.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	receipt, err := h.dispatcher.Submit(r.Context(), req)
	if err != nil {
		switch fault.KindOf(err) {
		case fault.Validation:
			writeError(w, http.StatusBadRequest, "validation failed", err.Error())
		case fault.Unavailable:
			writeError(w, http.StatusServiceUnavailable, "payment processors unavailable", "")
		default:
			writeError(w, http.StatusInternalServerError, "payment could not be persisted", "")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "payment processed",
		"correlationId": receipt.CorrelationID,
		"amount":        receipt.Amount,
		"processor":     receipt.Processor,
	})
}

// PaymentsSummary handles GET /payments/summary.
func (h *Handler) PaymentsSummary(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from parameter", err.Error())
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to parameter", err.Error())
		return
	}
	if check := consistency.DateRange(from, to); !check.Passed {
		writeError(w, http.StatusBadRequest, "invalid date range", check.Detail)
		return
	}

	s, err := h.aggregator.Summary(r.Context(), from, to)
	if err != nil {
		h.logger.Error("summary_query_failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "summary unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetPayment handles GET /payments/{correlationId}. Lookups read through
// the correlation cache; the entry is dropped whenever the row is rewritten.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("correlationId")
	if check := consistency.CorrelationIDFormat(id); !check.Passed {
		writeError(w, http.StatusBadRequest, "validation failed", check.Detail)
		return
	}

	key := cache.CorrelationKey(id)
	if raw, ok := h.cache.Get(r.Context(), key); ok {
		var p model.Payment
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}

	correlationID, err := uuid.Parse(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	p, err := h.payments.GetPayment(r.Context(), correlationID)
	if err != nil {
		h.logger.Error("payment_lookup_failed", "correlation_id", id, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "payment lookup failed", "")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "payment not found", "")
		return
	}

	if raw, err := json.Marshal(p); err == nil {
		h.cache.Set(r.Context(), key, string(raw), cache.CorrelationTTL)
	}
	writeJSON(w, http.StatusOK, p)
}

// Liveness handles GET /health.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"service":   serviceName,
		"version":   h.version,
	})
}

// ProcessorHealth handles GET /health/payment-processors.
func (h *Handler) ProcessorHealth(w http.ResponseWriter, r *http.Request) {
	snapshots := h.poller.Snapshots(r.Context())

	status := http.StatusOK
	if len(snapshots) == 0 {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"processors": snapshots,
		"circuitBreakers": map[string]breaker.Stats{
			string(model.ProcessorDefault):  h.defaultBreaker.Stats(),
			string(model.ProcessorFallback): h.fallbackBreaker.Stats(),
		},
		"recentResponseTimesMs": h.poller.ResponseTimes(r.Context()),
		"retry": map[string]interface{}{
			"maxRetries":  config.MaxRetries,
			"baseDelayMs": config.RetryBaseDelay.Milliseconds(),
			"maxDelayMs":  config.RetryMaxDelay.Milliseconds(),
			"multiplier":  config.RetryMultiplier,
			"jitter":      config.RetryJitter,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Stats handles GET /health/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":       serviceName,
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
		"requests":      h.metrics.Snapshot(),
		"processorCalls": map[string]metrics.Stats{
			string(model.ProcessorDefault):  h.defaultCalls.Snapshot(),
			string(model.ProcessorFallback): h.fallbackCalls.Snapshot(),
		},
		"circuitBreakers": map[string]breaker.Stats{
			string(model.ProcessorDefault):  h.defaultBreaker.Stats(),
			string(model.ProcessorFallback): h.fallbackBreaker.Stats(),
		},
		"dbPool":    h.pool.Stats(),
		"timestamp": time.Now().UTC(),
	})
}

// Performance handles GET /health/performance.
func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	stats := h.metrics.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"latency": map[string]float64{
			"avgMs": stats.AvgMs,
			"minMs": stats.MinMs,
			"maxMs": stats.MaxMs,
			"p50Ms": stats.P50Ms,
			"p95Ms": stats.P95Ms,
			"p99Ms": stats.P99Ms,
		},
		"throughputPerSec": stats.ThroughputPerSec,
		"successRate":      stats.SuccessRate,
		"sampleCount":      stats.SampleCount,
		"dbPool":           h.pool.Stats(),
		"timestamp":        time.Now().UTC(),
	})
}

// Audit handles GET /health/audit.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	entries := h.audit.All()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// AuditByCorrelation handles GET /health/audit/{correlationId}.
func (h *Handler) AuditByCorrelation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("correlationId")
	entries := h.audit.ByCorrelation(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"correlationId": id,
		"count":         len(entries),
		"entries":       entries,
	})
}

// ResetBreakers handles POST /health/reset-circuit-breakers.
func (h *Handler) ResetBreakers(w http.ResponseWriter, r *http.Request) {
	h.defaultBreaker.Reset()
	h.fallbackBreaker.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"message": "circuit breakers reset"})
}

// ClearHealthCache handles POST /health/clear-health-cache.
func (h *Handler) ClearHealthCache(w http.ResponseWriter, r *http.Request) {
	h.poller.ClearCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"message": "health cache cleared"})
}

// ClearAuditLogs handles POST /health/clear-audit-logs.
func (h *Handler) ClearAuditLogs(w http.ResponseWriter, r *http.Request) {
	h.audit.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"message": "audit logs cleared"})
}

// NotFound answers unknown paths.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}
