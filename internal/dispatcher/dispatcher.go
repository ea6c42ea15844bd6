// Package dispatcher implements the per-request control flow: validate,
// try the default processor through its breaker and retry schedule, fall
// back on failure, persist the outcome, and invalidate summary caches.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voltpay/volt-payment-gateway/internal/audit"
	"github.com/voltpay/volt-payment-gateway/internal/breaker"
	"github.com/voltpay/volt-payment-gateway/internal/consistency"
	"github.com/voltpay/volt-payment-gateway/internal/fault"
	"github.com/voltpay/volt-payment-gateway/internal/metrics"
	"github.com/voltpay/volt-payment-gateway/internal/model"
	"github.com/voltpay/volt-payment-gateway/internal/processor"
	"github.com/voltpay/volt-payment-gateway/internal/retry"
)

// Ledger is the slice of the store the dispatcher writes through.
type Ledger interface {
	PutPayment(ctx context.Context, p model.Payment) error
}

// Invalidator drops cache entries made stale by a ledger write. Cache
// failures degrade internally and never surface here.
type Invalidator interface {
	InvalidateSummaries(ctx context.Context)
	InvalidatePayment(ctx context.Context, correlationID string)
}

// DuplicateProbe reports whether a correlation id was processed recently.
// Best effort only; it must not block the dispatch path.
type DuplicateProbe interface {
	SeenPayment(ctx context.Context, correlationID string) bool
}

// Route pairs one processor with its circuit breaker.
type Route struct {
	Processor processor.Processor
	Breaker   *breaker.Breaker
}

// Params collects the dispatcher's collaborators. One dispatcher is built
// per replica at the composition root.
type Params struct {
	Default          Route
	Fallback         Route
	Retry            retry.Policy
	Ledger           Ledger
	Invalidator      Invalidator
	Dupes            DuplicateProbe
	Metrics          *metrics.Recorder
	Audit            *audit.Log
	SimulatePayments bool
	Logger           *slog.Logger
}

// Dispatcher routes each payment to the default processor with fallback,
// persisting exactly one ledger row per correlation id.
type Dispatcher struct {
	def      Route
	fallback Route
	retry    retry.Policy
	ledger   Ledger
	inval    Invalidator
	dupes    DuplicateProbe
	metrics  *metrics.Recorder
	audit    *audit.Log
	simulate bool
	logger   *slog.Logger
}

// New creates a Dispatcher from its collaborators.
func New(p Params) *Dispatcher {
	return &Dispatcher{
		def:      p.Default,
		fallback: p.Fallback,
		retry:    p.Retry,
		ledger:   p.Ledger,
		inval:    p.Invalidator,
		dupes:    p.Dupes,
		metrics:  p.Metrics,
		audit:    p.Audit,
		simulate: p.SimulatePayments,
		logger:   p.Logger,
	}
}

// Submit processes one payment. The default attempt strictly precedes any
// fallback attempt; the ledger write strictly precedes cache invalidation
// and the returned receipt. Only the final outcome is surfaced; the audit
// trail records every attempt.
func (d *Dispatcher) Submit(ctx context.Context, req model.PaymentRequest) (model.Receipt, error) {
	// A client disconnect must not abort an in-flight processor call or the
	// ledger write that follows it; per-call timeouts bound the work.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	requestedAt := start.UTC()

	if res := consistency.PaymentRequest(req.CorrelationID, req.Amount); !res.Passed() {
		detail := res.FailureDetail()
		d.audit.Record(audit.Entry{CorrelationID: req.CorrelationID, Event: "validation_failed", Detail: detail})
		d.metrics.Record(time.Since(start), false)
		return model.Receipt{}, fault.New(fault.Validation, detail)
	}

	correlationID, err := uuid.Parse(req.CorrelationID)
	if err != nil {
		d.metrics.Record(time.Since(start), false)
		return model.Receipt{}, fault.Wrap(fault.Validation, "malformed correlation id", err)
	}

	if d.dupes != nil {
		if check := consistency.NoDuplicateCorrelationID(d.dupes.SeenPayment(ctx, req.CorrelationID)); !check.Passed {
			// The store's unique index is the enforcer; duplicates still
			// take the idempotent success path.
			d.logger.Info("duplicate_correlation_id", "correlation_id", req.CorrelationID)
			d.audit.Record(audit.Entry{CorrelationID: req.CorrelationID, Event: "duplicate_detected", Detail: check.Detail})
		}
	}

	payload := model.ProcessorPayload{
		CorrelationID: req.CorrelationID,
		Amount:        req.Amount,
		RequestedAt:   requestedAt,
	}

	processedBy, procErr := d.route(ctx, payload)
	if procErr != nil {
		if !d.simulate {
			d.logger.Warn("both_processors_failed", "correlation_id", req.CorrelationID, "error", procErr.Error())
			d.audit.Record(audit.Entry{CorrelationID: req.CorrelationID, Event: "payment_unavailable", Detail: procErr.Error()})
			d.metrics.Record(time.Since(start), false)
			return model.Receipt{}, fault.Wrap(fault.Unavailable, "all processors exhausted", procErr)
		}
		processedBy = model.ProcessorSimulated
		d.logger.Info("payment_simulated", "correlation_id", req.CorrelationID)
		d.audit.Record(audit.Entry{CorrelationID: req.CorrelationID, Event: "payment_simulated", Processor: string(processedBy)})
	}

	if err := d.persist(ctx, correlationID, req.Amount, processedBy, requestedAt); err != nil {
		// The processor call is authoritative; the charge has happened.
		d.logger.Error("DATABASE_OPERATION FAILED",
			"correlation_id", req.CorrelationID,
			"processor", string(processedBy),
			"error", err.Error(),
		)
		d.audit.Record(audit.Entry{CorrelationID: req.CorrelationID, Event: "persist_failed", Processor: string(processedBy), Detail: err.Error()})
		d.metrics.Record(time.Since(start), false)
		return model.Receipt{}, err
	}

	d.audit.Record(audit.Entry{CorrelationID: req.CorrelationID, Event: "payment_processed", Processor: string(processedBy)})
	d.metrics.Record(time.Since(start), true)
	d.logger.Info("payment_processed",
		"correlation_id", req.CorrelationID,
		"processor", string(processedBy),
		"amount", req.Amount.String(),
	)

	return model.Receipt{
		CorrelationID: req.CorrelationID,
		Amount:        req.Amount,
		Processor:     processedBy,
	}, nil
}

// route tries the default processor, then the fallback. A breaker rejection
// is immediate and terminal for that route: no retries, no backoff.
func (d *Dispatcher) route(ctx context.Context, payload model.ProcessorPayload) (model.ProcessorType, error) {
	err := d.attempt(ctx, d.def, payload)
	if err == nil {
		return model.ProcessorDefault, nil
	}
	d.recordAttemptFailure(payload.CorrelationID, d.def, err)

	err = d.attempt(ctx, d.fallback, payload)
	if err == nil {
		return model.ProcessorFallback, nil
	}
	d.recordAttemptFailure(payload.CorrelationID, d.fallback, err)
	return "", err
}

// attempt composes Breaker(Retry(Call)): inner retries do not count as
// breaker failures individually, only the final outcome does.
func (d *Dispatcher) attempt(ctx context.Context, r Route, payload model.ProcessorPayload) error {
	return r.Breaker.Execute(func() error {
		return d.retry.Run(ctx, func() error {
			return r.Processor.Pay(ctx, payload)
		})
	})
}

func (d *Dispatcher) recordAttemptFailure(correlationID string, r Route, err error) {
	name := string(r.Processor.Name())
	event := "processor_failed"
	if fault.IsKind(err, fault.BreakerOpen) {
		event = "breaker_rejected"
	}
	d.logger.Warn(event,
		"correlation_id", correlationID,
		"processor", name,
		"error", err.Error(),
	)
	d.audit.Record(audit.Entry{CorrelationID: correlationID, Event: event, Processor: name, Detail: err.Error()})
}

func (d *Dispatcher) persist(ctx context.Context, correlationID uuid.UUID, amount decimal.Decimal, processedBy model.ProcessorType, requestedAt time.Time) error {
	p := model.Payment{
		CorrelationID: correlationID,
		Amount:        amount,
		Processor:     processedBy,
		RequestedAt:   requestedAt,
		ProcessedAt:   time.Now().UTC(),
		Status:        model.StatusProcessed,
	}
	if err := d.ledger.PutPayment(ctx, p); err != nil {
		return err
	}
	d.inval.InvalidateSummaries(ctx)
	d.inval.InvalidatePayment(ctx, correlationID.String())
	return nil
}
