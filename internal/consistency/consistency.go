// Package consistency implements the local, side-effect-free checks run
// before dispatching a payment and after computing a summary. Checks never
// panic and never block; they produce result objects suitable for logging.
package consistency

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltpay/volt-payment-gateway/internal/model"
)

var uuidV4 = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// Check is the outcome of a single named check.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Result collects the outcomes of a group of checks.
type Result struct {
	Checks []Check `json:"checks"`
}

// Passed reports whether every check in the result passed.
func (r Result) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failures returns the checks that did not pass.
func (r Result) Failures() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// FailureDetail renders the failed checks as a single string for error messages.
func (r Result) FailureDetail() string {
	parts := make([]string, 0, len(r.Checks))
	for _, c := range r.Failures() {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Name, c.Detail))
	}
	return strings.Join(parts, "; ")
}

func pass(name string) Check {
	return Check{Name: name, Passed: true}
}

func fail(name, detail string) Check {
	return Check{Name: name, Passed: false, Detail: detail}
}

// CorrelationIDFormat checks that id is a UUID v4.
func CorrelationIDFormat(id string) Check {
	if !uuidV4.MatchString(id) {
		return fail("correlation_id_format", "must be a UUID v4")
	}
	return pass("correlation_id_format")
}

// AmountFormat checks that amount is strictly positive with at most two
// fractional digits.
func AmountFormat(amount decimal.Decimal) Check {
	if !amount.IsPositive() {
		return fail("amount_format", "must be strictly positive")
	}
	if !amount.Mul(decimal.NewFromInt(100)).IsInteger() {
		return fail("amount_format", "must have at most two decimal places")
	}
	return pass("amount_format")
}

// ProcessorType checks that p is a routable processor.
func ProcessorType(p model.ProcessorType) Check {
	if p != model.ProcessorDefault && p != model.ProcessorFallback {
		return fail("processor_type", fmt.Sprintf("unknown processor %q", p))
	}
	return pass("processor_type")
}

// TimestampFormat checks that ts parses and carries the UTC markers.
func TimestampFormat(ts string) Check {
	if !strings.Contains(ts, "T") || !strings.Contains(ts, "Z") {
		return fail("timestamp_format", "must contain T and Z (UTC)")
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		return fail("timestamp_format", "not a parseable timestamp")
	}
	return pass("timestamp_format")
}

// NoDuplicateCorrelationID is best effort: seen comes from a bounded cache
// probe, and the store's unique index remains the enforcer. A duplicate is
// logged, never rejected.
func NoDuplicateCorrelationID(seen bool) Check {
	if seen {
		return fail("no_duplicate_correlation_id", "correlation id processed recently")
	}
	return pass("no_duplicate_correlation_id")
}

// DateRange checks that from does not exceed to when both bounds are present.
func DateRange(from, to *time.Time) Check {
	if from != nil && to != nil && from.After(*to) {
		return fail("date_range", "from must not be after to")
	}
	return pass("date_range")
}

// PaymentRequest runs the pre-flight checks for a payment submission.
// Duplicate detection is best-effort only; the ledger's unique index is
// the enforcer.
func PaymentRequest(correlationID string, amount decimal.Decimal) Result {
	return Result{Checks: []Check{
		CorrelationIDFormat(correlationID),
		AmountFormat(amount),
	}}
}

// Summary validates the shape of an aggregate result: both processor keys
// present with non-negative counts and amounts.
func Summary(s model.Summary) Result {
	checks := []Check{pass("summary_structure")}

	amounts := pass("summary_amounts")
	if s.Default.TotalAmount.IsNegative() || s.Fallback.TotalAmount.IsNegative() {
		amounts = fail("summary_amounts", "totalAmount must be >= 0")
	}
	checks = append(checks, amounts)

	counts := pass("summary_counts")
	if s.Default.TotalRequests < 0 || s.Fallback.TotalRequests < 0 {
		counts = fail("summary_counts", "totalRequests must be >= 0")
	}
	checks = append(checks, counts)

	return Result{Checks: checks}
}
