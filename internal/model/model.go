package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProcessorType identifies which processor handled a payment.
type ProcessorType string

const (
	ProcessorDefault   ProcessorType = "default"
	ProcessorFallback  ProcessorType = "fallback"
	ProcessorSimulated ProcessorType = "simulated"
)

// PaymentStatus represents the persisted state of a payment.
type PaymentStatus string

const (
	StatusProcessed PaymentStatus = "processed"
	StatusFailed    PaymentStatus = "failed"
	StatusPending   PaymentStatus = "pending"
)

// PaymentRequest represents an incoming payment submission.
type PaymentRequest struct {
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
}

// Payment is a ledger row.
type Payment struct {
	ID            int64           `json:"id"`
	CorrelationID uuid.UUID       `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
	Processor     ProcessorType   `json:"processor"`
	RequestedAt   time.Time       `json:"requestedAt"`
	ProcessedAt   time.Time       `json:"processedAt"`
	Status        PaymentStatus   `json:"status"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
}

// Receipt is the successful outcome of a payment submission.
type Receipt struct {
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
	Processor     ProcessorType   `json:"processor"`
}

// ProcessorPayload is the wire body sent to a processor's payment endpoint.
// RequestedAt is always included, in UTC.
type ProcessorPayload struct {
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
	RequestedAt   time.Time       `json:"requestedAt"`
}

// MinResponseTimeSentinel is reported when a health probe fails.
const MinResponseTimeSentinel = 999999

// HealthSnapshot is the cached view of a processor's last health probe.
type HealthSnapshot struct {
	Failing         bool      `json:"failing"`
	MinResponseTime int       `json:"minResponseTime"`
	ResponseTimeMs  int64     `json:"responseTimeMs"`
	LastCheckedAt   time.Time `json:"lastCheckedAt"`
	IsHealthy       bool      `json:"isHealthy"`
	Error           string    `json:"error,omitempty"`
	StatusCode      int       `json:"statusCode,omitempty"`
}

// ProcessorSummary aggregates processed payments for one processor.
type ProcessorSummary struct {
	TotalRequests int64           `json:"totalRequests"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

// Summary is the aggregate answer for a time window. Both processor keys
// are always present.
type Summary struct {
	Default  ProcessorSummary `json:"default"`
	Fallback ProcessorSummary `json:"fallback"`
}

// ZeroSummary returns a summary with both processors zeroed.
func ZeroSummary() Summary {
	return Summary{
		Default:  ProcessorSummary{TotalAmount: decimal.Zero},
		Fallback: ProcessorSummary{TotalAmount: decimal.Zero},
	}
}
