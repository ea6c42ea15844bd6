package consistency

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltpay/volt-payment-gateway/internal/model"
)

func TestCorrelationIDFormat(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid v4", "550e8400-e29b-41d4-a716-446655440000", true},
		{"valid v4 uppercase", "550E8400-E29B-41D4-A716-446655440000", true},
		{"uuid v1", "f47ac10b-58cc-1372-a567-0e02b2c3d479", false},
		{"wrong variant", "550e8400-e29b-41d4-c716-446655440000", false},
		{"not a uuid", "not-a-uuid", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CorrelationIDFormat(tt.id).Passed)
		})
	}
}

func TestAmountFormat(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   bool
	}{
		{"one cent", "0.01", true},
		{"round value", "100.50", true},
		{"integer", "42", true},
		{"zero", "0", false},
		{"negative", "-5.00", false},
		{"three decimals", "100.555", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, AmountFormat(amount).Passed)
		})
	}
}

func TestTimestampFormat(t *testing.T) {
	assert.True(t, TimestampFormat("2026-08-26T12:00:00Z").Passed)
	assert.False(t, TimestampFormat("2026-08-26 12:00:00Z").Passed, "missing T")
	assert.False(t, TimestampFormat("2026-08-26T12:00:00+02:00").Passed, "missing Z")
	assert.False(t, TimestampFormat("garbageTZ").Passed)
}

func TestProcessorType(t *testing.T) {
	assert.True(t, ProcessorType(model.ProcessorDefault).Passed)
	assert.True(t, ProcessorType(model.ProcessorFallback).Passed)
	assert.False(t, ProcessorType(model.ProcessorSimulated).Passed)
	assert.False(t, ProcessorType("other").Passed)
}

func TestNoDuplicateCorrelationID(t *testing.T) {
	assert.True(t, NoDuplicateCorrelationID(false).Passed)

	dup := NoDuplicateCorrelationID(true)
	assert.False(t, dup.Passed)
	assert.NotEmpty(t, dup.Detail)
}

func TestDateRange(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	assert.True(t, DateRange(&early, &late).Passed)
	assert.True(t, DateRange(nil, &late).Passed)
	assert.True(t, DateRange(&early, nil).Passed)
	assert.True(t, DateRange(nil, nil).Passed)
	assert.True(t, DateRange(&early, &early).Passed, "closed interval allows equal bounds")
	assert.False(t, DateRange(&late, &early).Passed)
}

func TestPaymentRequest(t *testing.T) {
	ok := PaymentRequest("550e8400-e29b-41d4-a716-446655440000", decimal.RequireFromString("100.50"))
	assert.True(t, ok.Passed())
	assert.Empty(t, ok.Failures())

	bad := PaymentRequest("nope", decimal.RequireFromString("-1"))
	assert.False(t, bad.Passed())
	require.Len(t, bad.Failures(), 2)
	assert.Contains(t, bad.FailureDetail(), "correlation_id_format")
	assert.Contains(t, bad.FailureDetail(), "amount_format")
}

func TestSummaryChecks(t *testing.T) {
	ok := Summary(model.ZeroSummary())
	assert.True(t, ok.Passed())

	neg := model.ZeroSummary()
	neg.Fallback.TotalAmount = decimal.RequireFromString("-1")
	res := Summary(neg)
	assert.False(t, res.Passed())
	assert.Contains(t, res.FailureDetail(), "summary_amounts")

	negCount := model.ZeroSummary()
	negCount.Default.TotalRequests = -1
	res = Summary(negCount)
	assert.False(t, res.Passed())
	assert.Contains(t, res.FailureDetail(), "summary_counts")
}
