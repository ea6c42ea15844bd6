// Package ledger persists payment outcomes in postgres. Inserts are
// idempotent on correlation id: a conflicting insert is a no-op and the
// original record wins.
package ledger

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/voltpay/volt-payment-gateway/internal/config"
	"github.com/voltpay/volt-payment-gateway/internal/fault"
	"github.com/voltpay/volt-payment-gateway/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PoolStats is a snapshot of the connection pool for the stats endpoints.
type PoolStats struct {
	TotalConns    int32 `json:"totalConns"`
	IdleConns     int32 `json:"idleConns"`
	AcquiredConns int32 `json:"acquiredConns"`
	MaxConns      int32 `json:"maxConns"`
}

// Store is the postgres ledger adapter.
type Store struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// Connect opens a bounded connection pool against the configured database.
func Connect(ctx context.Context, cfg config.DBConfig) (*Store, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, "parse database config", err)
	}
	pc.MinConns = config.DBMinConns
	pc.MaxConns = config.DBMaxConns
	pc.MaxConnIdleTime = config.DBIdleTimeout
	pc.ConnConfig.ConnectTimeout = config.DBConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, "open connection pool", err)
	}
	return &Store{pool: pool, queryTimeout: config.DBQueryTimeout}, nil
}

// EnsureSchema creates the payments table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fault.Wrap(fault.Persistence, "ensure schema", err)
	}
	return nil
}

// PutPayment inserts a processed payment row. A correlation-id conflict
// returns without error and without overwriting.
func (s *Store) PutPayment(ctx context.Context, p model.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	const q = `
		INSERT INTO payments (correlation_id, amount, processor_type, requested_at, processed_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (correlation_id) DO NOTHING`

	processedAt := p.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	status := p.Status
	if status == "" {
		status = model.StatusProcessed
	}

	_, err := s.pool.Exec(ctx, q,
		p.CorrelationID,
		p.Amount,
		string(p.Processor),
		p.RequestedAt,
		processedAt,
		string(status),
	)
	if err != nil {
		return fault.Wrap(fault.Persistence, "insert payment", err)
	}
	return nil
}

// GetSummary aggregates processed payments per processor over a closed
// interval on requested_at. Either bound may be nil. Processors without
// rows come back zeroed; both keys are always present.
func (s *Store) GetSummary(ctx context.Context, from, to *time.Time) (model.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	const q = `
		SELECT processor_type,
		       COUNT(*) AS total_requests,
		       COALESCE(SUM(amount), 0) AS total_amount
		FROM payments
		WHERE status = 'processed'
		  AND ($1::timestamptz IS NULL OR requested_at >= $1::timestamptz)
		  AND ($2::timestamptz IS NULL OR requested_at <= $2::timestamptz)
		GROUP BY processor_type`

	summary := model.ZeroSummary()

	rows, err := s.pool.Query(ctx, q, from, to)
	if err != nil {
		return summary, fault.Wrap(fault.Persistence, "query summary", err)
	}
	defer rows.Close()

	for rows.Next() {
		var processor string
		var totalRequests int64
		var totalAmount decimal.Decimal
		if err := rows.Scan(&processor, &totalRequests, &totalAmount); err != nil {
			return summary, fault.Wrap(fault.Persistence, "scan summary row", err)
		}
		switch model.ProcessorType(processor) {
		case model.ProcessorDefault:
			summary.Default = model.ProcessorSummary{TotalRequests: totalRequests, TotalAmount: totalAmount}
		case model.ProcessorFallback:
			summary.Fallback = model.ProcessorSummary{TotalRequests: totalRequests, TotalAmount: totalAmount}
		}
	}
	if err := rows.Err(); err != nil {
		return summary, fault.Wrap(fault.Persistence, "read summary rows", err)
	}
	return summary, nil
}

// GetPayment fetches one ledger row by correlation id, or nil if absent.
func (s *Store) GetPayment(ctx context.Context, correlationID uuid.UUID) (*model.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	const q = `
		SELECT id, correlation_id, amount, processor_type, requested_at, processed_at, status, COALESCE(error_message, '')
		FROM payments
		WHERE correlation_id = $1`

	var p model.Payment
	var processor, status string
	err := s.pool.QueryRow(ctx, q, correlationID).Scan(
		&p.ID, &p.CorrelationID, &p.Amount, &processor, &p.RequestedAt, &p.ProcessedAt, &status, &p.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, "query payment", err)
	}
	p.Processor = model.ProcessorType(processor)
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

// Stats snapshots the connection pool.
func (s *Store) Stats() PoolStats {
	st := s.pool.Stat()
	return PoolStats{
		TotalConns:    st.TotalConns(),
		IdleConns:     st.IdleConns(),
		AcquiredConns: st.AcquiredConns(),
		MaxConns:      st.MaxConns(),
	}
}

// Close drains the pool.
func (s *Store) Close() {
	s.pool.Close()
}
