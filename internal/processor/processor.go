package processor

import (
	"context"

	"github.com/voltpay/volt-payment-gateway/internal/model"
)

// Processor defines the operations the dispatch engine needs from one
// external payment processor.
type Processor interface {
	// Name returns the processor's routing identity.
	Name() model.ProcessorType
	// Pay submits a charge. A nil error means the processor accepted it.
	Pay(ctx context.Context, payload model.ProcessorPayload) error
	// Health probes the processor's service-health endpoint. It never
	// returns an error; failures synthesize a failing snapshot.
	Health(ctx context.Context) model.HealthSnapshot
}
