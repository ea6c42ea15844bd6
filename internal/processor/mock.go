package processor

import (
	"context"
	"sync"
	"time"

	"github.com/voltpay/volt-payment-gateway/internal/fault"
	"github.com/voltpay/volt-payment-gateway/internal/model"
)

// MockProcessor is a scriptable in-process processor used by tests and
// local development. Outcomes are consumed in order; once the script is
// exhausted the last outcome repeats.
type MockProcessor struct {
	name model.ProcessorType

	mu       sync.Mutex
	script   []error
	idx      int
	failing  bool
	minRT    int
	latency  time.Duration
	payCalls int
}

// NewMockProcessor creates a mock that approves every payment until
// scripted otherwise.
func NewMockProcessor(name model.ProcessorType) *MockProcessor {
	return &MockProcessor{name: name, minRT: 50}
}

// Script sets the sequence of Pay outcomes. Nil entries mean success.
func (p *MockProcessor) Script(outcomes ...error) *MockProcessor {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = outcomes
	p.idx = 0
	return p
}

// AlwaysFail makes every Pay call return a transient fault.
func (p *MockProcessor) AlwaysFail() *MockProcessor {
	return p.Script(fault.New(fault.Transient, string(p.name)+" is down"))
}

// SetFailing toggles the health probe result.
func (p *MockProcessor) SetFailing(failing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing = failing
}

// SetLatency makes each Pay call sleep for d before answering.
func (p *MockProcessor) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = d
}

// PayCalls returns how many times Pay has been invoked.
func (p *MockProcessor) PayCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payCalls
}

func (p *MockProcessor) Name() model.ProcessorType {
	return p.name
}

func (p *MockProcessor) Pay(ctx context.Context, payload model.ProcessorPayload) error {
	p.mu.Lock()
	p.payCalls++
	var out error
	if len(p.script) > 0 {
		i := p.idx
		if i >= len(p.script) {
			i = len(p.script) - 1
		}
		out = p.script[i]
		p.idx++
	}
	latency := p.latency
	p.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return fault.Wrap(fault.Transient, "payment call cancelled", ctx.Err())
		}
	}
	return out
}

func (p *MockProcessor) Health(ctx context.Context) model.HealthSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := model.HealthSnapshot{
		Failing:         p.failing,
		MinResponseTime: p.minRT,
		ResponseTimeMs:  1,
		LastCheckedAt:   time.Now().UTC(),
		IsHealthy:       !p.failing,
	}
	if p.failing {
		snap.MinResponseTime = model.MinResponseTimeSentinel
		snap.Error = string(p.name) + " is failing"
	}
	return snap
}
