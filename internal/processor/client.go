package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voltpay/volt-payment-gateway/internal/fault"
	"github.com/voltpay/volt-payment-gateway/internal/metrics"
	"github.com/voltpay/volt-payment-gateway/internal/model"
)

const userAgent = "volt-payment-gateway/1.0"

// CallError is the typed error raised for a rejected or failed payment call.
type CallError struct {
	Processor  model.ProcessorType
	StatusCode int
	Message    string
	Timeout    bool
}

func (e *CallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("processor %s returned %d: %s", e.Processor, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("processor %s call failed: %s", e.Processor, e.Message)
}

// ClientConfig holds the settings for one processor client.
type ClientConfig struct {
	Name           model.ProcessorType
	BaseURL        string
	PaymentTimeout time.Duration
	HealthTimeout  time.Duration
}

// Client is a typed HTTP client for one processor. Per-call latency is
// recorded whether or not the call succeeds; failures still consume the
// budget.
type Client struct {
	cfg      ClientConfig
	payHTTP  *http.Client
	probHTTP *http.Client
	recorder *metrics.Recorder
}

// NewClient creates a processor client. recorder may be nil.
func NewClient(cfg ClientConfig, recorder *metrics.Recorder) *Client {
	return &Client{
		cfg: cfg,
		payHTTP: &http.Client{
			Timeout: cfg.PaymentTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		probHTTP: &http.Client{Timeout: cfg.HealthTimeout},
		recorder: recorder,
	}
}

func (c *Client) Name() model.ProcessorType {
	return c.cfg.Name
}

// Pay POSTs the payment payload to the processor. 2xx is success. A 5xx,
// timeout, or transport error maps to a Transient fault; any other 4xx maps
// to Permanent.
func (c *Client) Pay(ctx context.Context, payload model.ProcessorPayload) error {
	start := time.Now()
	err := c.pay(ctx, payload)
	if c.recorder != nil {
		c.recorder.Record(time.Since(start), err == nil)
	}
	return err
}

func (c *Client) pay(ctx context.Context, payload model.ProcessorPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fault.Wrap(fault.Permanent, "marshal payment payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return fault.Wrap(fault.Permanent, "build payment request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.payHTTP.Do(req)
	if err != nil {
		call := &CallError{Processor: c.cfg.Name, Message: err.Error(), Timeout: isTimeout(err)}
		return fault.Wrap(fault.Transient, "payment call failed", call)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	call := &CallError{Processor: c.cfg.Name, StatusCode: resp.StatusCode, Message: string(msg)}
	if resp.StatusCode >= 500 {
		return fault.Wrap(fault.Transient, "processor error", call)
	}
	return fault.Wrap(fault.Permanent, "processor rejected payment", call)
}

// Health GETs the processor's service-health endpoint. On any failure it
// synthesizes a failing snapshot carrying the sentinel response time.
func (c *Client) Health(ctx context.Context) model.HealthSnapshot {
	start := time.Now()

	snap := model.HealthSnapshot{
		Failing:         true,
		MinResponseTime: model.MinResponseTimeSentinel,
		LastCheckedAt:   time.Now().UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/payments/service-health", nil)
	if err != nil {
		snap.Error = err.Error()
		return snap
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.probHTTP.Do(req)
	snap.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		snap.Error = err.Error()
		return snap
	}
	defer resp.Body.Close()

	snap.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		snap.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return snap
	}

	var wire struct {
		Failing         bool `json:"failing"`
		MinResponseTime int  `json:"minResponseTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		snap.Error = "malformed health response: " + err.Error()
		return snap
	}

	snap.Failing = wire.Failing
	snap.MinResponseTime = wire.MinResponseTime
	snap.IsHealthy = !wire.Failing
	snap.Error = ""
	return snap
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
