// Package payment provides engine.Payer implementations.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/cloudx-io/englishauction/core"
)

// HTTPConfig configures the payout gateway client.
type HTTPConfig struct {
	// URL receives one POST per transfer.
	URL string
	// Reference identifies the auction to the gateway.
	Reference string
	// Timeout bounds each request. Zero means ten seconds.
	Timeout time.Duration
	// MaxConsecutiveFailures trips the breaker. Zero means three.
	MaxConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open. Zero means one minute.
	OpenTimeout time.Duration
}

// PayoutRequest is the body posted to the gateway.
type PayoutRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Reference      string `json:"reference,omitempty"`
	Recipient      string `json:"recipient"`
	Amount         string `json:"amount"`
}

// PayoutResponse is the body the gateway answers with.
type PayoutResponse struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// HTTPPayer sends transfers to a payout gateway. Each call carries a fresh
// idempotency key; the engine never retries a transfer on its own.
type HTTPPayer struct {
	cfg     HTTPConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func NewHTTPPayer(cfg HTTPConfig, logger zerolog.Logger) (*HTTPPayer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("payout gateway URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = time.Minute
	}

	log := logger.With().Str("component", "payout_gateway").Logger()
	settings := gobreaker.Settings{
		Name:    "payout-gateway",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &HTTPPayer{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log,
	}, nil
}

// State reports the circuit breaker state.
func (p *HTTPPayer) State() gobreaker.State {
	return p.breaker.State()
}

// Send implements engine.Payer.
func (p *HTTPPayer) Send(ctx context.Context, to core.Identity, amount *uint256.Int) error {
	req := PayoutRequest{
		IdempotencyKey: uuid.NewString(),
		Reference:      p.cfg.Reference,
		Recipient:      string(to),
		Amount:         amount.Dec(),
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.post(ctx, req)
	})
	if err != nil {
		p.log.Error().
			Err(err).
			Str("recipient", req.Recipient).
			Str("amount", req.Amount).
			Str("idempotency_key", req.IdempotencyKey).
			Msg("payout failed")
		return err
	}

	resp := result.(*PayoutResponse)
	p.log.Info().
		Str("recipient", req.Recipient).
		Str("amount", req.Amount).
		Str("transfer_id", resp.TransferID).
		Msg("payout sent")
	return nil
}

func (p *HTTPPayer) post(ctx context.Context, payout PayoutRequest) (*PayoutResponse, error) {
	body, err := json.Marshal(payout)
	if err != nil {
		return nil, fmt.Errorf("marshal payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", payout.IdempotencyKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post payout: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read payout response: %w", err)
	}

	var decoded PayoutResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decode payout response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("payout gateway returned %d: %s", resp.StatusCode, decoded.Message)
	}
	if decoded.Status != "" && decoded.Status != "completed" {
		return nil, fmt.Errorf("payout gateway reported status %q: %s", decoded.Status, decoded.Message)
	}
	return &decoded, nil
}
