package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// TokenSource supplies the bearer credential attached to outbound heartbeat
// calls. It is the boundary to the application's auth/session subsystem;
// the transmitter never caches or inspects the token.
type TokenSource func(ctx context.Context) (string, error)

// HTTPTransmitterConfig holds configuration for the HTTPTransmitter.
type HTTPTransmitterConfig struct {
	// EndpointURL is the heartbeat endpoint signals are POSTed to.
	EndpointURL string
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
}

// HTTPTransmitter delivers signals as JSON POSTs to a REST heartbeat
// endpoint. Any response outside the 2xx range is reported as a failed
// attempt.
type HTTPTransmitter struct {
	cfg    HTTPTransmitterConfig
	client *http.Client
	tokens TokenSource
	logger zerolog.Logger
}

// wireSignal is the request body; it extends Signal with a client-side
// timestamp so the server can order late-arriving queued signals.
type wireSignal struct {
	Signal
	SentAt time.Time `json:"sentAt"`
}

// NewHTTPTransmitter creates a new HTTPTransmitter. The token source may be
// nil for unauthenticated endpoints.
func NewHTTPTransmitter(cfg HTTPTransmitterConfig, tokens TokenSource, logger zerolog.Logger) (*HTTPTransmitter, error) {
	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("endpoint URL cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPTransmitter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
		logger: logger.With().Str("component", "HTTPTransmitter").Logger(),
	}, nil
}

// Send POSTs the signal to the heartbeat endpoint.
func (t *HTTPTransmitter) Send(ctx context.Context, signal Signal) error {
	payload, err := json.Marshal(wireSignal{Signal: signal, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.EndpointURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if t.tokens != nil {
		token, tokenErr := t.tokens(ctx)
		if tokenErr != nil {
			return fmt.Errorf("failed to obtain auth token: %w", tokenErr)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("heartbeat endpoint returned status %d", resp.StatusCode)
	}

	t.logger.Debug().Str("status", string(signal.Status)).Msg("Heartbeat accepted by endpoint.")
	return nil
}
