package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// PubSubTransmitterConfig holds configuration for the Google Pub/Sub transmitter.
type PubSubTransmitterConfig struct {
	TopicID string
	// TopicExistsTimeout bounds the topic existence check at construction.
	TopicExistsTimeout time.Duration
	// PublishConfirmationTimeout bounds the wait for a publish result.
	PublishConfirmationTimeout time.Duration
}

// PubSubTransmitter publishes presence signals to a Google Pub/Sub topic,
// for deployments where server-side consumers fan presence out to dashboards.
// Each Send waits for publish confirmation so the dispatcher observes real
// delivery failures.
type PubSubTransmitter struct {
	topic                      *pubsub.Topic
	logger                     zerolog.Logger
	publishConfirmationTimeout time.Duration
}

// NewPubSubTransmitter creates a new PubSubTransmitter. It validates the
// topic's existence before returning a functional transmitter.
func NewPubSubTransmitter(
	ctx context.Context,
	cfg PubSubTransmitterConfig,
	client *pubsub.Client,
	logger zerolog.Logger,
) (*PubSubTransmitter, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if cfg.TopicExistsTimeout <= 0 {
		cfg.TopicExistsTimeout = 15 * time.Second
	}
	if cfg.PublishConfirmationTimeout <= 0 {
		cfg.PublishConfirmationTimeout = 20 * time.Second
	}

	topic := client.Topic(cfg.TopicID)
	// Presence signals are small and latency-sensitive; disable batching.
	topic.PublishSettings.CountThreshold = 1
	topic.PublishSettings.DelayThreshold = 10 * time.Millisecond

	existsCtx, cancel := context.WithTimeout(ctx, cfg.TopicExistsTimeout)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	logger.Info().Str("topic_id", cfg.TopicID).Msg("PubSubTransmitter initialized successfully.")
	return &PubSubTransmitter{
		topic:                      topic,
		logger:                     logger.With().Str("component", "PubSubTransmitter").Str("topic_id", cfg.TopicID).Logger(),
		publishConfirmationTimeout: cfg.PublishConfirmationTimeout,
	}, nil
}

// Send publishes the signal and waits for confirmation.
func (t *PubSubTransmitter) Send(ctx context.Context, signal Signal) error {
	payload, err := json.Marshal(wireSignal{Signal: signal, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, t.publishConfirmationTimeout)
	defer cancel()

	res := t.topic.Publish(pubCtx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"deviceId": signal.DeviceID},
	})
	msgID, err := res.Get(pubCtx)
	if err != nil {
		return fmt.Errorf("failed to publish presence signal: %w", err)
	}

	t.logger.Debug().Str("pubsub_msg_id", msgID).Str("status", string(signal.Status)).Msg("Presence signal published.")
	return nil
}

// Close stops the topic's publisher goroutines, flushing any buffered
// messages. The Pub/Sub client's lifecycle is managed externally.
func (t *PubSubTransmitter) Close() error {
	if t.topic != nil {
		t.topic.Stop()
	}
	return nil
}
