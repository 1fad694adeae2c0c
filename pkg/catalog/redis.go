package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/gridctl/toolgate/pkg/logging"
)

// DefaultResetChannel carries cache invalidation messages between replicas.
const DefaultResetChannel = "toolgate:catalog:reset"

// Resetter drops a cached catalog.
type Resetter interface {
	ResetCatalog()
}

// PublishReset asks every subscribed replica to drop its catalog.
func PublishReset(ctx context.Context, client redis.UniversalClient, channel, reason string) error {
	if channel == "" {
		channel = DefaultResetChannel
	}
	if err := client.Publish(ctx, channel, reason).Err(); err != nil {
		return fmt.Errorf("publishing catalog reset: %w", err)
	}
	return nil
}

// ResetSubscriber resets a catalog whenever a message arrives on channel.
type ResetSubscriber struct {
	client  redis.UniversalClient
	channel string
	target  Resetter
	logger  *slog.Logger
}

// NewResetSubscriber creates a subscriber for target.
func NewResetSubscriber(client redis.UniversalClient, channel string, target Resetter) *ResetSubscriber {
	if channel == "" {
		channel = DefaultResetChannel
	}
	return &ResetSubscriber{
		client:  client,
		channel: channel,
		target:  target,
		logger:  logging.NewDiscardLogger(),
	}
}

// SetLogger sets the logger.
func (s *ResetSubscriber) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Run blocks until ctx is done or the subscription closes. It returns an
// error only if the subscription cannot be established.
func (s *ResetSubscriber) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.channel, err)
	}
	s.logger.Info("listening for catalog resets", "channel", s.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.logger.Debug("catalog reset received", "channel", msg.Channel, "reason", msg.Payload)
			s.target.ResetCatalog()
		}
	}
}
