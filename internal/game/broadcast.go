package game

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/btengland/VantageConnectAPI/internal/relay"
)

// Broadcaster fans a payload out to a set of connections through the
// relay. Delivery is best effort, at most once per recipient per call:
// a stale or closed connection is logged and skipped, never retried, and
// never blocks the remaining recipients.
type Broadcaster struct {
	relay relay.Sender
	log   *zap.Logger
}

// NewBroadcaster creates a broadcaster over the given relay.
func NewBroadcaster(sender relay.Sender, log *zap.Logger) *Broadcaster {
	return &Broadcaster{relay: sender, log: log}
}

// Broadcast serializes v once and delivers it to every connection id
// independently.
func (b *Broadcaster) Broadcast(ctx context.Context, connectionIDs []string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("game: marshal broadcast payload: %w", err)
	}
	for _, id := range connectionIDs {
		if err := b.relay.Send(ctx, id, data); err != nil {
			b.log.Warn("broadcast delivery failed",
				zap.String("connectionId", id),
				zap.Error(err))
		}
	}
	return nil
}

// Reply delivers v to a single connection. Failures are logged, not
// returned; a reply to a dying connection is not actionable.
func (b *Broadcaster) Reply(ctx context.Context, connectionID string, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		b.log.Error("marshal reply payload failed", zap.Error(err))
		return
	}
	if err := b.relay.Send(ctx, connectionID, data); err != nil {
		b.log.Warn("reply delivery failed",
			zap.String("connectionId", connectionID),
			zap.Error(err))
	}
}
