// Package relay delivers serialized messages to live client connections
// addressed by opaque connection identifiers.
package relay

import (
	"context"
	"errors"
)

// ErrConnectionGone reports a delivery target that is no longer
// registered (closed, stale, or never existed).
var ErrConnectionGone = errors.New("relay: connection gone")

// Sender is the directed message-delivery channel. Send delivers data to
// one connection; failures are per-recipient and carry no retry
// semantics.
type Sender interface {
	Send(ctx context.Context, connectionID string, data []byte) error
}
