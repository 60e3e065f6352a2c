package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/btengland/VantageConnectAPI/internal/store"
)

// ConnectionRegistry tracks which session each live connection belongs
// to. One connection maps to at most one session; rebinding is last
// write wins.
type ConnectionRegistry struct {
	store store.Store
}

// NewConnectionRegistry creates a registry over the given store.
func NewConnectionRegistry(st store.Store) *ConnectionRegistry {
	return &ConnectionRegistry{store: st}
}

// Connect binds a connection to a session: the mapping item first, then
// an atomic add into the session's connection set. If the second write
// fails the mapping is orphaned; a later Disconnect removes from a set
// it may not belong to, which is a no-op by contract.
func (r *ConnectionRegistry) Connect(ctx context.Context, connectionID, code string) error {
	if err := r.store.Put(ctx, ConnKey(connectionID), store.Item{fieldSessionID: code}); err != nil {
		return fmt.Errorf("game: connect %s to session %s: %w", connectionID, code, err)
	}
	if err := r.store.AddToSet(ctx, SessionKey(code), fieldConnections, connectionID); err != nil {
		return fmt.Errorf("game: connect %s to session %s: %w", connectionID, code, err)
	}
	return nil
}

// Disconnect unbinds a connection and returns its session code with the
// post-removal connection set. An unknown connection is a no-op and
// reports an empty code rather than an error.
func (r *ConnectionRegistry) Disconnect(ctx context.Context, connectionID string) (string, []string, error) {
	item, err := r.store.Get(ctx, ConnKey(connectionID))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("game: disconnect %s: %w", connectionID, err)
	}
	code, _ := item[fieldSessionID].(string)

	if err := r.store.Delete(ctx, ConnKey(connectionID)); err != nil {
		return "", nil, fmt.Errorf("game: disconnect %s: %w", connectionID, err)
	}
	remaining, err := r.store.RemoveFromSet(ctx, SessionKey(code), fieldConnections, connectionID)
	if err != nil {
		return "", nil, fmt.Errorf("game: disconnect %s: %w", connectionID, err)
	}
	return code, remaining, nil
}

// SessionIDFor resolves the session a connection is bound to. Returns an
// empty code when the connection has no mapping.
func (r *ConnectionRegistry) SessionIDFor(ctx context.Context, connectionID string) (string, error) {
	item, err := r.store.Get(ctx, ConnKey(connectionID))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("game: session for %s: %w", connectionID, err)
	}
	code, _ := item[fieldSessionID].(string)
	return code, nil
}
