package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/btengland/VantageConnectAPI/internal/store"
)

// Dispatcher routes inbound client actions to engine operations and
// broadcasts the resulting snapshot. The snapshot, not the individual
// mutation, is the unit of consistency clients observe.
type Dispatcher struct {
	engine    *Engine
	registry  *ConnectionRegistry
	broadcast *Broadcaster
	log       *zap.Logger
}

// NewDispatcher wires the dispatcher's collaborators.
func NewDispatcher(engine *Engine, registry *ConnectionRegistry, broadcast *Broadcaster, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		engine:    engine,
		registry:  registry,
		broadcast: broadcast,
		log:       log,
	}
}

// Connect binds a freshly registered connection to its session.
func (d *Dispatcher) Connect(ctx context.Context, connectionID, sessionID string) error {
	return d.registry.Connect(ctx, connectionID, sessionID)
}

// Dispatch handles one inbound wire message from a connection. Errors
// are replied to the originating connection only; every successful
// mutating action concludes with a gameStateUpdate broadcast to the
// session's current connection set.
func (d *Dispatcher) Dispatch(ctx context.Context, connectionID string, raw []byte) {
	var msg ActionMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		d.broadcast.Reply(ctx, connectionID, errorMessage{Error: "invalid message"})
		return
	}

	d.log.Debug("action received",
		zap.String("connectionId", connectionID),
		zap.String("action", msg.Action))

	code := msg.Payload.SessionID
	if code == "" {
		resolved, err := d.registry.SessionIDFor(ctx, connectionID)
		if err != nil {
			d.log.Error("session lookup failed",
				zap.String("connectionId", connectionID),
				zap.Error(err))
			d.broadcast.Reply(ctx, connectionID, errorMessage{Error: "internal error"})
			return
		}
		code = resolved
	}

	if code == "" && msg.Action != ActionCreateSession {
		d.broadcast.Reply(ctx, connectionID, errorMessage{
			Error: "sessionId not found and is required for this action",
		})
		return
	}

	var err error
	switch msg.Action {
	case ActionCreateSession:
		// Special case: the creator is not joined to the new session's
		// connection set yet, so reply directly instead of broadcasting.
		newCode, err := d.engine.CreateSession(ctx)
		if err != nil {
			d.log.Error("create session failed", zap.Error(err))
			d.broadcast.Reply(ctx, connectionID, errorMessage{Error: clientError(err)})
			return
		}
		d.broadcast.Reply(ctx, connectionID, sessionCreatedMessage{
			Action:    ActionSessionCreated,
			SessionID: newCode,
		})
		return

	case ActionJoinSession:
		_, err = d.engine.JoinSession(ctx, code, store.Item(msg.Payload.PlayerData))

	case ActionUpdatePlayer:
		playerID, _ := msg.Payload.PlayerData["id"].(string)
		if playerID == "" {
			d.broadcast.Reply(ctx, connectionID, errorMessage{Error: "playerData.id is required"})
			return
		}
		err = d.engine.UpdatePlayer(ctx, code, playerID, store.Item(msg.Payload.PlayerData))

	case ActionUpdateDice:
		if msg.Payload.ChallengeDice == nil {
			d.broadcast.Reply(ctx, connectionID, errorMessage{Error: "challengeDice is required"})
			return
		}
		err = d.engine.UpdateChallengeDice(ctx, code, int64(*msg.Payload.ChallengeDice))

	case ActionNextTurn:
		err = d.engine.AdvanceTurn(ctx, code)

	default:
		d.broadcast.Reply(ctx, connectionID, errorMessage{
			Error: fmt.Sprintf("unknown action: %s", msg.Action),
		})
		return
	}

	if err != nil {
		d.log.Warn("action failed",
			zap.String("action", msg.Action),
			zap.String("sessionId", code),
			zap.Error(err))
		d.broadcast.Reply(ctx, connectionID, errorMessage{Error: clientError(err)})
		return
	}

	snapshot, err := d.engine.GameState(ctx, code)
	if err != nil {
		d.log.Error("snapshot failed",
			zap.String("sessionId", code),
			zap.Error(err))
		d.broadcast.Reply(ctx, connectionID, errorMessage{Error: clientError(err)})
		return
	}

	_ = d.broadcast.Broadcast(ctx, snapshot.Connections, gameStateMessage{
		Action:    ActionGameStateUpdate,
		GameState: snapshot,
	})
}

// HandleDisconnect cleans up after a relay-level disconnect. The last
// connection out tears the whole session down; otherwise the remaining
// connections learn the new player list.
func (d *Dispatcher) HandleDisconnect(ctx context.Context, connectionID string) error {
	code, remaining, err := d.registry.Disconnect(ctx, connectionID)
	if err != nil {
		return err
	}
	if code == "" {
		d.log.Debug("disconnect with no session", zap.String("connectionId", connectionID))
		return nil
	}

	if len(remaining) == 0 {
		d.log.Info("last connection left, deleting session",
			zap.String("sessionId", code))
		return d.engine.DeleteSession(ctx, code)
	}

	players, err := d.engine.Players(ctx, code)
	if err != nil {
		return err
	}
	return d.broadcast.Broadcast(ctx, remaining, userDisconnectedMessage{
		Action:  ActionUserDisconnected,
		Players: players,
	})
}

// clientError maps domain failures to messages safe to echo to clients.
func clientError(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, ErrPlayerNotFound):
		return "player not found"
	case errors.Is(err, ErrInvalidDice):
		return "challengeDice must be non-negative"
	case errors.Is(err, ErrCapacityExhausted):
		return "no session codes available"
	default:
		return "internal error"
	}
}
