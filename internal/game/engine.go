package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/btengland/VantageConnectAPI/internal/store"
)

// Engine implements the session business operations. It holds no state
// of its own: every operation reads or writes the store directly, so the
// store stays the single source of truth.
type Engine struct {
	store store.Store
	codes *CodeAllocator
}

// NewEngine creates a session engine over the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{
		store: st,
		codes: NewCodeAllocator(st),
	}
}

// CreateSession allocates a fresh session code and returns it. The META
// item is written by the allocation itself, seeded with zero challenge
// dice and no players or connections.
func (e *Engine) CreateSession(ctx context.Context) (string, error) {
	return e.codes.Allocate(ctx, store.Item{fieldChallengeDice: int64(0)})
}

// JoinSession adds a player to an existing session and returns the
// generated player id. The caller-supplied fields are stored as-is,
// minus the engine-managed identity fields. Joining an unknown session
// fails with ErrSessionNotFound rather than creating an orphan player.
func (e *Engine) JoinSession(ctx context.Context, code string, fields store.Item) (string, error) {
	if err := e.requireSession(ctx, code); err != nil {
		return "", err
	}

	playerID := uuid.NewString()
	seq, err := e.store.Increment(ctx, SessionKey(code), fieldJoinCounter, 1)
	if err != nil {
		return "", fmt.Errorf("game: join session %s: %w", code, err)
	}

	player := stripReservedFields(fields)
	player[fieldPlayerID] = playerID
	player[fieldJoinSeq] = seq

	if err := e.store.Put(ctx, PlayerKey(code, playerID), player); err != nil {
		return "", fmt.Errorf("game: join session %s: %w", code, err)
	}
	return playerID, nil
}

// UpdatePlayer applies a field-level partial update to an existing
// player. Identity fields in the input are stripped first. Updating an
// absent player fails with ErrPlayerNotFound; it never creates one.
func (e *Engine) UpdatePlayer(ctx context.Context, code, playerID string, fields store.Item) error {
	key := PlayerKey(code, playerID)
	if _, err := e.store.Get(ctx, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("game: update player %s in session %s: %w", playerID, code, ErrPlayerNotFound)
		}
		return fmt.Errorf("game: update player %s in session %s: %w", playerID, code, err)
	}

	update := stripReservedFields(fields)
	if len(update) == 0 {
		return nil
	}
	if err := e.store.Update(ctx, key, update); err != nil {
		return fmt.Errorf("game: update player %s in session %s: %w", playerID, code, err)
	}
	return nil
}

// UpdateChallengeDice sets the session's shared dice value.
func (e *Engine) UpdateChallengeDice(ctx context.Context, code string, value int64) error {
	if value < 0 {
		return fmt.Errorf("game: update challenge dice for session %s: %w", code, ErrInvalidDice)
	}
	if err := e.requireSession(ctx, code); err != nil {
		return err
	}
	if err := e.store.Update(ctx, SessionKey(code), store.Item{fieldChallengeDice: value}); err != nil {
		return fmt.Errorf("game: update challenge dice for session %s: %w", code, err)
	}
	return nil
}

// AdvanceTurn passes the turn to the next player in join order. With no
// current player, the first player becomes current. The clear-old and
// set-new writes go through one store transaction, so no reader observes
// zero or two current players.
func (e *Engine) AdvanceTurn(ctx context.Context, code string) error {
	players, err := e.orderedPlayers(ctx, code)
	if err != nil {
		return fmt.Errorf("game: advance turn for session %s: %w", code, err)
	}
	if len(players) == 0 {
		return nil
	}

	pivot := -1
	for i, p := range players {
		if asBool(p.Fields[fieldTurn]) {
			pivot = i
			break
		}
	}

	next := 0
	var updates []store.FieldUpdate
	if pivot >= 0 {
		updates = append(updates, store.FieldUpdate{
			Key:    players[pivot].Key,
			Fields: store.Item{fieldTurn: false},
		})
		next = (pivot + 1) % len(players)
	}
	updates = append(updates, store.FieldUpdate{
		Key:    players[next].Key,
		Fields: store.Item{fieldTurn: true},
	})

	if err := e.store.UpdateMulti(ctx, updates); err != nil {
		return fmt.Errorf("game: advance turn for session %s: %w", code, err)
	}
	return nil
}

// GameState assembles the full session snapshot: meta, ordered players,
// and the live connection set. The read happens strictly at call time;
// nothing is cached.
func (e *Engine) GameState(ctx context.Context, code string) (*Snapshot, error) {
	items, err := e.store.QueryPrefix(ctx, sessionPartition(code))
	if err != nil {
		return nil, fmt.Errorf("game: game state for session %s: %w", code, err)
	}

	var meta store.Item
	keyed := make([]store.KeyedItem, 0, len(items))
	for _, item := range items {
		switch {
		case item.Key.Sort == metaSort:
			meta = item.Fields
		case strings.HasPrefix(item.Key.Sort, playerSortPrefix):
			keyed = append(keyed, item)
		}
	}
	if meta == nil {
		return nil, fmt.Errorf("game: game state for session %s: %w", code, ErrSessionNotFound)
	}
	sortPlayers(keyed)

	connections, err := e.store.SetMembers(ctx, SessionKey(code), fieldConnections)
	if err != nil {
		return nil, fmt.Errorf("game: game state for session %s: %w", code, err)
	}

	players := make([]store.Item, 0, len(keyed))
	for _, p := range keyed {
		players = append(players, p.Fields)
	}

	return &Snapshot{
		SessionID:     code,
		ChallengeDice: asInt(meta[fieldChallengeDice]),
		Players:       players,
		Connections:   connections,
	}, nil
}

// Players returns the session's player list in turn order.
func (e *Engine) Players(ctx context.Context, code string) ([]store.Item, error) {
	keyed, err := e.orderedPlayers(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("game: players for session %s: %w", code, err)
	}
	players := make([]store.Item, 0, len(keyed))
	for _, p := range keyed {
		players = append(players, p.Fields)
	}
	return players, nil
}

// DeleteSession removes the META item and every player item. Not
// reversible; the code becomes available for reallocation.
func (e *Engine) DeleteSession(ctx context.Context, code string) error {
	if err := e.store.DeletePartition(ctx, sessionPartition(code)); err != nil {
		return fmt.Errorf("game: delete session %s: %w", code, err)
	}
	return nil
}

func (e *Engine) requireSession(ctx context.Context, code string) error {
	if _, err := e.store.Get(ctx, SessionKey(code)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("game: session %s: %w", code, ErrSessionNotFound)
		}
		return fmt.Errorf("game: session %s: %w", code, err)
	}
	return nil
}

func (e *Engine) orderedPlayers(ctx context.Context, code string) ([]store.KeyedItem, error) {
	items, err := e.store.QueryPrefix(ctx, sessionPartition(code))
	if err != nil {
		return nil, err
	}
	players := make([]store.KeyedItem, 0, len(items))
	for _, item := range items {
		if strings.HasPrefix(item.Key.Sort, playerSortPrefix) {
			players = append(players, item)
		}
	}
	sortPlayers(players)
	return players, nil
}

// sortPlayers orders by joinSeq; sort key breaks ties for records that
// predate the counter.
func sortPlayers(players []store.KeyedItem) {
	sort.SliceStable(players, func(i, j int) bool {
		si, sj := asInt(players[i].Fields[fieldJoinSeq]), asInt(players[j].Fields[fieldJoinSeq])
		if si != sj {
			return si < sj
		}
		return players[i].Key.Sort < players[j].Key.Sort
	})
}
