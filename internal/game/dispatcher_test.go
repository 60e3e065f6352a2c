package game

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/btengland/VantageConnectAPI/internal/relay"
	"github.com/btengland/VantageConnectAPI/internal/store"
)

// fakeRelay records delivered payloads per connection and can simulate
// stale connections.
type fakeRelay struct {
	mu   sync.Mutex
	sent map[string][][]byte
	dead map[string]bool
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		sent: make(map[string][][]byte),
		dead: make(map[string]bool),
	}
}

func (f *fakeRelay) Send(_ context.Context, connectionID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[connectionID] {
		return fmt.Errorf("fake relay: %w", relay.ErrConnectionGone)
	}
	f.sent[connectionID] = append(f.sent[connectionID], data)
	return nil
}

func (f *fakeRelay) messages(t *testing.T, connectionID string) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, data := range f.sent[connectionID] {
		var m map[string]any
		require.NoError(t, sonic.Unmarshal(data, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeRelay) last(t *testing.T, connectionID string) map[string]any {
	t.Helper()
	msgs := f.messages(t, connectionID)
	require.NotEmpty(t, msgs, "no messages delivered to %s", connectionID)
	return msgs[len(msgs)-1]
}

func newTestDispatcher() (*Dispatcher, *Engine, *ConnectionRegistry, *fakeRelay, *store.MemoryStore) {
	st := store.NewMemoryStore()
	fr := newFakeRelay()
	log := zap.NewNop()
	engine := NewEngine(st)
	registry := NewConnectionRegistry(st)
	dispatcher := NewDispatcher(engine, registry, NewBroadcaster(fr, log), log)
	return dispatcher, engine, registry, fr, st
}

func action(t *testing.T, action string, payload Payload) []byte {
	t.Helper()
	data, err := sonic.Marshal(ActionMessage{Action: action, Payload: payload})
	require.NoError(t, err)
	return data
}

func TestDispatchCreateSessionRepliesDirectly(t *testing.T) {
	ctx := context.Background()
	dispatcher, engine, _, fr, _ := newTestDispatcher()

	dispatcher.Dispatch(ctx, "c1", action(t, ActionCreateSession, Payload{}))

	reply := fr.last(t, "c1")
	assert.Equal(t, ActionSessionCreated, reply["action"])
	code, ok := reply["sessionId"].(string)
	require.True(t, ok)
	assert.Len(t, code, 6)

	// The session exists and is empty: createSession never broadcasts.
	snapshot, err := engine.GameState(ctx, code)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Players)
	assert.Len(t, fr.messages(t, "c1"), 1)
}

func TestDispatchRequiresResolvableSession(t *testing.T) {
	ctx := context.Background()
	dispatcher, _, _, fr, _ := newTestDispatcher()

	dice := 3.0
	dispatcher.Dispatch(ctx, "c1", action(t, ActionUpdateDice, Payload{ChallengeDice: &dice}))

	reply := fr.last(t, "c1")
	assert.Contains(t, reply["error"], "sessionId not found")
	assert.Len(t, fr.messages(t, "c1"), 1, "error reply only, no broadcast")
}

func TestDispatchUnknownAction(t *testing.T) {
	ctx := context.Background()
	dispatcher, engine, registry, fr, _ := newTestDispatcher()

	code, err := engine.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, registry.Connect(ctx, "c1", code))

	dispatcher.Dispatch(ctx, "c1", action(t, "teleport", Payload{SessionID: code}))

	reply := fr.last(t, "c1")
	assert.Equal(t, "unknown action: teleport", reply["error"])
}

func TestDispatchMalformedMessage(t *testing.T) {
	ctx := context.Background()
	dispatcher, _, _, fr, _ := newTestDispatcher()

	dispatcher.Dispatch(ctx, "c1", []byte("{not json"))

	reply := fr.last(t, "c1")
	assert.Equal(t, "invalid message", reply["error"])
}

func TestDispatchJoinBroadcastsSnapshot(t *testing.T) {
	ctx := context.Background()
	dispatcher, engine, registry, fr, _ := newTestDispatcher()

	code, err := engine.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, registry.Connect(ctx, "c1", code))
	require.NoError(t, registry.Connect(ctx, "c2", code))

	dispatcher.Dispatch(ctx, "c1", action(t, ActionJoinSession, Payload{
		SessionID:  code,
		PlayerData: map[string]any{"name": "Ana"},
	}))

	for _, conn := range []string{"c1", "c2"} {
		msg := fr.last(t, conn)
		assert.Equal(t, ActionGameStateUpdate, msg["action"])
		state, ok := msg["gameState"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, code, state["sessionId"])
		players, ok := state["players"].([]any)
		require.True(t, ok)
		require.Len(t, players, 1)
		assert.Equal(t, "Ana", players[0].(map[string]any)["name"])
	}
}

func TestDispatchResolvesSessionFromRegistry(t *testing.T) {
	ctx := context.Background()
	dispatcher, engine, registry, fr, _ := newTestDispatcher()

	code, err := engine.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, registry.Connect(ctx, "c1", code))
	_, err = engine.JoinSession(ctx, code, store.Item{"name": "Ana"})
	require.NoError(t, err)

	// No sessionId in the payload: the dispatcher resolves it from the
	// connection mapping.
	dispatcher.Dispatch(ctx, "c1", action(t, ActionNextTurn, Payload{}))

	msg := fr.last(t, "c1")
	assert.Equal(t, ActionGameStateUpdate, msg["action"])
	state := msg["gameState"].(map[string]any)
	players := state["players"].([]any)
	require.Len(t, players, 1)
	assert.Equal(t, true, players[0].(map[string]any)["turn"])
}

func TestDispatchUpdatePlayerRequiresID(t *testing.T) {
	ctx := context.Background()
	dispatcher, engine, registry, fr, _ := newTestDispatcher()

	code, err := engine.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, registry.Connect(ctx, "c1", code))

	dispatcher.Dispatch(ctx, "c1", action(t, ActionUpdatePlayer, Payload{
		SessionID:  code,
		PlayerData: map[string]any{"name": "X"},
	}))

	reply := fr.last(t, "c1")
	assert.Equal(t, "playerData.id is required", reply["error"])
}

func TestDispatchDomainErrorRepliesToCallerOnly(t *testing.T) {
	ctx := context.Background()
	dispatcher, engine, registry, fr, _ := newTestDispatcher()

	code, err := engine.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, registry.Connect(ctx, "c1", code))
	require.NoError(t, registry.Connect(ctx, "c2", code))

	dispatcher.Dispatch(ctx, "c1", action(t, ActionJoinSession, Payload{
		SessionID:  "999999",
		PlayerData: map[string]any{"name": "lost"},
	}))

	reply := fr.last(t, "c1")
	assert.Equal(t, "session not found", reply["error"])
	assert.Empty(t, fr.messages(t, "c2"), "failed mutations never broadcast")
}

func TestHandleDisconnectTearsDownEmptySession(t *testing.T) {
	ctx := context.Background()
	dispatcher, engine, registry, _, st := newTestDispatcher()

	code, err := engine.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, registry.Connect(ctx, "c1", code))
	_, err = engine.JoinSession(ctx, code, store.Item{"name": "Ana"})
	require.NoError(t, err)

	require.NoError(t, dispatcher.HandleDisconnect(ctx, "c1"))

	items, err := st.QueryPrefix(ctx, "SESSION#"+code)
	require.NoError(t, err)
	assert.Empty(t, items, "meta and player items must be gone")

	resolved, err := registry.SessionIDFor(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestHandleDisconnectNotifiesRemaining(t *testing.T) {
	ctx := context.Background()
	dispatcher, engine, registry, fr, _ := newTestDispatcher()

	code, err := engine.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, registry.Connect(ctx, "c1", code))
	require.NoError(t, registry.Connect(ctx, "c2", code))
	_, err = engine.JoinSession(ctx, code, store.Item{"name": "Ana"})
	require.NoError(t, err)

	require.NoError(t, dispatcher.HandleDisconnect(ctx, "c1"))

	msg := fr.last(t, "c2")
	assert.Equal(t, ActionUserDisconnected, msg["action"])
	players, ok := msg["players"].([]any)
	require.True(t, ok)
	assert.Len(t, players, 1)

	// The session survives while connections remain.
	_, err = engine.GameState(ctx, code)
	require.NoError(t, err)
}

func TestHandleDisconnectUnknownConnection(t *testing.T) {
	ctx := context.Background()
	dispatcher, _, _, fr, _ := newTestDispatcher()

	require.NoError(t, dispatcher.HandleDisconnect(ctx, "ghost"))
	assert.Empty(t, fr.sent)
}
