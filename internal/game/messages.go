package game

import "github.com/btengland/VantageConnectAPI/internal/store"

// Inbound actions.
const (
	ActionCreateSession = "createSession"
	ActionJoinSession   = "joinSession"
	ActionUpdatePlayer  = "updatePlayer"
	ActionUpdateDice    = "updateDice"
	ActionNextTurn      = "nextTurn"
)

// Outbound actions.
const (
	ActionSessionCreated   = "sessionCreated"
	ActionGameStateUpdate  = "gameStateUpdate"
	ActionUserDisconnected = "userDisconnected"
)

// ActionMessage is the inbound wire message.
type ActionMessage struct {
	Action  string  `json:"action"`
	Payload Payload `json:"payload"`
}

// Payload carries the action's arguments. Absent fields stay zero; the
// dispatcher validates per action.
type Payload struct {
	SessionID     string         `json:"sessionId,omitempty"`
	PlayerData    map[string]any `json:"playerData,omitempty"`
	ChallengeDice *float64       `json:"challengeDice,omitempty"`
}

type sessionCreatedMessage struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
}

type gameStateMessage struct {
	Action    string    `json:"action"`
	GameState *Snapshot `json:"gameState"`
}

type userDisconnectedMessage struct {
	Action  string       `json:"action"`
	Players []store.Item `json:"players"`
}

type errorMessage struct {
	Error string `json:"error"`
}
