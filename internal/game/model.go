package game

import (
	"github.com/btengland/VantageConnectAPI/internal/store"
)

// Key-addressing scheme for the single flat collection. Sessions own a
// META item plus one PLAYER# item per participant; connection mappings
// live under their own partition.
const (
	sessionPartitionPrefix = "SESSION#"
	connPartitionPrefix    = "CONN#"
	metaSort               = "META"
	playerSortPrefix       = "PLAYER#"
	connSort               = "SESSION"
)

const (
	fieldChallengeDice = "challengeDice"
	fieldConnections   = "connections"
	fieldSessionID     = "sessionId"
	fieldPlayerID      = "id"
	fieldJoinSeq       = "joinSeq"
	fieldTurn          = "turn"

	// joinCounter lives on the META item and hands out joinSeq values.
	fieldJoinCounter = "joinCounter"
)

func sessionPartition(code string) string {
	return sessionPartitionPrefix + code
}

// SessionKey addresses a session's META item.
func SessionKey(code string) store.Key {
	return store.Key{Partition: sessionPartition(code), Sort: metaSort}
}

// PlayerKey addresses one player item within a session.
func PlayerKey(code, playerID string) store.Key {
	return store.Key{Partition: sessionPartition(code), Sort: playerSortPrefix + playerID}
}

// ConnKey addresses a connection's session mapping.
func ConnKey(connectionID string) store.Key {
	return store.Key{Partition: connPartitionPrefix + connectionID, Sort: connSort}
}

// Snapshot is the full assembled session view broadcast to clients after
// every mutating action.
type Snapshot struct {
	SessionID     string       `json:"sessionId"`
	ChallengeDice int64        `json:"challengeDice"`
	Players       []store.Item `json:"players"`
	Connections   []string     `json:"connections"`
}

// stripReservedFields returns a copy of fields with the engine-managed
// identity fields removed, so a caller can never rewrite a player's id,
// join order, or storage location.
func stripReservedFields(fields store.Item) store.Item {
	out := make(store.Item, len(fields))
	for k, v := range fields {
		switch k {
		case fieldPlayerID, fieldJoinSeq, "PK", "SK":
			continue
		}
		out[k] = v
	}
	return out
}

func asInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case int:
		return int64(t)
	default:
		return 0
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
