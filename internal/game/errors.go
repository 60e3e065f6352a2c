package game

import "errors"

var (
	// ErrCapacityExhausted means the allocator gave up finding a free
	// session code. Fatal to the create-session request; never retried
	// here.
	ErrCapacityExhausted = errors.New("game: session code space exhausted")

	// ErrSessionNotFound means the session code resolves to no META item.
	ErrSessionNotFound = errors.New("game: session not found")

	// ErrPlayerNotFound means the player id resolves to no player item
	// in the session.
	ErrPlayerNotFound = errors.New("game: player not found")

	// ErrInvalidDice rejects negative challenge dice values.
	ErrInvalidDice = errors.New("game: challenge dice value must be non-negative")
)
