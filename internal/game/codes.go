package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/btengland/VantageConnectAPI/internal/store"
)

// maxAllocateAttempts caps the allocation loop. The birthday-paradox
// collision chance is tiny until the code space saturates, at which
// point retrying forever would spin.
const maxAllocateAttempts = 10000

// CodeAllocator hands out 6-digit session codes unique among live
// sessions. The store's conditional create is the uniqueness gate: the
// winning attempt IS the session's META write, so a code can never be
// observed without its META item.
type CodeAllocator struct {
	store       store.Store
	maxAttempts int
	intN        func(n int) int
}

// NewCodeAllocator creates an allocator over the given store.
func NewCodeAllocator(st store.Store) *CodeAllocator {
	return &CodeAllocator{
		store:       st,
		maxAttempts: maxAllocateAttempts,
		intN:        rand.Intn,
	}
}

// Allocate draws uniform 6-digit decimal codes (leading zeros allowed)
// and conditionally creates the META item seeded with meta under the
// first free one. Wraps ErrCapacityExhausted after the attempt cap.
func (a *CodeAllocator) Allocate(ctx context.Context, meta store.Item) (string, error) {
	for i := 0; i < a.maxAttempts; i++ {
		code := fmt.Sprintf("%06d", a.intN(1000000))
		err := a.store.PutIfAbsent(ctx, SessionKey(code), meta)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		return "", fmt.Errorf("game: allocate session code: %w", err)
	}
	return "", fmt.Errorf("game: allocate session code: %w", ErrCapacityExhausted)
}
