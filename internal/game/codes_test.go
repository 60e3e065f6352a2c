package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btengland/VantageConnectAPI/internal/store"
)

func TestAllocateSkipsLiveCodes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	// A live session already owns 000005; the allocator must move past
	// it even when the random draw repeats.
	require.NoError(t, st.Put(ctx, SessionKey("000005"), store.Item{"challengeDice": int64(0)}))

	draws := []int{5, 5, 7}
	alloc := NewCodeAllocator(st)
	alloc.intN = func(int) int {
		d := draws[0]
		draws = draws[1:]
		return d
	}

	code, err := alloc.Allocate(ctx, store.Item{"challengeDice": int64(0)})
	require.NoError(t, err)
	assert.Equal(t, "000007", code)
}

func TestAllocateWritesMetaAtomically(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	alloc := NewCodeAllocator(st)

	code, err := alloc.Allocate(ctx, store.Item{"challengeDice": int64(0)})
	require.NoError(t, err)

	// The winning allocation IS the META write: no window where the
	// code exists without its record.
	meta, err := st.Get(ctx, SessionKey(code))
	require.NoError(t, err)
	assert.Equal(t, int64(0), meta["challengeDice"])
}

func TestAllocateCapacityExhausted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Put(ctx, SessionKey("000001"), store.Item{"challengeDice": int64(0)}))

	alloc := NewCodeAllocator(st)
	alloc.maxAttempts = 3
	alloc.intN = func(int) int { return 1 }

	_, err := alloc.Allocate(ctx, store.Item{"challengeDice": int64(0)})
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}
