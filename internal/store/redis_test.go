package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The field codec is what keeps the boundary clean: whole numbers come
// back as plain ints, fractions stay floats, and values written by raw
// HINCRBY still decode.
func TestFieldCodecRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want any
	}{
		{"string", "Ana", "Ana"},
		{"bool", true, true},
		{"int", int64(42), int64(42)},
		{"whole float", 3.0, int64(3)},
		{"fraction", 2.5, 2.5},
		{"list", []any{"a", 1.0}, []any{"a", int64(1)}},
		{"object", map[string]any{"hp": 7.0}, map[string]any{"hp": int64(7)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := encodeField(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, decodeField(raw))
		})
	}
}

func TestDecodeFieldToleratesBareCounter(t *testing.T) {
	// HINCRBY writes bare integers without going through encodeField.
	assert.Equal(t, int64(3), decodeField("3"))
}

func TestRedisKeyLayout(t *testing.T) {
	r := &RedisStore{prefix: "game:"}
	key := Key{Partition: "SESSION#123456", Sort: "META"}

	assert.Equal(t, "game:item:SESSION#123456/META", r.itemKey(key))
	assert.Equal(t, "game:set:SESSION#123456/META/connections", r.setKey(key, "connections"))
}
