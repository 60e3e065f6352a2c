package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	goredis "github.com/redis/go-redis/v9"
)

// putIfAbsentScript is the atomic create-if-absent gate. EXISTS and HSET
// run as one unit, so two concurrent creates of the same key cannot both
// win.
var putIfAbsentScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

// RedisStore persists items as Redis hashes, one hash per (partition,
// sort) key with every field JSON-encoded. Set-typed fields live in
// native Redis sets alongside the item so SADD/SREM give atomic set
// union/difference.
type RedisStore struct {
	client *goredis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed item store.
func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "game:",
	}
}

func (r *RedisStore) itemKey(k Key) string {
	return r.prefix + "item:" + k.Partition + "/" + k.Sort
}

func (r *RedisStore) setKey(k Key, field string) string {
	return r.prefix + "set:" + k.Partition + "/" + k.Sort + "/" + field
}

func encodeField(v any) (string, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("store: failed to encode field: %w", err)
	}
	return string(data), nil
}

// decodeField reverses encodeField. Whole-valued numbers come back as
// int64 so the boundary never leaks precise-decimal artifacts to
// clients.
func decodeField(raw string) any {
	var v any
	if err := sonic.Unmarshal([]byte(raw), &v); err != nil {
		// Tolerate values written outside this adapter (e.g. HINCRBY
		// counters are already bare integers).
		return raw
	}
	return normalizeValue(v)
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeValue(t[k])
		}
		return t
	default:
		return v
	}
}

func encodeItem(item Item) (map[string]string, error) {
	enc := make(map[string]string, len(item))
	for k, v := range item {
		s, err := encodeField(v)
		if err != nil {
			return nil, err
		}
		enc[k] = s
	}
	return enc, nil
}

func decodeItem(raw map[string]string) Item {
	item := make(Item, len(raw))
	for k, v := range raw {
		item[k] = decodeField(v)
	}
	return item
}

func (r *RedisStore) Get(ctx context.Context, key Key) (Item, error) {
	raw, err := r.client.HGetAll(ctx, r.itemKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", key.Partition, key.Sort, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return decodeItem(raw), nil
}

func (r *RedisStore) Put(ctx context.Context, key Key, item Item) error {
	enc, err := encodeItem(item)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, r.itemKey(key))
		if len(enc) > 0 {
			pipe.HSet(ctx, r.itemKey(key), enc)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: put %s/%s: %w", key.Partition, key.Sort, err)
	}
	return nil
}

func (r *RedisStore) PutIfAbsent(ctx context.Context, key Key, item Item) error {
	enc, err := encodeItem(item)
	if err != nil {
		return err
	}
	args := make([]any, 0, len(enc)*2)
	for k, v := range enc {
		args = append(args, k, v)
	}
	created, err := putIfAbsentScript.Run(ctx, r.client, []string{r.itemKey(key)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("store: conditional put %s/%s: %w", key.Partition, key.Sort, err)
	}
	if created == 0 {
		return ErrConflict
	}
	return nil
}

func (r *RedisStore) Update(ctx context.Context, key Key, fields Item) error {
	if len(fields) == 0 {
		return nil
	}
	enc, err := encodeItem(fields)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.itemKey(key), enc).Err(); err != nil {
		return fmt.Errorf("store: update %s/%s: %w", key.Partition, key.Sort, err)
	}
	return nil
}

func (r *RedisStore) UpdateMulti(ctx context.Context, updates []FieldUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	encoded := make([]map[string]string, len(updates))
	for i, u := range updates {
		enc, err := encodeItem(u.Fields)
		if err != nil {
			return err
		}
		encoded[i] = enc
	}
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, u := range updates {
			if len(encoded[i]) > 0 {
				pipe.HSet(ctx, r.itemKey(u.Key), encoded[i])
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: multi update: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key Key) error {
	keys := []string{r.itemKey(key)}
	setKeys, err := r.scanKeys(ctx, r.prefix+"set:"+key.Partition+"/"+key.Sort+"/*")
	if err != nil {
		return err
	}
	keys = append(keys, setKeys...)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", key.Partition, key.Sort, err)
	}
	return nil
}

func (r *RedisStore) DeletePartition(ctx context.Context, partition string) error {
	itemKeys, err := r.scanKeys(ctx, r.prefix+"item:"+partition+"/*")
	if err != nil {
		return err
	}
	setKeys, err := r.scanKeys(ctx, r.prefix+"set:"+partition+"/*")
	if err != nil {
		return err
	}
	keys := append(itemKeys, setKeys...)
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("store: delete partition %s: %w", partition, err)
	}
	return nil
}

func (r *RedisStore) QueryPrefix(ctx context.Context, partition string) ([]KeyedItem, error) {
	itemPrefix := r.prefix + "item:" + partition + "/"
	keys, err := r.scanKeys(ctx, itemPrefix+"*")
	if err != nil {
		return nil, err
	}

	items := make([]KeyedItem, 0, len(keys))
	for _, k := range keys {
		raw, err := r.client.HGetAll(ctx, k).Result()
		if err != nil {
			return nil, fmt.Errorf("store: query %s: %w", partition, err)
		}
		if len(raw) == 0 {
			// Item deleted between SCAN and HGETALL.
			continue
		}
		items = append(items, KeyedItem{
			Key:    Key{Partition: partition, Sort: strings.TrimPrefix(k, itemPrefix)},
			Fields: decodeItem(raw),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key.Sort < items[j].Key.Sort })
	return items, nil
}

func (r *RedisStore) AddToSet(ctx context.Context, key Key, field string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := r.client.SAdd(ctx, r.setKey(key, field), args...).Err(); err != nil {
		return fmt.Errorf("store: add to set %s/%s.%s: %w", key.Partition, key.Sort, field, err)
	}
	return nil
}

func (r *RedisStore) RemoveFromSet(ctx context.Context, key Key, field string, members ...string) ([]string, error) {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	var remaining *goredis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(args) > 0 {
			pipe.SRem(ctx, r.setKey(key, field), args...)
		}
		remaining = pipe.SMembers(ctx, r.setKey(key, field))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: remove from set %s/%s.%s: %w", key.Partition, key.Sort, field, err)
	}
	members = remaining.Val()
	sort.Strings(members)
	return members, nil
}

func (r *RedisStore) SetMembers(ctx context.Context, key Key, field string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.setKey(key, field)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: set members %s/%s.%s: %w", key.Partition, key.Sort, field, err)
	}
	sort.Strings(members)
	return members, nil
}

func (r *RedisStore) Increment(ctx context.Context, key Key, field string, delta int64) (int64, error) {
	val, err := r.client.HIncrBy(ctx, r.itemKey(key), field, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("store: increment %s/%s.%s: %w", key.Partition, key.Sort, field, err)
	}
	return val, nil
}

func (r *RedisStore) scanKeys(ctx context.Context, match string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	iter := r.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store: scan %s: %w", match, err)
	}
	return keys, nil
}
