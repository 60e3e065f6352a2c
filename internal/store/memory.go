package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store with the same contract as the Redis
// implementation. It backs unit tests and local development; all
// operations run under one mutex, so per-item atomicity and UpdateMulti
// transactionality hold trivially.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Item
	sets  map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Item),
		sets:  make(map[string]map[string]struct{}),
	}
}

func memItemKey(k Key) string {
	return k.Partition + "\x00" + k.Sort
}

func memSetKey(k Key, field string) string {
	return memItemKey(k) + "\x00" + field
}

func copyItem(item Item) Item {
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) Get(_ context.Context, key Key) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[memItemKey(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyItem(item), nil
}

func (m *MemoryStore) Put(_ context.Context, key Key, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[memItemKey(key)] = copyItem(item)
	return nil
}

func (m *MemoryStore) PutIfAbsent(_ context.Context, key Key, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[memItemKey(key)]; ok {
		return ErrConflict
	}
	m.items[memItemKey(key)] = copyItem(item)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, key Key, fields Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyUpdate(key, fields)
	return nil
}

func (m *MemoryStore) UpdateMulti(_ context.Context, updates []FieldUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		m.applyUpdate(u.Key, u.Fields)
	}
	return nil
}

// applyUpdate requires m.mu held for writing.
func (m *MemoryStore) applyUpdate(key Key, fields Item) {
	k := memItemKey(key)
	item, ok := m.items[k]
	if !ok {
		item = make(Item, len(fields))
		m.items[k] = item
	}
	for f, v := range fields {
		item[f] = v
	}
}

func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, memItemKey(key))
	setPrefix := memItemKey(key) + "\x00"
	for k := range m.sets {
		if strings.HasPrefix(k, setPrefix) {
			delete(m.sets, k)
		}
	}
	return nil
}

func (m *MemoryStore) DeletePartition(_ context.Context, partition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := partition + "\x00"
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			delete(m.items, k)
		}
	}
	for k := range m.sets {
		if strings.HasPrefix(k, prefix) {
			delete(m.sets, k)
		}
	}
	return nil
}

func (m *MemoryStore) QueryPrefix(_ context.Context, partition string) ([]KeyedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := partition + "\x00"
	var items []KeyedItem
	for k, item := range m.items {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		items = append(items, KeyedItem{
			Key:    Key{Partition: partition, Sort: strings.TrimPrefix(k, prefix)},
			Fields: copyItem(item),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key.Sort < items[j].Key.Sort })
	return items, nil
}

func (m *MemoryStore) AddToSet(_ context.Context, key Key, field string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memSetKey(key, field)
	set, ok := m.sets[k]
	if !ok {
		set = make(map[string]struct{})
		m.sets[k] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) RemoveFromSet(_ context.Context, key Key, field string, members ...string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memSetKey(key, field)
	set := m.sets[k]
	for _, member := range members {
		delete(set, member)
	}
	if len(set) == 0 {
		delete(m.sets, k)
	}
	return sortedMembers(set), nil
}

func (m *MemoryStore) SetMembers(_ context.Context, key Key, field string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedMembers(m.sets[memSetKey(key, field)]), nil
}

func (m *MemoryStore) Increment(_ context.Context, key Key, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memItemKey(key)
	item, ok := m.items[k]
	if !ok {
		item = make(Item)
		m.items[k] = item
	}
	current, _ := item[field].(int64)
	current += delta
	item[field] = current
	return current, nil
}

func sortedMembers(set map[string]struct{}) []string {
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members
}
