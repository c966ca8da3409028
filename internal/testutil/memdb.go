// Package testutil provides an in-memory storage.DB and ledger fixtures for
// tests across the module. Never import this in production code.
package testutil

import (
	"sort"
	"strings"
	"sync"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/storage"
)

// MemDB is a thread-safe in-memory storage.DB. Batches apply all-or-nothing
// and can be made to fail to exercise commit error paths.
type MemDB struct {
	mu      sync.RWMutex
	data    map[string][]byte
	failErr error
}

// NewMemDB creates an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

// FailBatches makes every later batch Write return err without applying it.
// A nil err restores normal behaviour.
func (m *MemDB) FailBatches(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Len returns the number of stored keys.
func (m *MemDB) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.data[string(key)]; ok {
		return clone(v), nil
	}
	return nil, core.ErrNotFound
}

func (m *MemDB) Set(key, value []byte) error {
	m.mu.Lock()
	m.data[string(key)] = clone(value)
	m.mu.Unlock()
	return nil
}

func (m *MemDB) Delete(key []byte) error {
	m.mu.Lock()
	delete(m.data, string(key))
	m.mu.Unlock()
	return nil
}

// NewIterator snapshots the keys under prefix in ascending order.
func (m *MemDB) NewIterator(prefix []byte) storage.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it := &memIter{pos: -1}
	for k, v := range m.data {
		if strings.HasPrefix(k, string(prefix)) {
			it.keys = append(it.keys, k)
			it.vals = append(it.vals, clone(v))
		}
	}
	sort.Sort(it)
	return it
}

func (m *MemDB) NewBatch() storage.Batch {
	return &memBatch{db: m, sets: make(map[string][]byte), dels: make(map[string]bool)}
}

func (m *MemDB) Close() error { return nil }

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// memBatch keeps the last operation per key.
type memBatch struct {
	db   *MemDB
	sets map[string][]byte
	dels map[string]bool
}

func (b *memBatch) Set(key, value []byte) {
	delete(b.dels, string(key))
	b.sets[string(key)] = clone(value)
}

func (b *memBatch) Delete(key []byte) {
	delete(b.sets, string(key))
	b.dels[string(key)] = true
}

func (b *memBatch) Reset() {
	b.sets = make(map[string][]byte)
	b.dels = make(map[string]bool)
}

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	if b.db.failErr != nil {
		return b.db.failErr
	}
	for k := range b.dels {
		delete(b.db.data, k)
	}
	for k, v := range b.sets {
		b.db.data[k] = v
	}
	return nil
}

// memIter implements storage.Iterator and sort.Interface over parallel
// key/value slices.
type memIter struct {
	keys []string
	vals [][]byte
	pos  int
}

func (it *memIter) Len() int           { return len(it.keys) }
func (it *memIter) Less(i, j int) bool { return it.keys[i] < it.keys[j] }
func (it *memIter) Swap(i, j int) {
	it.keys[i], it.keys[j] = it.keys[j], it.keys[i]
	it.vals[i], it.vals[j] = it.vals[j], it.vals[i]
}

func (it *memIter) Next() bool    { it.pos++; return it.pos < len(it.keys) }
func (it *memIter) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memIter) Value() []byte { return it.vals[it.pos] }
func (it *memIter) Release()      {}
func (it *memIter) Error() error  { return nil }

// NewStateDB returns a storage.StateDB backed by a fresh MemDB.
func NewStateDB() *storage.StateDB {
	return storage.NewStateDB(NewMemDB())
}
