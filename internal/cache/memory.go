package cache

import (
	"path"
	"sync"
	"time"
)

// memoryStore is the per-replica fallback used when redis is unreachable.
// Each replica keeps its own entries; they are lossy across replicas.
type memoryStore struct {
	mu      sync.Mutex
	strings map[string]memEntry
	hashes  map[string]memHash
	lists   map[string]memList
}

type memEntry struct {
	val string
	exp time.Time
}

type memHash struct {
	fields map[string]string
	exp    time.Time
}

type memList struct {
	items []string
	exp   time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		strings: make(map[string]memEntry),
		hashes:  make(map[string]memHash),
		lists:   make(map[string]memList),
	}
}

func expired(exp time.Time) bool {
	return !exp.IsZero() && time.Now().After(exp)
}

func (m *memoryStore) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.strings[key]
	if !ok || expired(e.exp) {
		delete(m.strings, key)
		return "", false
	}
	return e.val, true
}

func (m *memoryStore) set(key, val string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.strings[key] = memEntry{val: val, exp: exp}
}

func (m *memoryStore) del(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.strings, k)
		delete(m.hashes, k)
		delete(m.lists, k)
	}
}

func (m *memoryStore) keys(pattern string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k, e := range m.strings {
		if expired(e.exp) {
			delete(m.strings, k)
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out
}

func (m *memoryStore) hget(key, field string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok || expired(h.exp) {
		delete(m.hashes, key)
		return "", false
	}
	v, ok := h.fields[field]
	return v, ok
}

func (m *memoryStore) hset(key, field, val string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok || expired(h.exp) {
		h = memHash{fields: make(map[string]string)}
	}
	h.fields[field] = val
	m.hashes[key] = h
}

func (m *memoryStore) expire(key string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := time.Now().Add(ttl)
	if e, ok := m.strings[key]; ok {
		e.exp = exp
		m.strings[key] = e
	}
	if h, ok := m.hashes[key]; ok {
		h.exp = exp
		m.hashes[key] = h
	}
	if l, ok := m.lists[key]; ok {
		l.exp = exp
		m.lists[key] = l
	}
}

func (m *memoryStore) lpush(key string, vals ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[key]
	if !ok || expired(l.exp) {
		l = memList{}
	}
	for _, v := range vals {
		l.items = append([]string{v}, l.items...)
	}
	m.lists[key] = l
}

func (m *memoryStore) ltrim(key string, start, stop int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[key]
	if !ok || expired(l.exp) {
		delete(m.lists, key)
		return
	}
	n := int64(len(l.items))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		l.items = nil
	} else {
		l.items = l.items[start : stop+1]
	}
	m.lists[key] = l
}

func (m *memoryStore) lrange(key string, start, stop int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[key]
	if !ok || expired(l.exp) {
		delete(m.lists, key)
		return nil
	}
	n := int64(len(l.items))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	out := make([]string, stop-start+1)
	copy(out, l.items[start:stop+1])
	return out
}
