package database

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory. Suitable for tests and
// single-instance development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, kind, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[kind][id]
	if !ok {
		return Record{}, recordNotFound(kind, id)
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) GetMany(_ context.Context, kind string, ids []string) (map[string]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[kind][id]; ok {
			out[id] = copyRecord(rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, kind, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(kind, id, data)
	return nil
}

func (s *MemoryStore) Insert(_ context.Context, kind, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(kind, id, data)
}

func (s *MemoryStore) putLocked(kind, id string, data []byte) {
	bucket := s.bucket(kind)
	prev := bucket[id]
	bucket[id] = Record{Data: clone(data), Version: prev.Version + 1}
}

func (s *MemoryStore) insertLocked(kind, id string, data []byte) error {
	bucket := s.bucket(kind)
	if _, ok := bucket[id]; ok {
		return recordExists(kind, id)
	}
	bucket[id] = Record{Data: clone(data), Version: 1}
	return nil
}

func (s *MemoryStore) Swap(_ context.Context, kind, id string, data []byte, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucket(kind)
	rec, ok := bucket[id]
	if !ok {
		return recordNotFound(kind, id)
	}
	if rec.Version != version {
		return ErrVersionConflict
	}
	bucket[id] = Record{Data: clone(data), Version: version + 1}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, kind, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(kind, id), nil
}

func (s *MemoryStore) deleteLocked(kind, id string) bool {
	bucket := s.records[kind]
	if _, ok := bucket[id]; !ok {
		return false
	}
	delete(bucket, id)
	return true
}

// bucket must be called with s.mu held for writing.
func (s *MemoryStore) bucket(kind string) map[string]Record {
	b, ok := s.records[kind]
	if !ok {
		b = make(map[string]Record)
		s.records[kind] = b
	}
	return b
}

// MemoryIndex is an insertion-ordered id set per index name.
type MemoryIndex struct {
	mu    sync.RWMutex
	lists map[string]*memoryList
}

type memoryList struct {
	seq     int64
	entries []memoryEntry // ascending by seq
	members map[string]int64
}

type memoryEntry struct {
	seq int64
	id  string
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{lists: make(map[string]*memoryList)}
}

func (x *MemoryIndex) Add(_ context.Context, name, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.addLocked(name, id)
	return nil
}

func (x *MemoryIndex) Remove(_ context.Context, name, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(name, id)
	return nil
}

func (x *MemoryIndex) addLocked(name, id string) {
	l, ok := x.lists[name]
	if !ok {
		l = &memoryList{members: make(map[string]int64)}
		x.lists[name] = l
	}
	if _, exists := l.members[id]; exists {
		return
	}
	l.seq++
	l.members[id] = l.seq
	l.entries = append(l.entries, memoryEntry{seq: l.seq, id: id})
}

func (x *MemoryIndex) removeLocked(name, id string) {
	l, ok := x.lists[name]
	if !ok {
		return
	}
	seq, member := l.members[id]
	if !member {
		return
	}
	delete(l.members, id)
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].seq >= seq })
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
}

func (x *MemoryIndex) Contains(_ context.Context, name, id string) (bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	l, ok := x.lists[name]
	if !ok {
		return false, nil
	}
	_, member := l.members[id]
	return member, nil
}

func (x *MemoryIndex) Page(_ context.Context, name, cursor string, limit int) (Page, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return Page{}, err
	}
	limit = normalizeLimit(limit)

	x.mu.RLock()
	defer x.mu.RUnlock()
	l, ok := x.lists[name]
	if !ok {
		return Page{IDs: []string{}}, nil
	}
	start := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].seq > after })
	end := start + limit
	if end > len(l.entries) {
		end = len(l.entries)
	}
	page := Page{IDs: make([]string, 0, end-start)}
	for _, e := range l.entries[start:end] {
		page.IDs = append(page.IDs, e.id)
	}
	if end < len(l.entries) {
		page.Next = formatCursor(l.entries[end-1].seq)
	}
	return page, nil
}

// MemoryListing pairs a MemoryStore with a MemoryIndex. Each write holds
// both locks, records first, so readers of either half see it whole.
type MemoryListing struct {
	records *MemoryStore
	index   *MemoryIndex
}

func NewMemoryListing(records *MemoryStore, index *MemoryIndex) *MemoryListing {
	return &MemoryListing{records: records, index: index}
}

func (m *MemoryListing) lock() func() {
	m.records.mu.Lock()
	m.index.mu.Lock()
	return func() {
		m.index.mu.Unlock()
		m.records.mu.Unlock()
	}
}

func (m *MemoryListing) InsertListed(_ context.Context, kind, id string, data []byte, index string) error {
	defer m.lock()()
	if err := m.records.insertLocked(kind, id, data); err != nil {
		return err
	}
	m.index.addLocked(index, id)
	return nil
}

func (m *MemoryListing) PutListed(_ context.Context, kind, id string, data []byte, index string) error {
	defer m.lock()()
	m.records.putLocked(kind, id, data)
	m.index.addLocked(index, id)
	return nil
}

func (m *MemoryListing) DeleteListed(_ context.Context, kind, id, index string) (bool, error) {
	defer m.lock()()
	m.index.removeLocked(index, id)
	return m.records.deleteLocked(kind, id), nil
}

// NewMemoryBackend returns a Backend that lives in process memory.
func NewMemoryBackend() Backend {
	records, index := NewMemoryStore(), NewMemoryIndex()
	return Backend{
		Records: records,
		Index:   index,
		Listing: NewMemoryListing(records, index),
		Close:   func() error { return nil },
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func copyRecord(r Record) Record {
	return Record{Data: clone(r.Data), Version: r.Version}
}
