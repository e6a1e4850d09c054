package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"chat-dumper-go/internal/model"
)

type memoryEntry struct {
	entry     model.CacheEntry
	exported  bool
	expiresAt time.Time
}

// memoryPayloadCache 是单进程内的实现，过期条目在访问时惰性清理。
type memoryPayloadCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]map[string]*memoryEntry
}

// NewMemoryPayloadCache 创建一个基于内存的 PayloadCacheRepository。ttl 为 0 表示不过期。
func NewMemoryPayloadCache(ttl time.Duration) PayloadCacheRepository {
	return &memoryPayloadCache{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]map[string]*memoryEntry),
	}
}

// lookup 必须在持有锁时调用。
func (m *memoryPayloadCache) lookup(sessionID, entity string) *memoryEntry {
	entries := m.sessions[sessionID]
	if entries == nil {
		return nil
	}
	e := entries[entity]
	if e == nil {
		return nil
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(entries, entity)
		return nil
	}
	return e
}

func (m *memoryPayloadCache) Record(_ context.Context, sessionID, entity string, slot model.Slot, payload json.RawMessage) (*model.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(sessionID, entity)
	if e == nil {
		if m.sessions[sessionID] == nil {
			m.sessions[sessionID] = make(map[string]*memoryEntry)
		}
		e = &memoryEntry{entry: model.CacheEntry{Entity: entity}}
		m.sessions[sessionID][entity] = e
	}
	stored := make(json.RawMessage, len(payload))
	copy(stored, payload)
	e.entry.Set(slot, stored)
	e.entry.UpdatedAt = m.now()
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	out := e.entry
	return &out, nil
}

func (m *memoryPayloadCache) Get(_ context.Context, sessionID, entity string) (*model.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(sessionID, entity)
	if e == nil {
		return nil, model.ErrEntryNotFound
	}
	out := e.entry
	return &out, nil
}

func (m *memoryPayloadCache) IsComplete(_ context.Context, sessionID, entity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(sessionID, entity)
	return e != nil && e.entry.IsComplete(), nil
}

func (m *memoryPayloadCache) MarkExported(_ context.Context, sessionID, entity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(sessionID, entity)
	if e == nil {
		return false, model.ErrEntryNotFound
	}
	if e.exported {
		return false, nil
	}
	e.exported = true
	return true, nil
}

func (m *memoryPayloadCache) Entities(_ context.Context, sessionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.sessions[sessionID]))
	for name := range m.sessions[sessionID] {
		if m.lookup(sessionID, name) != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryPayloadCache) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	return nil
}
