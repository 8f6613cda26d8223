// Package cache holds rendered pages for a bounded time. Entries expire by
// TTL; Clear drops everything at once. There is no selective invalidation.
package cache

import (
	"context"
	"sync"
	"time"
)

// Entry is one rendered response body.
type Entry struct {
	ContentType string
	Body        []byte
}

type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry, ttl time.Duration) error
	Clear(ctx context.Context) error
}

type memEntry struct {
	Entry
	expires time.Time
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memEntry
}

var _ Cache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{now: time.Now, entries: make(map[string]memEntry)}
}

// SetClock replaces the time source used for expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return Entry{}, false, nil
	}
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	return Entry{ContentType: e.ContentType, Body: body}, true, nil
}

func (m *Memory) Set(_ context.Context, key string, e Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	m.entries[key] = memEntry{
		Entry:   Entry{ContentType: e.ContentType, Body: body},
		expires: m.now().Add(ttl),
	}
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memEntry)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
