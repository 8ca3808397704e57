// Package session keeps the per-user conversation state of the bot: which
// currency and threshold direction a user was asked to type a value for.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto-alert-bot/internal/types"
)

// Key identifies one user inside one chat.
type Key struct {
	ChatID int64
	UserID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.UserID)
}

type State struct {
	Currency      string              `json:"currency,omitempty"`
	ThresholdType types.ThresholdType `json:"threshold_type,omitempty"`
}

// AwaitingThreshold reports whether the next text from the user is a threshold value.
func (s State) AwaitingThreshold() bool {
	return s.Currency != "" && s.ThresholdType.Valid()
}

type Store interface {
	// Get returns the zero State when nothing is stored for k.
	Get(ctx context.Context, k Key) (State, error)
	Set(ctx context.Context, k Key, s State) error
	Clear(ctx context.Context, k Key) error
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[Key]memoryEntry
}

// NewMemoryStore keeps states for ttl; ttl <= 0 keeps them until cleared.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Key]memoryEntry),
	}
}

func (m *MemoryStore) Get(_ context.Context, k Key) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[k]
	if !ok {
		return State{}, nil
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.entries, k)
		return State{}, nil
	}
	return e.state, nil
}

func (m *MemoryStore) Set(_ context.Context, k Key, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{state: s}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[k] = e
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, k Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, k)
	return nil
}
