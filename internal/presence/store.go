package presence

import (
	"context"
	"sync"
	"time"
)

// Entry is one user's liveness record in one channel. It exists only while
// the owning client keeps heartbeating; nothing is persisted across restarts
// unless a shared store backs it.
type Entry struct {
	UserID          int64     `json:"userId"`
	Username        string    `json:"username"`
	Channel         string    `json:"channel"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt"`
}

// Store holds presence entries keyed by (channel, userId).
type Store interface {
	// Put creates or refreshes an entry. created is false when the pair
	// already had one.
	Put(ctx context.Context, entry Entry) (created bool, err error)

	// Touch refreshes the heartbeat timestamp. ok is false when no entry
	// exists for the pair.
	Touch(ctx context.Context, channel string, userID int64, at time.Time) (ok bool, err error)

	// Remove deletes the entry. removed is false when none existed.
	Remove(ctx context.Context, channel string, userID int64) (removed bool, err error)

	// List returns all entries for a channel.
	List(ctx context.Context, channel string) ([]Entry, error)

	// Expire removes and returns every entry whose heartbeat is older than
	// the cutoff.
	Expire(ctx context.Context, olderThan time.Time) ([]Entry, error)
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	channels map[string]map[int64]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{channels: make(map[string]map[int64]Entry)}
}

func (s *MemoryStore) Put(_ context.Context, entry Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.channels[entry.Channel]
	if users == nil {
		users = make(map[int64]Entry)
		s.channels[entry.Channel] = users
	}

	_, exists := users[entry.UserID]
	users[entry.UserID] = entry
	return !exists, nil
}

func (s *MemoryStore) Touch(_ context.Context, channel string, userID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.channels[channel][userID]
	if !ok {
		return false, nil
	}
	entry.LastHeartbeatAt = at
	s.channels[channel][userID] = entry
	return true, nil
}

func (s *MemoryStore) Remove(_ context.Context, channel string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.channels[channel]
	if !ok {
		return false, nil
	}
	if _, ok := users[userID]; !ok {
		return false, nil
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.channels, channel)
	}
	return true, nil
}

func (s *MemoryStore) List(_ context.Context, channel string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.channels[channel]))
	for _, entry := range s.channels[channel] {
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *MemoryStore) Expire(_ context.Context, olderThan time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Entry
	for channel, users := range s.channels {
		for userID, entry := range users {
			if entry.LastHeartbeatAt.Before(olderThan) {
				expired = append(expired, entry)
				delete(users, userID)
			}
		}
		if len(users) == 0 {
			delete(s.channels, channel)
		}
	}
	return expired, nil
}
