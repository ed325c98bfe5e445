package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps conversations in process memory with an idle TTL.
// Entries are cloned on the way in and out.
type MemoryStore struct {
	items *cache.Cache
	ttl   time.Duration

	// writeMu serializes the compare-and-set in Save.
	writeMu sync.Mutex
}

// NewMemoryStore returns a store whose entries expire after ttl without writes.
// A ttl <= 0 keeps entries until Delete.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	expiry := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiry = ttl
		cleanup = ttl
	}
	return &MemoryStore{
		items: cache.New(expiry, cleanup),
		ttl:   expiry,
	}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*ConversationState, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	v, ok := s.items.Get(sessionID)
	if !ok {
		return nil, ErrStateNotFound
	}
	return v.(*ConversationState).Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, st *ConversationState) error {
	if err := checkWritable(st); err != nil {
		return err
	}
	next := st.Clone()
	next.Version = 1
	if err := s.items.Add(st.ID, next, s.ttl); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionExists, st.ID)
	}
	st.Version = 1
	return nil
}

func (s *MemoryStore) Save(_ context.Context, st *ConversationState) error {
	if err := checkWritable(st); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	v, ok := s.items.Get(st.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStateNotFound, st.ID)
	}
	stored := v.(*ConversationState)
	if stored.Version != st.Version {
		return fmt.Errorf("%w: %s stored=%d got=%d", ErrVersionConflict, st.ID, stored.Version, st.Version)
	}
	if err := checkHistoryAppend(stored.History, st.History); err != nil {
		return err
	}

	next := st.Clone()
	next.Version = st.Version + 1
	s.items.Set(st.ID, next, s.ttl)
	st.Version = next.Version
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSession
	}
	s.items.Delete(sessionID)
	return nil
}

// Len reports the number of live conversations.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
