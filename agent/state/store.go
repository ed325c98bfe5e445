package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStateNotFound   = errors.New("conversation state not found")
	ErrNilSessionState = errors.New("conversation state is nil")
	ErrInvalidSession  = errors.New("session id is empty")
	ErrSessionExists   = errors.New("conversation state already exists")
	ErrVersionConflict = errors.New("conversation state version conflict")
	ErrHistoryRewrite  = errors.New("conversation history is append-only")
)

// Store is the persistence contract used by the orchestrator.
//
// Create never overwrites an existing id. Save only succeeds when st.Version
// matches the stored version, and bumps st.Version on success.
type Store interface {
	Load(ctx context.Context, sessionID string) (*ConversationState, error)
	Create(ctx context.Context, st *ConversationState) error
	Save(ctx context.Context, st *ConversationState) error
	Delete(ctx context.Context, sessionID string) error
}

func checkWritable(st *ConversationState) error {
	if st == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(st.ID) == "" {
		return ErrInvalidSession
	}
	return nil
}

// checkHistoryAppend verifies next extends stored without rewriting entries.
func checkHistoryAppend(stored, next []HistoryEntry) error {
	if len(next) < len(stored) {
		return fmt.Errorf("%w: stored=%d next=%d", ErrHistoryRewrite, len(stored), len(next))
	}
	for i := range stored {
		a, b := stored[i], next[i]
		if a.Stage != b.Stage || a.Utterance != b.Utterance || !a.At.Equal(b.At) {
			return fmt.Errorf("%w: entry %d changed", ErrHistoryRewrite, i)
		}
	}
	return nil
}
