package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
)

func LoadOrCreateState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, created, err := loadOrCreateState(ctx, store, in.SessionID, in.Now)
	if err != nil {
		return nil, err
	}
	in.Session = st
	in.Created = created
	return in, nil
}

// loadOrCreateState creates the conversation on first reference. A concurrent
// creator winning the race is not an error: its state is loaded instead.
func loadOrCreateState(
	ctx context.Context,
	store statex.Store,
	sessionID string,
	now time.Time,
) (*statex.ConversationState, bool, error) {
	st, err := store.Load(ctx, sessionID)
	if err == nil {
		return st, false, nil
	}
	if !errors.Is(err, statex.ErrStateNotFound) {
		return nil, false, err
	}

	st = statex.NewConversationState(sessionID, now)
	err = store.Create(ctx, st)
	if err == nil {
		return st, true, nil
	}
	if !errors.Is(err, statex.ErrSessionExists) {
		return nil, false, err
	}

	st, err = store.Load(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return st, false, nil
}
