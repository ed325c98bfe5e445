package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
)

func ValidateAndSaveState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil || in.Outcome.State == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	next := in.Outcome.State
	next.Touch(in.Now)
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, next); err != nil {
		return nil, err
	}

	in.Session = next
	return in, nil
}
