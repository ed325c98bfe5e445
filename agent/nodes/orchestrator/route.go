package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

const (
	NodeSaveState     = "validate_and_save_state"
	NodeFinalizeReply = "finalize_reply"
)

// RouteAfterStage skips persistence when the stage handler left the state
// untouched, e.g. an invalid selection.
func RouteAfterStage(_ context.Context, in *GraphState) (string, error) {
	if in == nil {
		return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Outcome.Changed {
		return NodeSaveState, nil
	}
	return NodeFinalizeReply, nil
}
