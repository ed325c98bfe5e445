package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	dialoguex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/dialogue"
)

func RunStage(
	ctx context.Context,
	in *GraphState,
	machine *dialoguex.Machine,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	from := in.Session.Stage
	out, err := machine.Step(ctx, in.Session, in.Text)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("session_id", in.SessionID).
		Str("stage", from.String()).
		Str("next_stage", out.State.Stage.String()).
		Str("action", string(out.Directive.Action)).
		Bool("changed", out.Changed).
		Msg("stage handled")

	in.Outcome = out
	return in, nil
}
