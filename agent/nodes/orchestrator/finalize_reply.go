package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Outcome.State == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Outcome.Message)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: stage %s produced an empty message", contractx.ErrValidation, in.Outcome.Directive.Stage)
	}

	st := in.Outcome.State
	return GraphOutput{
		SessionID: in.SessionID,
		Stage:     st.Stage,
		Message:   reply,
		Directive: in.Outcome.Directive,
		State:     st.Clone(),
		Created:   in.Created,
		Changed:   in.Outcome.Changed,
	}, nil
}
