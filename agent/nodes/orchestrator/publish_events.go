package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

// PublishEvents runs only after the state is saved. A failed publish is
// logged and never fails the turn.
func PublishEvents(
	ctx context.Context,
	in *GraphState,
	publisher contractx.EventPublisher,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if publisher == nil {
		return in, nil
	}

	for _, ev := range in.Outcome.Events {
		if err := publisher.Publish(ctx, ev); err != nil {
			log.Warn().
				Err(err).
				Str("session_id", in.SessionID).
				Str("subject", ev.Subject).
				Str("event_id", ev.ID).
				Msg("event publish failed")
			continue
		}
		in.Published++
	}
	return in, nil
}
