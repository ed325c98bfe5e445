package orchestratornode

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	dialoguex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/dialogue"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
)

// MaxUtteranceRunes bounds a single user utterance.
const MaxUtteranceRunes = 2000

var (
	ErrInvalidMessage = fmt.Errorf("%w: message is empty or too long", contractx.ErrValidation)
	ErrInvalidSession = fmt.Errorf("%w: session id is empty", contractx.ErrValidation)
)

type GraphInput struct {
	SessionID string
	Text      string
}

type GraphOutput struct {
	SessionID string
	Stage     statex.Stage
	Message   string
	Directive dialoguex.Directive
	State     *statex.ConversationState
	Created   bool
	Changed   bool
}

// GraphState flows through every node of one turn.
type GraphState struct {
	SessionID string
	Text      string
	Now       time.Time

	Session *statex.ConversationState
	Created bool

	Outcome   dialoguex.Outcome
	Published int
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" || utf8.RuneCountInString(text) > MaxUtteranceRunes {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}
