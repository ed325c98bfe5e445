package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	rankingx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/ranking"
	slotx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/slot"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
	travelx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/travel"
	metricsx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/metrics"
)

// Discoverer is the collaborator surface the machine needs at LOCATION and
// DISCOVERY. discovery.Resilient satisfies it.
type Discoverer interface {
	Search(ctx context.Context, req contractx.SearchRequest) (contractx.SearchResult, error)
	Geocode(ctx context.Context, query string) (contractx.Location, error)
}

type Action string

const (
	// ActionAsk asks the user for the slot owned by Directive.Stage.
	ActionAsk Action = "ask"
	// ActionDiscover means every slot is in and the next turn runs the search.
	ActionDiscover Action = "discover"
	ActionPresent  Action = "present"
	// ActionRetry means discovery was unavailable; any utterance retries it.
	ActionRetry    Action = "retry"
	ActionComplete Action = "complete"
)

// ContinueUtterance is what clients send to follow an AutoContinue directive.
const ContinueUtterance = "continue"

// Directive tells a thin UI or API layer what the machine expects next.
type Directive struct {
	Action    Action       `json:"action"`
	Stage     statex.Stage `json:"stage"`
	Reprompt  bool         `json:"reprompt,omitempty"`
	BestGuess bool         `json:"best_guess,omitempty"`
	Degraded  bool         `json:"degraded,omitempty"`
	Revisited statex.Stage `json:"revisited,omitempty"`
	FastPath  bool         `json:"fast_path,omitempty"`
	// AutoContinue is set when the machine can make progress without new
	// user input; a client may send a follow-up turn right away.
	AutoContinue bool   `json:"auto_continue,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Outcome is the result of one Step. State is always a fresh copy; when
// Changed is false it equals the input state.
type Outcome struct {
	State     *statex.ConversationState
	Message   string
	Directive Directive
	Changed   bool
	Events    []contractx.Event
}

type Option func(*Machine)

func WithExtractor(ex *slotx.Extractor) Option {
	return func(m *Machine) {
		m.slots = ex
	}
}

func WithEstimator(e *travelx.Estimator) Option {
	return func(m *Machine) {
		m.travel = e
	}
}

func WithRanker(r *rankingx.Engine) Option {
	return func(m *Machine) {
		m.ranker = r
	}
}

func WithMetrics(mt *metricsx.Metrics) Option {
	return func(m *Machine) {
		m.metrics = mt
	}
}

func WithNow(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// Machine runs exactly one stage handler per utterance. It keeps no
// per-conversation state of its own and is safe for concurrent use.
type Machine struct {
	discovery Discoverer
	clock     contractx.LocalClock
	slots     *slotx.Extractor
	travel    *travelx.Estimator
	ranker    *rankingx.Engine
	metrics   *metricsx.Metrics
	now       func() time.Time
}

func New(discovery Discoverer, clock contractx.LocalClock, opts ...Option) (*Machine, error) {
	if discovery == nil {
		return nil, errors.New("discoverer is required")
	}

	m := &Machine{
		discovery: discovery,
		clock:     clock,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.slots == nil {
		m.slots = slotx.Default()
	}
	if m.travel == nil {
		est, err := travelx.New(travelx.DefaultConfig)
		if err != nil {
			return nil, err
		}
		m.travel = est
	}
	if m.ranker == nil {
		m.ranker = rankingx.New()
	}
	if m.clock == nil {
		m.clock = travelx.NewZoneClock(m.now)
	}
	return m, nil
}

// turn carries one Step's working copy and the reply being built.
type turn struct {
	ctx       context.Context
	st        *statex.ConversationState
	utterance string
	now       time.Time

	out     Outcome
	changed bool
}

func (t *turn) record(stage statex.Stage, slot, value string) {
	t.st.Record(stage, t.utterance, slot, value, t.now)
	t.changed = true
}

// advance moves to the next unresolved stage and returns it.
func (t *turn) advance() statex.Stage {
	return t.st.Advance()
}

func (t *turn) reply(action Action, message string) {
	t.out.Message = message
	t.out.Directive.Action = action
}

func (t *turn) reprompt(reason, message string) {
	t.reply(ActionAsk, message)
	t.out.Directive.Reprompt = true
	t.out.Directive.Reason = reason
}

func (t *turn) emit(subject string, payload map[string]any) {
	t.out.Events = append(t.out.Events, contractx.Event{
		ID:         uuid.NewString(),
		Subject:    subject,
		SessionID:  t.st.ID,
		OccurredAt: t.now,
		Payload:    payload,
	})
}

// Step applies one utterance to a copy of current and reports the result.
// Recoverable conditions come back as directives, never as errors.
func (m *Machine) Step(ctx context.Context, current *statex.ConversationState, utterance string) (Outcome, error) {
	if current == nil {
		return Outcome{}, statex.ErrNilSessionState
	}
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Outcome{}, fmt.Errorf("%w: utterance is empty", contractx.ErrValidation)
	}

	t := &turn{
		ctx:       ctx,
		st:        current.Clone(),
		utterance: utterance,
		now:       m.now().UTC(),
	}
	if t.st.Stage != t.st.NextStage() {
		t.advance()
	}

	switch t.st.Stage {
	case statex.StageInit:
		m.greet(t)
	case statex.StageLocation:
		m.location(t)
	case statex.StageEnergy:
		m.energy(t)
	case statex.StageDistanceConfirm:
		m.distance(t)
	case statex.StageBudgetGroup:
		m.budgetGroup(t)
	case statex.StageCuisine:
		m.cuisine(t)
	case statex.StageDiscovery:
		m.discover(t)
	case statex.StageCompose:
		m.recompose(t)
	case statex.StageSelection:
		m.selection(t)
	default:
		m.done(t)
	}

	out := t.out
	out.Changed = t.changed
	if t.changed {
		t.st.Touch(t.now)
		out.State = t.st
	} else {
		out.State = current.Clone()
	}
	if out.Directive.Stage == "" {
		out.Directive.Stage = out.State.Stage
	}
	return out, nil
}
