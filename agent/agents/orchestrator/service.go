package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	dialoguex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/dialogue"
	nodex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
	metricsx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/metrics"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
	ErrNotFound       = statex.ErrStateNotFound
)

// TurnResult is what a caller gets back for one utterance.
type TurnResult struct {
	SessionID string                    `json:"session_id"`
	Stage     statex.Stage              `json:"stage"`
	Message   string                    `json:"message"`
	Directive dialoguex.Directive       `json:"directive"`
	State     *statex.ConversationState `json:"state"`
}

type Option func(*Orchestrator)

func WithPublisher(p contractx.EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

func WithMetrics(m *metricsx.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

type Orchestrator struct {
	store     statex.Store
	machine   *dialoguex.Machine
	publisher contractx.EventPublisher
	metrics   *metricsx.Metrics
	locks     *statex.KeyedMutex

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(
	store statex.Store,
	machine *dialoguex.Machine,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if machine == nil {
		return nil, errors.New("dialogue machine is required")
	}

	o := &Orchestrator{
		store:   store,
		machine: machine,
		locks:   statex.NewKeyedMutex(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.publisher == nil {
		o.publisher = noopPublisher{}
	}

	graphRunner, err := o.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// ProcessTurn runs one utterance to completion. Turns for the same session
// are serialized; different sessions run concurrently.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID string, text string) (TurnResult, error) {
	start := time.Now()
	sessionID = strings.TrimSpace(sessionID)

	unlock := o.locks.Lock(sessionID)
	defer unlock()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		o.metrics.ObserveTurn("unknown", "error", time.Since(start))
		return TurnResult{}, err
	}

	o.metrics.ObserveTurn(out.Stage.String(), turnOutcome(out.Directive), time.Since(start))

	return TurnResult{
		SessionID: out.SessionID,
		Stage:     out.Stage,
		Message:   out.Message,
		Directive: out.Directive,
		State:     out.State,
	}, nil
}

// GetState returns a read-only snapshot. Unknown ids fail with ErrNotFound.
func (o *Orchestrator) GetState(ctx context.Context, sessionID string) (*statex.ConversationState, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	st, err := o.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, statex.ErrStateNotFound) {
			return nil, fmt.Errorf("%w: session_id=%s", ErrNotFound, sessionID)
		}
		return nil, err
	}
	return st.Clone(), nil
}

func turnOutcome(d dialoguex.Directive) string {
	switch {
	case d.Degraded:
		return "degraded"
	case d.Reprompt:
		return "reprompt"
	default:
		return "advanced"
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, contractx.Event) error {
	return nil
}
