package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	dialoguex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/dialogue"
	discoveryx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/discovery"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
	travelx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/travel"
	metricsx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/metrics"
)

// 19:00 in Melbourne.
var testNow = time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	loadState *statex.ConversationState
	loadErr   error
	createErr error
	saveErr   error
	created   []*statex.ConversationState
	saved     []*statex.ConversationState
}

func (f *fakeStore) Load(ctx context.Context, sessionID string) (*statex.ConversationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.loadState == nil {
		return nil, statex.ErrStateNotFound
	}
	return f.loadState.Clone(), nil
}

func (f *fakeStore) Create(ctx context.Context, st *statex.ConversationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	st.Version = 1
	f.created = append(f.created, st.Clone())
	return nil
}

func (f *fakeStore) Save(ctx context.Context, st *statex.ConversationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	st.Version++
	f.saved = append(f.saved, st.Clone())
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, sessionID string) error {
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []contractx.Event
}

func (f *fakePublisher) Publish(ctx context.Context, ev contractx.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Subject)
	}
	return out
}

func newTestMachine(t *testing.T) *dialoguex.Machine {
	t.Helper()

	now := func() time.Time { return testNow }
	clock := travelx.NewZoneClock(now)
	resilient, err := discoveryx.NewResilient(
		discoveryx.MustNewCatalog(clock),
		discoveryx.NewGazetteer(),
		discoveryx.DefaultConfig,
	)
	if err != nil {
		t.Fatalf("NewResilient() error = %v", err)
	}

	machine, err := dialoguex.New(resilient, clock, dialoguex.WithNow(now))
	if err != nil {
		t.Fatalf("dialogue.New() error = %v", err)
	}
	return machine
}

func newTestOrchestrator(t *testing.T, store statex.Store, opts ...Option) *Orchestrator {
	t.Helper()

	opts = append([]Option{WithNow(func() time.Time { return testNow })}, opts...)
	o, err := New(store, newTestMachine(t), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func mustTurn(t *testing.T, o *Orchestrator, sessionID, text string) TurnResult {
	t.Helper()
	res, err := o.ProcessTurn(context.Background(), sessionID, text)
	if err != nil {
		t.Fatalf("ProcessTurn(%q) error = %v", text, err)
	}
	return res
}

func TestProcessTurnInvalidInput(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, &fakeStore{})

	_, err := o.ProcessTurn(context.Background(), "   ", "hello")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	_, err = o.ProcessTurn(context.Background(), "s1", "    ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	_, err = o.ProcessTurn(context.Background(), "s1", strings.Repeat("a", 2001))
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for long text, got %v", err)
	}
}

func TestProcessTurnCreatesStateOnFirstReference(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	o := newTestOrchestrator(t, store)

	res := mustTurn(t, o, "session-1", "hi")
	if res.Stage != statex.StageLocation {
		t.Fatalf("stage = %s, want LOCATION", res.Stage)
	}
	if len(store.created) != 1 || len(store.saved) != 1 {
		t.Fatalf("expected one create and one save, got %d/%d", len(store.created), len(store.saved))
	}
	if res.State.Version != 2 {
		t.Fatalf("version = %d, want 2", res.State.Version)
	}
	if !strings.Contains(res.Message, "Tuesday") {
		t.Fatalf("greeting should carry the weekday: %q", res.Message)
	}
}

func TestProcessTurnLosesCreateRace(t *testing.T) {
	t.Parallel()

	existing := statex.NewConversationState("session-1", testNow)
	existing.Version = 1

	store := &fakeStore{createErr: statex.ErrSessionExists}
	calls := 0
	racing := &racingStore{fakeStore: store, onLoad: func() {
		calls++
		if calls == 2 {
			store.loadState = existing
		}
	}}
	o := newTestOrchestrator(t, racing)

	res := mustTurn(t, o, "session-1", "hi")
	if res.Stage != statex.StageLocation {
		t.Fatalf("stage = %s, want LOCATION", res.Stage)
	}
	if calls != 2 {
		t.Fatalf("expected a second load after losing the create race, got %d loads", calls)
	}
}

type racingStore struct {
	*fakeStore
	onLoad func()
}

func (r *racingStore) Load(ctx context.Context, sessionID string) (*statex.ConversationState, error) {
	r.onLoad()
	return r.fakeStore.Load(ctx, sessionID)
}

func TestProcessTurnFastPathConversation(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore(0)
	publisher := &fakePublisher{}
	reg := prometheus.NewRegistry()
	metrics := metricsx.New(reg)
	o := newTestOrchestrator(t, store, WithPublisher(publisher), WithMetrics(metrics))

	mustTurn(t, o, "s-fast", "hello")
	res := mustTurn(t, o, "s-fast", "Melbourne")
	if res.State.Location == nil || res.State.Location.TimezoneID != "Australia/Melbourne" {
		t.Fatalf("unexpected location: %+v", res.State.Location)
	}

	res = mustTurn(t, o, "s-fast", "I'm completely exhausted")
	if res.Stage != statex.StageDiscovery || !res.Directive.FastPath || !res.Directive.AutoContinue {
		t.Fatalf("unexpected fast path result: stage=%s directive=%+v", res.Stage, res.Directive)
	}

	res = mustTurn(t, o, "s-fast", "continue")
	if res.Stage != statex.StageSelection {
		t.Fatalf("stage = %s, want SELECTION (%s)", res.Stage, res.Message)
	}
	if len(res.State.Recommendations) != 3 {
		t.Fatalf("recommendations = %d, want 3", len(res.State.Recommendations))
	}
	for _, rec := range res.State.Recommendations {
		if rec.Venue.Cuisine != "Fast Food" {
			t.Fatalf("unexpected cuisine in recommendations: %+v", rec.Venue)
		}
	}

	res = mustTurn(t, o, "s-fast", "the first one")
	if res.Stage != statex.StageDone || res.State.Selection == nil {
		t.Fatalf("unexpected selection result: %+v", res)
	}

	got := publisher.subjects()
	want := []string{contractx.SubjectFastPathTriggered, contractx.SubjectRecommendationSelected}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("published = %v, want %v", got, want)
	}

	stored, err := o.GetState(context.Background(), "s-fast")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if stored.Selection == nil || stored.Selection.Venue.ID != res.State.Selection.Venue.ID {
		t.Fatalf("stored selection mismatch: %+v", stored.Selection)
	}
	if len(stored.History) != 5 {
		t.Fatalf("history = %d entries, want 5", len(stored.History))
	}

	// One series per stage reached: LOCATION, ENERGY, DISCOVERY, SELECTION, DONE.
	n, err := testutil.GatherAndCount(reg, "dining_dialogue_turns_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n != 5 {
		t.Fatalf("turns_total series = %d, want 5", n)
	}
}

func TestProcessTurnInvalidSelectionSkipsSave(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore(0)
	o := newTestOrchestrator(t, store)

	for _, text := range []string{"hi", "Melbourne", "dead tired", "go"} {
		mustTurn(t, o, "s-sel", text)
	}
	before, err := o.GetState(context.Background(), "s-sel")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}

	res := mustTurn(t, o, "s-sel", "number 9")
	if !res.Directive.Reprompt || res.Stage != statex.StageSelection {
		t.Fatalf("expected reprompt at SELECTION, got %+v", res.Directive)
	}

	after, err := o.GetState(context.Background(), "s-sel")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if after.Version != before.Version || len(after.History) != len(before.History) {
		t.Fatalf("invalid selection must not touch the stored state: before=%d after=%d", before.Version, after.Version)
	}
}

func TestProcessTurnSaveErrorPropagates(t *testing.T) {
	t.Parallel()

	saveErr := errors.New("save failed")
	publisher := &fakePublisher{}
	o := newTestOrchestrator(t, &fakeStore{saveErr: saveErr}, WithPublisher(publisher))

	_, err := o.ProcessTurn(context.Background(), "session-x", "hi")
	if !errors.Is(err, saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("nothing may be published when the save fails")
	}
}

func TestProcessTurnPublishErrorDoesNotFailTurn(t *testing.T) {
	t.Parallel()

	st := statex.NewConversationState("session-p", testNow)
	st.Version = 3
	st.Record(statex.StageInit, "hi", "", "", testNow)
	loc := contractx.Location{Query: "Melbourne", Coordinates: contractx.Coordinates{Lat: -37.8136, Lng: 144.9631}, TimezoneID: "Australia/Melbourne"}
	st.Location = &loc
	st.Advance()

	store := &fakeStore{loadState: st}
	publisher := &fakePublisher{err: contractx.ErrPublish}
	o := newTestOrchestrator(t, store, WithPublisher(publisher))

	res := mustTurn(t, o, "session-p", "exhausted")
	if !res.Directive.FastPath {
		t.Fatalf("expected fast path, got %+v", res.Directive)
	}
	if len(store.saved) != 1 || store.saved[0].Version != 4 {
		t.Fatalf("expected one save at version 4, got %+v", store.saved)
	}
}

func TestGetStateNotFound(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, statex.NewMemoryStore(0))

	_, err := o.GetState(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = o.GetState(context.Background(), " ")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestProcessTurnSerializesSameSession(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore(0)
	o := newTestOrchestrator(t, store)
	mustTurn(t, o, "s-race", "hi")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.ProcessTurn(context.Background(), "s-race", "Melbourne"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent turn failed: %v", err)
	}

	st, err := o.GetState(context.Background(), "s-race")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if len(st.History) != 9 {
		t.Fatalf("history = %d entries, want 9", len(st.History))
	}
	if st.Version != 10 {
		t.Fatalf("version = %d, want 10", st.Version)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, newTestMachine(t)); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New(&fakeStore{}, nil); err == nil {
		t.Fatal("expected error for nil machine")
	}
}
