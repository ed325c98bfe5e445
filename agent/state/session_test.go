package state

import (
	"errors"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

func filledState(now time.Time) *ConversationState {
	st := NewConversationState("s1", now)
	st.Record(StageInit, "hi", "", "", now)
	st.Location = &contractx.Location{Query: "Melbourne", TimezoneID: "Australia/Melbourne"}
	st.EnergyLevel = 3
	st.SearchRadius = 3000
	st.RadiusConfirmed = true
	st.BudgetLevel = 2
	st.GroupSize = 2
	st.Cuisine = "Thai"
	st.Candidates = []contractx.Venue{{ID: "v1"}, {ID: "v2"}}
	st.Recommendations = []contractx.Recommendation{{Rank: 1, Venue: contractx.Venue{ID: "v1"}}}
	return st
}

func TestNextStageCanonicalOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC)
	st := NewConversationState("s1", now)
	if got := st.NextStage(); got != StageInit {
		t.Fatalf("NextStage() = %s, want INIT", got)
	}

	st.Record(StageInit, "hello", "", "", now)
	steps := []struct {
		apply func()
		want  Stage
	}{
		{func() {}, StageLocation},
		{func() { st.Location = &contractx.Location{Query: "x"} }, StageEnergy},
		{func() { st.EnergyLevel, st.SearchRadius = 3, 3000 }, StageDistanceConfirm},
		{func() { st.RadiusConfirmed = true }, StageBudgetGroup},
		{func() { st.BudgetLevel = 2 }, StageBudgetGroup},
		{func() { st.GroupSize = 3 }, StageCuisine},
		{func() { st.Cuisine = "Thai" }, StageDiscovery},
		{func() { st.Candidates = []contractx.Venue{{ID: "v1"}} }, StageCompose},
		{func() { st.Recommendations = []contractx.Recommendation{{Venue: contractx.Venue{ID: "v1"}}} }, StageSelection},
		{func() { st.Selection = &st.Recommendations[0] }, StageDone},
	}
	for i, step := range steps {
		step.apply()
		if got := st.NextStage(); got != step.want {
			t.Fatalf("step %d: NextStage() = %s, want %s", i, got, step.want)
		}
	}
}

func TestNextStageFastPathSkipsDistanceConfirm(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := NewConversationState("s1", now)
	st.Record(StageInit, "hello", "", "", now)
	st.Location = &contractx.Location{Query: "x"}
	st.EnergyLevel = 1
	st.SearchRadius = 1000
	st.FastPathTriggered = true
	st.BudgetLevel = 1
	st.GroupSize = 1
	st.Cuisine = "Fast Food"

	if got := st.NextStage(); got != StageDiscovery {
		t.Fatalf("NextStage() = %s, want DISCOVERY", got)
	}
}

func TestAdvanceResetsAttemptsOnlyWhenStageMoves(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := NewConversationState("s1", now)
	st.Record(StageInit, "hello", "", "", now)
	st.Stage = StageLocation
	st.StageAttempts = 2

	st.Advance()
	if st.StageAttempts != 2 {
		t.Fatalf("StageAttempts = %d, want 2", st.StageAttempts)
	}

	st.Location = &contractx.Location{Query: "x"}
	st.Advance()
	if st.Stage != StageEnergy || st.StageAttempts != 0 {
		t.Fatalf("after Advance() stage=%s attempts=%d", st.Stage, st.StageAttempts)
	}
}

func TestClearDownstreamFromCuisine(t *testing.T) {
	t.Parallel()

	st := filledState(time.Now())
	st.Selection = &st.Recommendations[0]

	st.ClearDownstream(StageCuisine)

	if st.Cuisine != "Thai" {
		t.Fatalf("cuisine must survive its own revisit, got %q", st.Cuisine)
	}
	if st.Candidates != nil || st.Recommendations != nil || st.Selection != nil {
		t.Fatalf("downstream not cleared: %+v", st)
	}
	if st.BudgetLevel != 2 || st.GroupSize != 2 {
		t.Fatalf("upstream slots must survive")
	}
}

func TestClearDownstreamFromBudgetGroup(t *testing.T) {
	t.Parallel()

	st := filledState(time.Now())
	st.ClearDownstream(StageBudgetGroup)

	if st.Cuisine != "" || st.Candidates != nil || st.Recommendations != nil {
		t.Fatalf("downstream not cleared: %+v", st)
	}
	if st.BudgetLevel != 2 || !st.RadiusConfirmed {
		t.Fatalf("budget stage and upstream must survive")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()

	ok := filledState(now)
	ok.Selection = &contractx.Recommendation{Venue: contractx.Venue{ID: "v1"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	orphan := filledState(now)
	orphan.Candidates = nil
	if err := orphan.Validate(); !errors.Is(err, ErrOrphanRecommendations) {
		t.Fatalf("Validate() error = %v, want ErrOrphanRecommendations", err)
	}

	stray := filledState(now)
	stray.Selection = &contractx.Recommendation{Venue: contractx.Venue{ID: "v2"}}
	if err := stray.Validate(); !errors.Is(err, ErrSelectionNotOffered) {
		t.Fatalf("Validate() error = %v, want ErrSelectionNotOffered", err)
	}

	radius := filledState(now)
	radius.SearchRadius = 100
	if err := radius.Validate(); !errors.Is(err, ErrSlotOutOfRange) {
		t.Fatalf("Validate() error = %v, want ErrSlotOutOfRange", err)
	}

	stage := filledState(now)
	stage.Stage = StageFastPath
	if err := stage.Validate(); !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("Validate() error = %v, want ErrUnknownStage", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	st := filledState(time.Now())
	cp := st.Clone()

	cp.Candidates[0].ID = "changed"
	cp.Location.Query = "elsewhere"
	cp.History[0].Utterance = "rewritten"

	if st.Candidates[0].ID != "v1" || st.Location.Query != "Melbourne" || st.History[0].Utterance != "hi" {
		t.Fatalf("Clone() shares memory with source")
	}
}
