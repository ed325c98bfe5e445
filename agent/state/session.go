package state

import (
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

// ConversationState is the persistent source-of-truth for one dining conversation.
// - Progress: Stage is derived from which slots are resolved (see NextStage)
// - Revisit: ClearDownstream drops everything after a corrected stage
type ConversationState struct {
	// Identity
	ID    string `json:"id"`
	Stage Stage  `json:"stage"`

	// Slots
	Location          *contractx.Location `json:"location,omitempty"`
	EnergyLevel       int                 `json:"energy_level,omitempty"`  // 1..5, 0 = unset
	SearchRadius      int                 `json:"search_radius,omitempty"` // meters
	RadiusConfirmed   bool                `json:"radius_confirmed,omitempty"`
	BudgetLevel       int                 `json:"budget_level,omitempty"` // 1..4, 0 = unset
	GroupSize         int                 `json:"group_size,omitempty"`
	Cuisine           string              `json:"cuisine,omitempty"`
	FastPathTriggered bool                `json:"fast_path_triggered,omitempty"`

	// Results
	Candidates      []contractx.Venue          `json:"candidates,omitempty"`
	Recommendations []contractx.Recommendation `json:"recommendations,omitempty"`
	Selection       *contractx.Recommendation  `json:"selection,omitempty"`

	History []HistoryEntry `json:"history,omitempty"` // append-only

	LocationFailures int `json:"location_failures,omitempty"`
	StageAttempts    int `json:"stage_attempts,omitempty"` // attempts on the current stage

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry records one processed utterance.
type HistoryEntry struct {
	Stage     Stage     `json:"stage"`
	Utterance string    `json:"utterance"`
	Slot      string    `json:"slot,omitempty"`
	Value     string    `json:"value,omitempty"`
	At        time.Time `json:"at"`
}

const (
	MinSearchRadius = 500
	MaxSearchRadius = 25000
	MaxGroupSize    = 20
)

var (
	ErrOrphanRecommendations = errors.New("recommendations present without candidates")
	ErrSelectionNotOffered   = errors.New("selection is not among recommendations")
	ErrSlotOutOfRange        = errors.New("slot value out of range")
)

func NewConversationState(id string, now time.Time) *ConversationState {
	return &ConversationState{
		ID:        id,
		Stage:     StageInit,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Record appends to History. Entries are never rewritten.
func (s *ConversationState) Record(stage Stage, utterance, slot, value string, now time.Time) {
	s.History = append(s.History, HistoryEntry{
		Stage:     stage,
		Utterance: utterance,
		Slot:      slot,
		Value:     value,
		At:        now.UTC(),
	})
}

// NextStage scans slots in canonical order and returns the first unresolved stage.
func (s *ConversationState) NextStage() Stage {
	switch {
	case len(s.History) == 0:
		return StageInit
	case s.Location == nil:
		return StageLocation
	case s.EnergyLevel == 0:
		return StageEnergy
	case !s.RadiusConfirmed && !s.FastPathTriggered:
		return StageDistanceConfirm
	case s.BudgetLevel == 0 || s.GroupSize == 0:
		return StageBudgetGroup
	case s.Cuisine == "":
		return StageCuisine
	case len(s.Candidates) == 0:
		return StageDiscovery
	case len(s.Recommendations) == 0:
		return StageCompose
	case s.Selection == nil:
		return StageSelection
	default:
		return StageDone
	}
}

// Advance recomputes Stage and resets the attempt counter when it moved.
func (s *ConversationState) Advance() Stage {
	next := s.NextStage()
	if next != s.Stage {
		s.StageAttempts = 0
	}
	s.Stage = next
	return next
}

// ClearDownstream drops every slot owned by a stage strictly after stage.
func (s *ConversationState) ClearDownstream(stage Stage) {
	for _, st := range canonicalOrder {
		if !st.After(stage) {
			continue
		}
		s.clearStage(st)
	}
}

func (s *ConversationState) clearStage(stage Stage) {
	switch stage {
	case StageLocation:
		s.Location = nil
		s.LocationFailures = 0
	case StageEnergy:
		s.EnergyLevel = 0
		s.SearchRadius = 0
	case StageDistanceConfirm:
		s.RadiusConfirmed = false
	case StageBudgetGroup:
		s.BudgetLevel = 0
		s.GroupSize = 0
	case StageCuisine:
		s.Cuisine = ""
	case StageDiscovery:
		s.Candidates = nil
	case StageCompose:
		s.Recommendations = nil
	case StageSelection:
		s.Selection = nil
	}
}

// FindRecommendation returns the recommendation for a venue id.
func (s *ConversationState) FindRecommendation(venueID string) (*contractx.Recommendation, bool) {
	for i := range s.Recommendations {
		if s.Recommendations[i].Venue.ID == venueID {
			rec := s.Recommendations[i]
			return &rec, true
		}
	}
	return nil, false
}

func (s *ConversationState) Validate() error {
	if s == nil {
		return ErrNilSessionState
	}
	if !s.Stage.Valid() {
		return fmt.Errorf("%w: stage=%q", ErrUnknownStage, s.Stage)
	}
	if len(s.Recommendations) > 0 && len(s.Candidates) == 0 {
		return ErrOrphanRecommendations
	}
	if s.Selection != nil {
		if _, ok := s.FindRecommendation(s.Selection.Venue.ID); !ok {
			return fmt.Errorf("%w: venue_id=%s", ErrSelectionNotOffered, s.Selection.Venue.ID)
		}
	}
	if s.EnergyLevel < 0 || s.EnergyLevel > 5 {
		return fmt.Errorf("%w: energy_level=%d", ErrSlotOutOfRange, s.EnergyLevel)
	}
	if s.BudgetLevel < 0 || s.BudgetLevel > 4 {
		return fmt.Errorf("%w: budget_level=%d", ErrSlotOutOfRange, s.BudgetLevel)
	}
	if s.GroupSize < 0 || s.GroupSize > MaxGroupSize {
		return fmt.Errorf("%w: group_size=%d", ErrSlotOutOfRange, s.GroupSize)
	}
	if s.SearchRadius != 0 && (s.SearchRadius < MinSearchRadius || s.SearchRadius > MaxSearchRadius) {
		return fmt.Errorf("%w: search_radius=%d", ErrSlotOutOfRange, s.SearchRadius)
	}
	return nil
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	if s.Candidates != nil {
		out.Candidates = append([]contractx.Venue(nil), s.Candidates...)
	}
	if s.Recommendations != nil {
		out.Recommendations = append([]contractx.Recommendation(nil), s.Recommendations...)
	}
	if s.Selection != nil {
		sel := *s.Selection
		out.Selection = &sel
	}
	if s.History != nil {
		out.History = append([]HistoryEntry(nil), s.History...)
	}
	return &out
}
