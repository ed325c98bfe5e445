package state

import "errors"

type Stage string

const (
	StageInit            Stage = "INIT"
	StageLocation        Stage = "LOCATION"
	StageEnergy          Stage = "ENERGY"
	StageDistanceConfirm Stage = "DISTANCE_CONFIRM"
	StageBudgetGroup     Stage = "BUDGET_GROUP"
	StageCuisine         Stage = "CUISINE"
	StageDiscovery       Stage = "DISCOVERY"
	StageCompose         Stage = "COMPOSE"
	StageSelection       Stage = "SELECTION"
	StageDone            Stage = "DONE"

	// StageFastPath is only ever recorded in History; the live stage after a
	// fast-path turn is whatever NextStage resolves to.
	StageFastPath Stage = "FAST_PATH"
)

var ErrUnknownStage = errors.New("unknown stage")

var canonicalOrder = []Stage{
	StageInit,
	StageLocation,
	StageEnergy,
	StageDistanceConfirm,
	StageBudgetGroup,
	StageCuisine,
	StageDiscovery,
	StageCompose,
	StageSelection,
	StageDone,
}

func (s Stage) index() int {
	for i, st := range canonicalOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool {
	return s.index() >= 0
}

// After reports whether s comes strictly later than other in the flow.
func (s Stage) After(other Stage) bool {
	return s.index() > other.index()
}

func (s Stage) String() string {
	return string(s)
}
