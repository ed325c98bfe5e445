package dialogue

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	slotx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/slot"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
)

// locationHintAfter is the failure count after which the location prompt
// suggests raw coordinates.
const locationHintAfter = 2

func (m *Machine) greet(t *turn) {
	t.record(statex.StageInit, "", "")
	t.advance()
	// The time-of-day greeting waits for the location's local time.
	t.reply(ActionAsk, fmt.Sprintf("Hi! It's %s UTC. Let's find you somewhere to eat. %s",
		t.now.Format("Monday 15:04"), prompt(t.st)))
}

func (m *Machine) location(t *turn) {
	loc, err := m.discovery.Geocode(t.ctx, t.utterance)
	if err != nil {
		log.Warn().Err(err).Str("session_id", t.st.ID).Msg("location not resolved")
		t.st.LocationFailures++
		t.st.StageAttempts++
		t.record(statex.StageLocation, "location", "")

		msg := "I couldn't place that. Which city or suburb are you in?"
		if t.st.LocationFailures >= locationHintAfter {
			msg = `I still couldn't place that. Try a city name, or coordinates like "-37.81, 144.96".`
		}
		t.reprompt("location_unresolved", msg)
		return
	}

	t.st.Location = &loc
	t.record(statex.StageLocation, "location", loc.Label)
	t.advance()

	local := m.localTime(t)
	t.reply(ActionAsk, fmt.Sprintf("%s Got it, %s. It's %s there. %s",
		greeting(local), locationLabel(loc), local.Format("Monday 15:04"), prompt(t.st)))
}

func (m *Machine) energy(t *turn) {
	res := m.slots.Energy(t.utterance)
	if res.FastPath {
		m.fastPath(t)
		return
	}

	t.st.EnergyLevel = res.Value
	t.st.SearchRadius = slotx.RadiusForEnergy(res.Value)
	t.record(statex.StageEnergy, "energy", strconv.Itoa(res.Value))
	t.advance()

	t.reply(ActionAsk, fmt.Sprintf("%s %s", energyAck(res.Value), prompt(t.st)))
	t.out.Directive.BestGuess = res.Fallback
}

// fastPath collapses distance, budget, group and cuisine into cheap, close
// fast food and leaves the conversation at DISCOVERY.
func (m *Machine) fastPath(t *turn) {
	t.st.FastPathTriggered = true
	t.st.EnergyLevel = 1
	t.st.SearchRadius = slotx.RadiusForEnergy(1)
	t.st.BudgetLevel = 1
	t.st.Cuisine = slotx.FastFoodCuisine
	if t.st.GroupSize == 0 {
		t.st.GroupSize = 1
	}
	t.record(statex.StageFastPath, "energy", "1")
	t.advance()

	m.metrics.FastPath()
	t.emit(contractx.SubjectFastPathTriggered, map[string]any{
		"radius_m": t.st.SearchRadius,
	})

	t.reply(ActionDiscover, fmt.Sprintf(
		"You sound exhausted, so let's keep it simple: cheap fast food within %s. Finding the closest spots now...",
		formatDistance(float64(t.st.SearchRadius))))
	t.out.Directive.FastPath = true
	t.out.Directive.AutoContinue = true
	t.out.Directive.Reason = "fast_path"
}

func (m *Machine) distance(t *turn) {
	res := m.slots.Distance(t.utterance)
	switch res.Decision {
	case slotx.DistanceCustom:
		t.st.SearchRadius = res.Meters
		t.st.RadiusConfirmed = true
		t.record(statex.StageDistanceConfirm, "distance", strconv.Itoa(res.Meters))
		t.advance()

		ack := fmt.Sprintf("%s it is.", formatDistance(float64(res.Meters)))
		if res.Clamped {
			ack = fmt.Sprintf("I can search between %s and %s, so I'll use %s.",
				formatDistance(slotx.MinRadiusMeters), formatDistance(slotx.MaxRadiusMeters), formatDistance(float64(res.Meters)))
		}
		t.reply(ActionAsk, ack+" "+prompt(t.st))
	case slotx.DistanceAccept:
		t.st.RadiusConfirmed = true
		t.record(statex.StageDistanceConfirm, "distance", strconv.Itoa(t.st.SearchRadius))
		t.advance()
		t.reply(ActionAsk, "Great. "+prompt(t.st))
	case slotx.DistanceReject:
		t.st.StageAttempts++
		t.record(statex.StageDistanceConfirm, "distance", "reject")
		t.reprompt("radius_rejected", "No problem. How far would you go? Something like 800m or 2km.")
	default:
		t.st.StageAttempts++
		t.record(statex.StageDistanceConfirm, "distance", "")
		t.reprompt("radius_unclear", fmt.Sprintf(
			"Sorry, is %s OK? Say yes, or give me a distance like 2km.", formatDistance(float64(t.st.SearchRadius))))
	}
}

// budgetGroup fills whichever of budget and group size the utterance names.
// On a second unresolved attempt the missing slots take their defaults.
func (m *Machine) budgetGroup(t *turn) {
	budget := m.slots.Budget(t.utterance)
	group := m.slots.GroupSize(t.utterance)

	var filled []string
	if budget.Matched {
		t.st.BudgetLevel = budget.Value
		filled = append(filled, "budget="+strconv.Itoa(budget.Value))
	}
	if group.Matched {
		t.st.GroupSize = group.Value
		filled = append(filled, "group="+strconv.Itoa(group.Value))
	}

	bestGuess := false
	if t.st.BudgetLevel == 0 || t.st.GroupSize == 0 {
		t.st.StageAttempts++
		if t.st.StageAttempts < 2 {
			t.record(statex.StageBudgetGroup, "budget_group", strings.Join(filled, ","))
			t.reprompt("budget_group_incomplete", prompt(t.st))
			return
		}
		if t.st.BudgetLevel == 0 {
			t.st.BudgetLevel = budget.Value
			filled = append(filled, "budget="+strconv.Itoa(budget.Value))
		}
		if t.st.GroupSize == 0 {
			t.st.GroupSize = group.Value
			filled = append(filled, "group="+strconv.Itoa(group.Value))
		}
		bestGuess = true
	}

	t.record(statex.StageBudgetGroup, "budget_group", strings.Join(filled, ","))
	t.advance()

	ack := fmt.Sprintf("%s for %s.", capitalize(budgetLabel(t.st.BudgetLevel)), groupLabel(t.st.GroupSize))
	if bestGuess {
		ack = fmt.Sprintf("I'll go with %s for %s.", budgetLabel(t.st.BudgetLevel), groupLabel(t.st.GroupSize))
	}
	t.reply(ActionAsk, ack+" "+prompt(t.st))
	t.out.Directive.BestGuess = bestGuess
}

func (m *Machine) cuisine(t *turn) {
	if m.revisitBudget(t) {
		return
	}

	res := m.slots.Cuisine(t.utterance)
	if res.Fallback {
		t.st.StageAttempts++
		t.record(statex.StageCuisine, "cuisine", "")
		t.reprompt("cuisine_unclear", `What kind of food would you like? Thai, Italian, sushi... or say "anything".`)
		return
	}

	t.st.Cuisine = res.Value
	t.record(statex.StageCuisine, "cuisine", res.Value)
	t.advance()
	t.reply(ActionDiscover, prompt(t.st))
	t.out.Directive.AutoContinue = true
}

func (m *Machine) selection(t *turn) {
	recs := t.st.Recommendations
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Venue.Name
	}

	// A lone recommendation accepts any affirmative, so a change of mind
	// riding on "sure" has to be read first.
	if len(recs) == 1 && !slotx.ContainsAny(t.utterance, names) && m.revisit(t) {
		return
	}

	idx, ok := m.slots.Selection(t.utterance, len(recs), names)
	if !ok {
		if m.revisit(t) {
			return
		}
		// Invalid picks leave the state untouched.
		t.reprompt("selection_invalid", selectionHelp(len(recs)))
		return
	}

	picked := recs[idx-1]
	t.st.Selection = &picked
	t.record(statex.StageSelection, "selection", picked.Venue.ID)
	t.advance()

	t.emit(contractx.SubjectRecommendationSelected, map[string]any{
		"venue_id":     picked.Venue.ID,
		"venue_name":   picked.Venue.Name,
		"cuisine":      t.st.Cuisine,
		"rank":         picked.Rank,
		"budget_level": t.st.BudgetLevel,
		"group_size":   t.st.GroupSize,
		"energy_level": t.st.EnergyLevel,
		"fast_path":    t.st.FastPathTriggered,
	})
	t.reply(ActionComplete, selectionConfirmation(picked))
}

func (m *Machine) done(t *turn) {
	name := "your pick"
	if t.st.Selection != nil {
		name = t.st.Selection.Venue.Name
	}
	t.reply(ActionComplete, fmt.Sprintf("You're all set with %s. Start a new conversation to plan another meal.", name))
}

// revisit handles a change of mind after slots are filled: a budget
// correction, or a new cuisine statement.
func (m *Machine) revisit(t *turn) bool {
	if m.revisitBudget(t) {
		return true
	}

	name, ok := m.slots.KnownCuisine(t.utterance)
	if !ok || strings.EqualFold(name, t.st.Cuisine) {
		return false
	}

	t.st.ClearDownstream(statex.StageCuisine)
	t.st.Cuisine = name
	t.record(statex.StageCuisine, "cuisine", name)
	t.advance()

	t.reply(ActionDiscover, fmt.Sprintf("Switching to %s. %s", name, prompt(t.st)))
	t.out.Directive.Revisited = statex.StageCuisine
	t.out.Directive.AutoContinue = true
	t.out.Directive.Reason = "cuisine_changed"
	return true
}

// revisitBudget needs an explicit correction marker so that a plain cuisine
// or selection answer is never read as a budget change.
func (m *Machine) revisitBudget(t *turn) bool {
	if !m.slots.IsCorrection(t.utterance) {
		return false
	}
	res := m.slots.Budget(t.utterance)
	if !res.Matched || res.Value == t.st.BudgetLevel {
		return false
	}

	t.st.BudgetLevel = res.Value
	t.st.ClearDownstream(statex.StageBudgetGroup)
	t.record(statex.StageBudgetGroup, "budget", strconv.Itoa(res.Value))
	t.advance()

	t.reply(ActionAsk, fmt.Sprintf("Switching to %s. %s", budgetLabel(res.Value), prompt(t.st)))
	t.out.Directive.Revisited = statex.StageBudgetGroup
	t.out.Directive.Reason = "budget_changed"
	return true
}
