package dialogue

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
)

// discover searches, then composes recommendations in the same turn.
func (m *Machine) discover(t *turn) {
	if m.revisit(t) {
		return
	}

	req := contractx.SearchRequest{
		Location:     *t.st.Location,
		RadiusMeters: t.st.SearchRadius,
		Cuisine:      t.st.Cuisine,
		BudgetTier:   t.st.BudgetLevel,
	}
	res, err := m.discovery.Search(t.ctx, req)
	if err != nil {
		if !errors.Is(err, contractx.ErrDiscoveryUnavailable) {
			log.Warn().Err(err).Str("session_id", t.st.ID).Msg("unexpected discovery error")
		}
		t.st.StageAttempts++
		t.record(statex.StageDiscovery, "discovery", "unavailable")
		t.reply(ActionRetry, "I couldn't reach the restaurant search just now. Send anything to try again, or name a different cuisine.")
		t.out.Directive.Reprompt = true
		t.out.Directive.Degraded = true
		t.out.Directive.Reason = "discovery_unavailable"
		return
	}

	if len(res.Venues) == 0 {
		cuisine := t.st.Cuisine
		t.st.Cuisine = ""
		t.record(statex.StageDiscovery, "discovery", "0")
		t.advance()
		t.reprompt("no_results", fmt.Sprintf("I couldn't find any %s places within %s. What other cuisine would you like?",
			cuisineLabel(cuisine), formatDistance(float64(t.st.SearchRadius))))
		t.out.Directive.Degraded = res.Degraded
		return
	}

	t.st.Candidates = withDistances(res.Venues, t.st.Location.Coordinates)
	t.record(statex.StageDiscovery, "discovery", fmt.Sprint(len(res.Venues)))
	m.compose(t)
	t.out.Directive.Degraded = res.Degraded
}

// recompose covers a stored state that has candidates but no recommendations.
func (m *Machine) recompose(t *turn) {
	if m.revisit(t) {
		return
	}
	t.record(statex.StageCompose, "", "")
	m.compose(t)
}

// compose filters candidates on closing time, ranks the survivors and, when
// nothing survives, keeps the best unfiltered candidate flagged infeasible.
func (m *Machine) compose(t *turn) {
	local := m.localTime(t)
	kept, dropped := m.travel.Filter(t.st.Candidates, local)

	pool := kept
	fallback := len(kept) == 0
	if fallback {
		pool = dropped
	}

	venues := make([]contractx.Venue, 0, len(pool))
	minutes := make(map[string]float64, len(pool))
	for _, a := range pool {
		venues = append(venues, a.Venue)
		minutes[a.Venue.ID] = math.Round(a.TravelMinutes()*10) / 10
	}

	recs := m.ranker.Rank(venues, t.st.SearchRadius, t.st.BudgetLevel)
	if fallback && len(recs) > 1 {
		recs = recs[:1]
	}
	for i := range recs {
		recs[i].TravelMinutes = minutes[recs[i].Venue.ID]
		recs[i].Feasible = !fallback
	}

	log.Debug().
		Str("session_id", t.st.ID).
		Int("candidates", len(t.st.Candidates)).
		Int("kept", len(kept)).
		Int("dropped", len(dropped)).
		Bool("fallback", fallback).
		Msg("recommendations composed")

	t.st.Recommendations = recs
	t.changed = true
	t.advance()
	m.metrics.Recommendations(len(recs))

	t.reply(ActionPresent, presentation(t.st, recs, fallback))
	if fallback {
		t.out.Directive.Reason = "closing_soon"
	}
}

// localTime falls back to UTC when the location's zone is unknown.
func (m *Machine) localTime(t *turn) time.Time {
	if t.st.Location == nil {
		return t.now
	}
	local, err := m.clock.LocalTime(t.ctx, *t.st.Location)
	if err != nil {
		log.Warn().Err(err).Str("session_id", t.st.ID).Msg("local time unavailable, using UTC")
	}
	if local.IsZero() {
		return t.now
	}
	return local
}

// withDistances fills in straight-line distance for venues the provider
// returned without one.
func withDistances(venues []contractx.Venue, origin contractx.Coordinates) []contractx.Venue {
	out := make([]contractx.Venue, len(venues))
	copy(out, venues)
	for i := range out {
		if out[i].DistanceMeters <= 0 && out[i].Coordinates != (contractx.Coordinates{}) {
			out[i].DistanceMeters = math.Round(contractx.HaversineMeters(origin, out[i].Coordinates))
		}
	}
	return out
}
