package dialogue

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	slotx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/slot"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
)

// prompt is the question for whatever the state still needs.
func prompt(st *statex.ConversationState) string {
	switch st.Stage {
	case statex.StageLocation:
		return "Where are you right now? A city or suburb works."
	case statex.StageEnergy:
		return "How's your energy? Had a long day, or up for an adventure?"
	case statex.StageDistanceConfirm:
		return fmt.Sprintf("I'll look within %s. Does that work, or would you like a different distance?",
			formatDistance(float64(st.SearchRadius)))
	case statex.StageBudgetGroup:
		switch {
		case st.BudgetLevel == 0 && st.GroupSize == 0:
			return "What's the budget (cheap, mid-range or fancy), and how many of you are eating?"
		case st.BudgetLevel == 0:
			return "And what's the budget: cheap, mid-range or fancy?"
		default:
			return "And how many of you are eating?"
		}
	case statex.StageCuisine:
		return `What are you in the mood for? Say "anything" if you don't mind.`
	case statex.StageDiscovery:
		return fmt.Sprintf("Looking for %s places within %s...",
			cuisineLabel(st.Cuisine), formatDistance(float64(st.SearchRadius)))
	case statex.StageSelection:
		return selectionHelp(len(st.Recommendations))
	default:
		return ""
	}
}

func greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "Good morning!"
	case h < 17:
		return "Good afternoon!"
	default:
		return "Good evening!"
	}
}

func energyAck(level int) string {
	switch {
	case level <= 2:
		return "Sounds like a long day, so let's keep it close."
	case level >= 4:
		return "Love the energy! We can go a bit further."
	default:
		return "Alright."
	}
}

func locationLabel(loc contractx.Location) string {
	if loc.Label != "" {
		return loc.Label
	}
	return loc.Query
}

func budgetLabel(level int) string {
	switch level {
	case 1:
		return "cheap eats"
	case 2:
		return "mid-range"
	case 3:
		return "somewhere a bit nicer"
	case 4:
		return "something fancy"
	default:
		return "any budget"
	}
}

func groupLabel(size int) string {
	if size <= 1 {
		return "just you"
	}
	return strconv.Itoa(size) + " people"
}

func cuisineLabel(cuisine string) string {
	if cuisine == "" || strings.EqualFold(cuisine, slotx.AnyCuisine) {
		return "good food"
	}
	return cuisine
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// formatDistance prints meters under a kilometre and km with one decimal above.
func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	km := strconv.FormatFloat(meters/1000, 'f', 1, 64)
	return strings.TrimSuffix(km, ".0") + " km"
}

func selectionHelp(n int) string {
	switch n {
	case 0:
		return "There's nothing to pick from yet."
	case 1:
		return `Want to go with it? Say "yes" or "1".`
	default:
		opts := make([]string, n)
		for i := range opts {
			opts[i] = strconv.Itoa(i + 1)
		}
		return fmt.Sprintf("Which one would you like? Reply with %s or %s.",
			strings.Join(opts[:n-1], ", "), opts[n-1])
	}
}

func presentation(st *statex.ConversationState, recs []contractx.Recommendation, fallback bool) string {
	var b strings.Builder
	if fallback {
		b.WriteString("Everything nearby closes soon, but this is your best bet:\n\n")
	} else {
		fmt.Fprintf(&b, "Here are my top picks for %s within %s:\n\n",
			cuisineLabel(st.Cuisine), formatDistance(float64(st.SearchRadius)))
	}
	for _, r := range recs {
		fmt.Fprintf(&b, "%d. %s (%.1f stars) - %s, about %d min away",
			r.Rank, r.Venue.Name, r.Venue.Rating, formatDistance(r.Venue.DistanceMeters), travelMinutes(r))
		if r.Venue.ClosesAt != "" {
			fmt.Fprintf(&b, ", open until %s", r.Venue.ClosesAt)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(selectionHelp(len(recs)))
	return b.String()
}

func selectionConfirmation(r contractx.Recommendation) string {
	msg := fmt.Sprintf("Great choice! %s is %s away, about %d min.",
		r.Venue.Name, formatDistance(r.Venue.DistanceMeters), travelMinutes(r))
	if r.Venue.ClosesAt != "" {
		if r.Feasible {
			msg += fmt.Sprintf(" They're open until %s.", r.Venue.ClosesAt)
		} else {
			msg += fmt.Sprintf(" Heads up, they close at %s so it'll be tight.", r.Venue.ClosesAt)
		}
	}
	return msg + " Enjoy your meal!"
}

func travelMinutes(r contractx.Recommendation) int {
	n := int(math.Ceil(r.TravelMinutes))
	if n < 1 {
		return 1
	}
	return n
}
