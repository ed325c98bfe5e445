package ranking

import (
	"math"
	"sort"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

const (
	DefaultTopN = 3

	// Scores are rounded to this many units so that near-equal sums compare
	// equal and fall through to the tie-breaks.
	scorePrecision = 1e9
)

type Weights struct {
	Rating   float64
	Distance float64
	Value    float64
	OpenNow  float64
}

var DefaultWeights = Weights{
	Rating:   0.40,
	Distance: 0.25,
	Value:    0.20,
	OpenNow:  0.15,
}

type Option func(*Engine)

func WithTopN(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topN = n
		}
	}
}

func WithWeights(w Weights) Option {
	return func(e *Engine) {
		e.weights = w
	}
}

// Engine scores and orders venues. It is stateless apart from its settings.
type Engine struct {
	weights Weights
	topN    int
}

func New(opts ...Option) *Engine {
	e := &Engine{
		weights: DefaultWeights,
		topN:    DefaultTopN,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Score returns the composite score and its normalized parts.
func (e *Engine) Score(v contractx.Venue, radiusM int, budget int) (float64, contractx.ScoreBreakdown) {
	b := contractx.ScoreBreakdown{
		Rating:   clamp01(v.Rating / 5),
		Distance: distanceScore(v.DistanceMeters, radiusM),
		Value:    ValueScore(v.PriceTier, budget),
	}
	if v.OpenNow {
		b.OpenNow = 1
	}
	score := e.weights.Rating*b.Rating +
		e.weights.Distance*b.Distance +
		e.weights.Value*b.Value +
		e.weights.OpenNow*b.OpenNow
	return roundScore(score), b
}

func roundScore(s float64) float64 {
	return math.Round(s*scorePrecision) / scorePrecision
}

// ValueScore rates how well a price tier fits the requested budget tier.
// Unknown tiers on either side score a neutral 0.5.
func ValueScore(priceTier, budget int) float64 {
	if priceTier <= 0 || budget <= 0 {
		return 0.5
	}
	switch diff := abs(priceTier - budget); diff {
	case 0:
		return 1.0
	case 1:
		return 0.6
	case 2:
		return 0.3
	default:
		return 0
	}
}

// Rank returns the top N venues by descending score. Ties go to the higher
// rating, then the shorter distance, then the lower id.
func (e *Engine) Rank(venues []contractx.Venue, radiusM int, budget int) []contractx.Recommendation {
	if len(venues) == 0 {
		return nil
	}

	recs := make([]contractx.Recommendation, 0, len(venues))
	for _, v := range venues {
		score, b := e.Score(v, radiusM, budget)
		recs = append(recs, contractx.Recommendation{
			Venue:     v,
			Score:     score,
			Breakdown: b,
			Feasible:  true,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return less(recs[i], recs[j])
	})

	if len(recs) > e.topN {
		recs = recs[:e.topN]
	}
	for i := range recs {
		recs[i].Rank = i + 1
	}
	return recs
}

func less(a, b contractx.Recommendation) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Venue.Rating != b.Venue.Rating {
		return a.Venue.Rating > b.Venue.Rating
	}
	if a.Venue.DistanceMeters != b.Venue.DistanceMeters {
		return a.Venue.DistanceMeters < b.Venue.DistanceMeters
	}
	return a.Venue.ID < b.Venue.ID
}

func distanceScore(distanceM float64, radiusM int) float64 {
	if radiusM <= 0 {
		return 0
	}
	return clamp01(1 - distanceM/float64(radiusM))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0, math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
