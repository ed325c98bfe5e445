package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

func fourCandidates() []contractx.Venue {
	return []contractx.Venue{
		{ID: "d", Name: "D", Rating: 3.5, DistanceMeters: 3600, PriceTier: 4, OpenNow: true},
		{ID: "c", Name: "C", Rating: 4.0, DistanceMeters: 900, PriceTier: 1, OpenNow: false},
		{ID: "b", Name: "B", Rating: 4.8, DistanceMeters: 2400, PriceTier: 3, OpenNow: true},
		{ID: "a", Name: "A", Rating: 4.5, DistanceMeters: 600, PriceTier: 2, OpenNow: true},
	}
}

func TestRankFourCandidates(t *testing.T) {
	t.Parallel()

	recs := New().Rank(fourCandidates(), 3000, 2)
	require.Len(t, recs, 3)

	wantIDs := []string{"a", "b", "c"}
	wantScores := []float64{0.91, 0.704, 0.615}
	for i, rec := range recs {
		assert.Equal(t, i+1, rec.Rank)
		assert.Equal(t, wantIDs[i], rec.Venue.ID)
		assert.InDelta(t, wantScores[i], rec.Score, 1e-9)
		assert.True(t, rec.Feasible)
	}

	assert.InDelta(t, 0.8, recs[0].Breakdown.Distance, 1e-9)
	assert.Equal(t, 1.0, recs[0].Breakdown.Value)
}

func TestRankIsIdempotent(t *testing.T) {
	t.Parallel()

	e := New()
	first := e.Rank(fourCandidates(), 3000, 2)
	second := e.Rank(fourCandidates(), 3000, 2)
	assert.Equal(t, first, second)
}

func TestRankBeyondRadiusStillRanked(t *testing.T) {
	t.Parallel()

	recs := New(WithTopN(5)).Rank(fourCandidates(), 3000, 2)
	require.Len(t, recs, 4)
	assert.Equal(t, "d", recs[3].Venue.ID)
	assert.Zero(t, recs[3].Breakdown.Distance)
	assert.InDelta(t, 0.49, recs[3].Score, 1e-9)
}

func TestRankTieBreaks(t *testing.T) {
	t.Parallel()

	venues := []contractx.Venue{
		{ID: "h", Rating: 3.0, DistanceMeters: 1080, PriceTier: 2},
		{ID: "g", Rating: 5.0, DistanceMeters: 3000, PriceTier: 2},
		{ID: "y", Rating: 4.0, DistanceMeters: 1500, PriceTier: 2, OpenNow: true},
		{ID: "x", Rating: 4.0, DistanceMeters: 1500, PriceTier: 2, OpenNow: true},
	}

	recs := New(WithTopN(4)).Rank(venues, 3000, 2)
	require.Len(t, recs, 4)

	// x and y tie on everything but id; g and h tie on score only.
	assert.Equal(t, []string{"x", "y", "g", "h"}, []string{
		recs[0].Venue.ID, recs[1].Venue.ID, recs[2].Venue.ID, recs[3].Venue.ID,
	})
}

func TestRankScoresNearEqualSumsAsTies(t *testing.T) {
	t.Parallel()

	e := New(WithTopN(2), WithWeights(Weights{Rating: 0.3, Distance: 0.1, Value: 0.2}))
	venues := []contractx.Venue{
		// 0.1 + 0.2 sums just above 0.3 in floating point.
		{ID: "a", Rating: 0, DistanceMeters: 0, PriceTier: 1},
		{ID: "b", Rating: 5, DistanceMeters: 2000, PriceTier: 4},
	}

	recs := e.Rank(venues, 1000, 1)
	require.Len(t, recs, 2)
	assert.Equal(t, 0.3, recs[0].Score)
	assert.Equal(t, 0.3, recs[1].Score)
	assert.Equal(t, "b", recs[0].Venue.ID, "equal scores fall through to rating")
}

func TestRankFewerThanTopN(t *testing.T) {
	t.Parallel()

	recs := New().Rank(fourCandidates()[:2], 3000, 2)
	assert.Len(t, recs, 2)
	assert.Nil(t, New().Rank(nil, 3000, 2))
}

func TestValueScoreMonotonic(t *testing.T) {
	t.Parallel()

	prev := 2.0
	for diff := 0; diff <= 3; diff++ {
		got := ValueScore(1+diff, 1)
		assert.Less(t, got, prev, "diff %d", diff)
		prev = got
	}
	assert.Equal(t, 0.5, ValueScore(0, 2))
	assert.Equal(t, 0.5, ValueScore(3, 0))
}
