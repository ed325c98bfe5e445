package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	travelx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/travel"
)

func melbourne() contractx.Location {
	return contractx.Location{
		Query:       "Melbourne",
		Coordinates: contractx.Coordinates{Lat: -37.8136, Lng: 144.9631},
		TimezoneID:  "Australia/Melbourne",
	}
}

func TestCatalogSearchFiltersCuisineAndRadius(t *testing.T) {
	t.Parallel()

	c := MustNewCatalog(nil)
	venues, err := c.Search(context.Background(), contractx.SearchRequest{
		Location:     melbourne(),
		RadiusMeters: 1000,
		Cuisine:      "thai",
	})
	require.NoError(t, err)
	require.Len(t, venues, 1)
	assert.Equal(t, "Golden Thai Kitchen", venues[0].Name)
	assert.Equal(t, "cat-golden-thai-kitchen", venues[0].ID)
	assert.InDelta(t, 800, venues[0].DistanceMeters, 1)
	assert.True(t, venues[0].OpenNow)

	venues, err = c.Search(context.Background(), contractx.SearchRequest{
		Location:     melbourne(),
		RadiusMeters: 5000,
		Cuisine:      "Thai",
	})
	require.NoError(t, err)
	require.Len(t, venues, 3)
	for i := 1; i < len(venues); i++ {
		assert.LessOrEqual(t, venues[i-1].DistanceMeters, venues[i].DistanceMeters)
	}
}

func TestCatalogSearchAnyAndUnknownCuisine(t *testing.T) {
	t.Parallel()

	c := MustNewCatalog(nil)

	all, err := c.Search(context.Background(), contractx.SearchRequest{Location: melbourne(), RadiusMeters: 600, Cuisine: "any"})
	require.NoError(t, err)
	assert.NotEmpty(t, all)
	for _, v := range all {
		assert.LessOrEqual(t, v.DistanceMeters, 600.0)
	}

	none, err := c.Search(context.Background(), contractx.SearchRequest{Location: melbourne(), RadiusMeters: 25000, Cuisine: "Ethiopian"})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = c.Search(context.Background(), contractx.SearchRequest{Location: melbourne()})
	assert.True(t, errors.Is(err, contractx.ErrValidation))
}

func TestCatalogOpenNowFollowsLocalClock(t *testing.T) {
	t.Parallel()

	// 09:00 UTC is 19:00 in Melbourne in May.
	clock := travelx.NewZoneClock(func() time.Time {
		return time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)
	})
	c := MustNewCatalog(clock)

	venues, err := c.Search(context.Background(), contractx.SearchRequest{Location: melbourne(), RadiusMeters: 2000, Cuisine: "French"})
	require.NoError(t, err)
	require.Len(t, venues, 2)

	open := map[string]bool{}
	for _, v := range venues {
		open[v.Name] = v.OpenNow
	}
	assert.False(t, open["Cafe Lumiere"], "closes at 18:00")
	assert.True(t, open["Le Petit Bistro"])
}

func TestOpenAtOvernight(t *testing.T) {
	t.Parallel()

	assert.True(t, openAt(23*60, "10:00", "01:00"))
	assert.True(t, openAt(30, "10:00", "01:00"))
	assert.False(t, openAt(9*60, "10:00", "01:00"))
	assert.True(t, openAt(0, "bad", "01:00"))
}

func TestGazetteer(t *testing.T) {
	t.Parallel()

	g := NewGazetteer()

	loc, err := g.Geocode(context.Background(), "I'm in Melbourne CBD")
	require.NoError(t, err)
	assert.Equal(t, "Australia/Melbourne", loc.TimezoneID)
	assert.Equal(t, "Melbourne, AU", loc.Label)

	loc, err = g.Geocode(context.Background(), "13.75, 100.50")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Bangkok", loc.TimezoneID)
	assert.InDelta(t, 13.75, loc.Coordinates.Lat, 1e-9)

	loc, err = g.Geocode(context.Background(), "0.0, 0.0")
	require.NoError(t, err)
	assert.Empty(t, loc.TimezoneID)

	_, err = g.Geocode(context.Background(), "somewhere over the rainbow")
	assert.ErrorIs(t, err, contractx.ErrGeocodeFailed)

	_, err = g.Geocode(context.Background(), "  ")
	assert.ErrorIs(t, err, contractx.ErrGeocodeFailed)
}
