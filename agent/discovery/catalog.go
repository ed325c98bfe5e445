package discovery

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	slotx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/slot"
)

//go:embed catalog.yaml
var catalogRaw []byte

const earthRadiusMeters = 6371000.0

type catalogEntry struct {
	Cuisine   string  `yaml:"cuisine"`
	Name      string  `yaml:"name"`
	Rating    float64 `yaml:"rating"`
	PriceTier int     `yaml:"price_tier"`
	OpensAt   string  `yaml:"opens_at"`
	ClosesAt  string  `yaml:"closes_at"`
	Bearing   float64 `yaml:"bearing"`
	DistanceM float64 `yaml:"distance_m"`
}

// Catalog is an offline VenueProvider. Venues are laid out around whatever
// location is searched, so every known city gets the same neighbourhood.
type Catalog struct {
	entries []catalogEntry
	clock   contractx.LocalClock
}

func NewCatalog(clock contractx.LocalClock) (*Catalog, error) {
	var entries []catalogEntry
	if err := yaml.Unmarshal(catalogRaw, &entries); err != nil {
		return nil, fmt.Errorf("decode venue catalog: %w", err)
	}
	return &Catalog{entries: entries, clock: clock}, nil
}

func MustNewCatalog(clock contractx.LocalClock) *Catalog {
	c, err := NewCatalog(clock)
	if err != nil {
		panic(err)
	}
	return c
}

// Search returns catalog venues of the requested cuisine within the radius,
// nearest first. The "any" cuisine matches everything.
func (c *Catalog) Search(ctx context.Context, req contractx.SearchRequest) ([]contractx.Venue, error) {
	if req.RadiusMeters <= 0 {
		return nil, fmt.Errorf("%w: radius must be > 0", contractx.ErrValidation)
	}

	minute := -1
	if c.clock != nil {
		// On error the clock still returns a UTC reading.
		local, _ := c.clock.LocalTime(ctx, req.Location)
		minute = local.Hour()*60 + local.Minute()
	}

	anyCuisine := req.Cuisine == "" || strings.EqualFold(req.Cuisine, slotx.AnyCuisine)
	origin := req.Location.Coordinates

	var out []contractx.Venue
	for _, e := range c.entries {
		if !anyCuisine && !strings.EqualFold(e.Cuisine, req.Cuisine) {
			continue
		}
		pos := offset(origin, e.Bearing, e.DistanceM)
		dist := math.Round(contractx.HaversineMeters(origin, pos))
		if dist > float64(req.RadiusMeters) {
			continue
		}
		out = append(out, contractx.Venue{
			ID:             "cat-" + slug(e.Name),
			Name:           e.Name,
			Cuisine:        e.Cuisine,
			Coordinates:    pos,
			Rating:         e.Rating,
			PriceTier:      e.PriceTier,
			OpenNow:        minute < 0 || openAt(minute, e.OpensAt, e.ClosesAt),
			ClosesAt:       e.ClosesAt,
			DistanceMeters: dist,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceMeters < out[j].DistanceMeters
	})
	return out, nil
}

// openAt handles overnight hours where closing is earlier than opening.
func openAt(minute int, opensAt, closesAt string) bool {
	open, ok1 := clockMinute(opensAt)
	closes, ok2 := clockMinute(closesAt)
	if !ok1 || !ok2 {
		return true
	}
	if closes > open {
		return minute >= open && minute < closes
	}
	return minute >= open || minute < closes
}

func clockMinute(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// offset moves a point distanceM along an initial bearing in degrees.
func offset(from contractx.Coordinates, bearingDeg, distanceM float64) contractx.Coordinates {
	delta := distanceM / earthRadiusMeters
	theta := bearingDeg * math.Pi / 180
	lat1 := from.Lat * math.Pi / 180
	lng1 := from.Lng * math.Pi / 180

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lng2 := lng1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)
	return contractx.Coordinates{Lat: lat2 * 180 / math.Pi, Lng: lng2 * 180 / math.Pi}
}

func slug(name string) string {
	return strings.ReplaceAll(slotx.Normalize(name), " ", "-")
}
