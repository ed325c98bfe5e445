package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	slotx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/slot"
)

// nearbyPlaceMeters bounds how far a raw coordinate may be from a known place
// to borrow its timezone.
const nearbyPlaceMeters = 100_000

var coordinatePattern = regexp.MustCompile(`(-?\d{1,3}(?:\.\d+)?)\s*,\s*(-?\d{1,3}(?:\.\d+)?)`)

type Place struct {
	Names       []string
	Label       string
	Coordinates contractx.Coordinates
	TimezoneID  string
}

var DefaultPlaces = []Place{
	{Names: []string{"new york", "nyc", "manhattan"}, Label: "New York, US", Coordinates: contractx.Coordinates{Lat: 40.7128, Lng: -74.0060}, TimezoneID: "America/New_York"},
	{Names: []string{"melbourne", "melbourne cbd"}, Label: "Melbourne, AU", Coordinates: contractx.Coordinates{Lat: -37.8136, Lng: 144.9631}, TimezoneID: "Australia/Melbourne"},
	{Names: []string{"sydney"}, Label: "Sydney, AU", Coordinates: contractx.Coordinates{Lat: -33.8688, Lng: 151.2093}, TimezoneID: "Australia/Sydney"},
	{Names: []string{"brisbane"}, Label: "Brisbane, AU", Coordinates: contractx.Coordinates{Lat: -27.4698, Lng: 153.0251}, TimezoneID: "Australia/Brisbane"},
	{Names: []string{"london"}, Label: "London, UK", Coordinates: contractx.Coordinates{Lat: 51.5074, Lng: -0.1278}, TimezoneID: "Europe/London"},
	{Names: []string{"bangkok", "krung thep"}, Label: "Bangkok, TH", Coordinates: contractx.Coordinates{Lat: 13.7563, Lng: 100.5018}, TimezoneID: "Asia/Bangkok"},
	{Names: []string{"san francisco", "sf"}, Label: "San Francisco, US", Coordinates: contractx.Coordinates{Lat: 37.7749, Lng: -122.4194}, TimezoneID: "America/Los_Angeles"},
	{Names: []string{"tokyo"}, Label: "Tokyo, JP", Coordinates: contractx.Coordinates{Lat: 35.6762, Lng: 139.6503}, TimezoneID: "Asia/Tokyo"},
	{Names: []string{"singapore"}, Label: "Singapore, SG", Coordinates: contractx.Coordinates{Lat: 1.3521, Lng: 103.8198}, TimezoneID: "Asia/Singapore"},
}

// Gazetteer is an offline Geocoder over a fixed list of places. It also
// accepts "lat, lng" literals.
type Gazetteer struct {
	places []Place
}

func NewGazetteer(places ...Place) *Gazetteer {
	if len(places) == 0 {
		places = DefaultPlaces
	}
	return &Gazetteer{places: places}
}

func (g *Gazetteer) Geocode(_ context.Context, query string) (contractx.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return contractx.Location{}, fmt.Errorf("%w: empty query", contractx.ErrGeocodeFailed)
	}

	if loc, ok := g.fromCoordinates(query); ok {
		return loc, nil
	}

	for _, p := range g.places {
		if slotx.ContainsAny(query, p.Names) {
			return contractx.Location{
				Query:       query,
				Label:       p.Label,
				Coordinates: p.Coordinates,
				TimezoneID:  p.TimezoneID,
			}, nil
		}
	}
	return contractx.Location{}, fmt.Errorf("%w: %q", contractx.ErrGeocodeFailed, query)
}

func (g *Gazetteer) fromCoordinates(query string) (contractx.Location, bool) {
	m := coordinatePattern.FindStringSubmatch(query)
	if m == nil {
		return contractx.Location{}, false
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lng, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return contractx.Location{}, false
	}

	loc := contractx.Location{
		Query:       query,
		Label:       fmt.Sprintf("%.4f, %.4f", lat, lng),
		Coordinates: contractx.Coordinates{Lat: lat, Lng: lng},
	}
	best := float64(nearbyPlaceMeters)
	for _, p := range g.places {
		if d := contractx.HaversineMeters(loc.Coordinates, p.Coordinates); d <= best {
			best = d
			loc.TimezoneID = p.TimezoneID
			loc.Label = "near " + p.Label
		}
	}
	return loc, true
}
