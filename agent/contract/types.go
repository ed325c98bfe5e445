package contract

import (
	"math"
	"time"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is a resolved user location. It is set once per conversation.
type Location struct {
	Query       string      `json:"query"`
	Label       string      `json:"label,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
	TimezoneID  string      `json:"timezone_id,omitempty"`
}

type Venue struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Cuisine     string      `json:"cuisine,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
	Rating      float64     `json:"rating"`
	// PriceTier is 1..4, 0 when the provider does not report one.
	PriceTier int  `json:"price_tier"`
	OpenNow   bool `json:"open_now"`
	// ClosesAt is the local closing time as "HH:MM"; empty when unknown.
	ClosesAt       string  `json:"closes_at,omitempty"`
	DistanceMeters float64 `json:"distance_m"`
}

type SearchRequest struct {
	Location     Location `json:"location"`
	RadiusMeters int      `json:"radius_m"`
	Cuisine      string   `json:"cuisine"`
	BudgetTier   int      `json:"budget_tier"`
}

// SearchResult is a discovery answer. Degraded is set when the live provider
// failed and Venues came from a cache or a default data set.
type SearchResult struct {
	Venues   []Venue `json:"venues"`
	Source   string  `json:"source"`
	Degraded bool    `json:"degraded,omitempty"`
}

type ScoreBreakdown struct {
	Rating   float64 `json:"rating"`
	Distance float64 `json:"distance"`
	Value    float64 `json:"value"`
	OpenNow  float64 `json:"open_now"`
}

type Recommendation struct {
	Rank          int            `json:"rank"`
	Venue         Venue          `json:"venue"`
	Score         float64        `json:"score"`
	Breakdown     ScoreBreakdown `json:"breakdown"`
	TravelMinutes float64        `json:"travel_minutes"`
	// Feasible is false only for the fallback pick kept when every candidate
	// failed the closing-time check.
	Feasible bool `json:"feasible"`
}

type Event struct {
	ID         string         `json:"id"`
	Subject    string         `json:"subject"`
	SessionID  string         `json:"session_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

const (
	SubjectRecommendationSelected = "recommendation.selected"
	SubjectFastPathTriggered      = "dialogue.fast_path"

	earthRadiusMeters = 6371000.0
)

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
