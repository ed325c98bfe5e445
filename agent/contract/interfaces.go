package contract

import (
	"context"
	"time"
)

// VenueProvider returns raw candidate venues around a location.
type VenueProvider interface {
	Search(ctx context.Context, req SearchRequest) ([]Venue, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (Location, error)
}

// LocalClock reports the current wall-clock time at a location.
type LocalClock interface {
	LocalTime(ctx context.Context, loc Location) (time.Time, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
