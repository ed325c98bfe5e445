package travel

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

// ZoneClock resolves local time from the IANA zone carried on a Location.
// It falls back to UTC and reports why.
type ZoneClock struct {
	now func() time.Time
}

func NewZoneClock(now func() time.Time) *ZoneClock {
	if now == nil {
		now = time.Now
	}
	return &ZoneClock{now: now}
}

func (c *ZoneClock) LocalTime(_ context.Context, loc contractx.Location) (time.Time, error) {
	now := c.now()
	tz := strings.TrimSpace(loc.TimezoneID)
	if tz == "" {
		return now.UTC(), fmt.Errorf("%w: no timezone on location %q", contractx.ErrTimezoneUnavailable, loc.Query)
	}
	zone, err := time.LoadLocation(tz)
	if err != nil {
		return now.UTC(), fmt.Errorf("%w: %v", contractx.ErrTimezoneUnavailable, err)
	}
	return now.In(zone), nil
}
