package travel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

var ErrInvalidConfig = errors.New("invalid travel config")

type Config struct {
	NormalSpeedKPH float64       `envconfig:"NORMAL_SPEED_KPH" split_words:"true" default:"30"`
	PeakSpeedKPH   float64       `envconfig:"PEAK_SPEED_KPH" split_words:"true" default:"15"`
	PeakWindows    string        `envconfig:"PEAK_WINDOWS" split_words:"true" default:"07:00-09:30,16:30-19:00"`
	VisitBuffer    time.Duration `envconfig:"VISIT_BUFFER" split_words:"true" default:"30m"`
}

var DefaultConfig = Config{
	NormalSpeedKPH: 30,
	PeakSpeedKPH:   15,
	PeakWindows:    "07:00-09:30,16:30-19:00",
	VisitBuffer:    30 * time.Minute,
}

// window is a local-time range in minutes since midnight, end exclusive.
type window struct {
	start int
	end   int
}

func (w window) contains(minute int) bool {
	return minute >= w.start && minute < w.end
}

// Estimator decides whether a venue can still be visited before it closes.
type Estimator struct {
	normalMPS float64
	peakMPS   float64
	peaks     []window
	buffer    time.Duration
}

func New(cfg Config) (*Estimator, error) {
	if cfg.NormalSpeedKPH <= 0 || cfg.PeakSpeedKPH <= 0 {
		return nil, fmt.Errorf("%w: speeds must be > 0", ErrInvalidConfig)
	}
	if cfg.VisitBuffer < 0 {
		return nil, fmt.Errorf("%w: visit buffer must be >= 0", ErrInvalidConfig)
	}
	peaks, err := parseWindows(cfg.PeakWindows)
	if err != nil {
		return nil, err
	}
	return &Estimator{
		normalMPS: cfg.NormalSpeedKPH * 1000 / 3600,
		peakMPS:   cfg.PeakSpeedKPH * 1000 / 3600,
		peaks:     peaks,
		buffer:    cfg.VisitBuffer,
	}, nil
}

func MustNew(cfg Config) *Estimator {
	e, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// IsPeak reports whether local falls inside a configured peak window.
func (e *Estimator) IsPeak(local time.Time) bool {
	minute := local.Hour()*60 + local.Minute()
	for _, w := range e.peaks {
		if w.contains(minute) {
			return true
		}
	}
	return false
}

// TravelTime estimates door-to-door time for distanceM leaving at local.
func (e *Estimator) TravelTime(distanceM float64, local time.Time) time.Duration {
	if distanceM <= 0 {
		return 0
	}
	speed := e.normalMPS
	if e.IsPeak(local) {
		speed = e.peakMPS
	}
	return time.Duration(distanceM / speed * float64(time.Second))
}

type Assessment struct {
	Venue      contractx.Venue
	Travel     time.Duration
	ClosesAt   time.Time
	KnownClose bool
	Feasible   bool
}

func (a Assessment) TravelMinutes() float64 {
	return a.Travel.Minutes()
}

// Assess applies the closing-time rule against the venue's local time:
// local + travel + buffer must not pass the closing time. Venues with no
// parseable closing time are treated as open-ended.
func (e *Estimator) Assess(v contractx.Venue, local time.Time) Assessment {
	a := Assessment{
		Venue:    v,
		Travel:   e.TravelTime(v.DistanceMeters, local),
		Feasible: true,
	}
	closes, ok := ClosingTime(local, v.ClosesAt)
	if !ok {
		return a
	}
	a.ClosesAt = closes
	a.KnownClose = true
	a.Feasible = !local.Add(a.Travel).Add(e.buffer).After(closes)
	return a
}

// Filter splits venues into feasible and infeasible, preserving order.
func (e *Estimator) Filter(venues []contractx.Venue, local time.Time) (kept, dropped []Assessment) {
	for _, v := range venues {
		a := e.Assess(v, local)
		if a.Feasible {
			kept = append(kept, a)
		} else {
			dropped = append(dropped, a)
		}
	}
	return kept, dropped
}

// ClosingTime resolves an "HH:MM" closing time on local's day. Early-morning
// closings that already passed roll over to the next day.
func ClosingTime(local time.Time, hhmm string) (time.Time, bool) {
	minute, ok := parseClock(hhmm)
	if !ok {
		return time.Time{}, false
	}
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, local.Location())
	closes := midnight.Add(time.Duration(minute) * time.Minute)
	if closes.Before(local) && minute < 6*60 {
		closes = closes.AddDate(0, 0, 1)
	}
	return closes, true
}

// parseClock reads "HH:MM" (24:00 allowed) as minutes since midnight.
func parseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, false
	}
	mi, err := strconv.Atoi(mm)
	if err != nil || mi < 0 || mi > 59 {
		return 0, false
	}
	if h < 0 || h > 24 || (h == 24 && mi != 0) {
		return 0, false
	}
	return h*60 + mi, true
}

func parseWindows(raw string) ([]window, error) {
	var out []window
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("%w: peak window %q", ErrInvalidConfig, part)
		}
		start, ok1 := parseClock(from)
		end, ok2 := parseClock(to)
		if !ok1 || !ok2 || end <= start {
			return nil, fmt.Errorf("%w: peak window %q", ErrInvalidConfig, part)
		}
		out = append(out, window{start: start, end: end})
	}
	return out, nil
}
