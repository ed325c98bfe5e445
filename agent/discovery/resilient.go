package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	metricsx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/metrics"
)

const (
	SourceLive    = "live"
	SourceCache   = "cache"
	SourceDefault = "default"
	SourceError   = "error"
)

type Config struct {
	AttemptTimeout time.Duration `envconfig:"ATTEMPT_TIMEOUT" split_words:"true" default:"4s"`
	Retries        uint64        `envconfig:"RETRIES" split_words:"true" default:"1"`
	RetryWait      time.Duration `envconfig:"RETRY_WAIT" split_words:"true" default:"250ms"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" split_words:"true" default:"30m"`
}

var DefaultConfig = Config{
	AttemptTimeout: 4 * time.Second,
	Retries:        1,
	RetryWait:      250 * time.Millisecond,
	CacheTTL:       30 * time.Minute,
}

type Option func(*Resilient)

// WithFallback sets a provider used when the live one is exhausted and no
// cached answer exists.
func WithFallback(p contractx.VenueProvider) Option {
	return func(r *Resilient) {
		r.fallback = p
	}
}

func WithMetrics(m *metricsx.Metrics) Option {
	return func(r *Resilient) {
		r.metrics = m
	}
}

// Resilient wraps the venue and geocoding collaborators with a bounded
// per-attempt timeout, a single retry and cache/default degradation.
type Resilient struct {
	provider contractx.VenueProvider
	geocoder contractx.Geocoder
	fallback contractx.VenueProvider
	cache    *cache.Cache
	metrics  *metricsx.Metrics
	cfg      Config
}

func NewResilient(provider contractx.VenueProvider, geocoder contractx.Geocoder, cfg Config, opts ...Option) (*Resilient, error) {
	if provider == nil {
		return nil, errors.New("venue provider is required")
	}
	if geocoder == nil {
		return nil, errors.New("geocoder is required")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig.AttemptTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig.CacheTTL
	}

	r := &Resilient{
		provider: provider,
		geocoder: geocoder,
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		cfg:      cfg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Search never hands a transport error to the dialogue if any usable answer
// exists. It returns ErrDiscoveryUnavailable only when live, cache and
// default are all exhausted.
func (r *Resilient) Search(ctx context.Context, req contractx.SearchRequest) (contractx.SearchResult, error) {
	key := searchKey(req)

	venues, err := retry(ctx, r.cfg, func(ctx context.Context) ([]contractx.Venue, error) {
		return r.provider.Search(ctx, req)
	})
	if err == nil {
		r.cache.Set(key, venues, cache.DefaultExpiration)
		r.metrics.CollaboratorCall("search", SourceLive)
		return contractx.SearchResult{Venues: venues, Source: SourceLive}, nil
	}

	log.Warn().Err(err).Str("cuisine", req.Cuisine).Int("radius_m", req.RadiusMeters).Msg("venue search failed, degrading")

	if cached, ok := r.cache.Get(key); ok {
		r.metrics.CollaboratorCall("search", SourceCache)
		return contractx.SearchResult{Venues: cached.([]contractx.Venue), Source: SourceCache, Degraded: true}, nil
	}

	if r.fallback != nil {
		venues, ferr := r.fallback.Search(ctx, req)
		if ferr == nil {
			r.metrics.CollaboratorCall("search", SourceDefault)
			return contractx.SearchResult{Venues: venues, Source: SourceDefault, Degraded: true}, nil
		}
		log.Warn().Err(ferr).Msg("default venue data set failed")
	}

	r.metrics.CollaboratorCall("search", SourceError)
	return contractx.SearchResult{Source: SourceError, Degraded: true}, fmt.Errorf("%w: %v", contractx.ErrDiscoveryUnavailable, err)
}

// Geocode retries transient failures only. A place the geocoder does not
// know is reported at once as ErrGeocodeFailed.
func (r *Resilient) Geocode(ctx context.Context, query string) (contractx.Location, error) {
	key := "geo|" + strings.ToLower(strings.TrimSpace(query))
	if cached, ok := r.cache.Get(key); ok {
		r.metrics.CollaboratorCall("geocode", SourceCache)
		return cached.(contractx.Location), nil
	}

	loc, err := retry(ctx, r.cfg, func(ctx context.Context) (contractx.Location, error) {
		loc, err := r.geocoder.Geocode(ctx, query)
		if errors.Is(err, contractx.ErrGeocodeFailed) || errors.Is(err, contractx.ErrValidation) {
			return loc, backoff.Permanent(err)
		}
		return loc, err
	})
	if err != nil {
		r.metrics.CollaboratorCall("geocode", SourceError)
		if errors.Is(err, contractx.ErrGeocodeFailed) {
			return contractx.Location{}, err
		}
		return contractx.Location{}, fmt.Errorf("%w: %v", contractx.ErrGeocodeFailed, err)
	}

	r.cache.Set(key, loc, cache.NoExpiration)
	r.metrics.CollaboratorCall("geocode", SourceLive)
	return loc, nil
}

// retry runs op with a per-attempt timeout, retrying cfg.Retries times.
func retry[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	var out T
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.RetryWait), cfg.Retries),
		ctx,
	)
	err := backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.AttemptTimeout)
		defer cancel()

		v, err := op(attemptCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, policy)
	return out, err
}

func searchKey(req contractx.SearchRequest) string {
	return fmt.Sprintf("search|%.3f,%.3f|%d|%s|%d",
		req.Location.Coordinates.Lat,
		req.Location.Coordinates.Lng,
		req.RadiusMeters,
		strings.ToLower(strings.TrimSpace(req.Cuisine)),
		req.BudgetTier,
	)
}
