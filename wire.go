package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	orchestrator "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	dialoguex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/dialogue"
	discoveryx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/discovery"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
	travelx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/travel"
	configx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/config"
	metricsx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/metrics"
	natsbusx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/natsbus"
	qstashx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/qstash"
)

type AppConfig struct {
	HTTPAddr    string        `envconfig:"HTTP_ADDR" default:":8080"`
	Store       string        `envconfig:"STORE" default:"memory"`
	Events      string        `envconfig:"EVENTS" default:"none"`
	MemoryTTL   time.Duration `envconfig:"MEMORY_TTL" default:"24h"`
	TurnTimeout time.Duration `envconfig:"TURN_TIMEOUT" default:"30s"`
}

// app holds the wired core plus whatever must be closed on exit.
type app struct {
	cfg          *AppConfig
	orchestrator *orchestrator.Orchestrator
	registry     *prometheus.Registry
	closers      []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := configx.New[AppConfig]("APP")
	if err != nil {
		return nil, fmt.Errorf("load app config: %w", err)
	}

	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := metricsx.New(a.registry)

	store, err := a.buildStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, err := a.buildPublisher()
	if err != nil {
		a.Close()
		return nil, err
	}

	machine, err := buildMachine(metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []orchestrator.Option{orchestrator.WithMetrics(metrics)}
	if publisher != nil {
		opts = append(opts, orchestrator.WithPublisher(publisher))
	}
	a.orchestrator, err = orchestrator.New(store, machine, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	log.Info().
		Str("store", cfg.Store).
		Str("events", cfg.Events).
		Msg("dining orchestrator wired")
	return a, nil
}

func (a *app) buildStore(ctx context.Context) (statex.Store, error) {
	switch strings.ToLower(strings.TrimSpace(a.cfg.Store)) {
	case "", "memory":
		return statex.NewMemoryStore(a.cfg.MemoryTTL), nil
	case "upstash":
		cfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, fmt.Errorf("load upstash config: %w", err)
		}
		return statex.NewUpstashRedisStore(*cfg)
	case "postgres":
		cfg, err := configx.New[statex.PostgresConfig]("POSTGRES")
		if err != nil {
			return nil, fmt.Errorf("load postgres config: %w", err)
		}
		store, err := statex.NewPostgresStore(ctx, *cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q", contractx.ErrValidation, a.cfg.Store)
	}
}

func (a *app) buildPublisher() (contractx.EventPublisher, error) {
	switch strings.ToLower(strings.TrimSpace(a.cfg.Events)) {
	case "", "none":
		return nil, nil
	case "nats":
		cfg, err := configx.New[natsbusx.Config]("NATS")
		if err != nil {
			return nil, fmt.Errorf("load nats config: %w", err)
		}
		p, err := natsbusx.Connect(*cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closerFunc(func() error {
			p.Close()
			return nil
		}))
		return p, nil
	case "qstash":
		cfg, err := configx.New[qstashx.Config]("QSTASH")
		if err != nil {
			return nil, fmt.Errorf("load qstash config: %w", err)
		}
		return qstashx.NewClient(*cfg)
	default:
		return nil, fmt.Errorf("%w: unknown event backend %q", contractx.ErrValidation, a.cfg.Events)
	}
}

func buildMachine(metrics *metricsx.Metrics) (*dialoguex.Machine, error) {
	travelCfg, err := configx.New[travelx.Config]("TRAVEL")
	if err != nil {
		return nil, fmt.Errorf("load travel config: %w", err)
	}
	estimator, err := travelx.New(*travelCfg)
	if err != nil {
		return nil, err
	}

	discoveryCfg, err := configx.New[discoveryx.Config]("DISCOVERY")
	if err != nil {
		return nil, fmt.Errorf("load discovery config: %w", err)
	}

	clock := travelx.NewZoneClock(time.Now)
	catalog, err := discoveryx.NewCatalog(clock)
	if err != nil {
		return nil, err
	}
	discovery, err := discoveryx.NewResilient(catalog, discoveryx.NewGazetteer(), *discoveryCfg,
		discoveryx.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	return dialoguex.New(discovery, clock,
		dialoguex.WithEstimator(estimator),
		dialoguex.WithMetrics(metrics),
	)
}
