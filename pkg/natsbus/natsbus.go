package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

type Config struct {
	URL           string        `split_words:"true" default:"nats://127.0.0.1:4222"`
	Token         string        `split_words:"true"`
	SubjectPrefix string        `split_words:"true" default:"dining"`
	MaxReconnects int           `split_words:"true" default:"60"`
	ReconnectWait time.Duration `split_words:"true" default:"2s"`
}

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Publisher emits dialogue events as JSON on <prefix>.<event subject>.
type Publisher struct {
	conn   conn
	prefix string
}

func Connect(cfg Config) (*Publisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("dining-orchestrator"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(nc, cfg.SubjectPrefix), nil
}

func newPublisher(c conn, prefix string) *Publisher {
	return &Publisher{
		conn:   c,
		prefix: strings.Trim(strings.TrimSpace(prefix), "."),
	}
}

func (p *Publisher) Subject(ev contractx.Event) string {
	if p.prefix == "" {
		return ev.Subject
	}
	return p.prefix + "." + ev.Subject
}

// Publish waits for the server to acknowledge the flush, so a returned nil
// means the event left the process.
func (p *Publisher) Publish(ctx context.Context, ev contractx.Event) error {
	if strings.TrimSpace(ev.Subject) == "" {
		return fmt.Errorf("%w: event subject is empty", contractx.ErrPublish)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %v", contractx.ErrPublish, err)
	}

	subject := p.Subject(ev)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("%w: subject=%s: %v", contractx.ErrPublish, subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: flush subject=%s: %v", contractx.ErrPublish, subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.conn.Close()
}
