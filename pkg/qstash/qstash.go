package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
)

const maxErrorBodyBytes = 4 << 10

type Config struct {
	URL   string `split_words:"true" default:"https://qstash.upstash.io"`
	Token string `split_words:"true" required:"true"`
	// Destination is a URL group name or a full https endpoint.
	Destination string        `split_words:"true" required:"true"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
	Retries     uint64        `split_words:"true" default:"2"`
	RetryWait   time.Duration `split_words:"true" default:"200ms"`
}

// Client publishes dialogue events to QStash over REST.
type Client struct {
	baseURL     string
	token       string
	destination string
	retries     uint64
	retryWait   time.Duration
	httpClient  *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("qstash token is required")
	}
	destination := strings.TrimSpace(cfg.Destination)
	if destination == "" {
		return nil, errors.New("qstash destination is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		destination: destination,
		retries:     cfg.Retries,
		retryWait:   cfg.RetryWait,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Publish sends ev as a JSON message. Server errors are retried; any other
// failure is returned wrapped in contractx.ErrPublish.
func (c *Client) Publish(ctx context.Context, ev contractx.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %v", contractx.ErrPublish, err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryWait), c.retries),
		ctx,
	)
	if err := backoff.Retry(func() error {
		return c.send(ctx, ev, body)
	}, policy); err != nil {
		return fmt.Errorf("%w: subject=%s: %v", contractx.ErrPublish, ev.Subject, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, ev contractx.Event, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.publishURL(), bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if ev.ID != "" {
		req.Header.Set("Upstash-Deduplication-Id", ev.ID)
	}
	req.Header.Set("Upstash-Forward-X-Event-Subject", ev.Subject)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	statusErr := fmt.Errorf("qstash status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return statusErr
	}
	return backoff.Permanent(statusErr)
}

func (c *Client) publishURL() string {
	if strings.HasPrefix(c.destination, "http://") || strings.HasPrefix(c.destination, "https://") {
		return c.baseURL + "/v2/publish/" + c.destination
	}
	return c.baseURL + "/v2/publish/" + url.PathEscape(c.destination)
}
