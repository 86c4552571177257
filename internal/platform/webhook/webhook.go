// Package webhook delivers marker events to external HTTP endpoints. Each
// delivery is signed with HMAC-SHA256 and retried on transient failure.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/ehr/bodymap/internal/platform/events"
)

// ErrQueueFull is returned by Emit when the delivery queue has no room.
var ErrQueueFull = errors.New("webhook: delivery queue full")

// Endpoint is a delivery target. Events holds type patterns such as
// "marker.confirmed", "marker.*" or "*.deactivated"; an empty list matches
// everything.
type Endpoint struct {
	URL    string
	Secret string
	Events []string
}

// ---------------------------------------------------------------------------
// Signature helpers
// ---------------------------------------------------------------------------

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature accepts signatures with or without the "sha256=" prefix.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(signature, "sha256=")))
}

func eventMatches(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(eventType, pattern[1:])
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func (ep Endpoint) matches(eventType string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, p := range ep.Events {
		if eventMatches(p, eventType) {
			return true
		}
	}
	return false
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must include a host")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRetry sets how many times a failed delivery is retried and the
// backoff bounds between attempts.
func WithRetry(count int, wait, maxWait time.Duration) Option {
	return func(d *Dispatcher) {
		d.client.SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(maxWait)
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.client.SetTimeout(timeout) }
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan events.Event, n) }
}

// Dispatcher is an events.Sink. Emit only enqueues; Run performs the
// deliveries.
type Dispatcher struct {
	endpoints []Endpoint
	client    *resty.Client
	queue     chan events.Event
	logger    zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(endpoints []Endpoint, logger zerolog.Logger, opts ...Option) (*Dispatcher, error) {
	for _, ep := range endpoints {
		if err := validateURL(ep.URL); err != nil {
			return nil, fmt.Errorf("webhook endpoint: %w", err)
		}
		if ep.Secret == "" {
			return nil, fmt.Errorf("webhook endpoint %s: secret is required", ep.URL)
		}
	}
	d := &Dispatcher{
		endpoints: endpoints,
		client: resty.New().
			SetTimeout(10*time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(time.Second).
			SetRetryMaxWaitTime(30*time.Second).
			SetHeader("Content-Type", "application/json").
			AddRetryCondition(shouldRetry),
		queue:  make(chan events.Event, 1024),
		logger: logger.With().Str("component", "webhook").Logger(),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// 4xx other than 408 and 429 will not succeed on retry.
func shouldRetry(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// Emit queues e for delivery without blocking.
func (d *Dispatcher) Emit(_ context.Context, e events.Event) error {
	select {
	case <-d.done:
		return errors.New("webhook: dispatcher closed")
	default:
	}
	select {
	case d.queue <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is cancelled or Close is called.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case e := <-d.queue:
			d.dispatch(ctx, e)
		}
	}
}

func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) dispatch(ctx context.Context, e events.Event) {
	for _, ep := range d.endpoints {
		if !ep.matches(e.Type) {
			continue
		}
		if err := d.Deliver(ctx, ep, e); err != nil {
			d.logger.Error().Err(err).
				Str("event_id", e.ID).
				Str("event_type", e.Type).
				Str("url", ep.URL).
				Msg("webhook delivery failed")
		}
	}
}

// StatusError is a non-2xx response from an endpoint, reported once the
// retries are exhausted.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx response: %d", e.Code)
}

// Deliver POSTs the signed event to ep, retrying transient failures.
func (d *Dispatcher) Deliver(ctx context.Context, ep Endpoint, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("X-Webhook-Signature", "sha256="+SignPayload(payload, ep.Secret)).
		SetHeader("X-Webhook-ID", e.ID).
		SetHeader("X-Webhook-Event", e.Type).
		SetHeader("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339)).
		SetBody(payload).
		Post(ep.URL)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		body := resp.Body()
		if len(body) > 1024 {
			body = body[:1024]
		}
		return &StatusError{Code: resp.StatusCode(), Body: string(body)}
	}
	return nil
}
