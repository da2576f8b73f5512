// Package relay issues the single outbound provider call and hands the
// result back either as a live stream or as a fully read JSON body.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nulzo/ai-proxy/internal/provider"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxBodyBytes = 10 << 20

var (
	ErrTransport         = errors.New("upstream request failed")
	ErrTimeout           = errors.New("upstream request timed out")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrResponseTooLarge  = errors.New("upstream response too large")
)

// HTTPClient is the subset of *http.Client the relay needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError carries the upstream status alongside a relay failure that
// happened after the upstream answered.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Result is either a live Stream or a buffered JSON Body, never both.
type Result struct {
	StatusCode  int
	ContentType string
	Stream      io.ReadCloser
	Body        json.RawMessage
}

func (r *Result) Streamed() bool { return r.Stream != nil }

type Relay struct {
	client       HTTPClient
	timeout      time.Duration
	maxBodyBytes int64
	tracer       trace.Tracer
}

type Option func(*Relay)

// WithTimeout bounds each exchange, streaming included. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(r *Relay) { r.timeout = d }
}

// WithMaxBodyBytes caps how much of a buffered response is read.
func WithMaxBodyBytes(n int64) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxBodyBytes = n
		}
	}
}

func New(client HTTPClient, opts ...Option) *Relay {
	r := &Relay{
		client:       client,
		maxBodyBytes: defaultMaxBodyBytes,
		tracer:       otel.Tracer("github.com/nulzo/ai-proxy/internal/relay"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewClient returns a pooled client safe for concurrent use. No client
// timeout is set because it would also cut off long streams.
func NewClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 100
	return &http.Client{Transport: transport}
}

// Send performs exactly one POST. Upstream non-2xx answers are results,
// not errors: the caller sees the provider's own status and body.
func (r *Relay) Send(ctx context.Context, out *provider.Outbound) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "relay.send", trace.WithAttributes(
		attribute.String("ai.provider", out.Provider),
		attribute.Bool("ai.streaming", out.Streaming),
	))

	cancel := context.CancelFunc(func() {})
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	}

	finish := func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		cancel()
		span.End()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, out.URL, bytes.NewReader(out.Body))
	if err != nil {
		err = fmt.Errorf("failed to create request: %w", redact(err))
		finish(err)
		return nil, err
	}
	req.Header = out.Header.Clone()

	resp, err := r.client.Do(req)
	if err != nil {
		err = r.classify(ctx, err)
		finish(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if out.Streaming {
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "text/plain"
		}
		return &Result{
			StatusCode:  resp.StatusCode,
			ContentType: contentType,
			Stream:      &streamBody{ReadCloser: resp.Body, done: func() { finish(nil) }},
		}, nil
	}

	res, err := r.buffer(ctx, resp)
	finish(err)
	return res, err
}

func (r *Relay) buffer(ctx context.Context, resp *http.Response) (*Result, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodyBytes+1))
	if err != nil {
		return nil, r.classify(ctx, err)
	}

	if int64(len(data)) > r.maxBodyBytes {
		return nil, &StatusError{StatusCode: resp.StatusCode, Err: ErrResponseTooLarge}
	}

	if !json.Valid(data) {
		return nil, &StatusError{StatusCode: resp.StatusCode, Err: ErrMalformedResponse}
	}

	return &Result{
		StatusCode:  resp.StatusCode,
		ContentType: "application/json",
		Body:        json.RawMessage(data),
	}, nil
}

// classify separates caller cancellation and our own deadline from plain
// network failures.
func (r *Relay) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, redact(err))
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %w", ErrTransport, redact(err))
	}
}

// redact drops the request URL, which may carry an API key in its query.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

// streamBody runs done exactly once when the upstream body is closed.
type streamBody struct {
	io.ReadCloser
	once sync.Once
	done func()
}

func (s *streamBody) Close() error {
	err := s.ReadCloser.Close()
	s.once.Do(s.done)
	return err
}
