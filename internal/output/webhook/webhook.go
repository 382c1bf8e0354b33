// Package webhook delivers result records to an HTTP endpoint in batches.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/model"
	"github.com/crimson-sun/persona/internal/output"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
	defaultBackoff       = time.Second
	defaultAttempts      = 4
)

// Option configures a webhook Output.
type Option func(*Output)

// WithHeaders adds headers to every delivery.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) {
		for k, v := range h {
			o.headers.Set(k, v)
		}
	}
}

// WithBatchSize sets how many records are queued before a delivery. Default: 50.
func WithBatchSize(n int) Option {
	return func(o *Output) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithFlushInterval bounds how long a queued record waits. Default: 5s.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Output) { o.flushInterval = d }
}

// WithTimeout sets the per-request timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.client.Timeout = d }
}

// WithBackoff sets the delay before the first retry; each later retry
// doubles it. Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(o *Output) { o.backoff = d }
}

// WithAttempts caps the number of requests made for one batch. Default: 4.
func WithAttempts(n int) Option {
	return func(o *Output) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// WithVerbosity sets how much of each result is delivered. Default: Standard.
func WithVerbosity(v output.Verbosity) Option {
	return func(o *Output) { o.verbosity = v }
}

// WithOnError receives failures of deliveries started by the flush timer,
// which have no caller to return to. Default: a slog warning.
func WithOnError(f func(error)) Option {
	return func(o *Output) { o.onError = f }
}

// Output queues result records and POSTs them as a JSON array once
// batchSize records are waiting or flushInterval has passed since the first
// one. A batch is retried on 429, 5xx and transport errors.
type Output struct {
	client        *http.Client
	url           string
	headers       http.Header
	batchSize     int
	flushInterval time.Duration
	backoff       time.Duration
	attempts      int
	verbosity     output.Verbosity
	onError       func(error)

	mu    sync.Mutex
	batch []output.Record
	timer *time.Timer
}

// New creates a webhook output for url.
func New(url string, opts ...Option) *Output {
	o := &Output{
		client:        &http.Client{Timeout: defaultTimeout},
		url:           url,
		headers:       http.Header{},
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		backoff:       defaultBackoff,
		attempts:      defaultAttempts,
		verbosity:     output.Standard,
		onError:       func(err error) { slog.Warn("webhook delivery failed", "error", err) },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Write queues the record for result, delivering the batch when it is full.
// The first record of a batch arms the flush timer.
func (o *Output) Write(ctx context.Context, result model.UserPredictions) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.batch = append(o.batch, output.FormatResult(result, o.verbosity))
	switch {
	case len(o.batch) >= o.batchSize:
		return o.flushLocked(ctx)
	case o.timer == nil:
		o.timer = time.AfterFunc(o.flushInterval, o.flushOnTimer)
	}
	return nil
}

// Close delivers whatever is still queued.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushLocked(context.Background())
}

func (o *Output) flushOnTimer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.flushLocked(context.Background()); err != nil {
		o.onError(err)
	}
}

// flushLocked delivers the queued batch. Caller must hold o.mu.
func (o *Output) flushLocked(ctx context.Context) error {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if len(o.batch) == 0 {
		return nil
	}
	batch := o.batch
	o.batch = nil

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("webhook: encode %d records: %w", len(batch), err)
	}
	return o.deliver(ctx, body)
}

func (o *Output) deliver(ctx context.Context, body []byte) error {
	var err error
	for attempt := 0; attempt < o.attempts; attempt++ {
		if attempt > 0 {
			if werr := wait(ctx, o.backoff<<(attempt-1)); werr != nil {
				return fmt.Errorf("webhook: %w", werr)
			}
		}
		var retry bool
		if retry, err = o.post(ctx, body); !retry {
			return err
		}
	}
	return fmt.Errorf("webhook: giving up after %d attempts: %w", o.attempts, err)
}

// post makes one delivery attempt and reports whether a failure is worth
// retrying.
func (o *Output) post(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("webhook: %w", err)
	}
	req.Header = o.headers.Clone()
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("webhook: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook: HTTP %d", resp.StatusCode)
	}
	return false, fmt.Errorf("webhook: HTTP %d", resp.StatusCode)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
