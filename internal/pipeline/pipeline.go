package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"github.com/crimson-sun/persona/internal/connector"
	"github.com/crimson-sun/persona/internal/metrics"
	"github.com/crimson-sun/persona/internal/model"
	"github.com/crimson-sun/persona/internal/output"
)

// Predictor labels a single text. *engine.Engine implements it.
type Predictor interface {
	Predict(text string) (string, error)
}

// Pipeline connects a post source, a predictor and an optional output into
// the per-user serving loop.
type Pipeline struct {
	source       connector.PostSource
	predictor    Predictor
	output       output.Output
	store        string
	policy       RetrievalPolicy
	workers      int64
	fetchTimeout time.Duration
	sem          *semaphore.Weighted
	breaker      *gobreaker.CircuitBreaker[[]string]
	log          *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPolicy sets how retrieval failures are handled. The default is
// FailSoft.
func WithPolicy(p RetrievalPolicy) Option {
	return func(pl *Pipeline) { pl.policy = p }
}

// WithWorkers bounds the number of concurrent fetches.
func WithWorkers(n int) Option {
	return func(pl *Pipeline) {
		if n > 0 {
			pl.workers = int64(n)
		}
	}
}

// WithFetchTimeout bounds a single fetch. Zero means no extra deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(pl *Pipeline) { pl.fetchTimeout = d }
}

// WithOutput writes every ClassifyUserPosts result to out.
func WithOutput(out output.Output) Option {
	return func(pl *Pipeline) { pl.output = out }
}

// WithStoreName labels metrics and logs with the post store's name.
func WithStoreName(name string) Option {
	return func(pl *Pipeline) { pl.store = name }
}

// New creates a Pipeline from the given components.
func New(src connector.PostSource, pred Predictor, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:    src,
		predictor: pred,
		store:     "posts",
		policy:    FailSoft,
		workers:   8,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sem = semaphore.NewWeighted(p.workers)
	p.log = slog.With("component", "pipeline", "store", p.store)
	p.breaker = gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:    p.store,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn("post store breaker state changed", "from", from.String(), "to", to.String())
			metrics.RecordBreakerState(name, to)
		},
	})
	return p
}

// Policy returns the retrieval policy in effect.
func (p *Pipeline) Policy() RetrievalPolicy { return p.policy }

// PredictAll fetches the user's posts and returns one label per post, in
// post order. Under FailSoft a failed fetch yields an empty result and no
// error; under FailHard it returns *model.UpstreamRetrievalFailure. Any
// prediction failure aborts the call.
func (p *Pipeline) PredictAll(ctx context.Context, userID string) ([]string, error) {
	posts, err := p.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Predict(posts)
}

// ClassifyUserPosts is PredictAll packaged with the user id and post count,
// written to the configured output if any.
func (p *Pipeline) ClassifyUserPosts(ctx context.Context, userID string) (model.UserPredictions, error) {
	posts, err := p.fetch(ctx, userID)
	if err != nil {
		return model.UserPredictions{}, err
	}
	preds, err := p.Predict(posts)
	if err != nil {
		return model.UserPredictions{}, err
	}
	res := model.UserPredictions{UserID: userID, PostCount: len(posts), Predictions: preds}
	if p.output != nil {
		if err := p.output.Write(ctx, res); err != nil {
			return res, fmt.Errorf("pipeline output: %w", err)
		}
	}
	return res, nil
}

// Predict labels texts in order.
func (p *Pipeline) Predict(texts []string) ([]string, error) {
	labels := make([]string, 0, len(texts))
	for i, text := range texts {
		label, err := p.predictor.Predict(text)
		if err != nil {
			return nil, fmt.Errorf("pipeline predict post %d: %w", i, err)
		}
		labels = append(labels, label)
	}
	return labels, nil
}

// fetch retrieves posts on the worker pool and applies the retrieval
// policy. The caller is released as soon as ctx is done even if the store
// has not answered.
func (p *Pipeline) fetch(ctx context.Context, userID string) ([]string, error) {
	posts, err := p.fetchPosts(ctx, userID)
	metrics.RecordFetch(p.store, len(posts), err)
	if err == nil {
		return posts, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	failure := &model.UpstreamRetrievalFailure{UserID: userID, Err: err}
	if p.policy == FailHard {
		return nil, failure
	}
	p.log.Warn("post retrieval failed, continuing with no posts", "user_id", userID, "error", failure)
	return []string{}, nil
}

func (p *Pipeline) fetchPosts(ctx context.Context, userID string) ([]string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var (
		fctx   context.Context
		cancel context.CancelFunc
	)
	if p.fetchTimeout > 0 {
		fctx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
	} else {
		fctx, cancel = context.WithCancel(ctx)
	}

	type result struct {
		posts []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		defer cancel()
		posts, err := p.breaker.Execute(func() ([]string, error) {
			return p.source.FetchPosts(fctx, userID)
		})
		done <- result{posts, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && r.posts == nil {
			r.posts = []string{}
		}
		return r.posts, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
