// Package agent orchestrates one chat request: context building, optional
// vision pre-analysis, the reasoning/tool loop and post-processing. Every
// request produces an ordered sequence of medic.StreamEvent values closed by
// exactly one terminal event; buffered callers fold the same sequence into a
// medic.Response.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/tools"
	"github.com/fwojciec/medic/vision"
)

const (
	defaultMaxIterations  = 5
	defaultRequestTimeout = 120 * time.Second
	defaultBufferSize     = 16
	defaultRetryInterval  = 500 * time.Millisecond
)

// Orchestrator runs chat requests against a reasoning model. It holds no
// per-request state and is safe for concurrent use.
type Orchestrator struct {
	provider       medic.Provider
	registry       *tools.Registry
	newExecutor    func() medic.ToolExecutor
	store          medic.SessionStore
	vision         *vision.Analyzer
	model          string
	maxIterations  int
	requestTimeout time.Duration
	historyWindow  int
	bufferSize     int
	retryInterval  time.Duration
	logger         *slog.Logger
	observer       medic.Observer
	now            func() time.Time
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithStore enables session persistence and history. Without a store every
// request is stateless.
func WithStore(s medic.SessionStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithExecutor replaces the per-request tool executor. The registry still
// supplies the tool declarations offered to the model.
func WithExecutor(newExecutor func() medic.ToolExecutor) Option {
	return func(o *Orchestrator) { o.newExecutor = newExecutor }
}

// WithVision enables image attachments.
func WithVision(a *vision.Analyzer) Option {
	return func(o *Orchestrator) { o.vision = a }
}

// WithModel sets the reasoning model ID. Empty means the provider default.
func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

// WithMaxIterations sets the number of tool rounds allowed per request.
// Default is 5.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) { o.maxIterations = n }
}

// WithRequestTimeout bounds the whole request. Default is 120s.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.requestTimeout = d }
}

// WithHistoryWindow sets how many prior turns are sent to the model.
func WithHistoryWindow(n int) Option {
	return func(o *Orchestrator) { o.historyWindow = n }
}

// WithBufferSize sets the capacity of the event channel.
func WithBufferSize(n int) Option {
	return func(o *Orchestrator) { o.bufferSize = n }
}

// WithRetryInterval sets the initial backoff before retrying a failed model
// call.
func WithRetryInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryInterval = d }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithObserver sets the metrics observer.
func WithObserver(obs medic.Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithClock overrides time.Now. Useful for testing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an [Orchestrator]. A nil registry disables tools.
func New(provider medic.Provider, registry *tools.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:       provider,
		registry:       registry,
		maxIterations:  defaultMaxIterations,
		requestTimeout: defaultRequestTimeout,
		bufferSize:     defaultBufferSize,
		retryInterval:  defaultRetryInterval,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		observer:       medic.NopObserver{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = tools.NewRegistry()
	}
	if o.newExecutor == nil {
		o.newExecutor = func() medic.ToolExecutor { return o.registry.NewExecutor() }
	}
	return o
}

// Stream starts req and returns its event sequence. The channel is closed
// after the terminal event. When ctx is canceled in-flight calls are
// abandoned and the channel is closed without a terminal event.
func (o *Orchestrator) Stream(ctx context.Context, req medic.ChatRequest) <-chan medic.StreamEvent {
	ch := make(chan medic.StreamEvent, o.bufferSize)
	go func() {
		defer close(ch)
		o.serve(ctx, req, &emitter{ctx: ctx, ch: ch})
	}()
	return ch
}

// Collect runs req to completion and returns the folded response. On
// failure it returns a user-safe apology response together with the cause.
func (o *Orchestrator) Collect(ctx context.Context, req medic.ChatRequest) (*medic.Response, error) {
	for ev := range o.Stream(ctx, req) {
		switch e := ev.(type) {
		case medic.DoneEvent:
			resp := e.Response
			return &resp, nil
		case medic.ErrorEvent:
			return Failure(req.SessionID), e.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return Failure(req.SessionID), err
	}
	return Failure(req.SessionID), errors.New("agent: stream ended without terminal event")
}

// Failure is the response returned to callers of a failed request.
func Failure(sessionID string) *medic.Response {
	return &medic.Response{
		SessionID:  sessionID,
		Message:    medic.Apology,
		Risk:       medic.RiskLow,
		Disclaimer: medic.Disclaimer,
	}
}

func (o *Orchestrator) serve(ctx context.Context, req medic.ChatRequest, em *emitter) {
	start := o.now()
	reqCtx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	r := newRun(o, req, em)
	err := r.drive(reqCtx)
	elapsed := o.now().Sub(start)
	if err == nil {
		outcome := "ok"
		if r.truncated {
			outcome = "truncated"
		}
		o.observer.ObserveRequest(outcome, r.iteration, elapsed)
		o.logger.Info("chat completed",
			"session", r.sessionID,
			"iterations", r.iteration,
			"tools", len(r.toolsUsed),
			"risk", r.risk,
			"duration", elapsed,
		)
		return
	}

	if ctx.Err() != nil {
		o.observer.ObserveRequest("canceled", r.iteration, elapsed)
		o.logger.Info("chat canceled", "session", r.sessionID, "state", r.state, "duration", elapsed)
		return
	}

	ev := medic.ErrorEvent{Code: medic.CodeUpstream, Message: medic.Apology, Err: err}
	switch {
	case errors.Is(err, medic.ErrValidation), errors.Is(err, medic.ErrSessionNotFound):
		ev.Code = medic.CodeValidation
		ev.Message = err.Error()
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		ev.Code = medic.CodeTimeout
		ev.Err = fmt.Errorf("request timed out after %s: %w", o.requestTimeout, context.DeadlineExceeded)
	case !errors.Is(err, medic.ErrUpstream):
		ev.Code = medic.CodeInternal
	}
	o.observer.ObserveRequest(string(ev.Code), r.iteration, elapsed)
	o.logger.Error("chat failed",
		"session", r.sessionID,
		"state", r.state,
		"code", ev.Code,
		"error", err,
	)
	if err := em.emit(ev); err != nil {
		o.logger.Debug("error event not delivered", "error", err)
	}
}
