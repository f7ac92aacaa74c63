package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/artifact"
	"github.com/fwojciec/medic/prompt"
	"github.com/fwojciec/medic/risk"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const partialFallback = "I gathered some information but could not complete the full analysis."

// state is a step of the per-request state machine.
type state int

const (
	stateBuildingContext state = iota
	stateReasoning
	stateToolDispatch
	stateToolAwait
	stateSynthesized
	stateDone
	stateError
)

func (s state) String() string {
	switch s {
	case stateBuildingContext:
		return "BUILDING_CONTEXT"
	case stateReasoning:
		return "REASONING"
	case stateToolDispatch:
		return "TOOL_DISPATCH"
	case stateToolAwait:
		return "TOOL_AWAIT"
	case stateSynthesized:
		return "SYNTHESIZED"
	case stateDone:
		return "DONE"
	case stateError:
		return "ERROR"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// run holds the state of one request.
type run struct {
	o    *Orchestrator
	req  medic.ChatRequest
	em   *emitter
	exec medic.ToolExecutor

	state      state
	sessionID  string
	newSession bool
	system     string
	patient    string
	messages   []medic.Message
	tools      []medic.Tool
	interp     *medic.ImageInterpretation

	iteration int // model calls made
	rounds    int // tool rounds executed
	truncated bool

	content   strings.Builder
	thinking  []string
	toolsUsed []medic.ToolName

	pending []medic.ToolCallBlock
	results []*medic.ToolResult
	done    []chan struct{}
	group   *errgroup.Group

	risk medic.RiskLabel
}

func newRun(o *Orchestrator, req medic.ChatRequest, em *emitter) *run {
	return &run{
		o:         o,
		req:       req,
		em:        em,
		exec:      o.newExecutor(),
		state:     stateBuildingContext,
		sessionID: req.SessionID,
	}
}

// drive steps the state machine until DONE or ERROR.
func (r *run) drive(ctx context.Context) error {
	for {
		var next state
		var err error
		switch r.state {
		case stateBuildingContext:
			next, err = r.buildContext(ctx)
		case stateReasoning:
			next, err = r.reason(ctx)
		case stateToolDispatch:
			next, err = r.dispatch(ctx)
		case stateToolAwait:
			next, err = r.await(ctx)
		case stateSynthesized:
			next, err = r.synthesize(ctx)
		case stateDone:
			return nil
		default:
			return fmt.Errorf("agent: unexpected state %s", r.state)
		}
		if err == nil && next != stateDone && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			r.o.logger.Debug("transition", "from", r.state, "to", stateError, "error", err)
			return err
		}
		r.o.logger.Debug("transition", "from", r.state, "to", next)
		r.state = next
	}
}

func (r *run) buildContext(ctx context.Context) (state, error) {
	if err := r.req.Validate(); err != nil {
		return stateError, err
	}

	var history []*medic.Turn
	if r.o.store != nil {
		if r.sessionID != "" {
			sess, err := r.o.store.FindSession(ctx, r.sessionID)
			if err != nil {
				return stateError, err
			}
			if sess.Status != medic.SessionActive {
				return stateError, fmt.Errorf("session %s is %s: %w", sess.ID, strings.ToLower(string(sess.Status)), medic.ErrValidation)
			}
			if r.req.PatientID != "" && r.req.PatientID != sess.PatientID {
				return stateError, fmt.Errorf("session %s belongs to another patient: %w", sess.ID, medic.ErrValidation)
			}
			history, err = r.o.store.History(ctx, r.sessionID, r.window())
			if err != nil {
				return stateError, fmt.Errorf("load history: %w", err)
			}
		} else {
			r.sessionID = uuid.NewString()
			r.newSession = true
		}
	}

	bundle := r.req.Bundle
	if r.req.Image != nil {
		if r.o.vision == nil {
			return stateError, fmt.Errorf("image analysis is not configured: %w", medic.ErrValidation)
		}
		interp, err := r.o.vision.AnalyzeStream(ctx, *r.req.Image, r.req.Message, r.em.emit)
		if err != nil {
			return stateError, err
		}
		r.interp = interp
		bundle.ImageInterpretation = interp
	}

	r.patient = prompt.Context(bundle)
	r.system = prompt.System(r.patient)
	r.messages = append(prompt.Window(history, r.window()), medic.UserMessage{
		Content: []medic.ContentBlock{medic.TextBlock{Text: r.req.Message}},
	})
	if r.req.UseTools {
		r.tools = r.o.registry.Tools()
	}
	return stateReasoning, nil
}

func (r *run) window() int {
	if r.o.historyWindow > 0 {
		return r.o.historyWindow
	}
	return prompt.DefaultWindow
}

func (r *run) reason(ctx context.Context) (state, error) {
	r.iteration++
	note := "Analyzing your question..."
	if r.iteration > 1 {
		note = fmt.Sprintf("Reviewing tool results (step %d)...", r.iteration)
	}
	if err := r.think(note); err != nil {
		return stateError, err
	}

	msg, err := r.callModel(ctx)
	if err != nil {
		return stateError, err
	}

	calls := msg.ToolCalls()
	if len(calls) == 0 || len(r.tools) == 0 {
		return stateSynthesized, nil
	}
	if r.rounds >= r.o.maxIterations {
		r.truncated = true
		r.o.logger.Warn("iteration cap reached", "session", r.sessionID, "rounds", r.rounds, "dropped_calls", len(calls))
		return stateSynthesized, nil
	}

	// Tool results are correlated by ID, so every call needs one.
	content := make([]medic.ContentBlock, len(msg.Content))
	for i, b := range msg.Content {
		if tc, ok := b.(medic.ToolCallBlock); ok && tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
			b = tc
		}
		content[i] = b
	}
	msg.Content = content
	r.messages = append(r.messages, msg)
	r.pending = msg.ToolCalls()
	return stateToolDispatch, nil
}

// think records a progress note for the thinking summary and emits it.
func (r *run) think(text string) error {
	r.thinking = append(r.thinking, text)
	return r.em.emit(medic.ThinkingEvent{Iteration: r.iteration, Text: text})
}

// callModel streams one model response, forwarding deltas as they arrive.
// A failed attempt is retried once, and only if nothing was forwarded.
func (r *run) callModel(ctx context.Context) (medic.AssistantMessage, error) {
	req := medic.Request{
		Model:        r.o.model,
		SystemPrompt: r.system,
		Messages:     r.messages,
		Tools:        r.tools,
	}
	attempt := 0
	op := func() (medic.AssistantMessage, error) {
		attempt++
		if attempt > 1 {
			r.o.observer.ObserveRetry(attempt)
		}
		msg, forwarded, err := r.streamOnce(ctx, req)
		if err == nil {
			return msg, nil
		}
		if forwarded || ctx.Err() != nil || errors.Is(err, medic.ErrValidation) {
			return msg, backoff.Permanent(err)
		}
		return msg, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.o.retryInterval
	msg, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(2),
		backoff.WithNotify(func(err error, d time.Duration) {
			r.o.logger.Warn("model call failed, retrying", "session", r.sessionID, "iteration", r.iteration, "backoff", d, "error", err)
		}),
	)
	if err != nil {
		return msg, fmt.Errorf("reasoning step %d: %w", r.iteration, err)
	}
	return msg, nil
}

func (r *run) streamOnce(ctx context.Context, req medic.Request) (medic.AssistantMessage, bool, error) {
	s, err := r.o.provider.Stream(ctx, req)
	if err != nil {
		return medic.AssistantMessage{}, false, err
	}
	defer s.Close()

	forwarded := false
	for {
		d, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return medic.AssistantMessage{}, forwarded, err
		}
		switch d := d.(type) {
		case medic.TextDelta:
			if d.Text == "" {
				continue
			}
			r.content.WriteString(d.Text)
			err = r.em.emit(medic.ContentEvent{Text: d.Text})
			forwarded = true
		case medic.ThinkingDelta:
			if d.Text == "" {
				continue
			}
			err = r.em.emit(medic.ThinkingEvent{Iteration: r.iteration, Text: d.Text})
			forwarded = true
		}
		if err != nil {
			return medic.AssistantMessage{}, forwarded, err
		}
	}
	msg, err := s.Message()
	if err != nil {
		return medic.AssistantMessage{}, forwarded, err
	}
	return msg, forwarded, nil
}

func (r *run) dispatch(ctx context.Context) (state, error) {
	r.rounds++
	results := make([]*medic.ToolResult, len(r.pending))
	done := make([]chan struct{}, len(r.pending))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range r.pending {
		done[i] = make(chan struct{})
		g.Go(func() error {
			defer close(done[i])
			res, err := r.exec.Execute(gctx, call.Name, call.Arguments)
			if err != nil {
				payload, _ := json.Marshal(map[string]string{"error": err.Error()})
				res = &medic.ToolResult{Payload: payload, IsError: true}
			}
			results[i] = res
			return nil
		})
	}
	r.results, r.done, r.group = results, done, g
	return stateToolAwait, nil
}

// await flushes call/result pairs in request order as results arrive.
func (r *run) await(ctx context.Context) (state, error) {
	for i, call := range r.pending {
		select {
		case <-r.done[i]:
		case <-ctx.Done():
			return stateError, ctx.Err()
		}
		res := r.results[i]
		name := medic.ToolName(call.Name)
		if err := r.em.emit(medic.ToolCallEvent{ID: call.ID, Name: name, Arguments: call.Arguments}); err != nil {
			return stateError, err
		}
		if err := r.em.emit(medic.ToolResultEvent{
			ID:      call.ID,
			Name:    name,
			Result:  res.Payload,
			IsError: res.IsError,
			Cached:  res.Cached,
		}); err != nil {
			return stateError, err
		}
		r.recordTool(name)
		r.messages = append(r.messages, medic.ToolResultMessage{
			ToolCallID: call.ID,
			ToolName:   name,
			Content:    []medic.ContentBlock{medic.TextBlock{Text: string(res.Payload)}},
			IsError:    res.IsError,
		})
	}
	_ = r.group.Wait()
	r.pending, r.results, r.done, r.group = nil, nil, nil, nil
	return stateReasoning, nil
}

func (r *run) recordTool(name medic.ToolName) {
	if _, err := medic.ParseToolName(string(name)); err != nil {
		return
	}
	for _, n := range r.toolsUsed {
		if n == name {
			return
		}
	}
	r.toolsUsed = append(r.toolsUsed, name)
}

func (r *run) synthesize(ctx context.Context) (state, error) {
	if r.truncated {
		if strings.TrimSpace(r.content.String()) == "" {
			if err := r.appendContent(partialFallback); err != nil {
				return stateError, err
			}
		}
		if err := r.appendContent("\n\n" + medic.TruncationNote); err != nil {
			return stateError, err
		}
	}

	answer := r.content.String()
	r.risk = risk.Assess(answer, r.req.Message, r.patient)
	resp := &medic.Response{
		SessionID:           r.sessionID,
		Message:             answer,
		Risk:                r.risk,
		ShouldSeeDoctor:     r.risk.ShouldSeeDoctor(),
		ToolsUsed:           r.toolsUsed,
		Disclaimer:          medic.Disclaimer,
		Thinking:            strings.Join(r.thinking, "\n"),
		Truncated:           r.truncated,
		ImageInterpretation: r.interp,
	}
	if r.req.ArtifactType != "" {
		resp.Artifact = artifact.Build(r.req.ArtifactType, "", answer)
	}
	if err := r.persist(ctx, resp); err != nil {
		return stateError, err
	}
	if err := r.em.emit(medic.DoneEvent{Response: *resp}); err != nil {
		return stateError, err
	}
	return stateDone, nil
}

func (r *run) appendContent(text string) error {
	r.content.WriteString(text)
	return r.em.emit(medic.ContentEvent{Text: text})
}

// persist appends the user and assistant turns in one write.
func (r *run) persist(ctx context.Context, resp *medic.Response) error {
	if r.o.store == nil {
		return nil
	}
	now := r.o.now().UTC()
	if r.newSession {
		err := r.o.store.CreateSession(ctx, &medic.Session{
			ID:        r.sessionID,
			PatientID: r.req.PatientID,
			Title:     medic.SessionTitle(r.req.Message),
			Status:    medic.SessionActive,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}
	user := &medic.Turn{
		ID:        uuid.NewString(),
		SessionID: r.sessionID,
		Role:      medic.RoleUser,
		Content:   r.req.Message,
		CreatedAt: now,
	}
	if r.interp != nil {
		user.Metadata = &medic.TurnMetadata{ImageInterpretation: r.interp}
	}
	assistant := &medic.Turn{
		ID:        uuid.NewString(),
		SessionID: r.sessionID,
		Role:      medic.RoleAssistant,
		Content:   resp.Message,
		Metadata: &medic.TurnMetadata{
			Risk:            resp.Risk,
			ShouldSeeDoctor: resp.ShouldSeeDoctor,
			ToolsUsed:       resp.ToolsUsed,
			Artifact:        resp.Artifact,
			Truncated:       resp.Truncated,
		},
		CreatedAt: now,
	}
	if err := r.o.store.AppendTurns(ctx, r.sessionID, user, assistant); err != nil {
		return fmt.Errorf("persist turns: %w", err)
	}
	return nil
}
