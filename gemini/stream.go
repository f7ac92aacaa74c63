package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/fwojciec/medic"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// stream implements [medic.Stream] by wrapping the genai SDK's streaming
// iterator.
type stream struct {
	ctx     context.Context
	pull    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	state   medic.StreamState
	msg     medic.AssistantMessage
	pending []medic.Delta
	calls   int
	err     error
}

// Interface compliance check.
var _ medic.Stream = (*stream)(nil)

func newStream(ctx context.Context, iterFn iter.Seq2[*genai.GenerateContentResponse, error]) *stream {
	next, stop := iter.Pull2(iterFn)
	return &stream{
		ctx:   ctx,
		pull:  next,
		stop:  stop,
		state: medic.StreamStateNew,
	}
}

// Next returns the next delta. Returns io.EOF when the response completed
// normally.
func (s *stream) Next() (medic.Delta, error) {
	for {
		if len(s.pending) > 0 {
			d := s.pending[0]
			s.pending = s.pending[1:]
			return d, nil
		}

		switch s.state {
		case medic.StreamStateComplete:
			return nil, io.EOF
		case medic.StreamStateError:
			return nil, s.err
		case medic.StreamStateClosed:
			return nil, medic.ErrStreamClosed
		}

		if err := s.ctx.Err(); err != nil {
			s.terminate(err)
			return nil, s.err
		}
		chunk, err, ok := s.pull()
		if !ok {
			s.finish()
			continue
		}
		s.state = medic.StreamStateStreaming
		if err != nil {
			s.terminate(err)
			return nil, s.err
		}
		if chunk == nil {
			continue
		}
		if err := s.processChunk(chunk); err != nil {
			s.terminate(err)
			return nil, s.err
		}
	}
}

// State returns the current stream state.
func (s *stream) State() medic.StreamState {
	return s.state
}

// Message returns the assembled AssistantMessage.
func (s *stream) Message() (medic.AssistantMessage, error) {
	if s.state == medic.StreamStateNew {
		return medic.AssistantMessage{}, medic.ErrStreamNotReady
	}
	msg := s.msg
	msg.Content = append([]medic.ContentBlock(nil), s.msg.Content...)
	return msg, nil
}

// Close stops the underlying iterator.
func (s *stream) Close() error {
	if s.state != medic.StreamStateComplete && s.state != medic.StreamStateError {
		s.state = medic.StreamStateClosed
		s.msg.StopReason = medic.StopAborted
		s.msg.RawStopReason = "aborted"
	}
	s.stop()
	return nil
}

// terminate records a terminal error and the matching stop reason.
func (s *stream) terminate(err error) {
	s.state = medic.StreamStateError
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.err = ctxErr
		s.msg.StopReason = medic.StopAborted
		s.msg.RawStopReason = "aborted"
		return
	}
	if errors.Is(err, medic.ErrUpstream) {
		s.err = err
	} else {
		s.err = fmt.Errorf("gemini: %w: %w", medic.ErrUpstream, err)
	}
	s.msg.StopReason = medic.StopError
	if s.msg.RawStopReason == "" {
		s.msg.RawStopReason = "error"
	}
}

func (s *stream) finish() {
	s.state = medic.StreamStateComplete
	if s.msg.StopReason == "" {
		s.msg.StopReason = medic.StopEndTurn
		s.msg.RawStopReason = string(medic.StopEndTurn)
	}
	// A safety or length stop outranks pending tool calls.
	if s.calls > 0 && s.msg.StopReason == medic.StopEndTurn {
		s.msg.StopReason = medic.StopToolUse
	}
}

func (s *stream) processChunk(chunk *genai.GenerateContentResponse) error {
	if fb := chunk.PromptFeedback; fb != nil && fb.BlockReason != "" {
		s.msg.RawStopReason = string(fb.BlockReason)
		return fmt.Errorf("gemini: prompt blocked: %s: %w", fb.BlockReason, medic.ErrUpstream)
	}
	if u := chunk.UsageMetadata; u != nil {
		s.msg.Usage.InputTokens = max(int(u.PromptTokenCount-u.CachedContentTokenCount), 0)
		s.msg.Usage.OutputTokens = int(u.CandidatesTokenCount + u.ThoughtsTokenCount)
	}
	if len(chunk.Candidates) == 0 || chunk.Candidates[0] == nil {
		return nil
	}
	cand := chunk.Candidates[0]
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if err := s.processPart(part); err != nil {
				return err
			}
		}
	}
	if cand.FinishReason != "" {
		s.msg.RawStopReason = string(cand.FinishReason)
		s.msg.StopReason = mapFinishReason(cand.FinishReason)
	}
	return nil
}

func (s *stream) processPart(part *genai.Part) error {
	switch {
	case part.FunctionCall != nil:
		return s.addCall(part)
	case part.Thought:
		tb, idx := s.lastThinking()
		tb.Thinking += part.Text
		if part.ThoughtSignature != nil {
			tb.Signature = part.ThoughtSignature
		}
		s.msg.Content[idx] = tb
		if part.Text != "" {
			s.pending = append(s.pending, medic.ThinkingDelta{Text: part.Text})
		}
	case part.Text != "":
		n := len(s.msg.Content)
		if n > 0 {
			if tb, ok := s.msg.Content[n-1].(medic.TextBlock); ok {
				s.msg.Content[n-1] = medic.TextBlock{Text: tb.Text + part.Text}
				s.pending = append(s.pending, medic.TextDelta{Text: part.Text})
				return nil
			}
		}
		s.msg.Content = append(s.msg.Content, medic.TextBlock{Text: part.Text})
		s.pending = append(s.pending, medic.TextDelta{Text: part.Text})
	}
	return nil
}

// lastThinking returns the trailing thinking block, appending an empty one
// when the last block is of another kind.
func (s *stream) lastThinking() (medic.ThinkingBlock, int) {
	n := len(s.msg.Content)
	if n > 0 {
		if tb, ok := s.msg.Content[n-1].(medic.ThinkingBlock); ok {
			return tb, n - 1
		}
	}
	s.msg.Content = append(s.msg.Content, medic.ThinkingBlock{})
	return medic.ThinkingBlock{}, n
}

func (s *stream) addCall(part *genai.Part) error {
	fc := part.FunctionCall
	args := json.RawMessage("{}")
	if fc.Args != nil {
		raw, err := json.Marshal(fc.Args)
		if err != nil {
			return fmt.Errorf("gemini: invalid tool call arguments: %w", err)
		}
		args = raw
	}
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	// Gemini attaches the signature of the preceding reasoning to the call.
	if part.ThoughtSignature != nil {
		for i := len(s.msg.Content) - 1; i >= 0; i-- {
			if tb, ok := s.msg.Content[i].(medic.ThinkingBlock); ok {
				if tb.Signature == nil {
					tb.Signature = part.ThoughtSignature
					s.msg.Content[i] = tb
				}
				break
			}
		}
	}
	call := medic.ToolCallBlock{ID: id, Name: fc.Name, Arguments: args}
	s.msg.Content = append(s.msg.Content, call)
	s.pending = append(s.pending, medic.ToolCallDelta{Call: call})
	s.calls++
	return nil
}

func mapFinishReason(r genai.FinishReason) medic.StopReason {
	switch r {
	case genai.FinishReasonStop:
		return medic.StopEndTurn
	case genai.FinishReasonMaxTokens:
		return medic.StopLength
	case genai.FinishReasonSafety,
		genai.FinishReasonRecitation,
		genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent,
		genai.FinishReasonSPII,
		genai.FinishReasonMalformedFunctionCall:
		return medic.StopError
	default:
		return medic.StopUnknown
	}
}
