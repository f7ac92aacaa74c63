package openrouter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fwojciec/medic"
)

const maxLineBytes = 1 << 20

// stream implements [medic.Stream] by parsing SSE frames from an HTTP
// response body.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	ctx     context.Context
	state   medic.StreamState
	msg     medic.AssistantMessage
	text    strings.Builder
	think   strings.Builder
	calls   map[int]*callState
	final   []medic.ToolCallBlock
	pending []medic.Delta
	err     error // terminal error, if any
}

// callState assembles one tool call from its fragments.
type callState struct {
	id   string
	name string
	args strings.Builder
}

// Interface compliance check.
var _ medic.Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &stream{
		body:    body,
		scanner: sc,
		ctx:     ctx,
		state:   medic.StreamStateNew,
		calls:   make(map[int]*callState),
	}
}

// Next returns the next delta. Returns io.EOF when the completion finished
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

		data, err := s.readSSEData()
		if errors.Is(err, io.EOF) && s.msg.RawStopReason != "" {
			// Some gateways close after finish_reason without [DONE].
			s.finish()
			continue
		}
		if err != nil {
			s.terminate(err)
			return nil, s.err
		}
		s.state = medic.StreamStateStreaming

		if data == doneSentinel {
			s.finish()
			continue
		}
		if err := s.processChunk(data); err != nil {
			s.terminate(err)
			return nil, s.err
		}
	}
}

// State returns the current stream state.
func (s *stream) State() medic.StreamState {
	return s.state
}

// Message returns the assembled AssistantMessage. Before completion it
// holds the text received so far and no tool calls.
func (s *stream) Message() (medic.AssistantMessage, error) {
	if s.state == medic.StreamStateNew {
		return medic.AssistantMessage{}, medic.ErrStreamNotReady
	}
	msg := s.msg
	if s.think.Len() > 0 {
		msg.Content = append(msg.Content, medic.ThinkingBlock{Thinking: s.think.String()})
	}
	if s.text.Len() > 0 {
		msg.Content = append(msg.Content, medic.TextBlock{Text: s.text.String()})
	}
	for _, call := range s.final {
		msg.Content = append(msg.Content, call)
	}
	return msg, nil
}

// Close closes the underlying HTTP response body.
func (s *stream) Close() error {
	if s.state != medic.StreamStateComplete && s.state != medic.StreamStateError {
		s.state = medic.StreamStateClosed
		s.msg.StopReason = medic.StopAborted
		s.msg.RawStopReason = "aborted"
	}
	return s.body.Close()
}

// terminate records a terminal error and the matching stop reason.
func (s *stream) terminate(err error) {
	s.state = medic.StreamStateError
	switch {
	case s.ctx.Err() != nil:
		s.err = s.ctx.Err()
		s.msg.StopReason = medic.StopAborted
		s.msg.RawStopReason = "aborted"
		return
	case errors.Is(err, io.EOF):
		s.err = fmt.Errorf("openrouter: unexpected end of stream: %w", medic.ErrUpstream)
	case errors.Is(err, medic.ErrUpstream):
		s.err = err
	default:
		s.err = fmt.Errorf("openrouter: %w: %w", medic.ErrUpstream, err)
	}
	s.msg.StopReason = medic.StopError
	s.msg.RawStopReason = "error"
}

// readSSEData reads lines until a complete data payload is assembled.
// Comment lines (": OPENROUTER PROCESSING") and other fields are skipped.
func (s *stream) readSSEData() (string, error) {
	var dataBuf strings.Builder
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if dataBuf.Len() > 0 {
				return dataBuf.String(), nil
			}
			continue
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimPrefix(data, " "))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	if dataBuf.Len() > 0 {
		return dataBuf.String(), nil
	}
	return "", io.EOF
}

func (s *stream) processChunk(data string) error {
	var chunk sseChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return fmt.Errorf("openrouter: failed to parse chunk: %w", err)
	}
	if chunk.Error != nil {
		return fmt.Errorf("openrouter: %s: %w", chunk.Error.Message, medic.ErrUpstream)
	}
	if chunk.Usage != nil {
		s.msg.Usage.InputTokens = chunk.Usage.PromptTokens
		s.msg.Usage.OutputTokens = chunk.Usage.CompletionTokens
	}

	for _, choice := range chunk.Choices {
		if choice.Index != 0 {
			continue
		}
		d := choice.Delta
		if d.Reasoning != "" {
			s.think.WriteString(d.Reasoning)
			s.pending = append(s.pending, medic.ThinkingDelta{Text: d.Reasoning})
		}
		if d.Content != "" {
			s.text.WriteString(d.Content)
			s.pending = append(s.pending, medic.TextDelta{Text: d.Content})
		}
		for _, tc := range d.ToolCalls {
			cs := s.calls[tc.Index]
			if cs == nil {
				cs = &callState{}
				s.calls[tc.Index] = cs
			}
			if tc.ID != "" {
				cs.id = tc.ID
			}
			if tc.Function.Name != "" {
				cs.name = tc.Function.Name
			}
			cs.args.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason != nil {
			s.msg.RawStopReason = *choice.FinishReason
			s.msg.StopReason = mapStopReason(*choice.FinishReason)
		}
	}
	return nil
}

// finish queues completed tool calls in index order.
func (s *stream) finish() {
	s.state = medic.StreamStateComplete
	indexes := make([]int, 0, len(s.calls))
	for i := range s.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		cs := s.calls[i]
		raw := cs.args.String()
		if strings.TrimSpace(raw) == "" {
			raw = "{}"
		}
		call := medic.ToolCallBlock{ID: cs.id, Name: cs.name, Arguments: json.RawMessage(raw)}
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", i)
		}
		s.final = append(s.final, call)
		s.pending = append(s.pending, medic.ToolCallDelta{Call: call})
	}

	if s.msg.StopReason == "" {
		s.msg.StopReason = medic.StopEndTurn
		s.msg.RawStopReason = "stop"
	}
	if len(indexes) > 0 {
		s.msg.StopReason = medic.StopToolUse
	}
}

func mapStopReason(raw string) medic.StopReason {
	switch raw {
	case "stop":
		return medic.StopEndTurn
	case "length":
		return medic.StopLength
	case "tool_calls", "function_call":
		return medic.StopToolUse
	case "error":
		return medic.StopError
	default:
		return medic.StopUnknown
	}
}
