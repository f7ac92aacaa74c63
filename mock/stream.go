package mock

import (
	"io"

	"github.com/fwojciec/medic"
)

// Interface compliance check.
var _ medic.Stream = (*Stream)(nil)

// Stream is a test double for medic.Stream.
// NextFn and MessageFn panic when nil to catch missing setup. CloseFn and
// StateFn are nil-safe because callers always defer Close.
type Stream struct {
	NextFn    func() (medic.Delta, error)
	StateFn   func() medic.StreamState
	MessageFn func() (medic.AssistantMessage, error)
	CloseFn   func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (medic.Delta, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() medic.StreamState {
	if s.StateFn == nil {
		return medic.StreamStateNew
	}
	return s.StateFn()
}

// Message delegates to MessageFn.
func (s *Stream) Message() (medic.AssistantMessage, error) {
	return s.MessageFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// CompletedStream returns a Stream that replays msg as deltas, one per
// content block, then reports io.EOF and returns msg from Message.
func CompletedStream(msg medic.AssistantMessage) *Stream {
	var deltas []medic.Delta
	for _, b := range msg.Content {
		switch bl := b.(type) {
		case medic.TextBlock:
			deltas = append(deltas, medic.TextDelta{Text: bl.Text})
		case medic.ThinkingBlock:
			deltas = append(deltas, medic.ThinkingDelta{Text: bl.Thinking})
		case medic.ToolCallBlock:
			deltas = append(deltas, medic.ToolCallDelta{Call: bl})
		}
	}
	if msg.StopReason == "" {
		msg.StopReason = medic.StopEndTurn
		if len(msg.ToolCalls()) > 0 {
			msg.StopReason = medic.StopToolUse
		}
	}
	state := medic.StreamStateNew
	i := 0
	return &Stream{
		NextFn: func() (medic.Delta, error) {
			if i >= len(deltas) {
				state = medic.StreamStateComplete
				return nil, io.EOF
			}
			state = medic.StreamStateStreaming
			d := deltas[i]
			i++
			return d, nil
		},
		StateFn: func() medic.StreamState { return state },
		MessageFn: func() (medic.AssistantMessage, error) {
			if state == medic.StreamStateNew {
				return medic.AssistantMessage{}, medic.ErrStreamNotReady
			}
			return msg, nil
		},
	}
}
