package medic

// Delta is a sealed interface representing one incremental unit produced by
// a reasoning model stream. Transport errors come from Stream.Next's error
// return, never from deltas.
type Delta interface {
	delta()
}

// TextDelta is a fragment of answer text.
type TextDelta struct {
	Text string
}

func (TextDelta) delta() {}

// ThinkingDelta is a fragment of model reasoning.
type ThinkingDelta struct {
	Text string
}

func (ThinkingDelta) delta() {}

// ToolCallDelta carries a fully assembled tool call.
type ToolCallDelta struct {
	Call ToolCallBlock
}

func (ToolCallDelta) delta() {}

var (
	_ Delta = TextDelta{}
	_ Delta = ThinkingDelta{}
	_ Delta = ToolCallDelta{}
)

// StreamState indicates the current state of a Stream.
type StreamState int

const (
	StreamStateNew       StreamState = iota // Before Next() is ever called.
	StreamStateStreaming                    // Mid-stream, receiving deltas.
	StreamStateComplete                     // Next() returned io.EOF.
	StreamStateError                        // Next() returned non-EOF error.
	StreamStateClosed                       // Close() called before terminal state.
)

// Stream is a pull-based iterator over one model response. Cancellation
// flows through the context passed to Provider.Stream.
//
// Next returns io.EOF when the response completed normally. Message returns
// the assembled AssistantMessage; before the first Next call it returns
// ErrStreamNotReady. After an error or Close the partial message is returned
// with StopError or StopAborted.
type Stream interface {
	Next() (Delta, error)
	State() StreamState
	Message() (AssistantMessage, error)
	Close() error
}
