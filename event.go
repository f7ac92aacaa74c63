package medic

import "encoding/json"

// EventKind tags a StreamEvent.
type EventKind string

const (
	KindImageValidation EventKind = "image_validation"
	KindImageProcessing EventKind = "image_processing"
	KindVisionAnalysis  EventKind = "vision_analysis"
	KindVisionComplete  EventKind = "vision_complete"
	KindThinking        EventKind = "thinking"
	KindToolCall        EventKind = "tool_call"
	KindToolResult      EventKind = "tool_result"
	KindContent         EventKind = "content"
	KindDone            EventKind = "done"
	KindError           EventKind = "error"
)

// StreamEvent is a sealed interface representing one externally observed
// event of a chat request. Events of one request are totally ordered and
// exactly one terminal event (DoneEvent or ErrorEvent) closes the sequence.
type StreamEvent interface {
	streamEvent()
	Kind() EventKind
}

// IsTerminal reports whether e closes the event sequence.
func IsTerminal(e StreamEvent) bool {
	k := e.Kind()
	return k == KindDone || k == KindError
}

// ImageValidationEvent reports that the attached image passed validation.
type ImageValidationEvent struct {
	Message   string
	Format    string
	Width     int
	Height    int
	SizeBytes int
}

func (ImageValidationEvent) streamEvent()    {}
func (ImageValidationEvent) Kind() EventKind { return KindImageValidation }

// ImageProcessingEvent reports image normalization before transmission.
type ImageProcessingEvent struct {
	Message string
	Resized bool
	Width   int
	Height  int
}

func (ImageProcessingEvent) streamEvent()    {}
func (ImageProcessingEvent) Kind() EventKind { return KindImageProcessing }

// VisionAnalysisEvent reports that the vision model call started.
type VisionAnalysisEvent struct {
	Message string
	Model   string
}

func (VisionAnalysisEvent) streamEvent()    {}
func (VisionAnalysisEvent) Kind() EventKind { return KindVisionAnalysis }

// VisionCompleteEvent carries the finished image interpretation.
type VisionCompleteEvent struct {
	Interpretation ImageInterpretation
}

func (VisionCompleteEvent) streamEvent()    {}
func (VisionCompleteEvent) Kind() EventKind { return KindVisionComplete }

// ThinkingEvent reports reasoning progress. Iteration is the 1-based
// reasoning step.
type ThinkingEvent struct {
	Iteration int
	Text      string
}

func (ThinkingEvent) streamEvent()    {}
func (ThinkingEvent) Kind() EventKind { return KindThinking }

// ToolCallEvent announces a tool invocation. ID correlates it with its
// ToolResultEvent.
type ToolCallEvent struct {
	ID        string
	Name      ToolName
	Arguments json.RawMessage
}

func (ToolCallEvent) streamEvent()    {}
func (ToolCallEvent) Kind() EventKind { return KindToolCall }

// ToolResultEvent carries the outcome of the tool call with the same ID.
type ToolResultEvent struct {
	ID      string
	Name    ToolName
	Result  json.RawMessage
	IsError bool
	Cached  bool
}

func (ToolResultEvent) streamEvent()    {}
func (ToolResultEvent) Kind() EventKind { return KindToolResult }

// ContentEvent is an incremental chunk of the answer, in generation order.
type ContentEvent struct {
	Text string
}

func (ContentEvent) streamEvent()    {}
func (ContentEvent) Kind() EventKind { return KindContent }

// DoneEvent terminates a successful request.
type DoneEvent struct {
	Response Response
}

func (DoneEvent) streamEvent()    {}
func (DoneEvent) Kind() EventKind { return KindDone }

// ErrorCode classifies a failed request for the caller.
type ErrorCode string

const (
	CodeValidation ErrorCode = "validation"
	CodeUpstream   ErrorCode = "upstream"
	CodeTimeout    ErrorCode = "timeout"
	CodeInternal   ErrorCode = "internal"
)

// ErrorEvent terminates a failed request. Message is safe to show to the
// user; Err is the internal cause and is never serialized.
type ErrorEvent struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (ErrorEvent) streamEvent()    {}
func (ErrorEvent) Kind() EventKind { return KindError }

// Interface compliance checks.
var (
	_ StreamEvent = ImageValidationEvent{}
	_ StreamEvent = ImageProcessingEvent{}
	_ StreamEvent = VisionAnalysisEvent{}
	_ StreamEvent = VisionCompleteEvent{}
	_ StreamEvent = ThinkingEvent{}
	_ StreamEvent = ToolCallEvent{}
	_ StreamEvent = ToolResultEvent{}
	_ StreamEvent = ContentEvent{}
	_ StreamEvent = DoneEvent{}
	_ StreamEvent = ErrorEvent{}
)
