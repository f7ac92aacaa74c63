package json

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/medic"
)

// eventDTO is the wire envelope of one stream event.
type eventDTO struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

type imageValidationDTO struct {
	Message   string `json:"message"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int    `json:"size_bytes"`
}

type imageProcessingDTO struct {
	Message string `json:"message"`
	Resized bool   `json:"resized"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type visionAnalysisDTO struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

type thinkingDTO struct {
	Iteration int    `json:"iteration"`
	Message   string `json:"message"`
}

type toolCallDTO struct {
	ID        string          `json:"id"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolResultDTO struct {
	ID       string          `json:"id"`
	ToolName string          `json:"tool_name"`
	Result   json.RawMessage `json:"result"`
	IsError  bool            `json:"is_error"`
	Cached   bool            `json:"cached"`
}

type errorDTO struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Disclaimer string `json:"disclaimer"`
}

// MarshalEvent serializes a stream event as {"type","data","timestamp"}.
// The internal cause of an ErrorEvent is never written.
func MarshalEvent(ev medic.StreamEvent, ts time.Time) ([]byte, error) {
	data, err := marshalEventData(ev)
	if err != nil {
		return nil, fmt.Errorf("%s event: %w", ev.Kind(), err)
	}
	return json.Marshal(eventDTO{
		Type:      string(ev.Kind()),
		Data:      data,
		Timestamp: formatTime(ts),
	})
}

func marshalEventData(ev medic.StreamEvent) ([]byte, error) {
	switch e := ev.(type) {
	case medic.ImageValidationEvent:
		return json.Marshal(imageValidationDTO(e))
	case medic.ImageProcessingEvent:
		return json.Marshal(imageProcessingDTO(e))
	case medic.VisionAnalysisEvent:
		return json.Marshal(visionAnalysisDTO(e))
	case medic.VisionCompleteEvent:
		return json.Marshal(marshalImage(e.Interpretation))
	case medic.ThinkingEvent:
		return json.Marshal(thinkingDTO{Iteration: e.Iteration, Message: e.Text})
	case medic.ToolCallEvent:
		return json.Marshal(toolCallDTO{ID: e.ID, ToolName: string(e.Name), Arguments: rawOrNull(e.Arguments)})
	case medic.ToolResultEvent:
		return json.Marshal(toolResultDTO{
			ID:       e.ID,
			ToolName: string(e.Name),
			Result:   rawOrNull(e.Result),
			IsError:  e.IsError,
			Cached:   e.Cached,
		})
	case medic.ContentEvent:
		return json.Marshal(e.Text)
	case medic.DoneEvent:
		return json.Marshal(marshalResponse(e.Response))
	case medic.ErrorEvent:
		return json.Marshal(errorDTO{Code: string(e.Code), Message: e.Message, Disclaimer: medic.Disclaimer})
	default:
		return nil, fmt.Errorf("unknown event type: %T", ev)
	}
}

// UnmarshalEvent deserializes a stream event and its timestamp.
func UnmarshalEvent(data []byte) (medic.StreamEvent, time.Time, error) {
	var dto eventDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, time.Time{}, fmt.Errorf("unmarshal event: %w", err)
	}
	ts, err := parseTime(dto.Timestamp)
	if err != nil {
		return nil, time.Time{}, err
	}
	ev, err := unmarshalEventData(medic.EventKind(dto.Type), dto.Data)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%s event: %w", dto.Type, err)
	}
	return ev, ts, nil
}

func unmarshalEventData(kind medic.EventKind, data []byte) (medic.StreamEvent, error) {
	switch kind {
	case medic.KindImageValidation:
		var dto imageValidationDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, err
		}
		return medic.ImageValidationEvent(dto), nil
	case medic.KindImageProcessing:
		var dto imageProcessingDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, err
		}
		return medic.ImageProcessingEvent(dto), nil
	case medic.KindVisionAnalysis:
		var dto visionAnalysisDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, err
		}
		return medic.VisionAnalysisEvent(dto), nil
	case medic.KindVisionComplete:
		var dto imageDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, err
		}
		ii, err := unmarshalImage(dto)
		if err != nil {
			return nil, err
		}
		return medic.VisionCompleteEvent{Interpretation: ii}, nil
	case medic.KindThinking:
		var dto thinkingDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, err
		}
		return medic.ThinkingEvent{Iteration: dto.Iteration, Text: dto.Message}, nil
	case medic.KindToolCall:
		var dto toolCallDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, err
		}
		return medic.ToolCallEvent{ID: dto.ID, Name: medic.ToolName(dto.ToolName), Arguments: dto.Arguments}, nil
	case medic.KindToolResult:
		var dto toolResultDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, err
		}
		return medic.ToolResultEvent{
			ID:      dto.ID,
			Name:    medic.ToolName(dto.ToolName),
			Result:  dto.Result,
			IsError: dto.IsError,
			Cached:  dto.Cached,
		}, nil
	case medic.KindContent:
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return nil, err
		}
		return medic.ContentEvent{Text: text}, nil
	case medic.KindDone:
		var dto responseDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, err
		}
		resp, err := unmarshalResponse(dto)
		if err != nil {
			return nil, err
		}
		return medic.DoneEvent{Response: resp}, nil
	case medic.KindError:
		var dto errorDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, err
		}
		return medic.ErrorEvent{Code: medic.ErrorCode(dto.Code), Message: dto.Message}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %q", kind)
	}
}

// rawOrNull keeps valid JSON as is and quotes anything else, so malformed
// model arguments still serialize.
func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	if !json.Valid(raw) {
		quoted, _ := json.Marshal(string(raw))
		return quoted
	}
	return raw
}
