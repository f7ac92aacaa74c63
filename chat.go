package medic

import (
	"fmt"
	"strings"
)

// Disclaimer is attached to every response.
const Disclaimer = "⚠️ **Important Disclaimer**: This is an AI health assistant and should not replace " +
	"professional medical advice, diagnosis, or treatment. Always consult with a qualified healthcare " +
	"provider for proper medical guidance. If you're experiencing a medical emergency, call emergency " +
	"services immediately."

// Apology is the user-facing message of a failed request.
const Apology = "I apologize, but I encountered an error while processing your request. Please try again later."

// TruncationNote is appended to answers synthesized at the iteration cap.
const TruncationNote = "Note: this analysis was truncated because it reached the maximum number of " +
	"reasoning steps. Please ask a follow-up question for more detail."

// ChatRequest is one inbound chat call. SessionID is optional; when empty a
// new session is opened for PatientID.
type ChatRequest struct {
	SessionID    string
	PatientID    string
	Message      string
	Bundle       ContextBundle
	Image        *Image
	UseTools     bool
	ArtifactType ArtifactType
}

// Validate checks the request before any work is done.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message is required: %w", ErrValidation)
	}
	if r.SessionID == "" && r.PatientID == "" {
		return fmt.Errorf("session id or patient id is required: %w", ErrValidation)
	}
	if r.ArtifactType != "" {
		if _, err := ParseArtifactType(string(r.ArtifactType)); err != nil {
			return err
		}
	}
	return nil
}

// Response is the buffered result of one chat call.
type Response struct {
	SessionID           string
	Message             string
	Risk                RiskLabel
	ShouldSeeDoctor     bool
	ToolsUsed           []ToolName
	Disclaimer          string
	Thinking            string
	Truncated           bool
	ImageInterpretation *ImageInterpretation
	Artifact            *Artifact
}
