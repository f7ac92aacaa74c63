package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fwojciec/medic"
)

var defaultFocusAreas = []string{"overview", "symptoms", "causes", "diagnosis", "treatment", "prevention"}

type summaryArgs struct {
	Topic          string   `json:"topic"`
	FocusAreas     []string `json:"focus_areas,omitempty"`
	PatientContext string   `json:"patient_context,omitempty"`
}

type summaryPayload struct {
	Type           medic.ArtifactType `json:"type"`
	Topic          string             `json:"topic"`
	FocusAreas     []string           `json:"focus_areas"`
	Sections       []string           `json:"sections"`
	PatientContext string             `json:"patient_context,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
	Instruction    string             `json:"instruction"`
}

// MedicalSummaryTool returns the declaration of the summary generator.
func MedicalSummaryTool() medic.Tool {
	return medic.Tool{
		Name: medic.ToolMedicalSummary,
		Description: "Generate a comprehensive medical summary or educational document about a health condition, " +
			"treatment, or medical topic. Use this when the user asks for detailed information about a disease, " +
			"treatment options, prevention strategies, or wants to understand a medical concept better.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"topic": {
					"type": "string",
					"minLength": 1,
					"description": "The medical topic or condition to explain. Examples: 'Type 2 Diabetes', 'Hypertension management'"
				},
				"focus_areas": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Specific aspects to focus on: 'symptoms', 'causes', 'diagnosis', 'treatment', 'prevention', 'complications', 'lifestyle', 'prognosis'. Leave empty for a comprehensive overview."
				},
				"patient_context": {
					"type": "string",
					"description": "Optional patient context to personalize the summary."
				}
			},
			"required": ["topic"]
		}`),
	}
}

// SummarizeTopic outlines a structured summary of a medical topic.
var SummarizeTopic = Typed(summarizeTopic)

func summarizeTopic(_ context.Context, a summaryArgs) (*summaryPayload, error) {
	focus := make([]string, 0, len(a.FocusAreas))
	for _, f := range a.FocusAreas {
		if f = strings.TrimSpace(f); f != "" {
			focus = append(focus, f)
		}
	}
	sections := focus
	focusText := strings.Join(focus, ", ")
	if len(focus) == 0 {
		sections = defaultFocusAreas
		focusText = "comprehensive overview"
	}
	return &summaryPayload{
		Type:           medic.ArtifactMedicalSummary,
		Topic:          a.Topic,
		FocusAreas:     focus,
		Sections:       sections,
		PatientContext: a.PatientContext,
		Timestamp:      time.Now().UTC(),
		Instruction: "Please create a comprehensive medical summary covering the requested topic. " +
			"Focus areas: " + focusText + ". " +
			"Include: relevant medical information, evidence-based recommendations, " +
			"lifestyle considerations, and appropriate medical disclaimers.",
	}, nil
}
