// Package json implements the JSON wire formats of the medic HTTP API and
// the persisted turn metadata envelope.
package json

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/medic"
)

// metadataEnvelope is the v1 storage format of TurnMetadata.
type metadataEnvelope struct {
	Version         int          `json:"version"`
	Risk            string       `json:"risk_assessment,omitempty"`
	ShouldSeeDoctor bool         `json:"should_see_doctor"`
	ToolsUsed       []string     `json:"tools_used,omitempty"`
	Truncated       bool         `json:"truncated,omitempty"`
	ImageAnalysis   *imageDTO    `json:"image_analysis,omitempty"`
	Artifact        *artifactDTO `json:"artifact,omitempty"`
}

// MarshalTurnMetadata serializes turn metadata in v1 envelope format.
func MarshalTurnMetadata(m medic.TurnMetadata) ([]byte, error) {
	return json.Marshal(marshalMetadata(m))
}

// UnmarshalTurnMetadata deserializes turn metadata in v1 envelope format.
func UnmarshalTurnMetadata(data []byte) (medic.TurnMetadata, error) {
	var env metadataEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return medic.TurnMetadata{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return unmarshalMetadata(env)
}

func marshalMetadata(m medic.TurnMetadata) metadataEnvelope {
	env := metadataEnvelope{
		Version:         1,
		Risk:            string(m.Risk),
		ShouldSeeDoctor: m.ShouldSeeDoctor,
		ToolsUsed:       marshalToolNames(m.ToolsUsed),
		Truncated:       m.Truncated,
	}
	if m.ImageInterpretation != nil {
		dto := marshalImage(*m.ImageInterpretation)
		env.ImageAnalysis = &dto
	}
	if m.Artifact != nil {
		dto := marshalArtifact(*m.Artifact)
		env.Artifact = &dto
	}
	return env
}

func unmarshalMetadata(env metadataEnvelope) (medic.TurnMetadata, error) {
	if env.Version != 1 {
		return medic.TurnMetadata{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	m := medic.TurnMetadata{
		Risk:            medic.RiskLabel(env.Risk),
		ShouldSeeDoctor: env.ShouldSeeDoctor,
		ToolsUsed:       unmarshalToolNames(env.ToolsUsed),
		Truncated:       env.Truncated,
	}
	if env.ImageAnalysis != nil {
		img, err := unmarshalImage(*env.ImageAnalysis)
		if err != nil {
			return medic.TurnMetadata{}, fmt.Errorf("image analysis: %w", err)
		}
		m.ImageInterpretation = &img
	}
	if env.Artifact != nil {
		a, err := unmarshalArtifact(*env.Artifact)
		if err != nil {
			return medic.TurnMetadata{}, fmt.Errorf("artifact: %w", err)
		}
		m.Artifact = &a
	}
	return m, nil
}

func marshalToolNames(names []medic.ToolName) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

func unmarshalToolNames(names []string) []medic.ToolName {
	if len(names) == 0 {
		return nil
	}
	out := make([]medic.ToolName, len(names))
	for i, n := range names {
		out[i] = medic.ToolName(n)
	}
	return out
}

// formatTime renders t as RFC 3339 in UTC, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
