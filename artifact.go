package medic

import (
	"context"
	"fmt"
	"time"
)

// ArtifactType selects the structure of a generated document.
type ArtifactType string

const (
	ArtifactLabExplanation     ArtifactType = "lab_explanation"
	ArtifactImagingAnalysis    ArtifactType = "imaging_analysis"
	ArtifactMedicalSummary     ArtifactType = "medical_summary"
	ArtifactConsultationReport ArtifactType = "consultation_report"
)

// ParseArtifactType validates a requested document type.
func ParseArtifactType(s string) (ArtifactType, error) {
	switch t := ArtifactType(s); t {
	case ArtifactLabExplanation, ArtifactImagingAnalysis, ArtifactMedicalSummary, ArtifactConsultationReport:
		return t, nil
	}
	return "", fmt.Errorf("unknown artifact type %q: %w", s, ErrValidation)
}

// Artifact is the structured intermediate representation of a document
// produced from a finalized turn.
type Artifact struct {
	ID        string
	Type      ArtifactType
	Title     string
	Sections  []Section
	CreatedAt time.Time
}

// Section is one headed part of an artifact.
type Section struct {
	Heading string
	Fields  []Field
	Body    string
}

// Field is a labeled value within a section.
type Field struct {
	Name  string
	Value string
}

// Renderer converts an artifact to a document byte stream.
type Renderer interface {
	Render(ctx context.Context, a *Artifact) ([]byte, error)
	ContentType() string
}
