package medic

import "time"

// Image is an image attached to a request. It is never persisted.
type Image struct {
	Data     []byte
	MimeType string
	Filename string
}

// Confidence is the vision model's overall confidence indicator.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Finding is one labeled observation from image analysis.
type Finding struct {
	Label     string
	Qualifier string
}

// ImageInterpretation is the structured result of vision pre-analysis and
// the only image-derived fact set used downstream.
type ImageInterpretation struct {
	Description    string
	Findings       []Finding
	Confidence     Confidence
	Model          string
	ProcessingTime time.Duration
	Format         string
	Width          int
	Height         int
	Resized        bool
	AnalyzedAt     time.Time
}
