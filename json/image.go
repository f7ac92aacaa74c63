package json

import (
	"time"

	"github.com/fwojciec/medic"
)

type imageDTO struct {
	Description      string       `json:"description"`
	Findings         []findingDTO `json:"findings"`
	Confidence       string       `json:"confidence"`
	Model            string       `json:"model,omitempty"`
	ProcessingTimeMS int64        `json:"processing_time_ms"`
	Format           string       `json:"format,omitempty"`
	Width            int          `json:"width,omitempty"`
	Height           int          `json:"height,omitempty"`
	Resized          bool         `json:"resized"`
	AnalyzedAt       string       `json:"analyzed_at,omitempty"`
}

type findingDTO struct {
	Label     string `json:"label"`
	Qualifier string `json:"qualifier,omitempty"`
}

func marshalImage(ii medic.ImageInterpretation) imageDTO {
	findings := make([]findingDTO, len(ii.Findings))
	for i, f := range ii.Findings {
		findings[i] = findingDTO(f)
	}
	return imageDTO{
		Description:      ii.Description,
		Findings:         findings,
		Confidence:       string(ii.Confidence),
		Model:            ii.Model,
		ProcessingTimeMS: ii.ProcessingTime.Milliseconds(),
		Format:           ii.Format,
		Width:            ii.Width,
		Height:           ii.Height,
		Resized:          ii.Resized,
		AnalyzedAt:       formatTime(ii.AnalyzedAt),
	}
}

func unmarshalImage(dto imageDTO) (medic.ImageInterpretation, error) {
	at, err := parseTime(dto.AnalyzedAt)
	if err != nil {
		return medic.ImageInterpretation{}, err
	}
	var findings []medic.Finding
	if len(dto.Findings) > 0 {
		findings = make([]medic.Finding, len(dto.Findings))
		for i, f := range dto.Findings {
			findings[i] = medic.Finding(f)
		}
	}
	return medic.ImageInterpretation{
		Description:    dto.Description,
		Findings:       findings,
		Confidence:     medic.Confidence(dto.Confidence),
		Model:          dto.Model,
		ProcessingTime: time.Duration(dto.ProcessingTimeMS) * time.Millisecond,
		Format:         dto.Format,
		Width:          dto.Width,
		Height:         dto.Height,
		Resized:        dto.Resized,
		AnalyzedAt:     at,
	}, nil
}
