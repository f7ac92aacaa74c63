package json

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/medic"
)

type chatRequestDTO struct {
	Message           string                `json:"message"`
	PatientID         string                `json:"patient_id"`
	SessionID         string                `json:"session_id"`
	Stream            bool                  `json:"stream"`
	UseTools          *bool                 `json:"use_tools"`
	ArtifactType      string                `json:"artifact_type"`
	Image             string                `json:"image"`
	ImageMimeType     string                `json:"image_mime_type"`
	ImageFilename     string                `json:"image_filename"`
	Consultation      *consultationDTO      `json:"consultation_data"`
	Vitals            *vitalsDTO            `json:"vitals_data"`
	Habits            *habitsDTO            `json:"habits_data"`
	Conditions        *conditionsDTO        `json:"conditions_data"`
	PriorConsultation *priorConsultationDTO `json:"ai_consultation_data"`
}

type responseDTO struct {
	SessionID       string       `json:"session_id"`
	Message         string       `json:"message"`
	RiskAssessment  string       `json:"risk_assessment"`
	ShouldSeeDoctor bool         `json:"should_see_doctor"`
	ToolsUsed       []string     `json:"tools_used"`
	Disclaimer      string       `json:"disclaimer"`
	ThinkingSummary *string      `json:"thinking_summary,omitempty"`
	Truncated       bool         `json:"truncated,omitempty"`
	ImageAnalysis   *imageDTO    `json:"image_analysis,omitempty"`
	Artifact        *artifactDTO `json:"artifact,omitempty"`
}

// DecodeChatRequest reads a chat request body. The image field carries
// base64 data, optionally as a data URI. use_tools defaults to true. The
// stream result reports whether the caller asked for incremental delivery.
func DecodeChatRequest(r io.Reader) (req medic.ChatRequest, stream bool, err error) {
	var dto chatRequestDTO
	if err := json.NewDecoder(r).Decode(&dto); err != nil {
		return medic.ChatRequest{}, false, fmt.Errorf("decode chat request: %v: %w", err, medic.ErrValidation)
	}
	req = medic.ChatRequest{
		SessionID:    dto.SessionID,
		PatientID:    dto.PatientID,
		Message:      dto.Message,
		Bundle:       unmarshalBundle(dto),
		UseTools:     dto.UseTools == nil || *dto.UseTools,
		ArtifactType: medic.ArtifactType(dto.ArtifactType),
	}
	if dto.Image != "" {
		img, err := decodeImage(dto.Image, dto.ImageMimeType)
		if err != nil {
			return medic.ChatRequest{}, false, err
		}
		img.Filename = dto.ImageFilename
		req.Image = img
	}
	return req, dto.Stream, nil
}

// decodeImage accepts raw base64 or a data:<mime>;base64,<data> URI.
func decodeImage(s, mimeType string) (*medic.Image, error) {
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("malformed image data uri: %w", medic.ErrValidation)
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		s = data
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode image: %v: %w", err, medic.ErrValidation)
	}
	return &medic.Image{Data: data, MimeType: mimeType}, nil
}

// MarshalResponse serializes a buffered chat response.
func MarshalResponse(resp medic.Response) ([]byte, error) {
	return json.Marshal(marshalResponse(resp))
}

// UnmarshalResponse deserializes a buffered chat response.
func UnmarshalResponse(data []byte) (medic.Response, error) {
	var dto responseDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return medic.Response{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return unmarshalResponse(dto)
}

func marshalResponse(resp medic.Response) responseDTO {
	tools := marshalToolNames(resp.ToolsUsed)
	if tools == nil {
		tools = []string{}
	}
	dto := responseDTO{
		SessionID:       resp.SessionID,
		Message:         resp.Message,
		RiskAssessment:  string(resp.Risk),
		ShouldSeeDoctor: resp.ShouldSeeDoctor,
		ToolsUsed:       tools,
		Disclaimer:      resp.Disclaimer,
		Truncated:       resp.Truncated,
	}
	if resp.Thinking != "" {
		dto.ThinkingSummary = &resp.Thinking
	}
	if resp.ImageInterpretation != nil {
		img := marshalImage(*resp.ImageInterpretation)
		dto.ImageAnalysis = &img
	}
	if resp.Artifact != nil {
		a := marshalArtifact(*resp.Artifact)
		dto.Artifact = &a
	}
	return dto
}

func unmarshalResponse(dto responseDTO) (medic.Response, error) {
	resp := medic.Response{
		SessionID:       dto.SessionID,
		Message:         dto.Message,
		Risk:            medic.RiskLabel(dto.RiskAssessment),
		ShouldSeeDoctor: dto.ShouldSeeDoctor,
		ToolsUsed:       unmarshalToolNames(dto.ToolsUsed),
		Disclaimer:      dto.Disclaimer,
		Truncated:       dto.Truncated,
	}
	if dto.ThinkingSummary != nil {
		resp.Thinking = *dto.ThinkingSummary
	}
	if dto.ImageAnalysis != nil {
		img, err := unmarshalImage(*dto.ImageAnalysis)
		if err != nil {
			return medic.Response{}, fmt.Errorf("image analysis: %w", err)
		}
		resp.ImageInterpretation = &img
	}
	if dto.Artifact != nil {
		a, err := unmarshalArtifact(*dto.Artifact)
		if err != nil {
			return medic.Response{}, fmt.Errorf("artifact: %w", err)
		}
		resp.Artifact = &a
	}
	return resp, nil
}
