package json

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/medic"
)

type artifactDTO struct {
	ID        string       `json:"id,omitempty"`
	Type      string       `json:"type"`
	Title     string       `json:"title"`
	Sections  []sectionDTO `json:"sections"`
	CreatedAt string       `json:"created_at,omitempty"`
}

type sectionDTO struct {
	Heading string     `json:"heading"`
	Fields  []fieldDTO `json:"fields,omitempty"`
	Body    string     `json:"body,omitempty"`
}

type fieldDTO struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// artifactRequestDTO accepts either a full artifact (as returned in a chat
// response) or raw content to be structured by the server.
type artifactRequestDTO struct {
	artifactDTO
	ArtifactType string `json:"artifact_type"`
	Content      string `json:"content"`
}

// ArtifactRequest is a decoded document rendering request. Exactly one of
// Artifact or Content is set.
type ArtifactRequest struct {
	Artifact *medic.Artifact
	Type     medic.ArtifactType
	Title    string
	Content  string
}

// MarshalArtifact serializes an artifact.
func MarshalArtifact(a medic.Artifact) ([]byte, error) {
	return json.Marshal(marshalArtifact(a))
}

// UnmarshalArtifact deserializes an artifact.
func UnmarshalArtifact(data []byte) (medic.Artifact, error) {
	var dto artifactDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return medic.Artifact{}, fmt.Errorf("unmarshal artifact: %w", err)
	}
	return unmarshalArtifact(dto)
}

// DecodeArtifactRequest reads a rendering request. Malformed bodies and
// unknown artifact types are validation errors.
func DecodeArtifactRequest(r io.Reader) (ArtifactRequest, error) {
	var dto artifactRequestDTO
	if err := json.NewDecoder(r).Decode(&dto); err != nil {
		return ArtifactRequest{}, fmt.Errorf("decode artifact request: %v: %w", err, medic.ErrValidation)
	}
	typ := dto.Type
	if typ == "" {
		typ = dto.ArtifactType
	}
	if typ == "" {
		typ = string(medic.ArtifactConsultationReport)
	}
	t, err := medic.ParseArtifactType(typ)
	if err != nil {
		return ArtifactRequest{}, err
	}
	if len(dto.Sections) > 0 {
		dto.Type = string(t)
		a, err := unmarshalArtifact(dto.artifactDTO)
		if err != nil {
			return ArtifactRequest{}, fmt.Errorf("decode artifact request: %v: %w", err, medic.ErrValidation)
		}
		return ArtifactRequest{Artifact: &a, Type: t, Title: a.Title}, nil
	}
	if strings.TrimSpace(dto.Content) == "" {
		return ArtifactRequest{}, fmt.Errorf("content or sections required: %w", medic.ErrValidation)
	}
	return ArtifactRequest{Type: t, Title: dto.Title, Content: dto.Content}, nil
}

func marshalArtifact(a medic.Artifact) artifactDTO {
	sections := make([]sectionDTO, len(a.Sections))
	for i, s := range a.Sections {
		var fields []fieldDTO
		if len(s.Fields) > 0 {
			fields = make([]fieldDTO, len(s.Fields))
			for j, f := range s.Fields {
				fields[j] = fieldDTO(f)
			}
		}
		sections[i] = sectionDTO{Heading: s.Heading, Fields: fields, Body: s.Body}
	}
	return artifactDTO{
		ID:        a.ID,
		Type:      string(a.Type),
		Title:     a.Title,
		Sections:  sections,
		CreatedAt: formatTime(a.CreatedAt),
	}
}

func unmarshalArtifact(dto artifactDTO) (medic.Artifact, error) {
	created, err := parseTime(dto.CreatedAt)
	if err != nil {
		return medic.Artifact{}, err
	}
	sections := make([]medic.Section, len(dto.Sections))
	for i, s := range dto.Sections {
		var fields []medic.Field
		if len(s.Fields) > 0 {
			fields = make([]medic.Field, len(s.Fields))
			for j, f := range s.Fields {
				fields[j] = medic.Field(f)
			}
		}
		sections[i] = medic.Section{Heading: s.Heading, Fields: fields, Body: s.Body}
	}
	return medic.Artifact{
		ID:        dto.ID,
		Type:      medic.ArtifactType(dto.Type),
		Title:     dto.Title,
		Sections:  sections,
		CreatedAt: created,
	}, nil
}
