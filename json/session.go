package json

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/medic"
)

type sessionDTO struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type sessionListDTO struct {
	PatientID string       `json:"patient_id"`
	Sessions  []sessionDTO `json:"sessions"`
}

type turnDTO struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  *metadataEnvelope `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

type historyDTO struct {
	SessionID string    `json:"session_id"`
	Messages  []turnDTO `json:"messages"`
}

// MarshalSession serializes one session.
func MarshalSession(s medic.Session) ([]byte, error) {
	return json.Marshal(marshalSession(s))
}

// UnmarshalSession deserializes one session.
func UnmarshalSession(data []byte) (medic.Session, error) {
	var dto sessionDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return medic.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return unmarshalSession(dto)
}

// MarshalSessions serializes a patient's session list.
func MarshalSessions(patientID string, sessions []*medic.Session) ([]byte, error) {
	dto := sessionListDTO{PatientID: patientID, Sessions: make([]sessionDTO, len(sessions))}
	for i, s := range sessions {
		dto.Sessions[i] = marshalSession(*s)
	}
	return json.Marshal(dto)
}

// MarshalHistory serializes a session's turns in the order given.
func MarshalHistory(sessionID string, turns []*medic.Turn) ([]byte, error) {
	dto := historyDTO{SessionID: sessionID, Messages: make([]turnDTO, len(turns))}
	for i, t := range turns {
		td := turnDTO{
			ID:        t.ID,
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: formatTime(t.CreatedAt),
		}
		if t.Metadata != nil {
			env := marshalMetadata(*t.Metadata)
			td.Metadata = &env
		}
		dto.Messages[i] = td
	}
	return json.Marshal(dto)
}

// UnmarshalHistory deserializes a session history.
func UnmarshalHistory(data []byte) (string, []*medic.Turn, error) {
	var dto historyDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return "", nil, fmt.Errorf("unmarshal history: %w", err)
	}
	turns := make([]*medic.Turn, len(dto.Messages))
	for i, td := range dto.Messages {
		created, err := parseTime(td.CreatedAt)
		if err != nil {
			return "", nil, fmt.Errorf("turn %d: %w", i, err)
		}
		t := &medic.Turn{
			ID:        td.ID,
			SessionID: dto.SessionID,
			Role:      medic.Role(td.Role),
			Content:   td.Content,
			CreatedAt: created,
		}
		if td.Metadata != nil {
			m, err := unmarshalMetadata(*td.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("turn %d: %w", i, err)
			}
			t.Metadata = &m
		}
		turns[i] = t
	}
	return dto.SessionID, turns, nil
}

func marshalSession(s medic.Session) sessionDTO {
	return sessionDTO{
		ID:        s.ID,
		PatientID: s.PatientID,
		Title:     s.Title,
		Status:    string(s.Status),
		CreatedAt: formatTime(s.CreatedAt),
		UpdatedAt: formatTime(s.UpdatedAt),
	}
}

func unmarshalSession(dto sessionDTO) (medic.Session, error) {
	created, err := parseTime(dto.CreatedAt)
	if err != nil {
		return medic.Session{}, err
	}
	updated, err := parseTime(dto.UpdatedAt)
	if err != nil {
		return medic.Session{}, err
	}
	return medic.Session{
		ID:        dto.ID,
		PatientID: dto.PatientID,
		Title:     dto.Title,
		Status:    medic.SessionStatus(dto.Status),
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}
