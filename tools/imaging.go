package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fwojciec/medic"
)

const imagingInstruction = "Please analyze these imaging findings and provide a comprehensive explanation including: " +
	"1) What the imaging study is and what it's used for, " +
	"2) Explanation of the findings in simple terms, " +
	"3) What these findings might indicate clinically, " +
	"4) Typical next steps or follow-up recommendations, " +
	"5) Important disclaimers about the need for professional interpretation."

type modality struct {
	keywords []string
	name     string
	overview string
}

// modalities is checked in order; the first keyword match wins.
var modalities = []modality{
	{[]string{"mri", "magnetic resonance"}, "Magnetic Resonance Imaging",
		"MRI uses strong magnets and radio waves to produce detailed images of soft tissues such as the brain, joints and organs, without ionizing radiation."},
	{[]string{"ct", "computed tomography", "cat scan"}, "Computed Tomography",
		"CT combines many X-ray images into cross-sectional slices, giving detailed views of bones, organs and blood vessels."},
	{[]string{"pet"}, "Positron Emission Tomography",
		"PET uses a small amount of radioactive tracer to show how tissues and organs are functioning, often to assess cancer or heart disease."},
	{[]string{"mammo"}, "Mammography",
		"A mammogram is a low-dose X-ray of the breast used for screening and diagnosing breast disease."},
	{[]string{"ultrasound", "sonogra", "echo"}, "Ultrasound",
		"Ultrasound uses high-frequency sound waves to create real-time images of organs, blood flow and soft tissue, without radiation."},
	{[]string{"x-ray", "xray", "radiograph"}, "X-ray",
		"An X-ray uses a small dose of ionizing radiation to produce images of bones and some soft tissues such as the lungs."},
}

type imagingArgs struct {
	ImagingType        string `json:"imaging_type"`
	Findings           string `json:"findings"`
	ClinicalIndication string `json:"clinical_indication,omitempty"`
	PatientContext     string `json:"patient_context,omitempty"`
}

type imagingPayload struct {
	Type               medic.ArtifactType `json:"type"`
	ImagingType        string             `json:"imaging_type"`
	Modality           string             `json:"modality,omitempty"`
	ModalityOverview   string             `json:"modality_overview,omitempty"`
	Findings           string             `json:"findings"`
	ClinicalIndication string             `json:"clinical_indication,omitempty"`
	PatientContext     string             `json:"patient_context,omitempty"`
	Timestamp          time.Time          `json:"timestamp"`
	Instruction        string             `json:"instruction"`
}

// ImagingExplanationTool returns the declaration of the imaging explainer.
func ImagingExplanationTool() medic.Tool {
	return medic.Tool{
		Name: medic.ToolImagingExplanation,
		Description: "Generate a detailed explanation of medical imaging results (X-rays, CT scans, MRI, etc.). " +
			"Use this when the user describes imaging findings or asks for help understanding radiology reports. " +
			"Creates an educational document explaining findings in layman's terms with clinical context " +
			"and recommendations.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"imaging_type": {
					"type": "string",
					"minLength": 1,
					"description": "Type of imaging study. Examples: 'Chest X-ray', 'Abdominal CT', 'Brain MRI', 'Ultrasound'"
				},
				"findings": {
					"type": "string",
					"minLength": 1,
					"description": "Description of the imaging findings, from a report or as described by the patient."
				},
				"clinical_indication": {
					"type": "string",
					"description": "Reason for the imaging study. Examples: 'Persistent cough', 'Screening'"
				},
				"patient_context": {
					"type": "string",
					"description": "Optional patient context like age, relevant medical history, or symptoms."
				}
			},
			"required": ["imaging_type", "findings"]
		}`),
	}
}

// ExplainImaging frames imaging findings with a description of the modality.
var ExplainImaging = Typed(explainImaging)

func explainImaging(_ context.Context, a imagingArgs) (*imagingPayload, error) {
	p := &imagingPayload{
		Type:               medic.ArtifactImagingAnalysis,
		ImagingType:        a.ImagingType,
		Findings:           a.Findings,
		ClinicalIndication: a.ClinicalIndication,
		PatientContext:     a.PatientContext,
		Timestamp:          time.Now().UTC(),
		Instruction:        imagingInstruction,
	}
	if m, ok := lookupModality(a.ImagingType); ok {
		p.Modality = m.name
		p.ModalityOverview = m.overview
	}
	return p, nil
}

func lookupModality(imagingType string) (modality, bool) {
	words := strings.FieldsFunc(strings.ToLower(imagingType), func(r rune) bool {
		return r == ' ' || r == ',' || r == '/' || r == '(' || r == ')'
	})
	for _, m := range modalities {
		for _, kw := range m.keywords {
			for _, w := range words {
				if w == kw || (len(kw) > 3 && strings.Contains(w, kw)) {
					return m, true
				}
			}
			if strings.Contains(kw, " ") && strings.Contains(strings.ToLower(imagingType), kw) {
				return m, true
			}
		}
	}
	return modality{}, false
}
