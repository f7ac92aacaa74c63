// Package prompt assembles the reasoning model's system prompt and
// conversation window from structured patient data and session history.
//
// Everything here is a pure function of its inputs: absent or malformed
// optional fields are omitted, never reported.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fwojciec/medic"
)

// DefaultWindow is the number of prior turns sent to the model.
const DefaultWindow = 10

const persona = "You are an AI health consultant assisting patients with health-related questions. " +
	"You provide helpful, empathetic, and medically-informed responses. " +
	"Always remind users that you are an AI assistant and they should consult healthcare professionals " +
	"for proper diagnosis and treatment. " +
	"Be conversational and supportive while maintaining medical accuracy."

// System returns the system prompt with the patient context appended when
// present.
func System(context string) string {
	if context == "" {
		return persona
	}
	return persona + "\n\nPatient Context:\n" + context
}

// Context renders the bundle as labeled sections separated by blank lines.
// An empty bundle renders as "".
func Context(b medic.ContextBundle) string {
	var parts []string
	add := func(heading string, lines []string) {
		if len(lines) > 0 {
			parts = append(parts, "=== "+heading+" ===\n"+strings.Join(lines, "\n"))
		}
	}
	add("Recent Consultation", consultation(b.Consultation))
	add("Vital Signs", vitals(b.Vitals))
	add("Patient Habits", habits(b.Habits))
	add("Medical Conditions", conditions(b.Conditions))
	add("Previous AI Consultation", prior(b.PriorConsultation))
	add("Image Findings (AI-observed)", imageFindings(b.ImageInterpretation))
	return strings.Join(parts, "\n\n")
}

// Window converts a most-recent-first history into chronological model
// messages, keeping at most n turns. Only user and assistant turns with
// content are sent to the model.
func Window(history []*medic.Turn, n int) []medic.Message {
	if n <= 0 {
		n = DefaultWindow
	}
	if len(history) > n {
		history = history[:n]
	}
	msgs := make([]medic.Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t == nil || strings.TrimSpace(t.Content) == "" {
			continue
		}
		block := []medic.ContentBlock{medic.TextBlock{Text: t.Content}}
		switch t.Role {
		case medic.RoleUser:
			msgs = append(msgs, medic.UserMessage{Content: block})
		case medic.RoleAssistant:
			msgs = append(msgs, medic.AssistantMessage{Content: block, StopReason: medic.StopEndTurn})
		}
	}
	return msgs
}

func consultation(c *medic.Consultation) []string {
	if c == nil {
		return nil
	}
	var l lines
	l.text("Chief Complaint", c.ChiefComplaint)
	l.text("History", c.History)
	l.text("Assessment", c.Assessment)
	l.text("Treatment Plan", c.TreatmentPlan)
	l.text("Doctor Notes", c.Notes)
	return l
}

func vitals(v *medic.Vitals) []string {
	if v == nil {
		return nil
	}
	var l lines
	l.text("Blood Type", v.BloodType)
	if v.Systolic > 0 && v.Diastolic > 0 {
		l = append(l, fmt.Sprintf("Blood Pressure: %d/%d mmHg", v.Systolic, v.Diastolic))
	}
	l.num("Heart Rate", float64(v.HeartRate), " bpm")
	l.num("Temperature", v.Temperature, "°C")
	l.num("Respiratory Rate", float64(v.RespiratoryRate), " breaths/min")
	l.num("Oxygen Saturation", v.OxygenSaturation, "%")
	l.num("Glucose Level", v.Glucose, " mg/dL")
	l.num("Weight", v.Weight, " kg")
	l.num("Height", v.Height, " cm")
	l.num("BMI", v.BMI, "")
	return l
}

func habits(hs []medic.Habit) []string {
	var l lines
	for _, h := range hs {
		if strings.TrimSpace(h.Type) == "" {
			continue
		}
		s := "- " + h.Type
		switch {
		case h.Actual != 0 && h.Target != 0:
			s += ": " + withUnit(num(h.Actual)+"/"+num(h.Target), h.Unit)
		case h.Actual != 0:
			s += ": " + withUnit(num(h.Actual), h.Unit)
		}
		if h.Notes != "" {
			s += " (" + h.Notes + ")"
		}
		l = append(l, s)
	}
	return l
}

func conditions(cs []medic.Condition) []string {
	var l lines
	for _, c := range cs {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		s := "- " + c.Name
		if c.Status != "" {
			s += " (Status: " + c.Status
			if c.Severity != "" {
				s += ", Severity: " + c.Severity
			}
			s += ")"
		}
		if c.Notes != "" {
			s += "\n  Notes: " + c.Notes
		}
		l = append(l, s)
	}
	return l
}

func prior(p *medic.PriorConsultation) []string {
	if p == nil {
		return nil
	}
	var l lines
	l.text("Previous Symptoms", p.Symptoms)
	var suggested []string
	for _, s := range p.SuggestedConditions {
		if s = strings.TrimSpace(s); s != "" {
			suggested = append(suggested, s)
		}
	}
	if len(suggested) > 0 {
		l = append(l, "Suggested Conditions: "+strings.Join(suggested, ", "))
	}
	l.text("Previous Recommendations", p.Recommendations)
	l.text("Risk Assessment", p.RiskAssessment)
	return l
}

func imageFindings(ii *medic.ImageInterpretation) []string {
	if ii == nil {
		return nil
	}
	var l lines
	l.text("Description", ii.Description)
	if len(ii.Findings) > 0 {
		l = append(l, "Findings:")
		for _, f := range ii.Findings {
			if f.Qualifier == "" {
				l = append(l, "- "+f.Label)
				continue
			}
			l = append(l, "- "+f.Label+": "+f.Qualifier)
		}
	}
	l.text("Confidence", string(ii.Confidence))
	if len(l) == 0 {
		return nil
	}
	return append([]string{"Observed by the image analysis model, not reported by the patient."}, l...)
}

// lines accumulates "Label: value" lines, skipping empty values.
type lines []string

func (l *lines) text(label, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*l = append(*l, label+": "+v)
	}
}

func (l *lines) num(label string, v float64, unit string) {
	if v > 0 {
		*l = append(*l, label+": "+num(v)+unit)
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func withUnit(v, unit string) string {
	if unit == "" {
		return v
	}
	return v + " " + unit
}
