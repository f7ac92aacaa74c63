package json

import "github.com/fwojciec/medic"

type consultationDTO struct {
	ChiefComplaint string `json:"chief_complaint"`
	History        string `json:"history_of_present_illness"`
	Assessment     string `json:"assessment"`
	TreatmentPlan  string `json:"treatment_plan"`
	Notes          string `json:"doctor_notes"`
}

type vitalsDTO struct {
	BloodType        string  `json:"blood_type"`
	Systolic         int     `json:"blood_pressure_systolic"`
	Diastolic        int     `json:"blood_pressure_diastolic"`
	HeartRate        int     `json:"heart_rate_bpm"`
	Temperature      float64 `json:"temperature_celsius"`
	RespiratoryRate  int     `json:"respiratory_rate"`
	OxygenSaturation float64 `json:"oxygen_saturation"`
	Glucose          float64 `json:"glucose_level"`
	Weight           float64 `json:"weight_kg"`
	Height           float64 `json:"height_cm"`
	BMI              float64 `json:"bmi"`
}

type habitsDTO struct {
	Habits []habitDTO `json:"habits"`
}

type habitDTO struct {
	Type   string  `json:"habit_type"`
	Actual float64 `json:"actual_value"`
	Target float64 `json:"target_value"`
	Unit   string  `json:"target_unit"`
	Notes  string  `json:"notes"`
}

type conditionsDTO struct {
	Conditions []conditionDTO `json:"conditions"`
}

type conditionDTO struct {
	Name     string `json:"condition_name"`
	Status   string `json:"status"`
	Severity string `json:"severity"`
	Notes    string `json:"notes"`
}

type priorConsultationDTO struct {
	Symptoms            string   `json:"symptoms_described"`
	SuggestedConditions []string `json:"ai_suggested_conditions"`
	Recommendations     string   `json:"ai_recommendations"`
	RiskAssessment      string   `json:"risk_assessment"`
}

func unmarshalBundle(dto chatRequestDTO) medic.ContextBundle {
	var b medic.ContextBundle
	if c := dto.Consultation; c != nil {
		v := medic.Consultation(*c)
		b.Consultation = &v
	}
	if v := dto.Vitals; v != nil {
		vitals := medic.Vitals(*v)
		b.Vitals = &vitals
	}
	if h := dto.Habits; h != nil && len(h.Habits) > 0 {
		b.Habits = make([]medic.Habit, len(h.Habits))
		for i, habit := range h.Habits {
			b.Habits[i] = medic.Habit(habit)
		}
	}
	if c := dto.Conditions; c != nil && len(c.Conditions) > 0 {
		b.Conditions = make([]medic.Condition, len(c.Conditions))
		for i, cond := range c.Conditions {
			b.Conditions[i] = medic.Condition(cond)
		}
	}
	if p := dto.PriorConsultation; p != nil {
		v := medic.PriorConsultation(*p)
		b.PriorConsultation = &v
	}
	return b
}
