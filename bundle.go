package medic

// ContextBundle is the optional structured patient data supplied with one
// request. Every field is optional; absence means the section is omitted.
type ContextBundle struct {
	Consultation        *Consultation
	Vitals              *Vitals
	Habits              []Habit
	Conditions          []Condition
	PriorConsultation   *PriorConsultation
	ImageInterpretation *ImageInterpretation
}

// Empty reports whether the bundle carries no sub-records.
func (b ContextBundle) Empty() bool {
	return b.Consultation == nil &&
		b.Vitals == nil &&
		len(b.Habits) == 0 &&
		len(b.Conditions) == 0 &&
		b.PriorConsultation == nil &&
		b.ImageInterpretation == nil
}

// Consultation is the most recent clinician consultation.
type Consultation struct {
	ChiefComplaint string
	History        string
	Assessment     string
	TreatmentPlan  string
	Notes          string
}

// Vitals are the latest recorded vital signs. Zero values are unknown.
type Vitals struct {
	BloodType        string
	Systolic         int
	Diastolic        int
	HeartRate        int
	Temperature      float64 // °C
	RespiratoryRate  int
	OxygenSaturation float64 // %
	Glucose          float64 // mg/dL
	Weight           float64 // kg
	Height           float64 // cm
	BMI              float64
}

// Habit is a tracked lifestyle measure such as sleep or exercise.
type Habit struct {
	Type   string
	Actual float64
	Target float64
	Unit   string
	Notes  string
}

// Condition is a known medical condition.
type Condition struct {
	Name     string
	Status   string
	Severity string
	Notes    string
}

// PriorConsultation is the outcome of a previous assistant consultation.
type PriorConsultation struct {
	Symptoms            string
	SuggestedConditions []string
	Recommendations     string
	RiskAssessment      string
}
