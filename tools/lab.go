package tools

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fwojciec/medic"
)

const labInstruction = "Please analyze these lab results and provide a comprehensive explanation including: " +
	"1) Overview of what each test measures, " +
	"2) Whether values are normal/abnormal and by how much, " +
	"3) Clinical significance and what it might indicate, " +
	"4) Recommendations for next steps or follow-up, " +
	"5) Important disclaimers about consulting healthcare providers."

// referenceRange is an adult reference interval. A zero bound is open.
type referenceRange struct {
	Name string
	Low  float64
	High float64
	Unit string
}

func (r referenceRange) String() string {
	switch {
	case r.Low == 0:
		return "< " + fmtFloat(r.High) + " " + r.Unit
	case r.High == 0:
		return "> " + fmtFloat(r.Low) + " " + r.Unit
	default:
		return fmtFloat(r.Low) + "-" + fmtFloat(r.High) + " " + r.Unit
	}
}

var referenceRanges = map[string]referenceRange{
	"totalcholesterol": {"Total Cholesterol", 0, 200, "mg/dL"},
	"ldl":              {"LDL Cholesterol", 0, 100, "mg/dL"},
	"hdl":              {"HDL Cholesterol", 40, 0, "mg/dL"},
	"triglycerides":    {"Triglycerides", 0, 150, "mg/dL"},
	"glucose":          {"Fasting Glucose", 70, 99, "mg/dL"},
	"hba1c":            {"Hemoglobin A1c", 4.0, 5.6, "%"},
	"hemoglobin":       {"Hemoglobin", 12.0, 17.5, "g/dL"},
	"wbc":              {"White Blood Cells", 4.5, 11.0, "10^3/µL"},
	"platelets":        {"Platelets", 150, 450, "10^3/µL"},
	"tsh":              {"TSH", 0.4, 4.0, "mIU/L"},
	"sodium":           {"Sodium", 135, 145, "mmol/L"},
	"potassium":        {"Potassium", 3.5, 5.0, "mmol/L"},
	"creatinine":       {"Creatinine", 0.6, 1.3, "mg/dL"},
}

var analyteAliases = map[string]string{
	"cholesterol":               "totalcholesterol",
	"ldlcholesterol":            "ldl",
	"ldlc":                      "ldl",
	"hdlcholesterol":            "hdl",
	"hdlc":                      "hdl",
	"tg":                        "triglycerides",
	"fastingglucose":            "glucose",
	"bloodglucose":              "glucose",
	"a1c":                       "hba1c",
	"hemoglobina1c":             "hba1c",
	"hgb":                       "hemoglobin",
	"hb":                        "hemoglobin",
	"whitebloodcells":           "wbc",
	"whitebloodcellcount":       "wbc",
	"plt":                       "platelets",
	"plateletcount":             "platelets",
	"thyroidstimulatinghormone": "tsh",
	"na":                        "sodium",
	"k":                         "potassium",
}

var leadingNumber = regexp.MustCompile(`^[<>]?\s*(-?\d+(?:\.\d+)?)\s*(.*)$`)

type labArgs struct {
	TestType       string                     `json:"test_type"`
	TestResults    map[string]json.RawMessage `json:"test_results"`
	PatientContext string                     `json:"patient_context,omitempty"`
}

type labInterpretation struct {
	Test           string   `json:"test"`
	Value          string   `json:"value"`
	Numeric        *float64 `json:"numeric,omitempty"`
	Unit           string   `json:"unit,omitempty"`
	ReferenceRange string   `json:"reference_range,omitempty"`
	Status         string   `json:"status"`
	DeviationPct   float64  `json:"deviation_pct,omitempty"`
}

type labPayload struct {
	Type            medic.ArtifactType         `json:"type"`
	TestType        string                     `json:"test_type"`
	TestResults     map[string]json.RawMessage `json:"test_results"`
	Interpretations []labInterpretation        `json:"interpretations"`
	AbnormalCount   int                        `json:"abnormal_count"`
	PatientContext  string                     `json:"patient_context,omitempty"`
	Timestamp       time.Time                  `json:"timestamp"`
	Instruction     string                     `json:"instruction"`
}

// LabExplanationTool returns the declaration of the lab explainer.
func LabExplanationTool() medic.Tool {
	return medic.Tool{
		Name: medic.ToolLabExplanation,
		Description: "Generate a detailed, structured explanation of laboratory test results. Use this when the " +
			"user provides lab values or asks for interpretation of blood work, urinalysis, metabolic panels, " +
			"or other lab tests. Creates a professional medical document with normal ranges, interpretations, " +
			"and clinical significance.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"test_type": {
					"type": "string",
					"minLength": 1,
					"description": "Type of lab test. Examples: 'Complete Blood Count (CBC)', 'Lipid Panel', 'Hemoglobin A1c'"
				},
				"test_results": {
					"type": "object",
					"minProperties": 1,
					"description": "Test results as key-value pairs. Keys are test names, values are results with units. Example: {'Total Cholesterol': '240 mg/dL', 'HDL': '35 mg/dL'}"
				},
				"patient_context": {
					"type": "string",
					"description": "Optional patient context like age, gender, existing conditions, or symptoms."
				}
			},
			"required": ["test_type", "test_results"]
		}`),
	}
}

// ExplainLab interprets each result against adult reference ranges.
var ExplainLab = Typed(explainLab)

func explainLab(_ context.Context, a labArgs) (*labPayload, error) {
	names := make([]string, 0, len(a.TestResults))
	for name := range a.TestResults {
		names = append(names, name)
	}
	sort.Strings(names)

	p := &labPayload{
		Type:            medic.ArtifactLabExplanation,
		TestType:        a.TestType,
		TestResults:     a.TestResults,
		Interpretations: make([]labInterpretation, 0, len(names)),
		PatientContext:  a.PatientContext,
		Timestamp:       time.Now().UTC(),
		Instruction:     labInstruction,
	}
	for _, name := range names {
		li := interpretLab(name, a.TestResults[name])
		if li.Status == "low" || li.Status == "high" {
			p.AbnormalCount++
		}
		p.Interpretations = append(p.Interpretations, li)
	}
	return p, nil
}

func interpretLab(name string, raw json.RawMessage) labInterpretation {
	li := labInterpretation{Test: name, Status: "unknown"}

	var value float64
	var unit string
	var num float64
	var str string
	switch {
	case json.Unmarshal(raw, &num) == nil:
		value = num
		li.Value = fmtFloat(num)
	case json.Unmarshal(raw, &str) == nil:
		li.Value = str
		m := leadingNumber.FindStringSubmatch(strings.TrimSpace(str))
		if m == nil {
			return li
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return li
		}
		value, unit = v, strings.TrimSpace(m[2])
	default:
		li.Value = string(raw)
		return li
	}
	li.Numeric = &value
	li.Unit = unit

	ref, ok := lookupRange(name)
	if !ok {
		return li
	}
	if li.Unit == "" {
		li.Unit = ref.Unit
	}
	li.ReferenceRange = ref.String()
	switch {
	case ref.Low != 0 && value < ref.Low:
		li.Status = "low"
		li.DeviationPct = round1((ref.Low - value) / ref.Low * 100)
	case ref.High != 0 && value > ref.High:
		li.Status = "high"
		li.DeviationPct = round1((value - ref.High) / ref.High * 100)
	default:
		li.Status = "normal"
	}
	return li
}

func lookupRange(name string) (referenceRange, bool) {
	key := normalizeAnalyte(name)
	if alias, ok := analyteAliases[key]; ok {
		key = alias
	}
	r, ok := referenceRanges[key]
	return r, ok
}

func normalizeAnalyte(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
