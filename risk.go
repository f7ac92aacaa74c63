package medic

// RiskLabel is a coarse advisory severity classification.
type RiskLabel string

const (
	RiskEmergency RiskLabel = "EMERGENCY"
	RiskHigh      RiskLabel = "HIGH"
	RiskMedium    RiskLabel = "MEDIUM"
	RiskLow       RiskLabel = "LOW"
)

// ShouldSeeDoctor reports whether the label warrants recommending a clinician.
func (r RiskLabel) ShouldSeeDoctor() bool {
	return r == RiskEmergency || r == RiskHigh
}
