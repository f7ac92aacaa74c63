package risk_test

import (
	"testing"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/risk"
	"github.com/stretchr/testify/assert"
)

func TestAssess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		texts []string
		want  medic.RiskLabel
	}{
		{"crushing chest pain", []string{"I have a severe crushing chest pain and can't breathe"}, medic.RiskEmergency},
		{"emergency beats high", []string{"Severe headache, possible STROKE"}, medic.RiskEmergency},
		{"high from context", []string{"Try resting.", "=== Medical Conditions ===\n- Diabetes"}, medic.RiskHigh},
		{"severe alone is high", []string{"a severe rash"}, medic.RiskHigh},
		{"medium", []string{"Some mild discomfort after meals"}, medic.RiskMedium},
		{"low", []string{"what's a normal resting heart rate", "A normal resting heart rate for adults is 60 to 100 beats per minute."}, medic.RiskLow},
		{"no text", nil, medic.RiskLow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, risk.Assess(tc.texts...))
		})
	}
}

func TestAssess_FirstTierWins(t *testing.T) {
	t.Parallel()
	// "pain" (medium) and "chronic" (high) both appear; high is checked first.
	assert.Equal(t, medic.RiskHigh, risk.Assess("chronic back pain"))
	// "severe pain" is an emergency phrase even though "severe" alone is high.
	assert.Equal(t, medic.RiskEmergency, risk.Assess("severe pain in my leg"))
}

func TestMatch(t *testing.T) {
	t.Parallel()

	label, kw := risk.Match("My blood pressure is 150/95")
	assert.Equal(t, medic.RiskHigh, label)
	assert.Equal(t, "blood pressure", kw)

	label, kw = risk.Match("hello")
	assert.Equal(t, medic.RiskLow, label)
	assert.Empty(t, kw)
}
