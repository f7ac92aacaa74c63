// Package risk classifies a consultation into a coarse advisory risk label
// using a fixed, ordered keyword lookup. The first tier with a matching
// keyword wins; there is no scoring.
package risk

import (
	"strings"

	"github.com/fwojciec/medic"
)

// Tier is one level of the lookup and the phrases that select it.
type Tier struct {
	Label    medic.RiskLabel
	Keywords []string
}

// Tiers is the lookup in precedence order.
var Tiers = []Tier{
	{
		Label: medic.RiskEmergency,
		Keywords: []string{
			"chest pain", "severe pain", "difficulty breathing", "unconscious",
			"bleeding heavily", "stroke", "heart attack", "emergency", "911",
		},
	},
	{
		Label: medic.RiskHigh,
		Keywords: []string{
			"blood pressure", "diabetes", "chronic", "severe", "urgent",
			"worsening", "persistent", "infection", "high fever",
		},
	},
	{
		Label: medic.RiskMedium,
		Keywords: []string{
			"pain", "discomfort", "symptoms", "condition", "medication",
			"treatment", "concern", "monitor",
		},
	},
}

// Assess returns the label of the first tier whose keyword occurs in the
// case-insensitive concatenation of texts, or RiskLow.
func Assess(texts ...string) medic.RiskLabel {
	label, _ := Match(texts...)
	return label
}

// Match is like Assess but also reports the keyword that decided the label.
// The keyword is empty for RiskLow.
func Match(texts ...string) (medic.RiskLabel, string) {
	combined := strings.ToLower(strings.Join(texts, " "))
	for _, tier := range Tiers {
		for _, kw := range tier.Keywords {
			if strings.Contains(combined, kw) {
				return tier.Label, kw
			}
		}
	}
	return medic.RiskLow, ""
}
