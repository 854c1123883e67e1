package impact

// RiskLevel is the coarse classification of a change's blast radius.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// Score thresholds for the risk bands. With the default weights a change
// touching two specifications at depth two scores 8.0 and lands in medium.
const (
	mediumThreshold = 5.0
	highThreshold   = 15.0
)

// ClassifyRisk maps a numeric risk score onto a level.
func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score >= highThreshold:
		return RiskHigh
	case score >= mediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}
