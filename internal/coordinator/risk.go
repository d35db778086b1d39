package coordinator

// RiskLevel classifies a proposed action and determines whether it
// requires human approval before dispatch.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel maps a wire value to a RiskLevel. Unknown values map to
// medium: fail safe, never fail open to low.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(s)
	default:
		return RiskMedium
	}
}

// RequiresApproval reports whether an action at this level must pass the
// approval queue. Only low-risk actions dispatch unattended.
func (r RiskLevel) RequiresApproval() bool {
	return r != RiskLow
}

// Rank orders risk levels for comparisons; higher is riskier.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 1
	}
}

// Classifier assigns a risk level to a proposed action. The concrete
// classifier is external to the coordinator; see the policy package for
// the default rule-based implementation.
type Classifier interface {
	Classify(action ProposedAction) RiskLevel
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(action ProposedAction) RiskLevel

func (f ClassifierFunc) Classify(action ProposedAction) RiskLevel { return f(action) }
