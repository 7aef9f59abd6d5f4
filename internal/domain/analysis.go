package domain

// RiskLevel is the coarse severity classification for an analyzed command.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// rank orders risk levels for max comparisons. Unknown values rank lowest.
func (r RiskLevel) rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// MaxRisk returns the more severe of two risk levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// ValidRisk reports whether s is a known risk level.
func ValidRisk(s string) bool {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// AnalysisRequest carries a command string and optional auxiliary context.
// Context is opaque to the analyzer beyond lookups defined by specific rules.
type AnalysisRequest struct {
	Command string
	Context map[string]any
}

// AnalysisResult is the outcome of static command analysis.
// Suggestions preserve rule registration order; RiskLevel is the maximum
// severity among triggered rules, RiskLow when none trigger.
type AnalysisResult struct {
	Command     string
	Suggestions []string
	RiskLevel   RiskLevel
}

// Analyzer is a pure function over a command string: no I/O, no side
// effects, deterministic for a given request and rule set.
type Analyzer interface {
	Analyze(req AnalysisRequest) AnalysisResult
}
