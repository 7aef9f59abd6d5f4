package analyzer

import (
	"fmt"
	"regexp"

	"termbridge/internal/domain"
)

// Matcher is a predicate over a command string and optional request context.
// Most rules ignore the context; it is available for rules that need it.
type Matcher func(command string, context map[string]any) bool

// Rule is a static (matcher, suggestion, severity) triple. Rules are
// immutable once registered and evaluated in registration order. Every
// matching rule contributes its suggestion; there is no first-match-wins.
type Rule struct {
	Name       string
	Suggestion string
	Severity   domain.RiskLevel
	Matches    Matcher
}

// Analyzer evaluates an ordered rule table against command strings. It is
// pure and safe for concurrent use: the rule set is fixed at construction.
type Analyzer struct {
	rules []Rule
}

// New creates an analyzer with the given rules, evaluated in order.
func New(rules []Rule) *Analyzer {
	return &Analyzer{rules: rules}
}

// NewDefault creates an analyzer with the built-in rule set plus any
// extra rules appended after it.
func NewDefault(extra ...Rule) *Analyzer {
	return New(append(DefaultRules(), extra...))
}

// Rules returns the registered rules, in evaluation order.
func (a *Analyzer) Rules() []Rule { return a.rules }

// Analyze applies every rule to the command and aggregates suggestions.
// The result risk level is the maximum severity among triggered rules,
// RiskLow when nothing triggers.
func (a *Analyzer) Analyze(req domain.AnalysisRequest) domain.AnalysisResult {
	suggestions := make([]string, 0)
	risk := domain.RiskLow
	for _, r := range a.rules {
		if r.Matches(req.Command, req.Context) {
			suggestions = append(suggestions, r.Suggestion)
			risk = domain.MaxRisk(risk, r.Severity)
		}
	}
	return domain.AnalysisResult{
		Command:     req.Command,
		Suggestions: suggestions,
		RiskLevel:   risk,
	}
}

// CompileMatcher turns a config pattern into a Matcher. Patterns with regex
// metacharacters compile as regular expressions; anything else becomes a
// case-insensitive substring match.
func CompileMatcher(pattern string) (Matcher, error) {
	var re *regexp.Regexp
	var err error
	if isRegex(pattern) {
		re, err = regexp.Compile(pattern)
	} else {
		re, err = regexp.Compile(`(?i)` + regexp.QuoteMeta(pattern))
	}
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	return func(command string, _ map[string]any) bool {
		return re.MatchString(command)
	}, nil
}

func isRegex(s string) bool {
	for _, c := range s {
		switch c {
		case '(', ')', '[', ']', '{', '}', '|', '^', '$', '.', '*', '+', '?', '\\':
			return true
		}
	}
	return false
}
