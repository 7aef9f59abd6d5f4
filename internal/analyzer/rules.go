package analyzer

import (
	"regexp"
	"strings"

	"termbridge/internal/domain"
)

var (
	pipeToShellRe = regexp.MustCompile(`(?:curl|wget)[^|;&]*\|\s*(?:sudo\s+)?(?:ba|z|da)?sh\b`)
	rawDeviceRe   = regexp.MustCompile(`\b(?:mkfs(?:\.\w+)?\s|dd\s[^|;&]*of=/dev/)`)
	worldWriteRe  = regexp.MustCompile(`chmod\s+(?:-[a-zA-Z]+\s+)*777\b`)
)

// DefaultRules is the built-in rule table. Order matters: suggestions are
// reported in this order when multiple rules trigger.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "git-force-push",
			Suggestion: "Consider using 'git push --force-with-lease' for safer force pushes",
			Severity:   domain.RiskMedium,
			Matches: func(command string, _ map[string]any) bool {
				return strings.Contains(command, "git") && strings.Contains(command, "push")
			},
		},
		{
			Name:       "recursive-force-delete",
			Suggestion: "Warning: Destructive command detected",
			Severity:   domain.RiskHigh,
			Matches: func(command string, _ map[string]any) bool {
				return strings.Contains(command, "rm") && strings.Contains(command, "-rf")
			},
		},
		{
			Name:       "privilege-escalation",
			Suggestion: "Consider if sudo is really necessary",
			Severity:   domain.RiskMedium,
			Matches: func(command string, _ map[string]any) bool {
				return strings.Contains(command, "sudo")
			},
		},
		{
			Name:       "pipe-to-shell",
			Suggestion: "Downloading and piping a script straight into a shell runs unreviewed code",
			Severity:   domain.RiskHigh,
			Matches: func(command string, _ map[string]any) bool {
				return pipeToShellRe.MatchString(command)
			},
		},
		{
			Name:       "raw-device-write",
			Suggestion: "Warning: Writing to a raw device or creating a filesystem is irreversible",
			Severity:   domain.RiskHigh,
			Matches: func(command string, _ map[string]any) bool {
				return rawDeviceRe.MatchString(command)
			},
		},
		{
			Name:       "world-writable",
			Suggestion: "chmod 777 makes files writable by everyone; prefer a narrower mode",
			Severity:   domain.RiskMedium,
			Matches: func(command string, _ map[string]any) bool {
				return worldWriteRe.MatchString(command)
			},
		},
	}
}
