// Package governance gates high-risk side effects behind human approval:
// risk classification over content, action types and paths, an approval
// queue with interrupt/resume, and a circuit breaker on failing agents.
package governance

import (
	"path"
	"regexp"
	"strings"
)

// RiskLevel orders risk from benign to critical.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the lowercase level name.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// contentRule maps a content pattern to a risk level.
type contentRule struct {
	pattern *regexp.Regexp
	level   RiskLevel
	label   string
}

// contentRules is the content scan table. First match wins per rule; the
// effective level is the max across all matches.
var contentRules = []contentRule{
	{regexp.MustCompile(`(?i)rm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)[a-z]*\s`), RiskCritical, "recursive deletion"},
	{regexp.MustCompile(`(?i)rm\s+-rf`), RiskCritical, "recursive deletion"},
	{regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`), RiskCritical, "privileged formatting"},
	{regexp.MustCompile(`(?i)\bdd\s+[^|;]*of=/dev/`), RiskCritical, "raw device write"},
	{regexp.MustCompile(`(?i)\bdrop\s+(table|database)\b`), RiskCritical, "SQL DROP"},
	{regexp.MustCompile(`(?i)\bdelete\s+from\s+\w+\s*(;|$)`), RiskCritical, "SQL DELETE without WHERE"},
	{regexp.MustCompile(`(?i)\btruncate\s+(table\s+)?\w+`), RiskCritical, "SQL TRUNCATE"},
	{regexp.MustCompile(`(?i)\beval\s*\(`), RiskHigh, "dynamic eval"},
	{regexp.MustCompile(`(?i)\bexec\s*\(`), RiskHigh, "dynamic exec"},
	{regexp.MustCompile(`(?i)\b__import__\s*\(|\bimportlib\b`), RiskHigh, "dynamic import"},
	{regexp.MustCompile(`(?i)\bos\.(remove|unlink)\s*\(|\bunlink\s*\(`), RiskMedium, "file removal"},
}

// actionBaselines maps action types to their baseline risk.
var actionBaselines = map[string]RiskLevel{
	"deploy":        RiskCritical,
	"database":      RiskCritical,
	"security":      RiskCritical,
	"financial":     RiskCritical,
	"file_delete":   RiskHigh,
	"config_change": RiskMedium,
	"external_api":  RiskMedium,
	"file_modify":   RiskLow,
}

// sensitivePathPatterns are glob patterns over affected paths that raise
// risk to HIGH. `**` matches any number of path segments.
var sensitivePathPatterns = []string{
	"deploy/**",
	"config/production/**",
	".env*",
	"secrets/**",
	"*.key",
	"*.pem",
	"database/migrations/**",
}

// ClassifyContent returns the highest risk any content rule assigns,
// along with the matching rule's label.
func ClassifyContent(content string) (RiskLevel, string) {
	level := RiskLow
	label := ""
	for _, rule := range contentRules {
		if rule.pattern.MatchString(content) && rule.level > level {
			level = rule.level
			label = rule.label
		}
	}
	return level, label
}

// ClassifyAction returns the baseline risk for an action type. Unknown
// action types default to LOW.
func ClassifyAction(actionType string) RiskLevel {
	if level, ok := actionBaselines[strings.ToLower(strings.TrimSpace(actionType))]; ok {
		return level
	}
	return RiskLow
}

// ClassifyPaths returns HIGH when any path matches a sensitive pattern,
// LOW otherwise, and the first matching path.
func ClassifyPaths(paths []string) (RiskLevel, string) {
	for _, p := range paths {
		for _, pattern := range sensitivePathPatterns {
			if matchPath(pattern, p) {
				return RiskHigh, p
			}
		}
	}
	return RiskLow, ""
}

// matchPath matches p against pattern, where a trailing "/**" matches the
// directory itself and anything beneath it, and bare patterns also match
// the path's base name (so "*.pem" catches "certs/server.pem").
func matchPath(pattern, p string) bool {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(p))
	return ok
}

// maxRisk returns the highest of the given levels.
func maxRisk(levels ...RiskLevel) RiskLevel {
	out := RiskLow
	for _, l := range levels {
		if l > out {
			out = l
		}
	}
	return out
}
