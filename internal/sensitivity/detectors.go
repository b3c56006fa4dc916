// Package sensitivity implements the gate that scans task and deliverable
// content for sensitive material, scores it, masks it, and decides whether a
// submission needs human approval before analysis runs.
package sensitivity

import (
	"regexp"
	"strings"
)

// Category groups detections for scoring and reporting.
type Category string

const (
	CategoryPII         Category = "PII"
	CategoryCredentials Category = "CREDENTIALS"
	CategoryFinancial   Category = "FINANCIAL"
	CategoryHealth      Category = "HEALTH"
	CategoryProprietary Category = "PROPRIETARY"
)

// Severity grades a single detection.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns the scoring weight of the severity.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 100
	case SeverityHigh:
		return 50
	case SeverityMedium:
		return 25
	default:
		return 10
	}
}

// categoryWeight returns the scoring multiplier for the category.
func categoryWeight(c Category) float64 {
	switch c {
	case CategoryCredentials:
		return 1.5
	case CategoryHealth:
		return 1.4
	case CategoryFinancial:
		return 1.3
	case CategoryPII:
		return 1.0
	case CategoryProprietary:
		return 0.8
	default:
		return 1.0
	}
}

// Detection is one sensitive span found in the content.
type Detection struct {
	Category   Category `json:"category"`
	Type       string   `json:"type"`
	Severity   Severity `json:"severity"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Confidence float64  `json:"confidence"`
}

type regexRule struct {
	name     string
	category Category
	severity Severity
	pattern  *regexp.Regexp
	// validate rejects false positives after a pattern match.
	validate func(match string) bool
}

var credentialRules = []regexRule{
	{
		name:     "AWS_ACCESS_KEY",
		category: CategoryCredentials,
		severity: SeverityCritical,
		pattern:  regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`),
	},
	{
		name:     "AWS_SECRET_KEY",
		category: CategoryCredentials,
		severity: SeverityCritical,
		pattern:  regexp.MustCompile(`(?i)aws_secret_access_key\s*[=:]\s*[A-Za-z0-9/+=]{40}`),
	},
	{
		name:     "PRIVATE_KEY",
		category: CategoryCredentials,
		severity: SeverityCritical,
		pattern:  regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	},
	{
		name:     "GITHUB_TOKEN",
		category: CategoryCredentials,
		severity: SeverityCritical,
		pattern:  regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`),
	},
	{
		name:     "SLACK_TOKEN",
		category: CategoryCredentials,
		severity: SeverityHigh,
		pattern:  regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}\b`),
	},
	{
		name:     "OPENAI_KEY",
		category: CategoryCredentials,
		severity: SeverityHigh,
		pattern:  regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
	},
	{
		name:     "BEARER_TOKEN",
		category: CategoryCredentials,
		severity: SeverityHigh,
		pattern:  regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-\._~+/]{20,}=*`),
	},
	{
		name:     "API_KEY",
		category: CategoryCredentials,
		severity: SeverityHigh,
		pattern:  regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|access[_-]?token)\s*[=:]\s*['"]?[A-Za-z0-9\-\._]{16,}['"]?`),
	},
	{
		name:     "PASSWORD",
		category: CategoryCredentials,
		severity: SeverityMedium,
		pattern:  regexp.MustCompile(`(?i)\bpassword\s*[=:]\s*['"]?[^\s'",;]{8,}['"]?`),
	},
	{
		name:     "CONNECTION_STRING",
		category: CategoryCredentials,
		severity: SeverityHigh,
		pattern:  regexp.MustCompile(`(?i)\b[a-z]+://[^\s:/@]+:[^\s:/@]+@[^\s/]+`),
	},
}

var financialRules = []regexRule{
	{
		name:     "CREDIT_CARD",
		category: CategoryFinancial,
		severity: SeverityHigh,
		pattern:  regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),
		validate: validCardNumber,
	},
	{
		name:     "IBAN",
		category: CategoryFinancial,
		severity: SeverityMedium,
		pattern:  regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
	},
	{
		name:     "US_ROUTING_NUMBER",
		category: CategoryFinancial,
		severity: SeverityMedium,
		pattern:  regexp.MustCompile(`(?i)\brouting\s*(?:number|#)?\s*[=:]?\s*\d{9}\b`),
	},
}

// piiFallbackRules back up the external recognizer when it is degraded.
var piiFallbackRules = []regexRule{
	{
		name:     "EMAIL",
		category: CategoryPII,
		severity: SeverityLow,
		pattern:  regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	},
	{
		name:     "SSN",
		category: CategoryPII,
		severity: SeverityHigh,
		pattern:  regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		name:     "PHONE",
		category: CategoryPII,
		severity: SeverityLow,
		pattern:  regexp.MustCompile(`\b\+?1?[ .-]?\(?\d{3}\)?[ .-]?\d{3}[ .-]?\d{4}\b`),
	},
}

var healthRules = []regexRule{
	{
		name:     "HEALTH_RECORD",
		category: CategoryHealth,
		severity: SeverityMedium,
		pattern:  regexp.MustCompile(`(?i)\b(?:diagnosis|prescription|medical record|patient id|icd-10)\b`),
	},
}

var proprietaryRules = []regexRule{
	{
		name:     "CONFIDENTIAL_MARKER",
		category: CategoryProprietary,
		severity: SeverityMedium,
		pattern:  regexp.MustCompile(`(?i)\b(?:strictly confidential|trade secret|internal use only|do not distribute)\b`),
	},
	{
		name:     "PROPRIETARY_MARKER",
		category: CategoryProprietary,
		severity: SeverityLow,
		pattern:  regexp.MustCompile(`(?i)\bproprietary\b`),
	},
}

func allRegexRules() []regexRule {
	rules := make([]regexRule, 0,
		len(credentialRules)+len(financialRules)+len(healthRules)+len(proprietaryRules))
	rules = append(rules, credentialRules...)
	rules = append(rules, financialRules...)
	rules = append(rules, healthRules...)
	rules = append(rules, proprietaryRules...)
	return rules
}

func runRules(content string, rules []regexRule) []Detection {
	var detections []Detection
	for _, rule := range rules {
		for _, loc := range rule.pattern.FindAllStringIndex(content, -1) {
			match := content[loc[0]:loc[1]]
			if rule.validate != nil && !rule.validate(match) {
				continue
			}
			detections = append(detections, Detection{
				Category:   rule.category,
				Type:       rule.name,
				Severity:   rule.severity,
				Start:      loc[0],
				End:        loc[1],
				Confidence: 1.0,
			})
		}
	}
	return detections
}

// validCardNumber runs the Luhn check and rejects sequential, repeated, and
// well-known test numbers that would otherwise be false positives.
func validCardNumber(match string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)
	if len(digits) < 13 || len(digits) > 16 {
		return false
	}

	if isRepeated(digits) || isSequential(digits) {
		return false
	}
	for _, test := range knownTestNumbers {
		if digits == test {
			return false
		}
	}

	return luhnValid(digits)
}

var knownTestNumbers = []string{
	"4111111111111111",
	"4242424242424242",
	"5555555555554444",
	"378282246310005",
	"6011111111111117",
}

func isRepeated(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

func isSequential(digits string) bool {
	ascending, descending := true, true
	for i := 1; i < len(digits); i++ {
		diff := int(digits[i]) - int(digits[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	return ascending || descending
}

func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
