package quality

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
	"github.com/weny2000/AIAgentSample-sub006/internal/sensitivity"
)

// eicarSignature is the standard antivirus test string. Any payload carrying
// it is treated as infected.
const eicarSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

var textTypes = map[string]bool{
	"text/plain":         true,
	"text/markdown":      true,
	"application/json":   true,
	"text/x-go":          true,
	"text/x-python":      true,
	"application/x-yaml": true,
	"text/csv":           true,
}

func isTextType(fileType string) bool {
	return textTypes[strings.ToLower(fileType)]
}

// quickChecks validate size, type, and extension against the policy. These
// are format checks and all mandatory.
func (m *Machine) quickChecks(d *domain.Deliverable) []domain.ValidationCheck {
	checks := []domain.ValidationCheck{
		{
			ID:        uuid.NewString(),
			Kind:      domain.CheckFormat,
			Name:      "size_limit",
			Outcome:   domain.CheckPassed,
			Mandatory: true,
		},
		{
			ID:        uuid.NewString(),
			Kind:      domain.CheckFormat,
			Name:      "file_type_allowed",
			Outcome:   domain.CheckPassed,
			Mandatory: true,
		},
		{
			ID:        uuid.NewString(),
			Kind:      domain.CheckFormat,
			Name:      "extension_allowed",
			Outcome:   domain.CheckPassed,
			Mandatory: true,
		},
	}
	if d.Size > m.policy.MaxSizeBytes {
		checks[0].Outcome = domain.CheckFailed
		checks[0].Evidence = fmt.Sprintf("size %d exceeds limit %d", d.Size, m.policy.MaxSizeBytes)
	}
	if !m.policy.AllowsType(d.FileType) {
		checks[1].Outcome = domain.CheckFailed
		checks[1].Evidence = fmt.Sprintf("type %s not in the allowed list", d.FileType)
	}
	if m.policy.BlocksExtension(d.FileName) {
		checks[2].Outcome = domain.CheckFailed
		checks[2].Evidence = fmt.Sprintf("file name %s carries a blocked extension", d.FileName)
	}
	return checks
}

// securityChecks scan the payload: virus signature first, then a sensitivity
// scan for text payloads. A critical category is a mandatory failure.
func (m *Machine) securityChecks(ctx context.Context, d *domain.Deliverable, content []byte) ([]domain.ValidationCheck, bool, string) {
	virus := domain.ValidationCheck{
		ID:        uuid.NewString(),
		Kind:      domain.CheckSecurity,
		Name:      "virus_scan",
		Outcome:   domain.CheckPassed,
		Mandatory: true,
	}
	if strings.Contains(string(content), eicarSignature) {
		virus.Outcome = domain.CheckFailed
		virus.Evidence = "virus signature detected"
		return []domain.ValidationCheck{virus}, true, "payload matched a known virus signature"
	}
	checks := []domain.ValidationCheck{virus}

	if m.gate != nil && isTextType(d.FileType) {
		sensitivityCheck := domain.ValidationCheck{
			ID:        uuid.NewString(),
			Kind:      domain.CheckSecurity,
			Name:      "sensitivity_scan",
			Outcome:   domain.CheckPassed,
			Mandatory: true,
		}
		scan, err := m.gate.Scan(ctx, string(content), &sensitivity.DataProtectionPolicy{AutoMask: false})
		switch {
		case err != nil:
			sensitivityCheck.Outcome = domain.CheckWarning
			sensitivityCheck.Mandatory = false
			sensitivityCheck.Evidence = "sensitivity scan unavailable"
		case hasCritical(scan):
			sensitivityCheck.Outcome = domain.CheckFailed
			sensitivityCheck.Evidence = fmt.Sprintf("critical sensitive material detected (score %d)", scan.Score)
			checks = append(checks, sensitivityCheck)
			return checks, true, "deliverable contains critical sensitive material"
		case scan.Score > 0:
			sensitivityCheck.Outcome = domain.CheckWarning
			sensitivityCheck.Mandatory = false
			sensitivityCheck.Evidence = fmt.Sprintf("sensitivity score %d", scan.Score)
		}
		checks = append(checks, sensitivityCheck)
	}
	return checks, false, ""
}

func hasCritical(scan *sensitivity.ScanResult) bool {
	for _, severity := range scan.Categories {
		if severity == sensitivity.SeverityCritical {
			return true
		}
	}
	return false
}

// ruleChecks delegate to the pluggable rules engine. Engine unavailability is
// a warning, not a verdict.
func (m *Machine) ruleChecks(ctx context.Context, d *domain.Deliverable, content []byte) []domain.ValidationCheck {
	if m.rules == nil {
		return nil
	}
	artifact := ports.ArtifactInput{
		FileName: d.FileName,
		FileType: d.FileType,
		Size:     d.Size,
	}
	if isTextType(d.FileType) {
		artifact.Content = content
	}
	checks, err := m.rules.ValidateArtifact(ctx, artifact)
	if err != nil {
		m.logger.Warn("rules engine unavailable for deliverable %s: %v", d.ID, err)
		return []domain.ValidationCheck{{
			ID:       uuid.NewString(),
			Kind:     domain.CheckCompliance,
			Name:     "rules_engine",
			Outcome:  domain.CheckWarning,
			Evidence: "rules engine unavailable",
		}}
	}
	return checks
}

type dimensionSpec struct {
	name   string
	weight float64
}

// Quality axes and weights; the weights sum to 1.
var dimensionSpecs = []dimensionSpec{
	{"completeness", 0.25},
	{"accuracy", 0.25},
	{"consistency", 0.15},
	{"usability", 0.15},
	{"maintainability", 0.10},
	{"performance", 0.10},
}

// assessQuality scores the weighted dimensions. The rules engine's content
// score anchors accuracy; the rest are content heuristics. Deterministic
// for a fixed payload.
func (m *Machine) assessQuality(ctx context.Context, d *domain.Deliverable, content []byte, checks []domain.ValidationCheck) *domain.QualityAssessment {
	text := ""
	if isTextType(d.FileType) {
		text = string(content)
	}

	base := map[string]float64{
		"completeness":    completenessScore(text, d),
		"accuracy":        m.accuracyScore(ctx, text, checks),
		"consistency":     consistencyScore(checks),
		"usability":       usabilityScore(text),
		"maintainability": maintainabilityScore(text),
		"performance":     performanceScore(d, m.policy, checks),
	}

	assessment := &domain.QualityAssessment{AssessedAt: m.clock.Now()}
	overall := 0.0
	for _, spec := range dimensionSpecs {
		score := base[spec.name]
		assessment.Dimensions = append(assessment.Dimensions, domain.QualityDimension{
			Name:   spec.name,
			Score:  score,
			Weight: spec.weight,
		})
		overall += score * spec.weight
		if score < m.policy.threshold() {
			assessment.Suggestions = append(assessment.Suggestions,
				fmt.Sprintf("improve %s (scored %.0f)", spec.name, score))
		}
	}
	assessment.Overall = overall
	assessment.GatesPassed = mandatoryPassed(checks)
	return assessment
}

func completenessScore(text string, d *domain.Deliverable) float64 {
	if text == "" {
		if d.Size > 0 {
			return 75 // binary payload present, nothing more to judge
		}
		return 0
	}
	words := len(strings.Fields(text))
	switch {
	case words >= 200:
		return 95
	case words >= 50:
		return 80
	case words >= 10:
		return 60
	default:
		return 40
	}
}

func (m *Machine) accuracyScore(ctx context.Context, text string, checks []domain.ValidationCheck) float64 {
	if m.rules != nil && text != "" {
		verdict, err := m.rules.ValidateContent(ctx, text, "deliverable")
		if err == nil {
			return verdict.Score
		}
		m.logger.Warn("content validation unavailable: %v", err)
	}
	if mandatoryPassed(checks) {
		return 75
	}
	return 40
}

// usabilityScore judges readability: short sentences read well.
func usabilityScore(text string) float64 {
	if text == "" {
		return 70
	}
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	if len(sentences) == 0 {
		return 50
	}
	words := len(strings.Fields(text))
	average := float64(words) / float64(len(sentences))
	switch {
	case average <= 25:
		return 90
	case average <= 40:
		return 70
	default:
		return 50
	}
}

func consistencyScore(checks []domain.ValidationCheck) float64 {
	warnings := 0
	for _, c := range checks {
		if c.Outcome == domain.CheckWarning {
			warnings++
		}
	}
	score := 90 - float64(warnings)*10
	if score < 40 {
		return 40
	}
	return score
}

// performanceScore penalizes format violations and payloads pressing the
// size limit; light, well-formed deliverables process fast downstream.
func performanceScore(d *domain.Deliverable, policy *Policy, checks []domain.ValidationCheck) float64 {
	for _, c := range checks {
		if c.Kind == domain.CheckFormat && c.Outcome == domain.CheckFailed {
			return 20
		}
	}
	if limit := policy.MaxSizeBytes; limit > 0 && d.Size > limit/2 {
		return 70
	}
	return 90
}

// maintainabilityScore rewards structure markers that keep a document
// serviceable over time.
func maintainabilityScore(text string) float64 {
	if text == "" {
		return 60
	}
	lower := strings.ToLower(text)
	score := 55.0
	for _, marker := range []string{"## ", "# ", "overview", "usage", "example", "summary"} {
		if strings.Contains(lower, marker) {
			score += 8
		}
	}
	if score > 95 {
		score = 95
	}
	return score
}

func mandatoryPassed(checks []domain.ValidationCheck) bool {
	for _, c := range checks {
		if c.Mandatory && c.Outcome == domain.CheckFailed {
			return false
		}
	}
	return true
}
