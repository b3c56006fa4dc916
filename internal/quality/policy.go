// Package quality runs deliverables through the validation state machine:
// submitted, validating, then approved, rejected, or needs_revision. Verdicts
// are recorded on the deliverable; todo state is never mutated here.
package quality

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
)

// Policy is the file acceptance and quality gating configuration, loaded
// from YAML per team or tenant.
type Policy struct {
	MaxSizeBytes      int64    `yaml:"max_size_bytes"`
	AllowedTypes      []string `yaml:"allowed_types"`
	BlockedExtensions []string `yaml:"blocked_extensions"`
	QualityThreshold  float64  `yaml:"quality_threshold"`
}

// DefaultPolicy mirrors the shipped policy file.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxSizeBytes: 50 * 1024 * 1024,
		AllowedTypes: []string{
			"text/plain", "text/markdown", "application/json", "application/pdf",
			"text/x-go", "text/x-python", "application/x-yaml", "text/csv",
			"application/zip",
		},
		BlockedExtensions: []string{".exe", ".dll", ".bat", ".cmd", ".scr", ".com", ".msi"},
		QualityThreshold:  70,
	}
}

// LoadPolicy reads a policy YAML file, filling blanks from the defaults.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Validation("policy_unreadable", "cannot read policy file %s: %v", path, err)
	}
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(raw, policy); err != nil {
		return nil, apperrors.Validation("policy_invalid", "cannot parse policy file %s: %v", path, err)
	}
	return policy, nil
}

// AllowsType reports whether the MIME type is acceptable.
func (p *Policy) AllowsType(fileType string) bool {
	for _, allowed := range p.AllowedTypes {
		if strings.EqualFold(allowed, fileType) {
			return true
		}
	}
	return false
}

// BlocksExtension reports whether the file name carries a blocked extension.
func (p *Policy) BlocksExtension(fileName string) bool {
	lower := strings.ToLower(fileName)
	for _, ext := range p.BlockedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (p *Policy) threshold() float64 {
	if p.QualityThreshold <= 0 {
		return 70
	}
	return p.QualityThreshold
}
