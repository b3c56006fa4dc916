package backends

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// LocalRules is a self-contained ports.RulesEngine with static policy rules.
type LocalRules struct{}

var _ ports.RulesEngine = (*LocalRules)(nil)

// NewLocalRules constructs the local rules engine.
func NewLocalRules() *LocalRules {
	return &LocalRules{}
}

var bannedPhrases = []string{"lorem ipsum", "fixme before ship", "do not merge"}

// ValidateContent scores free text against the named policy.
func (r *LocalRules) ValidateContent(_ context.Context, text string, policy string) (ports.ContentVerdict, error) {
	verdict := ports.ContentVerdict{Compliant: true, Score: 90}
	lower := strings.ToLower(text)

	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			verdict.Violations = append(verdict.Violations, fmt.Sprintf("placeholder text found: %q", phrase))
			verdict.Score -= 20
		}
	}
	if !utf8.ValidString(text) {
		verdict.Violations = append(verdict.Violations, "content is not valid UTF-8")
		verdict.Score -= 30
	}
	if len(strings.Fields(text)) < 5 {
		verdict.Violations = append(verdict.Violations, "content is too short to evaluate")
		verdict.Score -= 25
	}
	_ = policy

	if verdict.Score < 0 {
		verdict.Score = 0
	}
	verdict.Compliant = len(verdict.Violations) == 0
	return verdict, nil
}

// ValidateArtifact runs structural checks over a deliverable.
func (r *LocalRules) ValidateArtifact(_ context.Context, artifact ports.ArtifactInput) ([]domain.ValidationCheck, error) {
	checks := []domain.ValidationCheck{
		{
			ID:        uuid.NewString(),
			Kind:      domain.CheckTechnical,
			Name:      "non_empty",
			Outcome:   domain.CheckPassed,
			Mandatory: true,
		},
		{
			ID:      uuid.NewString(),
			Kind:    domain.CheckContent,
			Name:    "placeholder_free",
			Outcome: domain.CheckPassed,
		},
	}
	if artifact.Size == 0 {
		checks[0].Outcome = domain.CheckFailed
		checks[0].Evidence = "artifact is empty"
	}
	if artifact.Content != nil {
		lower := strings.ToLower(string(artifact.Content))
		for _, phrase := range bannedPhrases {
			if strings.Contains(lower, phrase) {
				checks[1].Outcome = domain.CheckFailed
				checks[1].Evidence = fmt.Sprintf("placeholder text found: %q", phrase)
				break
			}
		}
	}
	return checks, nil
}
