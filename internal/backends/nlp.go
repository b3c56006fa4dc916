// Package backends provides local, dependency-free implementations of the
// external capability ports: a rule-based NLP backend, a policy rules engine,
// a logging notification transport, and an AES-GCM KMS. They keep the service
// fully functional without cloud credentials.
package backends

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// LocalNLP is a deterministic, rule-based ports.NLPBackend.
type LocalNLP struct{}

var _ ports.NLPBackend = (*LocalNLP)(nil)

// NewLocalNLP constructs the local NLP backend.
func NewLocalNLP() *LocalNLP {
	return &LocalNLP{}
}

var actionVerbs = []string{
	"implement", "build", "design", "create", "migrate", "integrate", "fix",
	"test", "review", "deploy", "investigate", "document", "configure",
}

// ExtractKeyPoints ranks sentences by action verbs and length.
func (n *LocalNLP) ExtractKeyPoints(_ context.Context, text string) ([]domain.KeyPoint, error) {
	type candidate struct {
		text  string
		score float64
		index int
	}
	var candidates []candidate
	for i, sentence := range sentences(text) {
		lower := strings.ToLower(sentence)
		score := 0.5
		for _, verb := range actionVerbs {
			if strings.Contains(lower, verb) {
				score += 0.2
			}
		}
		if len(sentence) > 60 {
			score += 0.1
		}
		candidates = append(candidates, candidate{text: sentence, score: score, index: i})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > 8 {
		candidates = candidates[:8]
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].index < candidates[j].index })

	points := make([]domain.KeyPoint, 0, len(candidates))
	for _, c := range candidates {
		importance := c.score
		if importance > 1 {
			importance = 1
		}
		points = append(points, domain.KeyPoint{Text: c.text, Importance: importance})
	}
	return points, nil
}

var piiPatterns = []struct {
	piiType string
	pattern *regexp.Regexp
}{
	{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"PHONE", regexp.MustCompile(`\b\+?1?[ .-]?\(?\d{3}\)?[ .-]?\d{3}[ .-]?\d{4}\b`)},
}

// DetectPII finds well-formed PII spans with pattern confidence.
func (n *LocalNLP) DetectPII(_ context.Context, text string) ([]ports.PIIDetection, error) {
	var detections []ports.PIIDetection
	for _, p := range piiPatterns {
		for _, loc := range p.pattern.FindAllStringIndex(text, -1) {
			detections = append(detections, ports.PIIDetection{
				Type:       p.piiType,
				Start:      loc[0],
				End:        loc[1],
				Confidence: 0.9,
			})
		}
	}
	return detections, nil
}

// Summarize produces a short extractive digest of the conversation.
func (n *LocalNLP) Summarize(_ context.Context, messages []domain.Message) (string, error) {
	var lines []string
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if len(content) < 15 {
			continue
		}
		if len(content) > 120 {
			content = content[:120] + "..."
		}
		lines = append(lines, string(msg.Role)+": "+content)
	}
	if len(lines) > 6 {
		lines = append(lines[:3], lines[len(lines)-3:]...)
	}
	return strings.Join(lines, "\n"), nil
}

func sentences(text string) []string {
	var out []string
	for _, raw := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	}) {
		s := strings.TrimSpace(raw)
		if len(s) >= 12 {
			out = append(out, s)
		}
	}
	return out
}
