package analysis

import (
	"context"
	"sort"
	"strings"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
)

const maxKeyPoints = 8

// extractKeyPoints prefers the NLP backend and degrades to the extractive
// fallback when it errors or the breaker is open.
func (p *Pipeline) extractKeyPoints(ctx context.Context, text string) ([]domain.KeyPoint, bool) {
	if p.nlp != nil {
		points, err := apperrors.ExecuteFunc(p.nlpBreaker, ctx, func(ctx context.Context) ([]domain.KeyPoint, error) {
			return p.nlp.ExtractKeyPoints(ctx, text)
		})
		if err == nil && len(points) > 0 {
			if len(points) > maxKeyPoints {
				points = points[:maxKeyPoints]
			}
			return points, false
		}
		if err != nil {
			p.logger.Warn("key point extraction degraded: %v", err)
		}
	}
	return extractiveKeyPoints(text), true
}

// signalTerms boost sentences that state goals, constraints, or actions.
var signalTerms = []string{
	"must", "should", "require", "need", "implement", "build", "design",
	"integrate", "migrate", "deadline", "security", "compliance", "critical",
	"ensure", "support", "fix",
}

// extractiveKeyPoints ranks sentences by term frequency and signal words.
// Deterministic: identical text yields identical points.
func extractiveKeyPoints(text string) []domain.KeyPoint {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	frequency := make(map[string]int)
	for _, sentence := range sentences {
		for _, term := range terms(sentence) {
			frequency[term]++
		}
	}

	type scored struct {
		index int
		text  string
		score float64
	}
	ranked := make([]scored, 0, len(sentences))
	best := 0.0
	for i, sentence := range sentences {
		sentenceTerms := terms(sentence)
		if len(sentenceTerms) == 0 {
			continue
		}
		score := 0.0
		for _, term := range sentenceTerms {
			score += float64(frequency[term])
		}
		score /= float64(len(sentenceTerms))
		lower := strings.ToLower(sentence)
		for _, signal := range signalTerms {
			if strings.Contains(lower, signal) {
				score += 1.5
			}
		}
		if score > best {
			best = score
		}
		ranked = append(ranked, scored{index: i, text: sentence, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].index < ranked[j].index
	})
	if len(ranked) > maxKeyPoints {
		ranked = ranked[:maxKeyPoints]
	}
	// Restore document order so the points read as a summary.
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].index < ranked[j].index })

	points := make([]domain.KeyPoint, 0, len(ranked))
	for _, s := range ranked {
		importance := 0.5
		if best > 0 {
			importance = s.score / best
		}
		points = append(points, domain.KeyPoint{Text: s.text, Importance: importance})
	}
	return points
}

func splitSentences(text string) []string {
	var sentences []string
	for _, line := range strings.Split(text, "\n") {
		for _, raw := range strings.FieldsFunc(line, func(r rune) bool {
			return r == '.' || r == '!' || r == '?' || r == ';'
		}) {
			sentence := strings.TrimSpace(strings.TrimLeft(raw, "-*0123456789. \t"))
			if len(sentence) >= 12 {
				sentences = append(sentences, sentence)
			}
		}
	}
	return sentences
}

func terms(sentence string) []string {
	fields := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
