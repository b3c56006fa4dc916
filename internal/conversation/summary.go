package conversation

import (
	"context"
	"sort"
	"strings"

	"github.com/segmentio/ksuid"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
)

// GenerateSummary digests the session's main timeline. The NLP backend is
// preferred; the extractive fallback keeps the operation available. The
// summary is persisted and announced.
func (o *Orchestrator) GenerateSummary(ctx context.Context, sessionID string, kind domain.SummaryKind, timeRange *domain.TimeRange) (*domain.Summary, error) {
	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	messages, err := o.store.RangeMessages(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}
	if timeRange != nil {
		var windowed []domain.Message
		for _, msg := range messages {
			if timeRange.Contains(msg.Timestamp) {
				windowed = append(windowed, msg)
			}
		}
		messages = windowed
	}
	if len(messages) == 0 {
		return nil, apperrors.InvalidState("no_messages", "session %s has no messages to summarize", sessionID)
	}

	text := o.summaryText(ctx, messages)
	summary := &domain.Summary{
		ID:          ksuid.New().String(),
		SessionID:   sessionID,
		Kind:        kind,
		Text:        text,
		KeyTopics:   keyTopics(messages),
		ActionItems: actionItems(messages),
		Range:       timeRange,
		CreatedAt:   o.clock.Now(),
	}
	if err := o.store.PutSummary(ctx, summary); err != nil {
		return nil, err
	}

	if o.bus != nil {
		o.bus.Publish(domain.Event{
			Kind:    domain.EventSessionSummary,
			At:      summary.CreatedAt,
			Summary: summary,
		})
	}
	return summary, nil
}

func (o *Orchestrator) summaryText(ctx context.Context, messages []domain.Message) string {
	if o.nlp != nil {
		text, err := apperrors.ExecuteFunc(o.nlpBreaker, ctx, func(ctx context.Context) (string, error) {
			return o.nlp.Summarize(ctx, messages)
		})
		if err == nil && text != "" {
			return text
		}
		if err != nil {
			o.logger.Warn("summarizer degraded, using extractive fallback: %v", err)
		}
	}
	return extractiveSummary(messages)
}

// extractiveSummary stitches the highest-signal user and agent lines, capped
// to a short digest.
func extractiveSummary(messages []domain.Message) string {
	const maxLines = 5
	var lines []string
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if len(content) < 20 {
			continue
		}
		if len(content) > 140 {
			content = content[:140] + "..."
		}
		lines = append(lines, string(msg.Role)+": "+content)
	}
	if len(lines) > maxLines {
		head := lines[:2]
		tail := lines[len(lines)-(maxLines-2):]
		lines = append(append([]string{}, head...), tail...)
	}
	return strings.Join(lines, "\n")
}

// keyTopics ranks recurring terms across the conversation.
func keyTopics(messages []domain.Message) []string {
	frequency := make(map[string]int)
	for _, msg := range messages {
		for _, term := range strings.FieldsFunc(strings.ToLower(msg.Content), func(r rune) bool {
			return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
		}) {
			if len(term) >= 4 && !stopWords[term] {
				frequency[term]++
			}
		}
	}

	type ranked struct {
		term  string
		count int
	}
	terms := make([]ranked, 0, len(frequency))
	for term, count := range frequency {
		if count >= 2 {
			terms = append(terms, ranked{term, count})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].count != terms[j].count {
			return terms[i].count > terms[j].count
		}
		return terms[i].term < terms[j].term
	})
	if len(terms) > 5 {
		terms = terms[:5]
	}

	topics := make([]string, 0, len(terms))
	for _, t := range terms {
		topics = append(topics, t.term)
	}
	return topics
}

// actionItems pulls lines that read like commitments or follow-ups.
func actionItems(messages []domain.Message) []string {
	var items []string
	for _, msg := range messages {
		for _, line := range strings.Split(msg.Content, "\n") {
			lower := strings.ToLower(line)
			for _, marker := range []string{"todo:", "action:", "will ", "follow up", "next step"} {
				if strings.Contains(lower, marker) {
					items = append(items, strings.TrimSpace(line))
					break
				}
			}
		}
	}
	if len(items) > 10 {
		items = items[:10]
	}
	return items
}

var stopWords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"will": true, "would": true, "should": true, "could": true, "about": true,
	"there": true, "their": true, "what": true, "when": true, "then": true,
	"they": true, "them": true, "your": true, "just": true, "like": true,
	"been": true, "were": true, "does": true, "need": true, "also": true,
}

// maybePeriodicSummary fires a periodic summary when enough messages landed
// since the last one. Failures are logged, never surfaced to the append path.
func (o *Orchestrator) maybePeriodicSummary(ctx context.Context, session *domain.Session, branchID string) {
	if branchID != "" {
		return // periodic summaries follow the main timeline only
	}
	messages, err := o.store.RangeMessages(ctx, session.ID, "")
	if err != nil {
		return
	}

	since := 0
	last, err := o.store.LatestSummary(ctx, session.ID, domain.SummaryPeriodic)
	if err != nil {
		return
	}
	for _, msg := range messages {
		if last == nil || msg.Timestamp.After(last.CreatedAt) {
			since++
		}
	}
	if since < periodicSummaryEvery {
		return
	}
	if _, err := o.GenerateSummary(ctx, session.ID, domain.SummaryPeriodic, nil); err != nil {
		o.logger.Warn("periodic summary for session %s failed: %v", session.ID, err)
	}
}
