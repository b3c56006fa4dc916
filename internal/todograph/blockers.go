package todograph

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
)

// assigneeOverloadLimit is the active-todo count above which an assignee is
// considered a resource bottleneck.
const assigneeOverloadLimit = 5

// IdentifyBlockers scans the task's todo graph and deliverable verdicts for
// blocking conditions, persists newly detected blockers, and returns every
// open blocker sorted by severity. Detection is idempotent: an open blocker
// of the same kind on the same todo is never duplicated.
func (e *Engine) IdentifyBlockers(ctx context.Context, taskID string) ([]*domain.Blocker, error) {
	if _, err := e.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	todos, err := e.store.ListTodos(ctx, taskID)
	if err != nil {
		return nil, err
	}
	g := buildGraph(todos)

	open, err := e.store.ListBlockers(ctx, taskID, true)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(open))
	for _, b := range open {
		existing[string(b.Kind)+"|"+b.TodoID] = true
	}

	detected := e.detect(ctx, g, todos)
	now := e.clock.Now()
	for _, b := range detected {
		if existing[string(b.Kind)+"|"+b.TodoID] {
			continue
		}
		b.ID = uuid.NewString()
		b.TaskID = taskID
		b.DetectedAt = now
		b.AutoDetected = true
		if err := e.store.PutBlocker(ctx, b); err != nil {
			return nil, err
		}
		if e.metrics != nil {
			e.metrics.BlockersDetected.WithLabelValues(string(b.Kind)).Inc()
		}
		e.publish(domain.Event{
			Kind:    domain.EventBlockerOpened,
			TaskID:  taskID,
			TodoID:  b.TodoID,
			At:      now,
			Blocker: b,
		})
		open = append(open, b)
	}

	sort.SliceStable(open, func(i, j int) bool {
		if open[i].Severity.Rank() != open[j].Severity.Rank() {
			return open[i].Severity.Rank() > open[j].Severity.Rank()
		}
		return open[i].TodoID < open[j].TodoID
	})
	return open, nil
}

func (e *Engine) detect(ctx context.Context, g *graph, todos []*domain.TodoItem) []*domain.Blocker {
	var blockers []*domain.Blocker
	now := e.clock.Now()

	activeByAssignee := make(map[string]int)
	for _, t := range todos {
		if t.Assignee != "" && (t.Status == domain.TodoPending || t.Status == domain.TodoInProgress) {
			activeByAssignee[t.Assignee]++
		}
	}

	for _, t := range todos {
		switch {
		case t.Status == domain.TodoBlocked:
			reason := lastReason(t)
			blockers = append(blockers, &domain.Blocker{
				TodoID:      t.ID,
				Kind:        inferBlockerKind(reason),
				Severity:    e.severity(g, t, domain.SeverityMedium),
				Description: fmt.Sprintf("todo %q is blocked: %s", t.Title, reason),
			})

		case t.Status == domain.TodoPending && hasBlockedDependency(g, t):
			blockers = append(blockers, &domain.Blocker{
				TodoID:      t.ID,
				Kind:        domain.BlockerDependency,
				Severity:    e.severity(g, t, domain.SeverityMedium),
				Description: fmt.Sprintf("todo %q waits on a blocked dependency", t.Title),
			})
		}

		if t.DueDate != nil && now.After(*t.DueDate) && t.Status != domain.TodoCompleted {
			blockers = append(blockers, &domain.Blocker{
				TodoID:      t.ID,
				Kind:        domain.BlockerTimeline,
				Severity:    e.severity(g, t, domain.SeverityMedium),
				Description: fmt.Sprintf("todo %q is overdue (due %s)", t.Title, t.DueDate.Format("2006-01-02")),
			})
		}

		if rejected := e.rejectedDeliverables(ctx, t.ID); rejected > 0 && t.Status != domain.TodoCompleted {
			blockers = append(blockers, &domain.Blocker{
				TodoID:      t.ID,
				Kind:        domain.BlockerQuality,
				Severity:    e.severity(g, t, domain.SeverityMedium),
				Description: fmt.Sprintf("todo %q has %d rejected deliverable(s)", t.Title, rejected),
			})
		}

		if t.Assignee != "" && activeByAssignee[t.Assignee] > assigneeOverloadLimit && t.Status != domain.TodoCompleted {
			blockers = append(blockers, &domain.Blocker{
				TodoID:      t.ID,
				Kind:        domain.BlockerResource,
				Severity:    e.severity(g, t, domain.SeverityLow),
				Description: fmt.Sprintf("assignee %s has %d active todos", t.Assignee, activeByAssignee[t.Assignee]),
			})
		}
	}
	return blockers
}

// severityLadder orders severities for elevation.
var severityLadder = []domain.BlockerSeverity{
	domain.SeverityLow,
	domain.SeverityMedium,
	domain.SeverityHigh,
	domain.SeverityCritical,
}

// severity elevates the base severity one rank per aggravating condition:
// the todo sits on the critical path, or the todo's own priority is
// critical. A medium base with both lands at critical.
func (e *Engine) severity(g *graph, t *domain.TodoItem, base domain.BlockerSeverity) domain.BlockerSeverity {
	boost := 0
	if g.onCriticalPath(t.ID) {
		boost++
	}
	if t.Priority == domain.PriorityCritical {
		boost++
	}
	if boost == 0 {
		return base
	}
	rank := 0
	for i, s := range severityLadder {
		if s == base {
			rank = i
			break
		}
	}
	rank += boost
	if rank >= len(severityLadder) {
		rank = len(severityLadder) - 1
	}
	return severityLadder[rank]
}

// openTransitionBlocker records the blocker for a todo that just entered
// blocked. A still-open record of the same kind is reused, not duplicated.
func (e *Engine) openTransitionBlocker(ctx context.Context, g *graph, t *domain.TodoItem, reason string) error {
	kind := inferBlockerKind(reason)
	open, err := e.store.ListBlockers(ctx, t.TaskID, true)
	if err != nil {
		return err
	}
	for _, b := range open {
		if b.TodoID == t.ID && b.Kind == kind {
			return nil
		}
	}
	if reason == "" {
		reason = "no reason recorded"
	}
	b := &domain.Blocker{
		ID:           uuid.NewString(),
		TodoID:       t.ID,
		TaskID:       t.TaskID,
		Kind:         kind,
		Severity:     e.severity(g, t, domain.SeverityMedium),
		Description:  fmt.Sprintf("todo %q is blocked: %s", t.Title, reason),
		DetectedAt:   e.clock.Now(),
		AutoDetected: true,
	}
	if err := e.store.PutBlocker(ctx, b); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.BlockersDetected.WithLabelValues(string(b.Kind)).Inc()
	}
	e.publish(domain.Event{
		Kind:    domain.EventBlockerOpened,
		TaskID:  t.TaskID,
		TodoID:  t.ID,
		At:      b.DetectedAt,
		Blocker: b,
	})
	return nil
}

// resolveTodoBlockers closes the auto-detected blockers of a todo that just
// left blocked.
func (e *Engine) resolveTodoBlockers(ctx context.Context, t *domain.TodoItem) error {
	open, err := e.store.ListBlockers(ctx, t.TaskID, true)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	for _, b := range open {
		if b.TodoID != t.ID || !b.AutoDetected {
			continue
		}
		resolvedAt := now
		b.ResolvedAt = &resolvedAt
		if err := e.store.UpdateBlocker(ctx, b); err != nil {
			return err
		}
		e.publish(domain.Event{
			Kind:    domain.EventBlockerResolved,
			TaskID:  b.TaskID,
			TodoID:  b.TodoID,
			At:      now,
			Blocker: b,
		})
	}
	return nil
}

func (e *Engine) rejectedDeliverables(ctx context.Context, todoID string) int {
	deliverables, err := e.store.ListDeliverables(ctx, todoID)
	if err != nil {
		return 0
	}
	rejected := 0
	for _, d := range deliverables {
		if d.Status == domain.DeliverableRejected {
			rejected++
		}
	}
	return rejected
}

// ReportBlocker records a manually raised blocker and announces it.
func (e *Engine) ReportBlocker(ctx context.Context, todoID string, kind domain.BlockerKind, severity domain.BlockerSeverity, description string) (*domain.Blocker, error) {
	todo, err := e.store.GetTodo(ctx, todoID)
	if err != nil {
		return nil, err
	}
	b := &domain.Blocker{
		ID:          uuid.NewString(),
		TodoID:      todoID,
		TaskID:      todo.TaskID,
		Kind:        kind,
		Severity:    severity,
		Description: description,
		DetectedAt:  e.clock.Now(),
	}
	if err := e.store.PutBlocker(ctx, b); err != nil {
		return nil, err
	}
	e.publish(domain.Event{
		Kind:    domain.EventBlockerOpened,
		TaskID:  b.TaskID,
		TodoID:  todoID,
		At:      b.DetectedAt,
		Blocker: b,
	})
	return b, nil
}

// ResolveBlocker closes a blocker and announces the resolution.
func (e *Engine) ResolveBlocker(ctx context.Context, taskID, blockerID string) error {
	blockers, err := e.store.ListBlockers(ctx, taskID, true)
	if err != nil {
		return err
	}
	for _, b := range blockers {
		if b.ID != blockerID {
			continue
		}
		now := e.clock.Now()
		b.ResolvedAt = &now
		if err := e.store.UpdateBlocker(ctx, b); err != nil {
			return err
		}
		e.publish(domain.Event{
			Kind:    domain.EventBlockerResolved,
			TaskID:  taskID,
			TodoID:  b.TodoID,
			At:      now,
			Blocker: b,
		})
		return nil
	}
	return apperrors.NotFound("blocker", blockerID)
}

func hasBlockedDependency(g *graph, t *domain.TodoItem) bool {
	for _, dep := range t.Dependencies {
		if node, ok := g.nodes[dep]; ok && node.Status == domain.TodoBlocked {
			return true
		}
	}
	return false
}

func lastReason(t *domain.TodoItem) string {
	for i := len(t.StatusHistory) - 1; i >= 0; i-- {
		if t.StatusHistory[i].To == domain.TodoBlocked && t.StatusHistory[i].Reason != "" {
			return t.StatusHistory[i].Reason
		}
	}
	return "no reason recorded"
}
