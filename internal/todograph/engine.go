package todograph

import (
	"context"
	"fmt"
	"strings"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// conflictRetries bounds the internal re-read loop on version conflicts.
const conflictRetries = 3

// legalTransitions is the todo status state machine. Completed is absent as a
// source: a completed todo is immutable and corrections need a successor.
// Completion is only reachable through in_progress.
var legalTransitions = map[domain.TodoStatus][]domain.TodoStatus{
	domain.TodoPending:    {domain.TodoInProgress, domain.TodoBlocked},
	domain.TodoInProgress: {domain.TodoCompleted, domain.TodoBlocked, domain.TodoPending},
	domain.TodoBlocked:    {domain.TodoPending, domain.TodoInProgress},
}

// StatusUpdate is one requested transition.
type StatusUpdate struct {
	TodoID    string
	To        domain.TodoStatus
	ChangedBy string
	Reason    string
	// Force lets an operator bypass dependency and criteria gates. The
	// override is recorded in the status history. It never unlocks a
	// completed todo.
	Force    bool
	Metadata map[string]any
}

// StatusChangeImpact describes what a transition touches downstream.
type StatusChangeImpact struct {
	OnCriticalPath     bool             `json:"on_critical_path"`
	DependentTodoIDs   []string         `json:"dependent_todo_ids,omitempty"`
	UnblockedTodoIDs   []string         `json:"unblocked_todo_ids,omitempty"`
	RiskLevel          domain.RiskLevel `json:"risk_level"`
	RecommendedActions []string         `json:"recommended_actions,omitempty"`
}

// Engine applies status transitions over the todo DAG and maintains blockers
// and progress. All writes go through the store's version checks.
type Engine struct {
	store    ports.TaskStore
	bus      *Bus
	clock    ports.Clock
	logger   logging.Logger
	metrics  *Metrics
	progress *ProgressTracker
}

// NewEngine wires the graph engine. bus and metrics may be nil.
func NewEngine(store ports.TaskStore, bus *Bus, clock ports.Clock, metrics *Metrics) *Engine {
	if clock == nil {
		clock = ports.SystemClock()
	}
	e := &Engine{
		store:   store,
		bus:     bus,
		clock:   clock,
		logger:  logging.NewComponentLogger("todo-graph"),
		metrics: metrics,
	}
	e.progress = NewProgressTracker(store, clock)
	return e
}

// Progress exposes the engine's progress tracker.
func (e *Engine) Progress() *ProgressTracker {
	return e.progress
}

// UpdateStatus validates and applies one transition, returning the updated
// todo and its downstream impact. Version conflicts are retried internally
// before surfacing.
func (e *Engine) UpdateStatus(ctx context.Context, update StatusUpdate) (*domain.TodoItem, *StatusChangeImpact, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		todo, impact, err := e.tryUpdate(ctx, update)
		if err == nil {
			return todo, impact, nil
		}
		if !apperrors.IsConflict(err) {
			return nil, nil, err
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

func (e *Engine) tryUpdate(ctx context.Context, update StatusUpdate) (*domain.TodoItem, *StatusChangeImpact, error) {
	todo, err := e.store.GetTodo(ctx, update.TodoID)
	if err != nil {
		return nil, nil, err
	}
	from := todo.Status

	if from == update.To {
		g, err := e.taskGraph(ctx, todo.TaskID)
		if err != nil {
			return nil, nil, err
		}
		return todo, e.impact(g, todo, nil), nil // idempotent no-op
	}
	if from.IsTerminal() {
		return nil, nil, apperrors.InvalidState("todo_completed_immutable",
			"todo %s is completed; create a successor instead", todo.ID)
	}

	todos, err := e.store.ListTodos(ctx, todo.TaskID)
	if err != nil {
		return nil, nil, err
	}
	g := buildGraph(todos)

	// The dependency gate is checked before transition legality so an early
	// completion attempt surfaces the open dependencies, not the matrix.
	override := false
	if update.To == domain.TodoCompleted && !g.dependenciesComplete(todo.ID) {
		if !update.Force {
			return nil, nil, apperrors.InvalidState("dependencies_not_satisfied",
				"todo %s has incomplete dependencies", todo.ID).
				WithDetail("incomplete", g.incompleteDependencies(todo.ID))
		}
		override = true
	}
	if !transitionAllowed(from, update.To) {
		return nil, nil, apperrors.InvalidState("invalid_transition",
			"todo %s cannot go from %s to %s", todo.ID, from, update.To)
	}
	if update.To == domain.TodoCompleted && !todo.MandatoryCriteriaMet() {
		if !update.Force {
			return nil, nil, apperrors.InvalidState("completion_criteria_not_met",
				"todo %s has unmet mandatory completion criteria", todo.ID)
		}
		override = true
	}

	now := e.clock.Now()
	todo.Status = update.To
	todo.StatusHistory = append(todo.StatusHistory, domain.StatusHistoryEntry{
		From:      from,
		To:        update.To,
		ChangedBy: update.ChangedBy,
		Reason:    update.Reason,
		Override:  override,
		Metadata:  update.Metadata,
		At:        now,
	})
	todo.UpdatedAt = now

	if err := e.store.UpdateTodo(ctx, todo); err != nil {
		return nil, nil, err
	}
	if e.metrics != nil {
		e.metrics.Transitions.WithLabelValues(string(from), string(update.To)).Inc()
	}
	e.progress.Invalidate(todo.TaskID)

	// Rebuild with the applied transition so impact and cascade see it.
	g.nodes[todo.ID] = todo

	// Blocker lifecycle rides the transition: entering blocked opens a
	// record, leaving blocked resolves it.
	if update.To == domain.TodoBlocked {
		if err := e.openTransitionBlocker(ctx, g, todo, update.Reason); err != nil {
			e.logger.Warn("failed to open blocker for todo %s: %v", todo.ID, err)
		}
	}
	if from == domain.TodoBlocked {
		if err := e.resolveTodoBlockers(ctx, todo); err != nil {
			e.logger.Warn("failed to resolve blockers for todo %s: %v", todo.ID, err)
		}
	}

	var unblocked []string
	if update.To == domain.TodoCompleted {
		unblocked = e.cascadeCompletion(ctx, g, todo)
	}

	e.publish(domain.Event{
		Kind:   domain.EventStatusChanged,
		TaskID: todo.TaskID,
		TodoID: todo.ID,
		At:     now,
		StatusChange: &domain.StatusChangePayload{
			From:      from,
			To:        update.To,
			ChangedBy: update.ChangedBy,
			Override:  override,
		},
	})

	e.logger.Info("todo %s: %s -> %s (by=%s override=%t)", todo.ID, from, update.To, update.ChangedBy, override)
	return todo, e.impact(g, todo, unblocked), nil
}

// cascadeCompletion resolves dependency blockers for todos that became
// eligible and announces their eligibility. Returns the newly eligible ids.
func (e *Engine) cascadeCompletion(ctx context.Context, g *graph, completed *domain.TodoItem) []string {
	var unblocked []string
	now := e.clock.Now()

	for _, depID := range g.dependents[completed.ID] {
		dependent, ok := g.nodes[depID]
		if !ok || dependent.Status != domain.TodoPending {
			continue
		}
		if !g.dependenciesComplete(depID) {
			continue
		}
		unblocked = append(unblocked, depID)
		e.publish(domain.Event{
			Kind:   domain.EventEligibleToStart,
			TaskID: dependent.TaskID,
			TodoID: depID,
			At:     now,
		})
	}

	// Auto-detected dependency blockers on now-eligible todos are resolved.
	if len(unblocked) > 0 {
		if err := e.resolveDependencyBlockers(ctx, completed.TaskID, unblocked); err != nil {
			e.logger.Warn("failed to resolve dependency blockers for task %s: %v", completed.TaskID, err)
		}
	}
	return unblocked
}

func (e *Engine) resolveDependencyBlockers(ctx context.Context, taskID string, todoIDs []string) error {
	blockers, err := e.store.ListBlockers(ctx, taskID, true)
	if err != nil {
		return err
	}
	eligible := make(map[string]bool, len(todoIDs))
	for _, id := range todoIDs {
		eligible[id] = true
	}
	now := e.clock.Now()
	for _, b := range blockers {
		if b.Kind != domain.BlockerDependency || !b.AutoDetected || !eligible[b.TodoID] {
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

func (e *Engine) impact(g *graph, todo *domain.TodoItem, unblocked []string) *StatusChangeImpact {
	dependents := g.transitiveDependents(todo.ID)
	onPath := g.onCriticalPath(todo.ID)

	risk := domain.RiskLow
	switch {
	case onPath && todo.Status == domain.TodoBlocked:
		risk = domain.RiskCritical
	case todo.Status == domain.TodoBlocked && len(dependents) > 0:
		risk = domain.RiskHigh
	case onPath:
		risk = domain.RiskMedium
	case len(dependents) > 2:
		risk = domain.RiskMedium
	}

	var actions []string
	if todo.Status == domain.TodoBlocked {
		actions = append(actions, fmt.Sprintf("resolve the blocker on %q", todo.Title))
		if onPath {
			actions = append(actions, "escalate: the critical path is stalled")
		}
	}
	for _, id := range unblocked {
		if node, ok := g.nodes[id]; ok {
			actions = append(actions, fmt.Sprintf("start %q, its dependencies are complete", node.Title))
		}
	}

	return &StatusChangeImpact{
		OnCriticalPath:     onPath,
		DependentTodoIDs:   dependents,
		UnblockedTodoIDs:   unblocked,
		RiskLevel:          risk,
		RecommendedActions: actions,
	}
}

// CriticalPath returns the ids on the task's longest estimated path.
func (e *Engine) CriticalPath(ctx context.Context, taskID string) ([]string, error) {
	g, err := e.taskGraph(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return g.criticalPath(), nil
}

// EligibleTodos returns pending todos whose dependency closure is complete.
func (e *Engine) EligibleTodos(ctx context.Context, taskID string) ([]string, error) {
	g, err := e.taskGraph(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return g.eligible(), nil
}

func (e *Engine) taskGraph(ctx context.Context, taskID string) (*graph, error) {
	todos, err := e.store.ListTodos(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return buildGraph(todos), nil
}

func (e *Engine) publish(event domain.Event) {
	if e.bus != nil {
		e.bus.Publish(event)
	}
}

func transitionAllowed(from, to domain.TodoStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// inferBlockerKind classifies a blocker from free-text reasons.
func inferBlockerKind(text string) domain.BlockerKind {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "approv") || strings.Contains(lower, "sign-off") || strings.Contains(lower, "sign off"):
		return domain.BlockerApproval
	case strings.Contains(lower, "resource") || strings.Contains(lower, "capacity") || strings.Contains(lower, "staff"):
		return domain.BlockerResource
	case strings.Contains(lower, "vendor") || strings.Contains(lower, "external") || strings.Contains(lower, "third party") || strings.Contains(lower, "third-party"):
		return domain.BlockerExternal
	case strings.Contains(lower, "deadline") || strings.Contains(lower, "overdue") || strings.Contains(lower, "schedule"):
		return domain.BlockerTimeline
	case strings.Contains(lower, "depend"):
		return domain.BlockerDependency
	case strings.Contains(lower, "quality") || strings.Contains(lower, "reject"):
		return domain.BlockerQuality
	default:
		return domain.BlockerTechnical
	}
}
