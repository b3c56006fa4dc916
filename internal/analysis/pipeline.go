// Package analysis runs the staged task analysis pipeline: sensitivity
// gating, key point extraction, knowledge and workgroup resolution, todo
// generation, and risk assessment. Results are versioned and immutable;
// re-analysis appends a new version.
package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/knowledge"
	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
	"github.com/weny2000/AIAgentSample-sub006/internal/sensitivity"
)

// DefaultRunTimeout bounds one end-to-end analysis run.
const DefaultRunTimeout = 180 * time.Second

// conflictRetries is how many times a conditional task write is retried
// before the conflict surfaces to the caller.
const conflictRetries = 3

// Pipeline orchestrates the analysis stages. Safe for concurrent use;
// concurrent runs for the same task serialize on the store's version checks.
type Pipeline struct {
	store      ports.TaskStore
	gate       *sensitivity.Gate
	resolver   *knowledge.Resolver
	nlp        ports.NLPBackend
	nlpBreaker *apperrors.CircuitBreaker
	policy     *sensitivity.DataProtectionPolicy
	bus        eventPublisher
	clock      ports.Clock
	logger     logging.Logger
	metrics    *Metrics
	timeout    time.Duration

	// Checkpoints keep completed stage outputs per (task, version) so a
	// failed run resumes where it stopped instead of repeating work. Each
	// run works on its own copy; completed stages are merged back under
	// the mutex.
	mu          sync.Mutex
	checkpoints map[checkpointKey]*checkpoint
}

type checkpointKey struct {
	taskID  string
	version int
}

type checkpoint struct {
	scan              *sensitivity.ScanResult
	keyPoints         []domain.KeyPoint
	keyPointsDone     bool
	keyPointsDegraded bool
	resolution        *knowledge.Resolution
}

// Options tunes optional pipeline collaborators.
type Options struct {
	Policy  *sensitivity.DataProtectionPolicy
	Clock   ports.Clock
	Metrics *Metrics
	Timeout time.Duration
	// Bus receives needs_approval events when a run parks a task.
	Bus eventPublisher
}

// eventPublisher is the fan-out seam; the graph engine's bus satisfies it.
type eventPublisher interface {
	Publish(event domain.Event)
}

// NewPipeline wires the pipeline. The NLP breaker guards key point
// extraction; the gate and resolver carry their own breakers.
func NewPipeline(store ports.TaskStore, gate *sensitivity.Gate, resolver *knowledge.Resolver, nlp ports.NLPBackend, nlpBreaker *apperrors.CircuitBreaker, opts Options) *Pipeline {
	clock := opts.Clock
	if clock == nil {
		clock = ports.SystemClock()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	policy := opts.Policy
	if policy == nil {
		policy = &sensitivity.DataProtectionPolicy{AutoMask: true}
	}
	return &Pipeline{
		store:       store,
		gate:        gate,
		resolver:    resolver,
		nlp:         nlp,
		nlpBreaker:  nlpBreaker,
		policy:      policy,
		bus:         opts.Bus,
		clock:       clock,
		logger:      logging.NewComponentLogger("analysis-pipeline"),
		metrics:     opts.Metrics,
		timeout:     timeout,
		checkpoints: make(map[checkpointKey]*checkpoint),
	}
}

// Analyze runs the pipeline for the task and returns the new analysis
// version. A run interrupted after persisting the result but before updating
// the task is finished idempotently on the next call.
func (p *Pipeline) Analyze(ctx context.Context, taskID string) (*domain.TaskAnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	started := p.clock.Now()

	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, apperrors.InvalidState("task_"+string(task.Status),
			"task %s is %s and cannot be analyzed", taskID, task.Status)
	}
	if task.ApprovalPending {
		return nil, apperrors.InvalidState("approval_pending",
			"task %s is awaiting sensitivity approval", taskID)
	}

	version := task.AnalysisVersion + 1

	// A previous run may have persisted this version already and crashed
	// before the final task update.
	if existing, err := p.store.GetAnalysis(ctx, taskID, version); err == nil && existing != nil {
		if err := p.finishTask(ctx, taskID, existing); err != nil {
			return nil, err
		}
		p.clearCheckpoint(taskID, version)
		return existing, nil
	}

	if err := p.updateTask(ctx, taskID, func(t *domain.WorkTask) {
		t.Status = domain.TaskAnalyzing
	}); err != nil {
		return nil, err
	}

	result, err := p.run(ctx, task, version)
	p.observeRun(started, err, result)
	if err != nil {
		return nil, err
	}
	p.clearCheckpoint(taskID, version)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, task *domain.WorkTask, version int) (*domain.TaskAnalysisResult, error) {
	cp := p.checkpoint(task.ID, version)

	// Stage 1: sensitivity gate. A scan failure or an approval-worthy score
	// parks the task; nothing downstream runs on unvetted content.
	if cp.scan == nil {
		scan, err := p.gate.Scan(ctx, task.Content, p.policy)
		if err != nil {
			p.stageFailed("gate")
			if holdErr := p.holdForApproval(ctx, task.ID, nil); holdErr != nil {
				p.logger.Error("failed to hold task %s after scan failure: %v", task.ID, holdErr)
			}
			return nil, err
		}
		cp.scan = scan
		p.saveCheckpoint(task.ID, version, cp)
	}
	if sensitivity.RequiresApproval(cp.scan, p.policy) && !task.ApprovalGranted {
		if err := p.holdForApproval(ctx, task.ID, cp.scan); err != nil {
			return nil, err
		}
		return nil, apperrors.InvalidState("approval_required",
			"task %s requires approval (sensitivity score %d)", task.ID, cp.scan.Score)
	}

	analysisText := cp.scan.MaskedContent
	degraded := cp.scan.Degraded

	// Stage 2: key points. Degrades to the extractive fallback.
	if !cp.keyPointsDone {
		cp.keyPoints, cp.keyPointsDegraded = p.extractKeyPoints(ctx, analysisText)
		cp.keyPointsDone = true
		p.saveCheckpoint(task.ID, version, cp)
	}
	degraded = degraded || cp.keyPointsDegraded

	// Stage 3: knowledge and workgroup resolution. Degrades to empty refs.
	if cp.resolution == nil {
		resolution, err := p.resolver.Resolve(ctx, analysisText, cp.keyPoints)
		if err != nil {
			p.stageFailed("resolve")
			return nil, err
		}
		cp.resolution = resolution
		p.saveCheckpoint(task.ID, version, cp)
	}
	degraded = degraded || cp.resolution.Degraded

	// Stage 4: todo generation and persistence. Failure here leaves the task
	// analyzing with the error recorded; no partial graph survives.
	now := p.clock.Now()
	todos := generateTodos(task, analysisText, cp.resolution.Workgroups, now)
	todoIDs, err := p.replaceTodos(ctx, task.ID, todos)
	if err != nil {
		p.stageFailed("todos")
		if recordErr := p.updateTask(ctx, task.ID, func(t *domain.WorkTask) {
			t.AnalysisError = err.Error()
		}); recordErr != nil {
			p.logger.Error("failed to record analysis error for task %s: %v", task.ID, recordErr)
		}
		return nil, err
	}

	// Stage 5: risk assessment, then the immutable result.
	result := &domain.TaskAnalysisResult{
		TaskID:          task.ID,
		AnalysisVersion: version,
		KeyPoints:       cp.keyPoints,
		Workgroups:      cp.resolution.Workgroups,
		TodoIDs:         todoIDs,
		KnowledgeRefs:   cp.resolution.KnowledgeRefs,
		Risk:            assessRisk(task, todos, cp.resolution.Workgroups, cp.scan.Score),
		EffortHours:     totalEffort(todos),
		Degraded:        degraded,
		GeneratedAt:     now,
	}
	if err := p.store.PutAnalysis(ctx, result); err != nil {
		p.stageFailed("persist")
		return nil, err
	}
	if err := p.finishTask(ctx, task.ID, result); err != nil {
		return nil, err
	}

	p.logger.Info("task %s analyzed: version=%d todos=%d degraded=%t",
		task.ID, version, len(todoIDs), degraded)
	return result, nil
}

// replaceTodos deletes the prior pending todos and persists the new graph.
// In-progress and completed todos survive re-analysis; new todos that cover
// the same ground are linked to them as refinements.
func (p *Pipeline) replaceTodos(ctx context.Context, taskID string, todos []*domain.TodoItem) ([]string, error) {
	existing, err := p.store.ListTodos(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var kept []*domain.TodoItem
	for _, t := range existing {
		if t.Status == domain.TodoPending {
			if err := p.store.DeleteTodo(ctx, t.ID); err != nil {
				return nil, err
			}
			continue
		}
		kept = append(kept, t)
	}

	ids := make([]string, 0, len(todos))
	for _, todo := range todos {
		if parent := refinementParent(todo, kept); parent != "" {
			todo.ParentTodoID = parent
		}
		if err := p.store.PutTodo(ctx, todo); err != nil {
			return nil, err
		}
		ids = append(ids, todo.ID)
	}
	return ids, nil
}

// holdForApproval parks the task for human review and announces the hold.
// scan may be nil when the scan itself failed; the hold still applies (fail
// closed).
func (p *Pipeline) holdForApproval(ctx context.Context, taskID string, scan *sensitivity.ScanResult) error {
	if err := p.updateTask(ctx, taskID, func(t *domain.WorkTask) {
		t.Status = domain.TaskSubmitted
		t.ApprovalPending = true
		if scan != nil {
			t.SensitivityScore = scan.Score
			t.MaskedContent = scan.MaskedContent
		}
	}); err != nil {
		return err
	}
	if p.bus != nil {
		p.bus.Publish(domain.Event{
			Kind:   domain.EventNeedsApproval,
			TaskID: taskID,
			At:     p.clock.Now(),
		})
	}
	return nil
}

func (p *Pipeline) finishTask(ctx context.Context, taskID string, result *domain.TaskAnalysisResult) error {
	cp := p.checkpoint(taskID, result.AnalysisVersion)
	return p.updateTask(ctx, taskID, func(t *domain.WorkTask) {
		t.Status = domain.TaskAnalyzed
		t.AnalysisVersion = result.AnalysisVersion
		t.AnalysisError = ""
		if cp.scan != nil {
			t.SensitivityScore = cp.scan.Score
			t.MaskedContent = cp.scan.MaskedContent
		}
	})
}

// updateTask applies mutate under the store's version check, re-reading and
// retrying on conflict.
func (p *Pipeline) updateTask(ctx context.Context, taskID string, mutate func(*domain.WorkTask)) error {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		task, err := p.store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		mutate(task)
		task.UpdatedAt = p.clock.Now()
		if err := p.store.UpdateTask(ctx, task); err != nil {
			if apperrors.IsConflict(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

// checkpoint returns a private copy of the stage record; callers mutate it
// freely and merge completed stages back with saveCheckpoint.
func (p *Pipeline) checkpoint(taskID string, version int) *checkpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cp, ok := p.checkpoints[checkpointKey{taskID: taskID, version: version}]; ok {
		c := *cp
		return &c
	}
	return &checkpoint{}
}

func (p *Pipeline) saveCheckpoint(taskID string, version int, cp *checkpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := *cp
	p.checkpoints[checkpointKey{taskID: taskID, version: version}] = &c
}

func (p *Pipeline) clearCheckpoint(taskID string, version int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.checkpoints, checkpointKey{taskID: taskID, version: version})
}

func (p *Pipeline) stageFailed(stage string) {
	if p.metrics != nil {
		p.metrics.StageFailures.WithLabelValues(stage).Inc()
	}
}

func (p *Pipeline) observeRun(started time.Time, err error, result *domain.TaskAnalysisResult) {
	if p.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.RunDuration.WithLabelValues(outcome).Observe(p.clock.Now().Sub(started).Seconds())
	if result != nil {
		p.metrics.TodosGenerated.Observe(float64(len(result.TodoIDs)))
		if result.Degraded {
			p.metrics.DegradedRuns.Inc()
		}
	}
}
