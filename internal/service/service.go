// Package service is the application facade over the orchestration engines.
// It owns input validation and the submit-time sensitivity gate; domain rules
// live in the engines it delegates to.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/conversation"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
	"github.com/weny2000/AIAgentSample-sub006/internal/notification"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
	"github.com/weny2000/AIAgentSample-sub006/internal/quality"
	"github.com/weny2000/AIAgentSample-sub006/internal/sensitivity"
	"github.com/weny2000/AIAgentSample-sub006/internal/todograph"
)

// analyzer is the pipeline seam.
type analyzer interface {
	Analyze(ctx context.Context, taskID string) (*domain.TaskAnalysisResult, error)
}

// Deps bundles the collaborators the facade needs.
type Deps struct {
	Tasks        ports.TaskStore
	Sessions     ports.SessionStore
	Gate         *sensitivity.Gate
	Policy       *sensitivity.DataProtectionPolicy
	Pipeline     analyzer
	Engine       *todograph.Engine
	Quality      *quality.Machine
	Conversation *conversation.Orchestrator
	Dispatcher   *notification.Dispatcher
	Bus          *todograph.Bus
	Clock        ports.Clock
}

// Service exposes the orchestration API.
type Service struct {
	deps   Deps
	logger logging.Logger
}

// New constructs the facade.
func New(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock()
	}
	if deps.Policy == nil {
		deps.Policy = &sensitivity.DataProtectionPolicy{AutoMask: true}
	}
	return &Service{deps: deps, logger: logging.NewComponentLogger("service")}
}

// TaskSubmission is the SubmitTask input.
type TaskSubmission struct {
	Title       string
	Description string
	Content     string
	Submitter   string
	TeamID      string
	Priority    domain.Priority
	Category    string
	Tags        []string
}

// SubmitTask validates, scans, and stores a new task. Sensitive content is
// masked in place and may park the task pending approval.
func (s *Service) SubmitTask(ctx context.Context, sub TaskSubmission) (*domain.WorkTask, error) {
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	scan, err := s.deps.Gate.Scan(ctx, sub.Content, s.deps.Policy)
	if err != nil {
		return nil, err // scan failure fails closed: nothing is stored
	}

	now := s.deps.Clock.Now()
	task := &domain.WorkTask{
		ID:               uuid.NewString(),
		Title:            sub.Title,
		Description:      sub.Description,
		Content:          sub.Content,
		Submitter:        sub.Submitter,
		TeamID:           sub.TeamID,
		Priority:         defaultPriority(sub.Priority),
		Category:         sub.Category,
		Tags:             sub.Tags,
		Status:           domain.TaskSubmitted,
		SensitivityScore: scan.Score,
		MaskedContent:    scan.MaskedContent,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if sensitivity.RequiresApproval(scan, s.deps.Policy) {
		task.ApprovalPending = true
	}

	if err := s.deps.Tasks.PutTask(ctx, task); err != nil {
		return nil, err
	}
	if task.ApprovalPending && s.deps.Bus != nil {
		s.deps.Bus.Publish(domain.Event{
			Kind:   domain.EventNeedsApproval,
			TaskID: task.ID,
			At:     now,
		})
	}
	s.logger.Info("task %s submitted (score=%d approval=%t)", task.ID, scan.Score, task.ApprovalPending)
	return task, nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, taskID string) (*domain.WorkTask, error) {
	return s.deps.Tasks.GetTask(ctx, taskID)
}

// ListTasks queries tasks by filter.
func (s *Service) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.WorkTask, error) {
	return s.deps.Tasks.QueryTasks(ctx, filter)
}

// AnalyzeTask runs the analysis pipeline for the task.
func (s *Service) AnalyzeTask(ctx context.Context, taskID string) (*domain.TaskAnalysisResult, error) {
	return s.deps.Pipeline.Analyze(ctx, taskID)
}

// GetAnalysis returns the latest analysis result.
func (s *Service) GetAnalysis(ctx context.Context, taskID string) (*domain.TaskAnalysisResult, error) {
	result, err := s.deps.Tasks.LatestAnalysis(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, apperrors.NotFound("analysis", taskID)
	}
	return result, nil
}

// ApproveTaskSubmission resolves a sensitivity hold. Rejection cancels the
// task; approval releases it for analysis.
func (s *Service) ApproveTaskSubmission(ctx context.Context, taskID, reviewer string, approve bool) (*domain.WorkTask, error) {
	task, err := s.deps.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.ApprovalPending {
		return nil, apperrors.InvalidState("not_pending_approval",
			"task %s is not awaiting approval", taskID)
	}

	task.ApprovalPending = false
	if approve {
		task.ApprovalGranted = true
	} else {
		task.Status = domain.TaskCancelled
	}
	task.UpdatedAt = s.deps.Clock.Now()
	if err := s.deps.Tasks.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Info("task %s approval resolved by %s: approve=%t", taskID, reviewer, approve)
	return task, nil
}

// GetTodos lists the task's todos through the filter.
func (s *Service) GetTodos(ctx context.Context, taskID string, filter domain.TodoFilter) ([]*domain.TodoItem, error) {
	if _, err := s.deps.Tasks.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	todos, err := s.deps.Tasks.ListTodos(ctx, taskID)
	if err != nil {
		return nil, err
	}
	filtered := make([]*domain.TodoItem, 0, len(todos))
	for _, t := range todos {
		if filter.Matches(t) {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// UpdateTodoStatus applies one transition through the graph engine.
func (s *Service) UpdateTodoStatus(ctx context.Context, update todograph.StatusUpdate) (*domain.TodoItem, *todograph.StatusChangeImpact, error) {
	return s.deps.Engine.UpdateStatus(ctx, update)
}

// SubmitDeliverable uploads and immediately validates a deliverable,
// returning it with the verdict recorded.
func (s *Service) SubmitDeliverable(ctx context.Context, sub quality.Submission) (*domain.Deliverable, error) {
	d, err := s.deps.Quality.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}
	return s.deps.Quality.Process(ctx, d.ID)
}

// GetDeliverables lists a todo's deliverables.
func (s *Service) GetDeliverables(ctx context.Context, todoID string) ([]*domain.Deliverable, error) {
	if _, err := s.deps.Tasks.GetTodo(ctx, todoID); err != nil {
		return nil, err
	}
	return s.deps.Tasks.ListDeliverables(ctx, todoID)
}

// GetDeliverableStatus returns one deliverable with its reports.
func (s *Service) GetDeliverableStatus(ctx context.Context, deliverableID string) (*domain.Deliverable, error) {
	return s.deps.Tasks.GetDeliverable(ctx, deliverableID)
}

// GetProgress returns the task's progress snapshot.
func (s *Service) GetProgress(ctx context.Context, taskID string) (*domain.ProgressSnapshot, error) {
	return s.deps.Engine.Progress().Snapshot(ctx, taskID)
}

// GetBlockers detects and returns the task's open blockers.
func (s *Service) GetBlockers(ctx context.Context, taskID string) ([]*domain.Blocker, error) {
	return s.deps.Engine.IdentifyBlockers(ctx, taskID)
}

// GenerateReport builds a progress report over the range.
func (s *Service) GenerateReport(ctx context.Context, taskID string, timeRange domain.TimeRange, cfg domain.ReportConfig) (*domain.ProgressReport, error) {
	return s.deps.Engine.Progress().GenerateReport(ctx, taskID, timeRange, cfg)
}

// StartSession opens a conversation session.
func (s *Service) StartSession(ctx context.Context, userID, teamID, personaID string) (*domain.Session, error) {
	return s.deps.Conversation.StartSession(ctx, userID, teamID, personaID)
}

// SendMessage appends a message to a session timeline.
func (s *Service) SendMessage(ctx context.Context, sessionID, branchID string, role domain.MessageRole, content string, refs []domain.MessageReference) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.Validation("content_required", "message content is required")
	}
	return s.deps.Conversation.AppendMessage(ctx, sessionID, branchID, role, content, refs)
}

// GetSessionHistory reads one ordered history page.
func (s *Service) GetSessionHistory(ctx context.Context, sessionID string, query domain.HistoryQuery) (*domain.HistoryPage, error) {
	return s.deps.Conversation.GetHistory(ctx, sessionID, query)
}

// CreateBranch forks a session timeline at a message.
func (s *Service) CreateBranch(ctx context.Context, sessionID, parentMessageID, name, description string) (*domain.Branch, error) {
	return s.deps.Conversation.CreateBranch(ctx, sessionID, parentMessageID, name, description)
}

// GenerateSummary produces a summary of the session.
func (s *Service) GenerateSummary(ctx context.Context, sessionID string, kind domain.SummaryKind, timeRange *domain.TimeRange) (*domain.Summary, error) {
	return s.deps.Conversation.GenerateSummary(ctx, sessionID, kind, timeRange)
}

// BuildMemoryContext assembles the session's memory layers.
func (s *Service) BuildMemoryContext(ctx context.Context, sessionID string) (*domain.MemoryContext, error) {
	return s.deps.Conversation.BuildMemoryContext(ctx, sessionID)
}

// EndSession closes the session with a final summary.
func (s *Service) EndSession(ctx context.Context, sessionID string) (*domain.Summary, error) {
	return s.deps.Conversation.EndSession(ctx, sessionID)
}

// SubscribeEvents registers a filtered event subscriber.
func (s *Service) SubscribeEvents(filter domain.EventFilter, buffer int) (<-chan domain.Event, func()) {
	return s.deps.Bus.Subscribe(filter, buffer)
}

// RegisterTrigger adds a notification trigger for a task.
func (s *Service) RegisterTrigger(trigger notification.Trigger) string {
	return s.deps.Dispatcher.Register(trigger)
}

func validateSubmission(sub TaskSubmission) error {
	switch {
	case strings.TrimSpace(sub.Title) == "":
		return apperrors.Validation("title_required", "task title is required")
	case strings.TrimSpace(sub.Content) == "":
		return apperrors.Validation("content_required", "task content is required")
	case strings.TrimSpace(sub.Submitter) == "":
		return apperrors.Validation("submitter_required", "task submitter is required")
	}
	return nil
}

func defaultPriority(p domain.Priority) domain.Priority {
	if p == "" {
		return domain.PriorityMedium
	}
	return p
}
