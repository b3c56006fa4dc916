// Package ports declares the capability interfaces the orchestration core
// consumes. Implementations are injected; the core holds no process-wide
// mutable state.
package ports

import (
	"context"
	"io"
	"time"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
)

// TaskStore persists work tasks, todos, deliverables, blockers, and analysis
// results. Updates are conditional on the entity's Version field: a mismatch
// returns a conflict error and the caller re-reads and retries.
type TaskStore interface {
	PutTask(ctx context.Context, task *domain.WorkTask) error
	GetTask(ctx context.Context, taskID string) (*domain.WorkTask, error)
	// UpdateTask performs a compare-and-set on task.Version.
	UpdateTask(ctx context.Context, task *domain.WorkTask) error
	QueryTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.WorkTask, error)

	PutTodo(ctx context.Context, todo *domain.TodoItem) error
	GetTodo(ctx context.Context, todoID string) (*domain.TodoItem, error)
	// UpdateTodo performs a compare-and-set on todo.Version.
	UpdateTodo(ctx context.Context, todo *domain.TodoItem) error
	DeleteTodo(ctx context.Context, todoID string) error
	ListTodos(ctx context.Context, taskID string) ([]*domain.TodoItem, error)
	ListTodosByAssignee(ctx context.Context, assignee string) ([]*domain.TodoItem, error)

	PutDeliverable(ctx context.Context, d *domain.Deliverable) error
	GetDeliverable(ctx context.Context, id string) (*domain.Deliverable, error)
	UpdateDeliverable(ctx context.Context, d *domain.Deliverable) error
	ListDeliverables(ctx context.Context, todoID string) ([]*domain.Deliverable, error)

	PutBlocker(ctx context.Context, b *domain.Blocker) error
	UpdateBlocker(ctx context.Context, b *domain.Blocker) error
	ListBlockers(ctx context.Context, taskID string, openOnly bool) ([]*domain.Blocker, error)

	PutAnalysis(ctx context.Context, result *domain.TaskAnalysisResult) error
	GetAnalysis(ctx context.Context, taskID string, version int) (*domain.TaskAnalysisResult, error)
	LatestAnalysis(ctx context.Context, taskID string) (*domain.TaskAnalysisResult, error)

	// ExpireTTL removes entities whose TTL epoch second passed.
	ExpireTTL(ctx context.Context, now time.Time) (int, error)
}

// SessionStore persists conversation state partitioned by session id.
// Message reads are ordered by the MSG#<ksuid> sort key; summary reads by
// SUMMARY#<kind>#<timestamp>.
type SessionStore interface {
	PutSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	// UpdateSession performs a compare-and-set on session.Version.
	UpdateSession(ctx context.Context, session *domain.Session) error
	ListSessions(ctx context.Context, status domain.SessionStatus) ([]*domain.Session, error)

	AppendMessage(ctx context.Context, msg *domain.Message) error
	// RangeMessages returns messages for (sessionID, branchID) in sort-key
	// order. An empty branchID selects the main timeline.
	RangeMessages(ctx context.Context, sessionID, branchID string) ([]domain.Message, error)
	GetMessage(ctx context.Context, sessionID, messageID string) (*domain.Message, error)

	PutBranch(ctx context.Context, branch *domain.Branch) error
	GetBranch(ctx context.Context, sessionID, branchID string) (*domain.Branch, error)
	ListBranches(ctx context.Context, sessionID string) ([]*domain.Branch, error)

	PutSummary(ctx context.Context, summary *domain.Summary) error
	// LatestSummary returns the most recent summary of the kind, or nil.
	LatestSummary(ctx context.Context, sessionID string, kind domain.SummaryKind) (*domain.Summary, error)
	ListSummaries(ctx context.Context, sessionID string) ([]*domain.Summary, error)
}

// ObjectMeta describes a stored object.
type ObjectMeta struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	Encrypted   bool
}

// ObjectStore holds deliverable payloads. Server-side encryption is required;
// Put implementations must reject unencrypted writes.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, meta ObjectMeta) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectMeta, error)
	Head(ctx context.Context, bucket, key string) (ObjectMeta, error)
}
