// Package domain defines the entity model shared by the orchestration core:
// work tasks, todos, deliverables, analysis results, conversation sessions,
// blockers, and progress snapshots. All entities carry a Version counter for
// conditional writes and an optional TTL epoch second.
package domain

import "time"

// TaskStatus represents the lifecycle state of a work task.
type TaskStatus string

const (
	TaskSubmitted  TaskStatus = "submitted"
	TaskAnalyzing  TaskStatus = "analyzing"
	TaskAnalyzed   TaskStatus = "analyzed"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// Priority orders tasks and todos for scheduling and blocker severity.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns a comparable weight, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// WorkTask is a unit of user-submitted work to be analyzed and executed.
type WorkTask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Content     string     `json:"content"`
	Submitter   string     `json:"submitter"`
	TeamID      string     `json:"team_id"`
	Priority    Priority   `json:"priority"`
	Category    string     `json:"category,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Status      TaskStatus `json:"status"`

	// Sensitivity gating. ApprovalGranted records a reviewer's release so the
	// analysis gate does not re-hold the same content.
	SensitivityScore int    `json:"sensitivity_score"`
	MaskedContent    string `json:"masked_content,omitempty"`
	ApprovalPending  bool   `json:"approval_pending,omitempty"`
	ApprovalGranted  bool   `json:"approval_granted,omitempty"`

	// Latest analysis bookkeeping
	AnalysisVersion int    `json:"analysis_version"`
	AnalysisError   string `json:"analysis_error,omitempty"`

	Version   int64      `json:"version"`
	TTL       *int64     `json:"ttl,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// TaskFilter narrows ListTasks queries along the store's secondary indices.
type TaskFilter struct {
	TeamID    string
	Status    TaskStatus
	Submitter string
	Limit     int
	Offset    int
}
