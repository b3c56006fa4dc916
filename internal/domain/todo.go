package domain

import "time"

// TodoStatus represents the lifecycle state of a todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoBlocked    TodoStatus = "blocked"
)

// IsTerminal reports whether the status is final. A completed todo is
// immutable; corrections require a successor todo.
func (s TodoStatus) IsTerminal() bool {
	return s == TodoCompleted
}

// TodoCategory orders generated todos: earlier categories are prerequisites
// of later ones when no explicit dependency exists.
type TodoCategory string

const (
	CategoryResearch    TodoCategory = "research"
	CategoryDesign      TodoCategory = "design"
	CategoryDevelopment TodoCategory = "development"
	CategoryTesting     TodoCategory = "testing"
	CategoryReview      TodoCategory = "review"
	CategoryApproval    TodoCategory = "approval"
)

// Order returns the position of the category in the default workflow.
func (c TodoCategory) Order() int {
	switch c {
	case CategoryResearch:
		return 0
	case CategoryDesign:
		return 1
	case CategoryDevelopment:
		return 2
	case CategoryTesting:
		return 3
	case CategoryReview:
		return 4
	case CategoryApproval:
		return 5
	default:
		return 2
	}
}

// CompletionCriterion gates the transition of a todo to completed.
type CompletionCriterion struct {
	ID            string `json:"id"`
	Description   string `json:"description"`
	Mandatory     bool   `json:"mandatory"`
	Met           bool   `json:"met"`
	DeliverableID string `json:"deliverable_id,omitempty"`
}

// StatusHistoryEntry is one audit row in a todo's transition trail.
type StatusHistoryEntry struct {
	From      TodoStatus     `json:"from"`
	To        TodoStatus     `json:"to"`
	ChangedBy string         `json:"changed_by,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Override  bool           `json:"override,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	At        time.Time      `json:"at"`
}

// TodoItem is a derived, executable step; a node in the task's DAG.
// Dependencies reference only todos in the same task.
type TodoItem struct {
	ID                string       `json:"id"`
	TaskID            string       `json:"task_id"`
	Title             string       `json:"title"`
	Description       string       `json:"description,omitempty"`
	Priority          Priority     `json:"priority"`
	EstimatedHours    float64      `json:"estimated_hours"`
	Assignee          string       `json:"assignee,omitempty"`
	DueDate           *time.Time   `json:"due_date,omitempty"`
	Dependencies      []string     `json:"dependencies,omitempty"`
	Category          TodoCategory `json:"category"`
	Status            TodoStatus   `json:"status"`
	RelatedWorkgroups []string     `json:"related_workgroups,omitempty"`
	DeliverableIDs    []string     `json:"deliverable_ids,omitempty"`
	QualityCheckIDs   []string     `json:"quality_check_ids,omitempty"`

	CompletionCriteria []CompletionCriterion `json:"completion_criteria,omitempty"`
	StatusHistory      []StatusHistoryEntry  `json:"status_history,omitempty"`

	// ParentTodoID links a refinement produced by re-analysis to the todo it
	// supersedes. Set only for todos generated while the parent was already
	// in progress or completed.
	ParentTodoID string `json:"parent_todo_id,omitempty"`

	Version   int64     `json:"version"`
	TTL       *int64    `json:"ttl,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MandatoryCriteriaMet reports whether every mandatory completion criterion is met.
func (t *TodoItem) MandatoryCriteriaMet() bool {
	for _, c := range t.CompletionCriteria {
		if c.Mandatory && !c.Met {
			return false
		}
	}
	return true
}

// TodoFilter narrows GetTodos queries.
type TodoFilter struct {
	Status   TodoStatus
	Assignee string
	Category TodoCategory
}

// Matches reports whether the todo passes the filter.
func (f TodoFilter) Matches(t *TodoItem) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Assignee != "" && t.Assignee != f.Assignee {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	return true
}
