package domain

import "time"

// CompletionProjection holds the three completion date estimates. Nil fields
// mean no projection is possible (zero velocity).
type CompletionProjection struct {
	Optimistic  *time.Time `json:"optimistic,omitempty"`
	Realistic   *time.Time `json:"realistic,omitempty"`
	Pessimistic *time.Time `json:"pessimistic,omitempty"`
}

// ProgressSnapshot is the cached rollup of a task's todo statuses.
type ProgressSnapshot struct {
	TaskID        string               `json:"task_id"`
	Total         int                  `json:"total"`
	Completed     int                  `json:"completed"`
	InProgress    int                  `json:"in_progress"`
	Blocked       int                  `json:"blocked"`
	CompletionPct float64              `json:"completion_pct"`
	Velocity      float64              `json:"velocity"` // completed todos per day
	Projected     CompletionProjection `json:"projected"`
	ComputedAt    time.Time            `json:"computed_at"`
}

// ReportConfig selects optional progress report sections.
type ReportConfig struct {
	IncludeVisualization bool
	IncludeBlockers      bool
	IncludeQuality       bool
}

// DailyCompletion is one point in the report's visualization series.
type DailyCompletion struct {
	Date      time.Time `json:"date"`
	Completed int       `json:"completed"`
}

// QualityMetrics summarizes deliverable verdicts for a task.
type QualityMetrics struct {
	DeliverablesTotal    int     `json:"deliverables_total"`
	DeliverablesApproved int     `json:"deliverables_approved"`
	DeliverablesRejected int     `json:"deliverables_rejected"`
	PassRate             float64 `json:"pass_rate"`
}

// ProgressReport aggregates completion, blockers, and quality over a range.
type ProgressReport struct {
	TaskID         string            `json:"task_id"`
	Range          TimeRange         `json:"range"`
	Snapshot       ProgressSnapshot  `json:"snapshot"`
	CompletedItems []TodoItem        `json:"completed_items"`
	OpenBlockers   []Blocker         `json:"open_blockers,omitempty"`
	Quality        *QualityMetrics   `json:"quality,omitempty"`
	Visualization  []DailyCompletion `json:"visualization,omitempty"`
	GeneratedAt    time.Time         `json:"generated_at"`
}
